// internal/tools/handlers.go
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagesmith/api/schemas"
	"github.com/xkilldash9x/pagesmith/internal/artifacts"
	"github.com/xkilldash9x/pagesmith/internal/assert"
	"github.com/xkilldash9x/pagesmith/internal/browser"
)

// Deps carries the shared components every handler closes over.
type Deps struct {
	Session *browser.Manager
	Assert  *assert.Evaluator
	Shots   *artifacts.Manager
	Log     *zap.Logger
}

// RegisterAll installs the full tool surface on the registry.
func RegisterAll(r *Registry, deps Deps) error {
	for _, entry := range []struct {
		desc    schemas.ToolDescriptor
		handler Handler
	}{
		{navigateDescriptor(), deps.handleNavigate},
		{screenshotDescriptor(), deps.handleScreenshot},
		{scrapeDescriptor(), deps.handleScrape},
		{clickDescriptor(), deps.handleClick},
		{typeDescriptor(), deps.handleType},
		{waitForDescriptor(), deps.handleWaitFor},
		{getURLDescriptor(), deps.handleGetURL},
		{closeBrowserDescriptor(), deps.handleCloseBrowser},
		{healthDescriptor("browser_health", "Report the browser session's health and lifecycle state."), deps.handleHealth},
		// Retained alias for callers that still use the old name.
		{healthDescriptor("browser_status", "Alias of browser_health."), deps.handleHealth},
		{discoverDescriptor(), deps.handleDiscover},
		{assertTemplateDescriptor(), deps.handleAssertTemplate},
	} {
		if err := r.Register(entry.desc, entry.handler); err != nil {
			return err
		}
	}
	return nil
}

// -- Descriptors --

func selectorProp(desc string) schemas.PropertySpec {
	return schemas.PropertySpec{Type: "string", Description: desc}
}

func timeoutProp() schemas.PropertySpec {
	return schemas.PropertySpec{Type: "integer", Description: "Operation timeout in milliseconds. Zero uses the configured default."}
}

func navigateDescriptor() schemas.ToolDescriptor {
	return schemas.ToolDescriptor{
		Name:        "navigate",
		Description: "Navigate the shared browser session to a URL and wait for it to settle.",
		Parameters: schemas.ObjectSchema(map[string]schemas.PropertySpec{
			"url": {Type: "string", Description: "Absolute URL to open."},
			"wait_until": {Type: "string", Description: "Settle condition to wait for.",
				Enum: []string{"load", "domcontentloaded", "networkidle", "commit"}, Default: "load"},
			"timeout_ms": timeoutProp(),
		}, "url"),
	}
}

func screenshotDescriptor() schemas.ToolDescriptor {
	return schemas.ToolDescriptor{
		Name:        "screenshot",
		Description: "Capture the current page, sized to fit the inline budget; over-budget captures are stored and returned by URL.",
		Parameters: schemas.ObjectSchema(map[string]schemas.PropertySpec{
			"full_page":      {Type: "boolean", Description: "Capture the full scrollable page instead of the viewport.", Default: false},
			"max_size_bytes": {Type: "integer", Description: "Inline size budget for this capture. Defaults to the configured budget."},
			"compress":       {Type: "boolean", Description: "Re-capture down the JPEG quality ladder when over budget.", Default: true},
			"persist":        {Type: "boolean", Description: "Store an over-budget capture to disk and return it by URL.", Default: true},
			"timeout_ms":     timeoutProp(),
		}),
	}
}

func scrapeDescriptor() schemas.ToolDescriptor {
	return schemas.ToolDescriptor{
		Name:        "scrape",
		Description: "Extract text or an attribute from the element matching a selector.",
		Parameters: schemas.ObjectSchema(map[string]schemas.PropertySpec{
			"selector":  selectorProp("CSS selector. Defaults to body."),
			"attribute": {Type: "string", Description: "Attribute to read instead of the text content."},
			"multiple":  {Type: "boolean", Description: "Read every match instead of requiring exactly one.", Default: false},
		}),
	}
}

func clickDescriptor() schemas.ToolDescriptor {
	return schemas.ToolDescriptor{
		Name:        "click",
		Description: "Click the element matching a selector.",
		Parameters: schemas.ObjectSchema(map[string]schemas.PropertySpec{
			"selector":   selectorProp("CSS selector; must resolve to exactly one element."),
			"timeout_ms": timeoutProp(),
		}, "selector"),
	}
}

func typeDescriptor() schemas.ToolDescriptor {
	return schemas.ToolDescriptor{
		Name:        "type",
		Description: "Type text into the element matching a selector.",
		Parameters: schemas.ObjectSchema(map[string]schemas.PropertySpec{
			"selector": selectorProp("CSS selector; must resolve to exactly one element."),
			"text":     {Type: "string", Description: "Text to enter."},
			"mode": {Type: "string", Description: "fill replaces the value at once; press emits per-key events.",
				Enum: []string{"fill", "press"}, Default: "fill"},
			"delay_ms":   {Type: "integer", Description: "Per-keystroke delay for press mode, in milliseconds."},
			"timeout_ms": timeoutProp(),
		}, "selector", "text"),
	}
}

func waitForDescriptor() schemas.ToolDescriptor {
	return schemas.ToolDescriptor{
		Name:        "wait_for",
		Description: "Wait until the element matching a selector reaches a state.",
		Parameters: schemas.ObjectSchema(map[string]schemas.PropertySpec{
			"selector": selectorProp("CSS selector to wait on."),
			"state": {Type: "string", Description: "Element state to wait for.",
				Enum: []string{"attached", "detached", "visible", "hidden"}, Default: "visible"},
			"timeout_ms": timeoutProp(),
		}, "selector"),
	}
}

func getURLDescriptor() schemas.ToolDescriptor {
	return schemas.ToolDescriptor{
		Name:        "get_url",
		Description: "Report the current page URL and title.",
		Parameters:  schemas.ObjectSchema(nil),
	}
}

func closeBrowserDescriptor() schemas.ToolDescriptor {
	return schemas.ToolDescriptor{
		Name:        "close_browser",
		Description: "Close the shared browser session. The next stateful tool call launches a fresh one.",
		Parameters:  schemas.ObjectSchema(nil),
	}
}

func healthDescriptor(name, description string) schemas.ToolDescriptor {
	return schemas.ToolDescriptor{
		Name:        name,
		Description: description,
		Parameters:  schemas.ObjectSchema(nil),
	}
}

func discoverDescriptor() schemas.ToolDescriptor {
	return schemas.ToolDescriptor{
		Name:        "discover_elements",
		Description: "Enumerate the elements matching a selector with suggested, more specific selectors for each.",
		Parameters: schemas.ObjectSchema(map[string]schemas.PropertySpec{
			"selector": selectorProp("CSS selector to enumerate."),
			"limit":    {Type: "integer", Description: "Maximum candidates to describe.", Default: browser.DiscoverLimit},
		}, "selector"),
	}
}

func assertTemplateDescriptor() schemas.ToolDescriptor {
	return schemas.ToolDescriptor{
		Name:        "assert_template",
		Description: "Evaluate a declarative assertion template: an optional navigation followed by polled page conditions.",
		Parameters: schemas.ObjectSchema(map[string]schemas.PropertySpec{
			"navigate":   {Type: "object", Description: "Optional navigation performed before the assertions."},
			"assertions": {Type: "array", Description: "Ordered condition list; every condition is evaluated."},
		}, "assertions"),
	}
}

// -- Handlers --

func (d Deps) handleNavigate(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
	var in struct {
		URL       string `json:"url"`
		WaitUntil string `json:"wait_until"`
		TimeoutMs int    `json:"timeout_ms"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInvalidArguments, err, "invalid navigate arguments")
	}
	if !strings.Contains(in.URL, "://") {
		return nil, schemas.NewToolError(schemas.CodeInvalidArguments,
			fmt.Sprintf("url %q is not absolute", in.URL), "include the scheme, e.g. https://example.com")
	}

	page, err := d.Session.Page(ctx)
	if err != nil {
		return nil, err
	}

	waitUntil := schemas.WaitUntilState(in.WaitUntil)
	if waitUntil == "" {
		waitUntil = schemas.WaitUntilLoad
	}
	err = page.Goto(ctx, in.URL, schemas.NavigateOptions{
		WaitUntil: waitUntil,
		Timeout:   time.Duration(in.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		if browser.IsTimeout(err) {
			return nil, schemas.WrapToolError(schemas.CodeTimeout, err,
				fmt.Sprintf("navigation to %q did not settle in time", in.URL),
				"retry with a longer timeout or a weaker wait_until condition")
		}
		return nil, schemas.WrapToolError(schemas.CodeInternal, err,
			fmt.Sprintf("navigation to %q failed", in.URL))
	}

	title, _ := page.Title()
	current, _ := page.URL()
	return schemas.TextResult(fmt.Sprintf("Navigated to %s (title: %q).", current, title)), nil
}

func (d Deps) handleScreenshot(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
	var in struct {
		FullPage     bool  `json:"full_page"`
		MaxSizeBytes int   `json:"max_size_bytes"`
		Compress     *bool `json:"compress"`
		Persist      *bool `json:"persist"`
		TimeoutMs    int   `json:"timeout_ms"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInvalidArguments, err, "invalid screenshot arguments")
	}
	if in.MaxSizeBytes < 0 {
		return schemas.ErrorResult(schemas.CodeInvalidArguments,
			"max_size_bytes must not be negative",
			"omit max_size_bytes to use the configured budget"), nil
	}

	page, err := d.Session.Page(ctx)
	if err != nil {
		return nil, err
	}

	policy := artifacts.Policy{
		MaxSizeBytes: in.MaxSizeBytes,
		NoCompress:   in.Compress != nil && !*in.Compress,
		NoPersist:    in.Persist != nil && !*in.Persist,
	}
	artifact, err := d.Shots.Process(ctx, page.Screenshot, schemas.ScreenshotOptions{
		FullPage: in.FullPage,
		Timeout:  time.Duration(in.TimeoutMs) * time.Millisecond,
	}, policy)
	if err != nil {
		if _, ok := schemas.AsToolError(err); ok {
			return nil, err
		}
		return nil, schemas.WrapToolError(schemas.CodeInternal, err, "screenshot failed")
	}

	if artifact.Inline() {
		result := schemas.ImageResult(artifact.Data, artifact.MimeType)
		note := fmt.Sprintf("Captured screenshot (%d bytes", artifact.Size)
		if artifact.Quality > 0 {
			note += fmt.Sprintf(", quality %d", artifact.Quality)
		}
		note += ")."
		result.Content = append(result.Content, schemas.ContentPart{Kind: schemas.ContentText, Text: note})
		return result, nil
	}

	// Persisted over-budget capture: the file handle is the successful
	// outcome, reported by reference with the bytes never inlined.
	note := fmt.Sprintf("Screenshot is %d bytes, over the inline budget", artifact.Size)
	if artifact.Quality > 0 {
		note += fmt.Sprintf(" even at quality %d", artifact.Quality)
	}
	note += fmt.Sprintf("; stored at %s and retrievable from %s.", artifact.Path, artifact.URL)
	return schemas.TextResult(note), nil
}

func (d Deps) handleScrape(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
	var in struct {
		Selector  string `json:"selector"`
		Attribute string `json:"attribute"`
		Multiple  bool   `json:"multiple"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInvalidArguments, err, "invalid scrape arguments")
	}
	if in.Selector == "" {
		in.Selector = "body"
	}

	page, err := d.Session.Page(ctx)
	if err != nil {
		return nil, err
	}
	if result, err := requireMatch(ctx, page, in.Selector); result != nil || err != nil {
		return result, err
	}

	read := func(l schemas.Locator) (string, error) {
		if in.Attribute != "" {
			return l.GetAttribute(ctx, in.Attribute)
		}
		return l.TextContent(ctx)
	}

	locator := page.Locator(in.Selector)
	if in.Multiple {
		n, err := locator.Count(ctx)
		if err != nil {
			return nil, schemas.WrapToolError(schemas.CodeInternal, err,
				fmt.Sprintf("failed to resolve selector %q", in.Selector))
		}
		values := make([]string, 0, n)
		for i := 0; i < n; i++ {
			value, err := read(locator.Nth(i))
			if err != nil {
				return nil, schemas.WrapToolError(schemas.CodeInternal, err,
					fmt.Sprintf("failed to read match %d of %q", i, in.Selector))
			}
			values = append(values, value)
		}
		raw, err := json.MarshalIndent(values, "", "  ")
		if err != nil {
			return nil, schemas.WrapToolError(schemas.CodeInternal, err, "failed to encode scraped values")
		}
		return schemas.TextResult(string(raw)), nil
	}

	value, err := read(locator)
	if err != nil {
		return d.resolveElementFault(ctx, page, in.Selector, "scrape", err)
	}
	return schemas.TextResult(value), nil
}

func (d Deps) handleClick(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
	var in struct {
		Selector  string `json:"selector"`
		TimeoutMs int    `json:"timeout_ms"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInvalidArguments, err, "invalid click arguments")
	}

	page, err := d.Session.Page(ctx)
	if err != nil {
		return nil, err
	}
	if result, err := requireMatch(ctx, page, in.Selector); result != nil || err != nil {
		return result, err
	}

	if err := page.Locator(in.Selector).Click(ctx, time.Duration(in.TimeoutMs)*time.Millisecond); err != nil {
		return d.resolveElementFault(ctx, page, in.Selector, "click", err)
	}
	return schemas.TextResult(fmt.Sprintf("Clicked %q.", in.Selector)), nil
}

func (d Deps) handleType(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
	var in struct {
		Selector  string `json:"selector"`
		Text      string `json:"text"`
		Mode      string `json:"mode"`
		DelayMs   int    `json:"delay_ms"`
		TimeoutMs int    `json:"timeout_ms"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInvalidArguments, err, "invalid type arguments")
	}

	page, err := d.Session.Page(ctx)
	if err != nil {
		return nil, err
	}
	if result, err := requireMatch(ctx, page, in.Selector); result != nil || err != nil {
		return result, err
	}

	locator := page.Locator(in.Selector)
	if in.Mode == "press" {
		err = locator.Type(ctx, in.Text, time.Duration(in.DelayMs)*time.Millisecond)
	} else {
		err = locator.Fill(ctx, in.Text, time.Duration(in.TimeoutMs)*time.Millisecond)
	}
	if err != nil {
		return d.resolveElementFault(ctx, page, in.Selector, "type", err)
	}
	return schemas.TextResult(fmt.Sprintf("Typed %d characters into %q.", len(in.Text), in.Selector)), nil
}

func (d Deps) handleWaitFor(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
	var in struct {
		Selector  string `json:"selector"`
		State     string `json:"state"`
		TimeoutMs int    `json:"timeout_ms"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInvalidArguments, err, "invalid wait_for arguments")
	}
	state := schemas.ElementState(in.State)
	if state == "" {
		state = schemas.ElementVisible
	}

	page, err := d.Session.Page(ctx)
	if err != nil {
		return nil, err
	}

	err = page.Locator(in.Selector).WaitFor(ctx, state, time.Duration(in.TimeoutMs)*time.Millisecond)
	if err != nil {
		if browser.IsTimeout(err) {
			return nil, schemas.WrapToolError(schemas.CodeTimeout, err,
				fmt.Sprintf("element %q did not become %s in time", in.Selector, state),
				"retry with a longer timeout, or use assert_template for a polled check")
		}
		return d.resolveElementFault(ctx, page, in.Selector, "wait_for", err)
	}
	return schemas.TextResult(fmt.Sprintf("Element %q is %s.", in.Selector, state)), nil
}

func (d Deps) handleGetURL(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
	page, err := d.Session.Page(ctx)
	if err != nil {
		return nil, err
	}
	url, err := page.URL()
	if err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInternal, err, "failed to read the current URL")
	}
	title, _ := page.Title()
	return schemas.TextResult(fmt.Sprintf("URL: %s\nTitle: %s", url, title)), nil
}

func (d Deps) handleCloseBrowser(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
	if err := d.Session.Close(ctx); err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInternal, err, "failed to close the browser session")
	}
	return schemas.TextResult("Browser session closed. The next stateful call launches a fresh one."), nil
}

// handleHealth reads the session snapshot without launching anything.
func (d Deps) handleHealth(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
	status := d.Session.Status()
	raw, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInternal, err, "failed to encode the session status")
	}
	return schemas.TextResult(string(raw)), nil
}

func (d Deps) handleDiscover(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
	var in struct {
		Selector string `json:"selector"`
		Limit    int    `json:"limit"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInvalidArguments, err, "invalid discover_elements arguments")
	}

	page, err := d.Session.Page(ctx)
	if err != nil {
		return nil, err
	}

	candidates, err := browser.DescribeMatches(ctx, page, in.Selector, in.Limit)
	if err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInternal, err,
			fmt.Sprintf("failed to enumerate elements for %q", in.Selector))
	}
	if len(candidates) == 0 {
		return schemas.ErrorResult(schemas.CodeElementNotFound,
			fmt.Sprintf("no element matches %q", in.Selector),
			"broaden the selector, or navigate to the page that contains the element"), nil
	}

	raw, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInternal, err, "failed to encode the candidates")
	}
	return schemas.TextResult(string(raw)), nil
}

func (d Deps) handleAssertTemplate(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
	var tpl schemas.AssertionTemplate
	if err := decodeArgs(args, &tpl); err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInvalidArguments, err, "invalid assertion template")
	}
	if len(tpl.Assertions) == 0 {
		return nil, schemas.NewToolError(schemas.CodeInvalidArguments,
			"assertion template has no assertions", "provide at least one condition in assertions")
	}

	page, err := d.Session.Page(ctx)
	if err != nil {
		return nil, err
	}

	summary, err := d.Assert.Evaluate(ctx, page, tpl)
	if err != nil {
		return nil, err
	}

	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInternal, err, "failed to encode the assertion summary")
	}
	return schemas.TextResult(string(raw)), nil
}

// requireMatch pre-checks that a selector matches at least one element,
// resolving zero matches into the structured not-found result before any
// side effect happens.
func requireMatch(ctx context.Context, page schemas.Page, selector string) (*schemas.ToolResult, error) {
	n, err := page.Locator(selector).Count(ctx)
	if err != nil {
		return nil, schemas.WrapToolError(schemas.CodeInternal, err,
			fmt.Sprintf("failed to resolve selector %q", selector))
	}
	if n == 0 {
		return schemas.ErrorResult(schemas.CodeElementNotFound,
			fmt.Sprintf("no element matches %q", selector),
			"call discover_elements with a broader selector to locate the element",
			"navigate to the page that contains the element first"), nil
	}
	return nil, nil
}

// resolveElementFault maps a failed element operation onto the error
// taxonomy. Ambiguous matches get the full candidate enrichment; timeouts
// propagate; anything else is internal.
func (d Deps) resolveElementFault(ctx context.Context, page schemas.Page, selector, op string, err error) (*schemas.ToolResult, error) {
	if fault, ok := schemas.IsAmbiguousMatch(err); ok {
		return browser.AmbiguityResult(ctx, page, fault), nil
	}
	if browser.IsTimeout(err) {
		return nil, schemas.WrapToolError(schemas.CodeTimeout, err,
			fmt.Sprintf("%s on %q timed out", op, selector),
			"retry with a longer timeout", "confirm the element is interactable")
	}
	return nil, schemas.WrapToolError(schemas.CodeInternal, err,
		fmt.Sprintf("%s on %q failed", op, selector))
}

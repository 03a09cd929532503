// internal/browser/playwright.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagesmith/api/schemas"
)

const playwrightInstallTimeout = 5 * time.Minute

// PlaywrightProvider implements schemas.Provider on top of the Playwright
// driver. One provider instance owns the driver process; each Launch
// produces an independent browser.
type PlaywrightProvider struct {
	pw     *playwright.Playwright
	logger *zap.Logger
}

var _ schemas.Provider = (*PlaywrightProvider)(nil)

// NewPlaywrightProvider installs the Chromium runtime if needed and starts
// the Playwright driver.
func NewPlaywrightProvider(ctx context.Context, logger *zap.Logger) (*PlaywrightProvider, error) {
	log := logger.Named("playwright")

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	installCtx, cancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer cancel()

	// Install blocks; run it in a goroutine so the timeout stays enforceable.
	installErr := make(chan error, 1)
	go func() {
		installErr <- playwright.Install(runOpts)
	}()
	select {
	case err := <-installErr:
		if err != nil {
			return nil, fmt.Errorf("failed to install playwright browsers: %w", err)
		}
	case <-installCtx.Done():
		return nil, fmt.Errorf("timeout waiting for playwright installation: %w", installCtx.Err())
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}

	log.Info("Playwright driver started.")
	return &PlaywrightProvider{pw: pw, logger: log}, nil
}

// Launch starts a Chromium instance.
func (p *PlaywrightProvider) Launch(ctx context.Context, opts schemas.LaunchOptions) (schemas.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     append(defaultLaunchArgs(), opts.Args...),
	}
	if opts.Timeout > 0 {
		launchOpts.Timeout = playwright.Float(float64(opts.Timeout.Milliseconds()))
	}

	b, err := p.pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser instance: %w", err)
	}
	p.logger.Debug("Browser instance launched.", zap.String("version", b.Version()))
	return &pwBrowser{raw: b, logger: p.logger}, nil
}

// Stop terminates the Playwright driver process.
func (p *PlaywrightProvider) Stop() error {
	return p.pw.Stop()
}

func defaultLaunchArgs() []string {
	// Stability flags for containerized environments.
	return []string{
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
	}
}

const (
	defaultViewportWidth  = 1280
	defaultViewportHeight = 720
)

type pwBrowser struct {
	raw    playwright.Browser
	logger *zap.Logger
}

var _ schemas.Browser = (*pwBrowser)(nil)

func (b *pwBrowser) NewPage(ctx context.Context) (schemas.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browserCtx, err := b.raw.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: defaultViewportWidth, Height: defaultViewportHeight},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &pwPage{raw: page, ctx: browserCtx, width: defaultViewportWidth, height: defaultViewportHeight}, nil
}

func (b *pwBrowser) OnDisconnected(fn func()) {
	b.raw.OnDisconnected(func(playwright.Browser) { fn() })
}

func (b *pwBrowser) IsConnected() bool { return b.raw.IsConnected() }

func (b *pwBrowser) Close(ctx context.Context) error {
	if err := b.raw.Close(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

type pwPage struct {
	raw    playwright.Page
	ctx    playwright.BrowserContext
	width  int
	height int
}

var _ schemas.Page = (*pwPage)(nil)

func (p *pwPage) Goto(ctx context.Context, url string, opts schemas.NavigateOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gotoOpts := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		state := toWaitUntil(opts.WaitUntil)
		gotoOpts.WaitUntil = &state
	}
	if opts.Timeout > 0 {
		gotoOpts.Timeout = playwright.Float(float64(opts.Timeout.Milliseconds()))
	}
	if _, err := p.raw.Goto(url, gotoOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// URL doubles as the session manager's liveness probe. The driver's URL
// read is local and never fails, so a closed page has to be surfaced
// explicitly for the probe to detect it.
func (p *pwPage) URL() (string, error) {
	if p.raw.IsClosed() {
		return "", errors.New("page is closed")
	}
	return p.raw.URL(), nil
}

func (p *pwPage) Title() (string, error) { return p.raw.Title() }

func (p *pwPage) Locator(selector string) schemas.Locator {
	return &pwLocator{raw: p.raw.Locator(selector), selector: selector}
}

func (p *pwPage) Screenshot(ctx context.Context, opts schemas.ScreenshotOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shotOpts := playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(opts.FullPage),
	}
	if opts.Format == schemas.FormatJPEG {
		shotOpts.Type = playwright.ScreenshotTypeJpeg
		if opts.Quality > 0 {
			shotOpts.Quality = playwright.Int(opts.Quality)
		}
	} else {
		shotOpts.Type = playwright.ScreenshotTypePng
	}
	if opts.Timeout > 0 {
		shotOpts.Timeout = playwright.Float(float64(opts.Timeout.Milliseconds()))
	}
	return p.raw.Screenshot(shotOpts)
}

func (p *pwPage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result, err := p.raw.Evaluate(expression)
	if err != nil {
		return fmt.Errorf("evaluate failed: %w", err)
	}
	if out == nil {
		return nil
	}
	// Round-trip through JSON to decode the driver's generic result.
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode evaluate result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode evaluate result: %w", err)
	}
	return nil
}

func (p *pwPage) SetDefaultTimeout(d time.Duration) {
	p.raw.SetDefaultTimeout(float64(d.Milliseconds()))
}

func (p *pwPage) ViewportSize() (int, int) { return p.width, p.height }

func (p *pwPage) Close(ctx context.Context) error {
	if err := p.raw.Close(); err != nil {
		return err
	}
	return p.ctx.Close()
}

type pwLocator struct {
	raw      playwright.Locator
	selector string
}

var _ schemas.Locator = (*pwLocator)(nil)

func (l *pwLocator) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.raw.Count()
}

func (l *pwLocator) Click(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := playwright.LocatorClickOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	return l.wrapStrict(l.raw.Click(opts))
}

func (l *pwLocator) Fill(ctx context.Context, text string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := playwright.LocatorFillOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	return l.wrapStrict(l.raw.Fill(text, opts))
}

func (l *pwLocator) Type(ctx context.Context, text string, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := playwright.LocatorPressSequentiallyOptions{}
	if delay > 0 {
		opts.Delay = playwright.Float(float64(delay.Milliseconds()))
	}
	return l.wrapStrict(l.raw.PressSequentially(text, opts))
}

func (l *pwLocator) TextContent(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := l.raw.TextContent()
	return text, l.wrapStrict(err)
}

func (l *pwLocator) InputValue(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	value, err := l.raw.InputValue()
	return value, l.wrapStrict(err)
}

func (l *pwLocator) GetAttribute(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	value, err := l.raw.GetAttribute(name)
	return value, l.wrapStrict(err)
}

func (l *pwLocator) IsVisible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := l.raw.IsVisible()
	return ok, l.wrapStrict(err)
}

func (l *pwLocator) IsHidden(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := l.raw.IsHidden()
	return ok, l.wrapStrict(err)
}

func (l *pwLocator) IsChecked(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := l.raw.IsChecked()
	return ok, l.wrapStrict(err)
}

func (l *pwLocator) IsEnabled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := l.raw.IsEnabled()
	return ok, l.wrapStrict(err)
}

func (l *pwLocator) BoundingBox(ctx context.Context) (*schemas.Rect, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	box, err := l.raw.BoundingBox()
	if err != nil {
		return nil, l.wrapStrict(err)
	}
	if box == nil {
		return nil, nil
	}
	return &schemas.Rect{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}

func (l *pwLocator) WaitFor(ctx context.Context, state schemas.ElementState, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := playwright.LocatorWaitForOptions{}
	if state != "" {
		s := toSelectorState(state)
		opts.State = &s
	}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	return l.raw.WaitFor(opts)
}

func (l *pwLocator) Nth(i int) schemas.Locator {
	return &pwLocator{raw: l.raw.Nth(i), selector: l.selector}
}

// strictViolationRe extracts the match count from the driver's strict mode
// violation message, e.g. "strict mode violation: ... resolved to 3 elements".
var strictViolationRe = regexp.MustCompile(`resolved to (\d+) elements`)

// wrapStrict converts the driver's strict mode violation into the typed
// ambiguity fault the enricher keys on.
func (l *pwLocator) wrapStrict(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, "strict mode violation") {
		return err
	}
	matches := 2
	if m := strictViolationRe.FindStringSubmatch(msg); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			matches = n
		}
	}
	return &schemas.AmbiguousMatchError{Selector: l.selector, Matches: matches}
}

// IsTimeout reports whether err came from an exhausted driver deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if ctxErr := context.DeadlineExceeded; strings.Contains(err.Error(), ctxErr.Error()) {
		return true
	}
	return strings.Contains(err.Error(), "Timeout") && strings.Contains(err.Error(), "exceeded")
}

func toWaitUntil(s schemas.WaitUntilState) playwright.WaitUntilState {
	switch s {
	case schemas.WaitUntilDOMContentLoaded:
		return *playwright.WaitUntilStateDomcontentloaded
	case schemas.WaitUntilNetworkIdle:
		return *playwright.WaitUntilStateNetworkidle
	case schemas.WaitUntilCommit:
		return *playwright.WaitUntilStateCommit
	default:
		return *playwright.WaitUntilStateLoad
	}
}

func toSelectorState(s schemas.ElementState) playwright.WaitForSelectorState {
	switch s {
	case schemas.ElementDetached:
		return *playwright.WaitForSelectorStateDetached
	case schemas.ElementVisible:
		return *playwright.WaitForSelectorStateVisible
	case schemas.ElementHidden:
		return *playwright.WaitForSelectorStateHidden
	default:
		return *playwright.WaitForSelectorStateAttached
	}
}

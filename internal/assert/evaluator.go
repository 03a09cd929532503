// internal/assert/evaluator.go

// Package assert evaluates declarative assertion templates against the
// live page: an optional navigation directive followed by a list of
// conditions, each polled until it passes or its own timeout expires.
// Conditions are evaluated strictly in order and a failure never aborts
// the rest of the list; the caller always receives one result per
// condition.
package assert

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagesmith/api/schemas"
	"github.com/xkilldash9x/pagesmith/internal/config"
)

// defaultNavigationTimeout bounds the template's navigation step when the
// directive does not carry its own timeout.
const defaultNavigationTimeout = 30 * time.Second

// Evaluator runs assertion templates. It holds no page state of its own;
// the page handle is passed per evaluation.
type Evaluator struct {
	logger *zap.Logger
	cfg    config.AssertConfig

	// Test seams.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEvaluator creates an evaluator with the configured polling policy.
func NewEvaluator(cfg config.AssertConfig, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.Named("assert"),
		cfg:    cfg,
		now:    time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// ResetClock is a test hook overriding the time source.
func (e *Evaluator) ResetClock(now func() time.Time, sleep func(context.Context, time.Duration) error) {
	if now != nil {
		e.now = now
	}
	if sleep != nil {
		e.sleep = sleep
	}
}

// Evaluate runs the template. The navigation directive, when present, is
// a precondition: if it fails even after the fallback, the whole template
// errors out without evaluating any condition. Condition failures, by
// contrast, are ordinary results.
func (e *Evaluator) Evaluate(ctx context.Context, page schemas.Page, tpl schemas.AssertionTemplate) (*schemas.AssertionSummary, error) {
	if tpl.Navigate != nil {
		if err := e.navigate(ctx, page, tpl.Navigate); err != nil {
			return nil, err
		}
	}

	summary := &schemas.AssertionSummary{
		Total:   len(tpl.Assertions),
		Results: make([]schemas.AssertionResult, 0, len(tpl.Assertions)),
	}
	for i, cond := range tpl.Assertions {
		res := e.evaluateCondition(ctx, page, i, cond)
		if res.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, res)
	}
	return summary, nil
}

// navigate performs the one-shot navigation. A networkidle wait that
// fails is retried once as domcontentloaded followed by a fixed settle
// delay; pages with persistent background traffic never reach idle, and
// the degraded wait is the closest observable approximation.
func (e *Evaluator) navigate(ctx context.Context, page schemas.Page, nav *schemas.NavigationDirective) error {
	waitUntil := schemas.WaitUntilState(nav.WaitUntil)
	if waitUntil == "" {
		waitUntil = schemas.WaitUntilLoad
	}
	timeout := defaultNavigationTimeout
	if nav.TimeoutMs > 0 {
		timeout = time.Duration(nav.TimeoutMs) * time.Millisecond
	}

	err := page.Goto(ctx, nav.URL, schemas.NavigateOptions{WaitUntil: waitUntil, Timeout: timeout})
	if err == nil {
		return nil
	}

	if waitUntil == schemas.WaitUntilNetworkIdle {
		e.logger.Debug("Network-idle navigation failed; retrying with domcontentloaded.",
			zap.String("url", nav.URL), zap.Error(err))
		err = page.Goto(ctx, nav.URL, schemas.NavigateOptions{
			WaitUntil: schemas.WaitUntilDOMContentLoaded,
			Timeout:   timeout,
		})
		if err == nil {
			return e.sleep(ctx, e.cfg.SettleDelay)
		}
	}
	return schemas.WrapToolError(schemas.CodeInternal, err,
		fmt.Sprintf("template navigation to %q failed", nav.URL))
}

// probe checks a condition once. The string return describes the actual
// observed value for failure messages.
type probe func(ctx context.Context) (bool, string, error)

// evaluateCondition polls one condition until it passes or its deadline
// expires. Predicate errors during polling (detached nodes, in-flight
// navigations) are treated as "not passed yet" and retried; only setup
// errors fail immediately without polling.
func (e *Evaluator) evaluateCondition(ctx context.Context, page schemas.Page, index int, cond schemas.AssertionCondition) schemas.AssertionResult {
	res := schemas.AssertionResult{
		Index:    index,
		Type:     cond.Type,
		Selector: cond.Selector,
	}

	check, err := e.buildProbe(page, cond)
	if err != nil {
		res.Message = fmt.Sprintf("condition %d (%s) is invalid", index, cond.Type)
		res.Details = err.Error()
		return res
	}

	timeout := e.cfg.DefaultTimeout
	if cond.TimeoutMs > 0 {
		timeout = time.Duration(cond.TimeoutMs) * time.Millisecond
	}
	deadline := e.now().Add(timeout)

	var lastDetail string
	var lastErr error
	for {
		ok, detail, probeErr := check(ctx)
		if probeErr == nil && ok {
			res.Passed = true
			res.Message = fmt.Sprintf("condition %d (%s) passed", index, cond.Type)
			return res
		}
		if probeErr != nil {
			lastErr = probeErr
		} else {
			lastDetail = detail
			lastErr = nil
		}

		if !e.now().Before(deadline) {
			break
		}
		if sleepErr := e.sleep(ctx, e.cfg.PollInterval); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	res.Message = fmt.Sprintf("condition %d (%s) failed after %s", index, cond.Type, timeout)
	if lastErr != nil {
		res.Details = lastErr.Error()
	} else {
		res.Details = lastDetail
	}
	return res
}

// buildProbe validates the condition and returns its single-shot check.
// Validation errors returned here are setup errors: bad kind, missing
// selector, malformed pattern or a mistyped expected value.
func (e *Evaluator) buildProbe(page schemas.Page, cond schemas.AssertionCondition) (probe, error) {
	switch cond.Type {
	case schemas.AssertPageTitle:
		match, err := newStringMatcher(cond)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (bool, string, error) {
			title, err := page.Title()
			if err != nil {
				return false, "", err
			}
			return match(title), fmt.Sprintf("page title was %q", title), nil
		}, nil

	case schemas.AssertPageURL:
		match, err := newStringMatcher(cond)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (bool, string, error) {
			url, err := page.URL()
			if err != nil {
				return false, "", err
			}
			return match(url), fmt.Sprintf("page url was %q", url), nil
		}, nil

	case schemas.AssertVisible:
		return e.elementProbe(page, cond, func(ctx context.Context, l schemas.Locator) (bool, string, error) {
			visible, err := l.IsVisible(ctx)
			return visible, "element is not visible", err
		})

	case schemas.AssertHidden:
		return e.elementProbe(page, cond, func(ctx context.Context, l schemas.Locator) (bool, string, error) {
			hidden, err := l.IsHidden(ctx)
			return hidden, "element is not hidden", err
		})

	case schemas.AssertAttached:
		return e.countStateProbe(page, cond, func(n int) bool { return n > 0 }, "no matching element is attached")

	case schemas.AssertDetached:
		return e.countStateProbe(page, cond, func(n int) bool { return n == 0 }, "a matching element is still attached")

	case schemas.AssertText:
		match, err := newStringMatcher(cond)
		if err != nil {
			return nil, err
		}
		return e.elementProbe(page, cond, func(ctx context.Context, l schemas.Locator) (bool, string, error) {
			text, err := l.TextContent(ctx)
			if err != nil {
				return false, "", err
			}
			return match(text), fmt.Sprintf("element text was %q", text), nil
		})

	case schemas.AssertValue:
		match, err := newStringMatcher(cond)
		if err != nil {
			return nil, err
		}
		return e.elementProbe(page, cond, func(ctx context.Context, l schemas.Locator) (bool, string, error) {
			// Non-input elements have no value property; fall back to their
			// text content so the kind works on both.
			value, err := l.InputValue(ctx)
			if err != nil {
				value, err = l.TextContent(ctx)
				if err != nil {
					return false, "", err
				}
			}
			return match(value), fmt.Sprintf("element value was %q", value), nil
		})

	case schemas.AssertAttribute:
		if cond.Attribute == "" {
			return nil, fmt.Errorf("attribute condition requires an attribute name")
		}
		match, err := newStringMatcher(cond)
		if err != nil {
			return nil, err
		}
		return e.elementProbe(page, cond, func(ctx context.Context, l schemas.Locator) (bool, string, error) {
			value, err := l.GetAttribute(ctx, cond.Attribute)
			if err != nil {
				return false, "", err
			}
			return match(value), fmt.Sprintf("attribute %q was %q", cond.Attribute, value), nil
		})

	case schemas.AssertCSS:
		if cond.Selector == "" {
			return nil, fmt.Errorf("%s condition requires a selector", cond.Type)
		}
		if cond.Attribute == "" {
			return nil, fmt.Errorf("css condition requires a style property name in attribute")
		}
		match, err := newStringMatcher(cond)
		if err != nil {
			return nil, err
		}
		script := fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			if (!el) return null;
			return getComputedStyle(el).getPropertyValue(%q);
		})()`, cond.Selector, cond.Attribute)
		return func(ctx context.Context) (bool, string, error) {
			var value *string
			if err := page.Evaluate(ctx, script, &value); err != nil {
				return false, "", err
			}
			if value == nil {
				return false, "", fmt.Errorf("no element matches %q", cond.Selector)
			}
			got := strings.TrimSpace(*value)
			return match(got), fmt.Sprintf("computed style %q was %q", cond.Attribute, got), nil
		}, nil

	case schemas.AssertCount:
		if cond.Selector == "" {
			return nil, fmt.Errorf("%s condition requires a selector", cond.Type)
		}
		expected, err := expectedInt(cond.Expected)
		if err != nil {
			return nil, err
		}
		compare, err := newCountComparator(cond.Comparator)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (bool, string, error) {
			n, err := page.Locator(cond.Selector).Count(ctx)
			if err != nil {
				return false, "", err
			}
			return compare(n, expected), fmt.Sprintf("selector matched %d elements", n), nil
		}, nil

	case schemas.AssertChecked:
		expected, err := expectedBool(cond.Expected)
		if err != nil {
			return nil, err
		}
		return e.elementProbe(page, cond, func(ctx context.Context, l schemas.Locator) (bool, string, error) {
			checked, err := l.IsChecked(ctx)
			if err != nil {
				return false, "", err
			}
			return checked == expected, fmt.Sprintf("checked state was %t", checked), nil
		})

	case schemas.AssertEnabled:
		expected, err := expectedBool(cond.Expected)
		if err != nil {
			return nil, err
		}
		return e.elementProbe(page, cond, func(ctx context.Context, l schemas.Locator) (bool, string, error) {
			enabled, err := l.IsEnabled(ctx)
			if err != nil {
				return false, "", err
			}
			return enabled == expected, fmt.Sprintf("enabled state was %t", enabled), nil
		})

	case schemas.AssertInViewport:
		if cond.Selector == "" {
			return nil, fmt.Errorf("%s condition requires a selector", cond.Type)
		}
		minRatio := cond.MinRatio
		if minRatio < 0 || minRatio > 1.0 {
			return nil, fmt.Errorf("min_ratio must be in [0, 1], got %v", cond.MinRatio)
		}
		return func(ctx context.Context) (bool, string, error) {
			box, err := page.Locator(cond.Selector).BoundingBox(ctx)
			if err != nil {
				return false, "", err
			}
			if box == nil {
				return false, "element has no bounding box", nil
			}
			width, height := page.ViewportSize()
			ratio := visibleRatio(*box, width, height)
			return ratio >= minRatio,
				fmt.Sprintf("element viewport overlap was %.2f (needed %.2f)", ratio, minRatio), nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown condition type %q", cond.Type)
	}
}

// elementProbe wraps a per-locator check with the shared selector
// requirement.
func (e *Evaluator) elementProbe(page schemas.Page, cond schemas.AssertionCondition,
	check func(ctx context.Context, l schemas.Locator) (bool, string, error)) (probe, error) {
	if cond.Selector == "" {
		return nil, fmt.Errorf("%s condition requires a selector", cond.Type)
	}
	return func(ctx context.Context) (bool, string, error) {
		return check(ctx, page.Locator(cond.Selector))
	}, nil
}

func (e *Evaluator) countStateProbe(page schemas.Page, cond schemas.AssertionCondition,
	pass func(n int) bool, detail string) (probe, error) {
	if cond.Selector == "" {
		return nil, fmt.Errorf("%s condition requires a selector", cond.Type)
	}
	return func(ctx context.Context) (bool, string, error) {
		n, err := page.Locator(cond.Selector).Count(ctx)
		if err != nil {
			return false, "", err
		}
		return pass(n), detail, nil
	}, nil
}

// newStringMatcher builds the comparison for string-valued kinds. Pattern
// wins when present; otherwise the comparator selects contains or exact,
// with exact the default.
func newStringMatcher(cond schemas.AssertionCondition) (func(string) bool, error) {
	if cond.Pattern != "" || cond.Comparator == schemas.ComparePattern {
		re, err := ParsePattern(cond.Pattern)
		if err != nil {
			return nil, err
		}
		return re.MatchString, nil
	}

	expected, err := expectedString(cond.Expected)
	if err != nil {
		return nil, err
	}
	switch cond.Comparator {
	case "", schemas.CompareExact:
		return func(s string) bool { return s == expected }, nil
	case schemas.CompareContains:
		return func(s string) bool { return strings.Contains(s, expected) }, nil
	default:
		return nil, fmt.Errorf("comparator %q is not valid for string conditions", cond.Comparator)
	}
}

func newCountComparator(c schemas.Comparator) (func(got, want int) bool, error) {
	switch c {
	case "", schemas.CompareEquals, schemas.CompareExact:
		return func(got, want int) bool { return got == want }, nil
	case schemas.CompareGT:
		return func(got, want int) bool { return got > want }, nil
	case schemas.CompareGTE:
		return func(got, want int) bool { return got >= want }, nil
	case schemas.CompareLT:
		return func(got, want int) bool { return got < want }, nil
	case schemas.CompareLTE:
		return func(got, want int) bool { return got <= want }, nil
	default:
		return nil, fmt.Errorf("comparator %q is not valid for count conditions", c)
	}
}

func expectedString(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case nil:
		return "", fmt.Errorf("condition requires an expected string")
	default:
		return "", fmt.Errorf("expected value must be a string, got %T", v)
	}
}

func expectedInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case float64:
		// JSON numbers decode as float64.
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("expected count must be an integer, got %v", t)
		}
		return int(t), nil
	case nil:
		return 0, fmt.Errorf("count condition requires an expected number")
	default:
		return 0, fmt.Errorf("expected count must be a number, got %T", v)
	}
}

// expectedBool defaults to true: asserting "checked" with no expected
// value means "is checked".
func expectedBool(v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case nil:
		return true, nil
	default:
		return false, fmt.Errorf("expected value must be a boolean, got %T", v)
	}
}

// visibleRatio is the fraction of the element's area inside the viewport.
func visibleRatio(box schemas.Rect, viewWidth, viewHeight int) float64 {
	area := box.Width * box.Height
	if area <= 0 {
		return 0
	}
	left := math.Max(box.X, 0)
	top := math.Max(box.Y, 0)
	right := math.Min(box.X+box.Width, float64(viewWidth))
	bottom := math.Min(box.Y+box.Height, float64(viewHeight))
	if right <= left || bottom <= top {
		return 0
	}
	return ((right - left) * (bottom - top)) / area
}

// Package browsertest provides in-memory fakes for the browser provider
// contract, shared by the session, assertion and tool tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/pagesmith/api/schemas"
)

// FakeProvider scripts launch outcomes. LaunchErrs is consumed one entry
// per call; a nil entry (or an exhausted slice) means success.
type FakeProvider struct {
	mu         sync.Mutex
	LaunchErrs []error
	Launches   int
	Browsers   []*FakeBrowser
	// NextPage, when set, seeds the page of the next launched browser.
	NextPage *FakePage
}

var _ schemas.Provider = (*FakeProvider)(nil)

func (p *FakeProvider) Launch(ctx context.Context, opts schemas.LaunchOptions) (schemas.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.Launches
	p.Launches++
	if idx < len(p.LaunchErrs) && p.LaunchErrs[idx] != nil {
		return nil, p.LaunchErrs[idx]
	}
	b := &FakeBrowser{connected: true, page: p.NextPage}
	p.Browsers = append(p.Browsers, b)
	return b, nil
}

// LaunchCount returns how many launches were attempted.
func (p *FakeProvider) LaunchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Launches
}

// FakeBrowser is a scriptable schemas.Browser.
type FakeBrowser struct {
	mu            sync.Mutex
	connected     bool
	closed        bool
	disconnectFns []func()
	page          *FakePage

	NewPageErrs []error
	PagesMade   int
}

var _ schemas.Browser = (*FakeBrowser)(nil)

func (b *FakeBrowser) NewPage(ctx context.Context) (schemas.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.PagesMade
	b.PagesMade++
	if idx < len(b.NewPageErrs) && b.NewPageErrs[idx] != nil {
		return nil, b.NewPageErrs[idx]
	}
	if b.page == nil {
		b.page = NewFakePage()
	}
	return b.page, nil
}

func (b *FakeBrowser) OnDisconnected(fn func()) {
	b.mu.Lock()
	b.disconnectFns = append(b.disconnectFns, fn)
	b.mu.Unlock()
}

func (b *FakeBrowser) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected && !b.closed
}

func (b *FakeBrowser) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.connected = false
	b.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (b *FakeBrowser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// FireDisconnect simulates the engine dropping the connection.
func (b *FakeBrowser) FireDisconnect() {
	b.mu.Lock()
	b.connected = false
	fns := append([]func(){}, b.disconnectFns...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// FakePage is a scriptable schemas.Page. Function fields take precedence
// over the value fields when set.
type FakePage struct {
	mu sync.Mutex

	URLValue   string
	URLErr     error
	TitleValue string
	TitleErr   error

	GotoFunc       func(url string, opts schemas.NavigateOptions) error
	Gotos          []GotoCall
	EvaluateFunc   func(expression string, out interface{}) error
	ScreenshotFunc func(opts schemas.ScreenshotOptions) ([]byte, error)
	Screenshots    []schemas.ScreenshotOptions

	Locators map[string]*FakeLocator

	DefaultTimeout time.Duration
	Width, Height  int
	CloseCount     int
}

// GotoCall records one navigation request.
type GotoCall struct {
	URL  string
	Opts schemas.NavigateOptions
}

var _ schemas.Page = (*FakePage)(nil)

func NewFakePage() *FakePage {
	return &FakePage{
		URLValue: "about:blank",
		Locators: make(map[string]*FakeLocator),
		Width:    1280,
		Height:   720,
	}
}

// AddLocator registers the locator returned for selector.
func (p *FakePage) AddLocator(selector string, l *FakeLocator) *FakeLocator {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Locators == nil {
		p.Locators = make(map[string]*FakeLocator)
	}
	l.Selector = selector
	p.Locators[selector] = l
	return l
}

func (p *FakePage) Goto(ctx context.Context, url string, opts schemas.NavigateOptions) error {
	p.mu.Lock()
	p.Gotos = append(p.Gotos, GotoCall{URL: url, Opts: opts})
	fn := p.GotoFunc
	p.mu.Unlock()
	if fn != nil {
		if err := fn(url, opts); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.URLValue = url
	p.mu.Unlock()
	return nil
}

func (p *FakePage) URL() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.URLValue, p.URLErr
}

func (p *FakePage) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TitleValue, p.TitleErr
}

func (p *FakePage) Locator(selector string) schemas.Locator {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.Locators[selector]; ok {
		return l
	}
	return &FakeLocator{Selector: selector}
}

func (p *FakePage) Screenshot(ctx context.Context, opts schemas.ScreenshotOptions) ([]byte, error) {
	p.mu.Lock()
	p.Screenshots = append(p.Screenshots, opts)
	fn := p.ScreenshotFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(opts)
	}
	return []byte("fake-image"), nil
}

func (p *FakePage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	p.mu.Lock()
	fn := p.EvaluateFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(expression, out)
	}
	return fmt.Errorf("no evaluate behavior scripted")
}

func (p *FakePage) SetDefaultTimeout(d time.Duration) {
	p.mu.Lock()
	p.DefaultTimeout = d
	p.mu.Unlock()
}

func (p *FakePage) ViewportSize() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Width, p.Height
}

func (p *FakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	p.CloseCount++
	p.mu.Unlock()
	return nil
}

// FakeLocator is a scriptable schemas.Locator. The *Func fields override
// the static values, which lets tests model time-varying pages.
type FakeLocator struct {
	mu sync.Mutex

	Selector string

	CountValue int
	CountErr   error
	CountFunc  func() (int, error)

	ClickErr error
	Clicks   int

	FillErr   error
	TypeErr   error
	TypedText []string

	TextValue string
	TextErr   error
	TextFunc  func() (string, error)

	InputValueValue string
	InputValueErr   error

	Attrs   map[string]string
	AttrErr error

	VisibleValue bool
	HiddenValue  bool
	CheckedValue bool
	EnabledValue bool
	ProbeErr     error

	Box    *schemas.Rect
	BoxErr error

	WaitForErr error
	WaitCalls  []schemas.ElementState
}

var _ schemas.Locator = (*FakeLocator)(nil)

func (l *FakeLocator) Count(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.CountFunc != nil {
		return l.CountFunc()
	}
	return l.CountValue, l.CountErr
}

func (l *FakeLocator) Click(ctx context.Context, timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ClickErr != nil {
		return l.ClickErr
	}
	l.Clicks++
	return nil
}

func (l *FakeLocator) Fill(ctx context.Context, text string, timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FillErr != nil {
		return l.FillErr
	}
	l.TypedText = append(l.TypedText, text)
	return nil
}

func (l *FakeLocator) Type(ctx context.Context, text string, delay time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.TypeErr != nil {
		return l.TypeErr
	}
	l.TypedText = append(l.TypedText, text)
	return nil
}

func (l *FakeLocator) TextContent(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.TextFunc != nil {
		return l.TextFunc()
	}
	return l.TextValue, l.TextErr
}

func (l *FakeLocator) InputValue(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.InputValueValue, l.InputValueErr
}

func (l *FakeLocator) GetAttribute(ctx context.Context, name string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.AttrErr != nil {
		return "", l.AttrErr
	}
	return l.Attrs[name], nil
}

func (l *FakeLocator) IsVisible(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.VisibleValue, l.ProbeErr
}

func (l *FakeLocator) IsHidden(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.HiddenValue, l.ProbeErr
}

func (l *FakeLocator) IsChecked(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.CheckedValue, l.ProbeErr
}

func (l *FakeLocator) IsEnabled(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.EnabledValue, l.ProbeErr
}

func (l *FakeLocator) BoundingBox(ctx context.Context) (*schemas.Rect, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Box, l.BoxErr
}

func (l *FakeLocator) WaitFor(ctx context.Context, state schemas.ElementState, timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.WaitCalls = append(l.WaitCalls, state)
	return l.WaitForErr
}

func (l *FakeLocator) Nth(i int) schemas.Locator {
	// Tests that need per-index behavior register dedicated locators; the
	// default shares the parent's scripted values.
	return l
}

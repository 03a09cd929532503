package schemas

import (
	"context"
	"time"
)

// This file defines the abstract browser automation provider consumed by
// the session engine. The concrete implementation lives in
// internal/browser (Playwright); tests substitute fakes.

// WaitUntilState names the navigation settle conditions.
type WaitUntilState string

const (
	WaitUntilLoad             WaitUntilState = "load"
	WaitUntilDOMContentLoaded WaitUntilState = "domcontentloaded"
	WaitUntilNetworkIdle      WaitUntilState = "networkidle"
	WaitUntilCommit           WaitUntilState = "commit"
)

// ElementState names the element wait conditions.
type ElementState string

const (
	ElementAttached ElementState = "attached"
	ElementDetached ElementState = "detached"
	ElementVisible  ElementState = "visible"
	ElementHidden   ElementState = "hidden"
)

// ImageFormat names the screenshot encodings.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
)

// MimeType returns the IANA media type for the format.
func (f ImageFormat) MimeType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// LaunchOptions configures a browser launch.
type LaunchOptions struct {
	Headless bool
	Args     []string
	Timeout  time.Duration
}

// NavigateOptions configures a page navigation.
type NavigateOptions struct {
	WaitUntil WaitUntilState
	Timeout   time.Duration
}

// ScreenshotOptions configures a single capture. Quality applies only to
// lossy formats.
type ScreenshotOptions struct {
	FullPage bool
	Format   ImageFormat
	Quality  int
	Timeout  time.Duration
}

// Rect is an element bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Provider launches browser instances.
type Provider interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a live browser-engine handle.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	// OnDisconnected registers a callback fired when the engine connection
	// drops. The callback must not block.
	OnDisconnected(fn func())
	IsConnected() bool
	Close(ctx context.Context) error
}

// Page is the current tab. Locator returns a deferred reference that is
// re-resolved on each operation against it.
type Page interface {
	Goto(ctx context.Context, url string, opts NavigateOptions) error
	URL() (string, error)
	Title() (string, error)
	Locator(selector string) Locator
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	// Evaluate runs a JavaScript expression and unmarshals the result into out.
	Evaluate(ctx context.Context, expression string, out interface{}) error
	SetDefaultTimeout(d time.Duration)
	ViewportSize() (width, height int)
	Close(ctx context.Context) error
}

// Locator operations that act on a single element (Click, Fill, Type,
// reads) fail with *AmbiguousMatchError when the selector resolves to more
// than one match.
type Locator interface {
	Count(ctx context.Context) (int, error)
	Click(ctx context.Context, timeout time.Duration) error
	Fill(ctx context.Context, text string, timeout time.Duration) error
	Type(ctx context.Context, text string, delay time.Duration) error
	TextContent(ctx context.Context) (string, error)
	InputValue(ctx context.Context) (string, error)
	GetAttribute(ctx context.Context, name string) (string, error)
	IsVisible(ctx context.Context) (bool, error)
	IsHidden(ctx context.Context) (bool, error)
	IsChecked(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
	BoundingBox(ctx context.Context) (*Rect, error)
	WaitFor(ctx context.Context, state ElementState, timeout time.Duration) error
	Nth(i int) Locator
}

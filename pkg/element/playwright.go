package element

import (
	"context"

	"github.com/playwright-community/playwright-go"
)

// screenshotter is the part of playwright.Locator used for capture.
type screenshotter interface {
	Screenshot(options ...playwright.LocatorScreenshotOptions) ([]byte, error)
}

type locatorElement struct {
	locator screenshotter
	timeout float64
}

// LocatorOption configures a playwright-backed element.
type LocatorOption func(*locatorElement)

// WithCaptureTimeout bounds how long playwright waits for the element to
// become stable, in milliseconds. Zero keeps playwright's default.
func WithCaptureTimeout(ms float64) LocatorOption {
	return func(e *locatorElement) { e.timeout = ms }
}

// FromLocator wraps a playwright locator as an Element.
func FromLocator(locator playwright.Locator, opts ...LocatorOption) Element {
	return newLocatorElement(locator, opts...)
}

func newLocatorElement(locator screenshotter, opts ...LocatorOption) *locatorElement {
	e := &locatorElement{locator: locator}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *locatorElement) CaptureScreenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return &CaptureError{Path: path, Err: err}
	}

	options := playwright.LocatorScreenshotOptions{
		Path: playwright.String(path),
		Type: playwright.ScreenshotTypePng,
	}
	if e.timeout > 0 {
		options.Timeout = playwright.Float(e.timeout)
	}
	if _, err := e.locator.Screenshot(options); err != nil {
		return &CaptureError{Path: path, Err: err}
	}
	return nil
}

// Package element provides the capturable UI elements whose rendered
// appearance is compared against control images.
package element

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/example/shotcmp/pkg/imageio"
)

// ErrCapture is matched by every CaptureError.
var ErrCapture = errors.New("element: screenshot capture failed")

// CaptureError reports that an element could not be saved to a file, for
// example because it is not visible or the page has not finished loading.
type CaptureError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return fmt.Sprintf("element: capture to %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CaptureError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is makes errors.Is(err, ErrCapture) succeed.
func (e *CaptureError) Is(target error) bool {
	return target == ErrCapture
}

// Element is anything that can save its current rendered appearance to a
// PNG file. Callers are responsible for the element being fully loaded.
type Element interface {
	CaptureScreenshot(ctx context.Context, path string) error
}

// Func adapts an ordinary function to the Element interface.
type Func func(ctx context.Context, path string) error

// CaptureScreenshot calls f.
func (f Func) CaptureScreenshot(ctx context.Context, path string) error {
	return f(ctx, path)
}

type imageElement struct {
	img image.Image
}

// FromImage returns an Element that renders as img. It is useful for
// offline pipelines and tests where no browser is available.
func FromImage(img image.Image) Element {
	return &imageElement{img: img}
}

func (e *imageElement) CaptureScreenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return &CaptureError{Path: path, Err: err}
	}
	if e.img == nil {
		return &CaptureError{Path: path, Err: errors.New("no image to render")}
	}
	if err := imageio.EncodeFile(e.img, path); err != nil {
		return &CaptureError{Path: path, Err: err}
	}
	return nil
}

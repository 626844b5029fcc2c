// Package imageio decodes and encodes the raster images compared by shotcmp.
//
// A Decoder keeps a registry of per-format loaders and an allow-list of
// formats it will accept. The default allow-list is PNG only, matching the
// format element screenshots are written in; callers that receive control
// images from elsewhere widen it with WithFormats or WithAllFormats.
package imageio

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// sniffLen is the number of header bytes inspected for format detection.
const sniffLen = 262

// ErrUnsupportedFormat reports data whose format is unknown or not allowed by
// the decoder.
var ErrUnsupportedFormat = errors.New("imageio: unsupported image format")

// DecodeError describes a failure to load an image.
type DecodeError struct {
	Path   string
	Format Format
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	src := e.Path
	if src == "" {
		src = "stream"
	}
	if e.Format != Unknown {
		return fmt.Sprintf("imageio: decode %s (%s): %v", src, e.Format, e.Err)
	}
	return fmt.Sprintf("imageio: decode %s: %v", src, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Loader decodes a single image format.
type Loader func(r io.Reader) (image.Image, error)

// Option configures a Decoder.
type Option func(*Decoder)

// WithFormats restricts the decoder to the given formats.
func WithFormats(formats ...Format) Option {
	return func(d *Decoder) {
		d.allowed = make(map[Format]bool, len(formats))
		for _, f := range formats {
			d.allowed[f] = true
		}
	}
}

// WithAllFormats allows every format with a registered loader.
func WithAllFormats() Option {
	return func(d *Decoder) {
		d.allowed = make(map[Format]bool, len(d.loaders))
		for f := range d.loaders {
			d.allowed[f] = true
		}
	}
}

// WithLoader registers or replaces the loader for a format. It does not
// change the allow-list.
func WithLoader(f Format, l Loader) Option {
	return func(d *Decoder) { d.loaders[f] = l }
}

// Decoder loads images from files or streams.
type Decoder struct {
	loaders map[Format]Loader
	allowed map[Format]bool
}

// NewDecoder creates a decoder that accepts PNG unless options say otherwise.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		loaders: map[Format]Loader{
			PNG:  png.Decode,
			JPEG: jpeg.Decode,
			GIF:  gif.Decode,
			BMP:  bmp.Decode,
			TIFF: tiff.Decode,
			WebP: webp.Decode,
		},
		allowed: map[Format]bool{PNG: true},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Allows reports whether the decoder accepts f.
func (d *Decoder) Allows(f Format) bool {
	_, registered := d.loaders[f]
	return registered && d.allowed[f]
}

// DecodeFile opens and decodes the image at path.
func (d *Decoder) DecodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer file.Close()

	img, _, err := d.decode(file)
	if err != nil {
		var decErr *DecodeError
		if errors.As(err, &decErr) {
			decErr.Path = path
		}
		return nil, err
	}
	return img, nil
}

// Decode reads an image from r and reports the detected format.
func (d *Decoder) Decode(r io.Reader) (image.Image, Format, error) {
	return d.decode(r)
}

func (d *Decoder) decode(r io.Reader) (image.Image, Format, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	header, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, Unknown, &DecodeError{Err: err}
	}

	format := Detect(header)
	if format == Unknown {
		return nil, Unknown, &DecodeError{Err: ErrUnsupportedFormat}
	}
	if !d.Allows(format) {
		return nil, format, &DecodeError{Format: format, Err: fmt.Errorf("%w: %s not allowed", ErrUnsupportedFormat, format)}
	}

	img, err := d.loaders[format](br)
	if err != nil {
		return nil, format, &DecodeError{Format: format, Err: err}
	}
	return img, format, nil
}

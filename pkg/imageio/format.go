package imageio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/h2non/filetype"
)

// Format identifies an image encoding.
type Format int

// Supported image formats.
const (
	Unknown Format = iota
	PNG
	JPEG
	GIF
	BMP
	TIFF
	WebP
)

var formatNames = map[Format]string{
	Unknown: "unknown",
	PNG:     "png",
	JPEG:    "jpeg",
	GIF:     "gif",
	BMP:     "bmp",
	TIFF:    "tiff",
	WebP:    "webp",
}

// String returns the lower-case format name.
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// AllFormats lists every format the package can decode.
func AllFormats() []Format {
	return []Format{PNG, JPEG, GIF, BMP, TIFF, WebP}
}

// FormatFromExtension maps a file extension, with or without the leading
// dot, to a Format.
func FormatFromExtension(ext string) (Format, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "gif":
		return GIF, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	case "webp":
		return WebP, nil
	case "":
		return Unknown, errors.New("imageio: empty extension")
	}
	return Unknown, fmt.Errorf("imageio: extension %q not recognized", ext)
}

// Detect sniffs the magic bytes at the start of an encoded image.
// It returns Unknown when the header matches no supported format.
func Detect(header []byte) Format {
	kind, err := filetype.Match(header)
	if err != nil || kind == filetype.Unknown {
		return Unknown
	}
	f, err := FormatFromExtension(kind.Extension)
	if err != nil {
		return Unknown
	}
	return f
}

package domain

import (
	"fmt"
	"strings"
)

// ImageFormat represents supported output formats
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
	FormatWEBP ImageFormat = "webp"
	FormatSVG  ImageFormat = "svg"
	FormatGIF  ImageFormat = "gif"
	FormatBMP  ImageFormat = "bmp"
)

var formatMIME = map[ImageFormat]string{
	FormatPNG:  "image/png",
	FormatJPEG: "image/jpeg",
	FormatWEBP: "image/webp",
	FormatSVG:  "image/svg+xml",
	FormatGIF:  "image/gif",
	FormatBMP:  "image/bmp",
}

// Formats lists the output formats in display order.
func Formats() []ImageFormat {
	return []ImageFormat{FormatPNG, FormatJPEG, FormatWEBP, FormatSVG, FormatGIF, FormatBMP}
}

// ParseFormat accepts a format name, a file extension or a MIME type.
func ParseFormat(s string) (ImageFormat, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, ".")
	switch v {
	case "png", "image/png":
		return FormatPNG, nil
	case "jpg", "jpeg", "image/jpeg", "image/jpg":
		return FormatJPEG, nil
	case "webp", "image/webp":
		return FormatWEBP, nil
	case "svg", "svg+xml", "image/svg+xml":
		return FormatSVG, nil
	case "gif", "image/gif":
		return FormatGIF, nil
	case "bmp", "image/bmp":
		return FormatBMP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
}

func (f ImageFormat) Valid() bool {
	_, ok := formatMIME[f]
	return ok
}

func (f ImageFormat) MIMEType() string {
	return formatMIME[f]
}

// Extension returns the canonical file extension without the dot. It is
// derived from the MIME subtype: jpeg becomes jpg and svg+xml becomes svg.
func (f ImageFormat) Extension() string {
	mime, ok := formatMIME[f]
	if !ok {
		return ""
	}
	sub := mime[strings.Index(mime, "/")+1:]
	switch sub {
	case "jpeg":
		return "jpg"
	case "svg+xml":
		return "svg"
	}
	return sub
}

// SupportsAlpha reports whether the encoded output can carry transparency.
func (f ImageFormat) SupportsAlpha() bool {
	return f != FormatJPEG
}

// Lossy reports whether the quality setting affects the encoded output.
func (f ImageFormat) Lossy() bool {
	return f == FormatJPEG || f == FormatWEBP
}

package domain

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultQuality = 90
	MaxDimension   = 16384
)

// ConversionOptions is the process-wide conversion configuration. It is
// replaced wholesale before each run.
type ConversionOptions struct {
	Format              ImageFormat `json:"format" yaml:"format" validate:"required,oneof=png jpeg webp svg gif bmp"`
	Quality             int         `json:"quality" yaml:"quality" validate:"gte=1,lte=100"`
	Width               int         `json:"width,omitempty" yaml:"width" validate:"gte=0,lte=16384"`
	Height              int         `json:"height,omitempty" yaml:"height" validate:"gte=0,lte=16384"`
	MaintainAspectRatio bool        `json:"maintain_aspect_ratio" yaml:"maintain_aspect_ratio"`
	Background          string      `json:"background,omitempty" yaml:"background" validate:"omitempty,hexcolor"`
	AIEnhance           bool        `json:"ai_enhance" yaml:"ai_enhance"`
}

// DefaultOptions mirrors the settings a fresh session starts with.
func DefaultOptions() ConversionOptions {
	return ConversionOptions{
		Format:              FormatPNG,
		Quality:             DefaultQuality,
		MaintainAspectRatio: true,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks option ranges and the background color syntax.
func (o ConversionOptions) Validate() error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed on %q", ErrInvalidOptions, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

// HasWidth and HasHeight report whether an axis is constrained.
func (o ConversionOptions) HasWidth() bool  { return o.Width > 0 }
func (o ConversionOptions) HasHeight() bool { return o.Height > 0 }

// FillColor returns the surface fill and whether the surface must be filled
// before drawing. Formats without alpha are always filled with an opaque
// color: white by default, or the background composited over white.
func (o ConversionOptions) FillColor() (color.NRGBA, bool) {
	fill := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	explicit := false
	if o.Background != "" {
		if c, err := ParseHexColor(o.Background); err == nil {
			fill, explicit = c, true
		}
	}
	if !o.Format.SupportsAlpha() {
		return overWhite(fill), true
	}
	return fill, explicit
}

func overWhite(c color.NRGBA) color.NRGBA {
	a := uint32(c.A)
	blend := func(v uint8) uint8 {
		return uint8((uint32(v)*a + 0xff*(0xff-a) + 0x7f) / 0xff)
	}
	return color.NRGBA{R: blend(c.R), G: blend(c.G), B: blend(c.B), A: 0xff}
}

// ParseHexColor parses #rgb, #rgba, #rrggbb and #rrggbbaa.
func ParseHexColor(s string) (color.NRGBA, error) {
	c := color.NRGBA{A: 0xff}
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")

	switch len(hex) {
	case 3, 4:
		var expanded strings.Builder
		for _, r := range hex {
			expanded.WriteRune(r)
			expanded.WriteRune(r)
		}
		hex = expanded.String()
	case 6, 8:
	default:
		return c, fmt.Errorf("invalid color %q", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return c, fmt.Errorf("invalid color %q: %w", s, err)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	c.R = uint8(v >> 24)
	c.G = uint8(v >> 16)
	c.B = uint8(v >> 8)
	c.A = uint8(v)
	return c, nil
}

// Package encoder renders decoded images onto a target surface and
// serializes them into the requested output format.
package encoder

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/oziev02/pixelflex/internal/domain"
)

// BlobWriter stores encoded output and hands back an owned handle.
type BlobWriter interface {
	Put(ctx context.Context, data []byte) (domain.Handle, error)
}

type Encoder struct {
	store  BlobWriter
	filter imaging.ResampleFilter
}

func New(store BlobWriter) *Encoder {
	return &Encoder{
		store:  store,
		filter: imaging.Lanczos,
	}
}

// Encode renders src at width x height and stores the result. The caller owns
// the returned handle and must release it.
func (e *Encoder) Encode(ctx context.Context, src image.Image, width, height int, opts domain.ConversionOptions) (domain.Handle, error) {
	data, err := e.Render(src, width, height, opts)
	if err != nil {
		return "", err
	}

	h, err := e.store.Put(ctx, data)
	if err != nil {
		return "", fmt.Errorf("%w: failed to store output: %v", domain.ErrEncode, err)
	}
	return h, nil
}

// Render returns the encoded bytes without storing them.
func (e *Encoder) Render(src image.Image, width, height int, opts domain.ConversionOptions) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source image", domain.ErrEncode)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid surface %dx%d", domain.ErrEncode, width, height)
	}

	surface := e.draw(src, width, height, opts)

	var buf bytes.Buffer
	if err := serialize(&buf, surface, width, height, opts); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrEncode, opts.Format, err)
	}
	return buf.Bytes(), nil
}

// draw scales src to fill the surface exactly. Aspect ratio fitting has
// already been resolved into width and height.
func (e *Encoder) draw(src image.Image, width, height int, opts domain.ConversionOptions) *image.NRGBA {
	scaled := imaging.Resize(src, width, height, e.filter)

	fill, ok := opts.FillColor()
	if !ok {
		return scaled
	}
	surface := imaging.New(width, height, fill)
	return imaging.Overlay(surface, scaled, image.Pt(0, 0), 1.0)
}

func serialize(buf *bytes.Buffer, img *image.NRGBA, width, height int, opts domain.ConversionOptions) error {
	quality := clampQuality(opts.Quality)

	switch opts.Format {
	case domain.FormatPNG:
		return imaging.Encode(buf, img, imaging.PNG)
	case domain.FormatJPEG:
		return imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case domain.FormatGIF:
		return imaging.Encode(buf, img, imaging.GIF)
	case domain.FormatBMP:
		return imaging.Encode(buf, img, imaging.BMP)
	case domain.FormatWEBP:
		return webp.Encode(buf, img, &webp.Options{
			Lossless: false,
			Quality:  float32(quality),
		})
	case domain.FormatSVG:
		return writeSVG(buf, img, width, height)
	default:
		return domain.ErrInvalidFormat
	}
}

// writeSVG wraps a PNG rendering in an SVG document. This is a raster inside
// a vector container, not a vectorization of the image.
func writeSVG(buf *bytes.Buffer, img *image.NRGBA, width, height int) error {
	var raster bytes.Buffer
	if err := imaging.Encode(&raster, img, imaging.PNG); err != nil {
		return err
	}

	_, err := fmt.Fprintf(buf,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+
			`<image href="data:image/png;base64,%s" width="%d" height="%d"/></svg>`,
		width, height, width, height,
		base64.StdEncoding.EncodeToString(raster.Bytes()),
		width, height,
	)
	return err
}

func clampQuality(q int) int {
	switch {
	case q <= 0:
		return domain.DefaultQuality
	case q > 100:
		return 100
	}
	return q
}

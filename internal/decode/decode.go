// Package decode turns source bytes into pixels. Raster formats go through
// imaging; SVG documents are rasterized at their intrinsic size.
package decode

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strconv"
	"strings"

	_ "github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/oziev02/pixelflex/internal/domain"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
)

const svgMIME = "image/svg+xml"

var ErrNoIntrinsicSize = errors.New("svg has no intrinsic size")

// IsSVG reports whether data is an SVG document.
func IsSVG(data []byte) bool {
	return mimetype.Detect(data).Is(svgMIME)
}

// Config returns the pixel size of data without decoding raster pixels.
func Config(data []byte) (width, height int, err error) {
	if IsSVG(data) {
		_, w, h, err := readSVG(data)
		return w, h, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// Image decodes data. EXIF orientation is applied to raster input.
func Image(data []byte) (image.Image, error) {
	if IsSVG(data) {
		return rasterizeSVG(data)
	}
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

func rasterizeSVG(data []byte) (image.Image, error) {
	icon, w, h, err := readSVG(data)
	if err != nil {
		return nil, err
	}

	icon.SetTarget(0, 0, float64(w), float64(h))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return img, nil
}

// readSVG parses the document and resolves its size: width and height
// attributes first, then the viewBox.
func readSVG(data []byte) (*oksvg.SvgIcon, int, int, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to parse svg: %w", err)
	}

	attrW, attrH := rootSize(data)
	w, h := attrW, attrH
	if w <= 0 {
		w = icon.ViewBox.W
	}
	if h <= 0 {
		h = icon.ViewBox.H
	}
	// A lone axis keeps the viewBox aspect ratio.
	if attrW > 0 && attrH <= 0 && icon.ViewBox.W > 0 {
		h = attrW * icon.ViewBox.H / icon.ViewBox.W
	}
	if attrH > 0 && attrW <= 0 && icon.ViewBox.H > 0 {
		w = attrH * icon.ViewBox.W / icon.ViewBox.H
	}

	width, height := int(math.Ceil(w)), int(math.Ceil(h))
	if width <= 0 || height <= 0 {
		return nil, 0, 0, ErrNoIntrinsicSize
	}
	if width > domain.MaxDimension || height > domain.MaxDimension {
		return nil, 0, 0, fmt.Errorf("svg size %dx%d exceeds %d", width, height, domain.MaxDimension)
	}

	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		icon.ViewBox.W, icon.ViewBox.H = float64(width), float64(height)
	}
	return icon, width, height, nil
}

// rootSize reads absolute width and height from the root svg element.
// Percentages and unknown units count as unset.
func rootSize(data []byte) (float64, float64) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			return 0, 0
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return 0, 0
		}

		var w, h float64
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "width":
				w = parseLength(attr.Value)
			case "height":
				h = parseLength(attr.Value)
			}
		}
		return w, h
	}
}

func parseLength(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

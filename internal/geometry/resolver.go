// Package geometry resolves output pixel dimensions from source dimensions
// and user constraints.
package geometry

import (
	"fmt"
	"math"

	"github.com/oziev02/pixelflex/internal/domain"
)

// Resolve computes the target size. Rules in priority order:
//
//  1. no width and no height: source size unchanged
//  2. aspect ratio not kept: each set axis replaces the source axis
//  3. aspect ratio kept, one axis set: the other follows the source ratio
//  4. aspect ratio kept, both set: fit within both bounds
func Resolve(srcW, srcH int, opts domain.ConversionOptions) (int, int, error) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0, fmt.Errorf("%w: source %dx%d", domain.ErrInvalidDimensions, srcW, srcH)
	}
	if opts.Width < 0 || opts.Height < 0 {
		return 0, 0, fmt.Errorf("%w: requested %dx%d", domain.ErrInvalidDimensions, opts.Width, opts.Height)
	}

	var w, h float64
	switch {
	case !opts.HasWidth() && !opts.HasHeight():
		return srcW, srcH, nil

	case !opts.MaintainAspectRatio:
		w, h = float64(srcW), float64(srcH)
		if opts.HasWidth() {
			w = float64(opts.Width)
		}
		if opts.HasHeight() {
			h = float64(opts.Height)
		}

	case opts.HasWidth() && !opts.HasHeight():
		w = float64(opts.Width)
		h = float64(opts.Width) * float64(srcH) / float64(srcW)

	case opts.HasHeight() && !opts.HasWidth():
		h = float64(opts.Height)
		w = float64(opts.Height) * float64(srcW) / float64(srcH)

	default:
		scale := math.Min(float64(opts.Width)/float64(srcW), float64(opts.Height)/float64(srcH))
		w = math.Min(float64(srcW)*scale, float64(opts.Width))
		h = math.Min(float64(srcH)*scale, float64(opts.Height))
	}

	tw, th := int(math.Round(w)), int(math.Round(h))
	if tw < 1 || th < 1 {
		return 0, 0, fmt.Errorf("%w: %dx%d resolves to %dx%d", domain.ErrInvalidDimensions, srcW, srcH, tw, th)
	}
	return tw, th, nil
}

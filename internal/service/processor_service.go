package service

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/oziev02/pixelflex/internal/decode"
	"github.com/oziev02/pixelflex/internal/domain"
	"github.com/oziev02/pixelflex/internal/geometry"
)

// Enhancer re-renders an image through an external model. A nil result with
// a nil error means the model had nothing to offer.
type Enhancer interface {
	Enhance(ctx context.Context, data []byte, mimeType string) ([]byte, error)
}

// ImageEncoder renders a decoded image into an owned output handle.
type ImageEncoder interface {
	Encode(ctx context.Context, src image.Image, width, height int, opts domain.ConversionOptions) (domain.Handle, error)
}

type ProcessorService interface {
	// Run drives one item to completed or failed. onProgress receives a
	// snapshot after every status change.
	Run(ctx context.Context, item *domain.ConversionItem, opts domain.ConversionOptions, onProgress func(domain.ConversionItem)) error
}

type processorService struct {
	encoder  ImageEncoder
	enhancer Enhancer
	logger   *slog.Logger
}

func NewProcessorService(encoder ImageEncoder, enhancer Enhancer, logger *slog.Logger) ProcessorService {
	return &processorService{
		encoder:  encoder,
		enhancer: enhancer,
		logger:   logger,
	}
}

func (s *processorService) Run(ctx context.Context, item *domain.ConversionItem, opts domain.ConversionOptions, onProgress func(domain.ConversionItem)) error {
	if item.IsCompleted() {
		return nil
	}
	if onProgress == nil {
		onProgress = func(domain.ConversionItem) {}
	}

	item.MarkProcessing()
	onProgress(*item)

	source := item.Source()

	if opts.AIEnhance {
		if err := ctx.Err(); err != nil {
			item.Reset()
			onProgress(*item)
			return err
		}
		source = s.enhance(ctx, item, source)
	}

	// Decode
	img, err := decode.Image(source)
	if err != nil {
		return s.fail(item, onProgress, fmt.Errorf("%w: %v", domain.ErrDecode, err))
	}

	// Resolve target size
	bounds := img.Bounds()
	width, height, err := geometry.Resolve(bounds.Dx(), bounds.Dy(), opts)
	if err != nil {
		return s.fail(item, onProgress, err)
	}

	// Encode
	output, err := s.encoder.Encode(ctx, img, width, height, opts)
	if err != nil {
		return s.fail(item, onProgress, err)
	}

	item.Complete(output, opts.Format)
	onProgress(*item)

	s.logger.Info("item converted",
		"item_id", item.ID,
		"format", opts.Format,
		"width", width,
		"height", height,
	)
	return nil
}

// enhance returns replacement bytes, or the original source when the
// collaborator fails or returns nothing.
func (s *processorService) enhance(ctx context.Context, item *domain.ConversionItem, source []byte) []byte {
	if s.enhancer == nil {
		return source
	}

	enhanced, err := s.enhancer.Enhance(ctx, source, item.Metadata.MIMEType)
	switch {
	case err != nil:
		s.logger.Warn("enhancement failed, using original", "item_id", item.ID, "error", err)
		return source
	case len(enhanced) == 0:
		s.logger.Warn("enhancement returned no image, using original", "item_id", item.ID)
		return source
	}
	return enhanced
}

func (s *processorService) fail(item *domain.ConversionItem, onProgress func(domain.ConversionItem), err error) error {
	item.Fail(err.Error())
	onProgress(*item)

	s.logger.Error("item conversion failed", "item_id", item.ID, "name", item.Name, "error", err)
	return err
}

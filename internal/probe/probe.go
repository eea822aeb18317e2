// Package probe extracts enqueue-time metadata from source bytes.
package probe

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oziev02/pixelflex/internal/decode"
	"github.com/oziev02/pixelflex/internal/domain"
)

type Prober interface {
	Probe(name string, data []byte) (domain.Metadata, error)
}

type imageProber struct {
	maxFileSize int64
}

// New returns a prober that rejects inputs larger than maxFileSize bytes.
// A non-positive limit disables the check.
func New(maxFileSize int64) Prober {
	return &imageProber{maxFileSize: maxFileSize}
}

func (p *imageProber) Probe(name string, data []byte) (domain.Metadata, error) {
	size := int64(len(data))
	if size == 0 {
		return domain.Metadata{}, fmt.Errorf("%w: %s: empty file", domain.ErrMetadataProbe, name)
	}
	if p.maxFileSize > 0 && size > p.maxFileSize {
		return domain.Metadata{}, fmt.Errorf("%w: %s: %w (%d bytes)", domain.ErrMetadataProbe, name, domain.ErrFileTooLarge, size)
	}

	width, height, err := decode.Config(data)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("%w: %s: %v", domain.ErrMetadataProbe, name, err)
	}
	if width <= 0 || height <= 0 {
		return domain.Metadata{}, fmt.Errorf("%w: %s: empty image", domain.ErrMetadataProbe, name)
	}

	return domain.Metadata{
		Width:    width,
		Height:   height,
		ByteSize: size,
		MIMEType: mimetype.Detect(data).String(),
	}, nil
}

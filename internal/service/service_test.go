package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/oziev02/pixelflex/internal/config"
	"github.com/oziev02/pixelflex/internal/domain"
	"github.com/oziev02/pixelflex/internal/encoder"
	"github.com/oziev02/pixelflex/internal/probe"
	"github.com/oziev02/pixelflex/internal/repo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 200
		img.Pix[i+3] = 255
	}
	img.SetNRGBA(0, 0, color.NRGBA{G: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// corruptPNG has a valid header, so it passes the probe, but its pixel data
// is missing.
func corruptPNG(t *testing.T) []byte {
	t.Helper()
	return pngBytes(t, 40, 40)[:40]
}

type enhancerFunc func(ctx context.Context, data []byte, mimeType string) ([]byte, error)

func (f enhancerFunc) Enhance(ctx context.Context, data []byte, mimeType string) ([]byte, error) {
	return f(ctx, data, mimeType)
}

type describerFunc func(ctx context.Context, data []byte, mimeType string) (string, error)

func (f describerFunc) Describe(ctx context.Context, data []byte, mimeType string) (string, error) {
	return f(ctx, data, mimeType)
}

// countingStore tracks live handles so tests can assert nothing leaked.
type countingStore struct {
	repo.BlobRepository

	mu   sync.Mutex
	live map[domain.Handle]bool
}

func newCountingStore() *countingStore {
	return &countingStore{
		BlobRepository: repo.NewMemoryRepository(),
		live:           make(map[domain.Handle]bool),
	}
}

func (s *countingStore) Put(ctx context.Context, data []byte) (domain.Handle, error) {
	h, err := s.BlobRepository.Put(ctx, data)
	if err == nil {
		s.mu.Lock()
		s.live[h] = true
		s.mu.Unlock()
	}
	return h, err
}

func (s *countingStore) Release(ctx context.Context, h domain.Handle) error {
	s.mu.Lock()
	delete(s.live, h)
	s.mu.Unlock()
	return s.BlobRepository.Release(ctx, h)
}

func (s *countingStore) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

type recorder struct {
	mu     sync.Mutex
	events []domain.ItemEvent
}

func (r *recorder) Publish(ctx context.Context, event domain.ItemEvent) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Count(typ domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type testQueue struct {
	*queueService
	store  *countingStore
	events *recorder
}

func newTestQueue(t *testing.T, enhancer Enhancer, describer Describer) *testQueue {
	t.Helper()
	store := newCountingStore()
	events := &recorder{}
	cfg := &config.Config{Image: config.ImageConfig{MaxFileSize: 1 << 20, PreviewSize: 16}}

	processor := NewProcessorService(encoder.New(store), enhancer, testLogger())
	q := NewQueueService(store, probe.New(cfg.Image.MaxFileSize), processor, describer, events, cfg, testLogger())

	return &testQueue{
		queueService: q.(*queueService),
		store:        store,
		events:       events,
	}
}

func (q *testQueue) add(t *testing.T, files ...domain.SourceFile) []domain.ConversionItem {
	t.Helper()
	items, err := q.Add(context.Background(), files)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	return items
}

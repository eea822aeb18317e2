package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nfnt/resize"
	"github.com/oziev02/pixelflex/internal/archive"
	"github.com/oziev02/pixelflex/internal/config"
	"github.com/oziev02/pixelflex/internal/decode"
	"github.com/oziev02/pixelflex/internal/domain"
	"github.com/oziev02/pixelflex/internal/probe"
	"github.com/oziev02/pixelflex/internal/repo"
)

const (
	DescriptionUnavailable = "Could not analyze image."
	DescriptionFallback    = "Image analyzed."
)

// Describer produces a short text description of an image.
type Describer interface {
	Describe(ctx context.Context, data []byte, mimeType string) (string, error)
}

// EventPublisher receives every observable queue change.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.ItemEvent) error
}

// Download is a named binary ready to be handed to the user.
type Download struct {
	Name     string
	MIMEType string
	Data     []byte
}

type QueueService interface {
	Add(ctx context.Context, files []domain.SourceFile) ([]domain.ConversionItem, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	RunAll(ctx context.Context, opts domain.ConversionOptions) error
	// Start claims the run slot before returning and runs in the background.
	// The channel receives the run's result.
	Start(ctx context.Context, opts domain.ConversionOptions) (<-chan error, error)
	// Cancel stops the active run between items. It is a no-op when idle.
	Cancel()
	Running() bool

	List() []domain.ConversionItem
	Get(id string) (domain.ConversionItem, error)
	AllCompleted() bool
	Description() string

	Options() domain.ConversionOptions
	SetOptions(opts domain.ConversionOptions) error

	Output(ctx context.Context, id string) (Download, error)
	Preview(ctx context.Context, id string) ([]byte, error)
	Archive(ctx context.Context) (Download, error)

	// Close releases every stored blob.
	Close(ctx context.Context) error
}

type queueService struct {
	store     repo.BlobRepository
	prober    probe.Prober
	processor ProcessorService
	describer Describer
	publisher EventPublisher
	cfg       *config.Config
	logger    *slog.Logger

	mu          sync.Mutex
	items       []*domain.ConversionItem
	options     domain.ConversionOptions
	description string
	cancel      context.CancelFunc

	runMu sync.Mutex
}

// NewQueueService wires the queue. describer and publisher may be nil.
func NewQueueService(
	store repo.BlobRepository,
	prober probe.Prober,
	processor ProcessorService,
	describer Describer,
	publisher EventPublisher,
	cfg *config.Config,
	logger *slog.Logger,
) QueueService {
	return &queueService{
		store:     store,
		prober:    prober,
		processor: processor,
		describer: describer,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		options:   cfg.Image.DefaultOptions(),
	}
}

func (s *queueService) Add(ctx context.Context, files []domain.SourceFile) ([]domain.ConversionItem, error) {
	added := make([]domain.ConversionItem, 0, len(files))

	for _, f := range files {
		meta, err := s.prober.Probe(f.Name, f.Data)
		if err != nil {
			s.logger.Warn("skipping file", "name", f.Name, "error", err)
			continue
		}

		source := make([]byte, len(f.Data))
		copy(source, f.Data)

		item := domain.NewItem(repo.GenerateID(), f.Name, source, meta)
		if err := item.Validate(); err != nil {
			s.logger.Warn("skipping file", "name", f.Name, "error", err)
			continue
		}

		preview, err := s.makePreview(ctx, source)
		if err != nil {
			s.logger.Warn("failed to create preview", "name", f.Name, "error", err)
		}
		item.PreviewHandle = preview

		s.mu.Lock()
		s.items = append(s.items, item)
		snapshot := *item
		s.mu.Unlock()

		added = append(added, snapshot)
		s.publish(ctx, domain.EventItemAdded, &snapshot, "")

		s.logger.Info("item added",
			"item_id", item.ID,
			"name", item.Name,
			"width", meta.Width,
			"height", meta.Height,
			"mime_type", meta.MIMEType,
		)
	}

	return added, nil
}

// makePreview stores a small PNG thumbnail of source.
func (s *queueService) makePreview(ctx context.Context, source []byte) (domain.Handle, error) {
	img, err := decode.Image(source)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	size := uint(s.cfg.Image.PreviewSize)
	thumb := resize.Thumbnail(size, size, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return "", fmt.Errorf("%w: preview: %v", domain.ErrEncode, err)
	}
	return s.store.Put(ctx, buf.Bytes())
}

func (s *queueService) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	item := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)

	descriptionReset := false
	if len(s.items) == 0 && s.description != "" {
		s.description = ""
		descriptionReset = true
	}
	snapshot := *item
	s.mu.Unlock()

	s.release(ctx, item.PreviewHandle, item.OutputHandle)
	s.publish(ctx, domain.EventItemRemoved, &snapshot, "")
	if descriptionReset {
		s.publish(ctx, domain.EventDescriptionUpdated, nil, "")
	}

	s.logger.Info("item removed", "item_id", id)
	return nil
}

func (s *queueService) Clear(ctx context.Context) error {
	s.mu.Lock()
	items := s.items
	s.items = nil
	s.description = ""
	s.mu.Unlock()

	handles := make([]domain.Handle, 0, 2*len(items))
	for _, item := range items {
		handles = append(handles, item.PreviewHandle, item.OutputHandle)
	}
	s.release(ctx, handles...)

	s.publish(ctx, domain.EventQueueCleared, nil, "")
	s.logger.Info("queue cleared", "items", len(items))
	return nil
}

func (s *queueService) RunAll(ctx context.Context, opts domain.ConversionOptions) error {
	run, err := s.begin(ctx, opts)
	if err != nil {
		return err
	}
	return run()
}

func (s *queueService) Start(ctx context.Context, opts domain.ConversionOptions) (<-chan error, error) {
	run, err := s.begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		done <- run()
	}()
	return done, nil
}

// begin validates opts, claims the run slot and snapshots the queue order.
// The returned func performs the run and frees the slot.
func (s *queueService) begin(ctx context.Context, opts domain.ConversionOptions) (func() error, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !s.runMu.TryLock() {
		return nil, domain.ErrRunInProgress
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	ids := make([]string, len(s.items))
	for i, item := range s.items {
		ids[i] = item.ID
	}
	s.mu.Unlock()

	return func() error {
		defer s.runMu.Unlock()
		defer func() {
			cancel()
			s.mu.Lock()
			s.cancel = nil
			s.mu.Unlock()
		}()
		return s.run(ctx, runCtx, ids, opts)
	}, nil
}

func (s *queueService) run(ctx, runCtx context.Context, ids []string, opts domain.ConversionOptions) error {
	s.publish(ctx, domain.EventRunStarted, nil, "")
	s.logger.Info("conversion run started", "items", len(ids), "format", opts.Format)

	var (
		runErr    error
		converted int
		failed    int
	)
	for i, id := range ids {
		if err := runCtx.Err(); err != nil {
			runErr = err
			break
		}

		s.mu.Lock()
		idx := s.indexOf(id)
		if idx < 0 {
			s.mu.Unlock()
			continue
		}
		working := *s.items[idx]
		s.mu.Unlock()

		if working.IsCompleted() {
			continue
		}

		err := s.processor.Run(runCtx, &working, opts, func(snapshot domain.ConversionItem) {
			s.writeBack(ctx, snapshot)
		})
		if err != nil {
			if runCtx.Err() != nil && working.Status == domain.StatusPending {
				runErr = runCtx.Err()
				break
			}
			failed++
			continue
		}
		converted++

		if i == 0 && s.describer != nil {
			s.describe(runCtx, working)
		}
	}

	s.publish(ctx, domain.EventRunFinished, nil, "")
	s.logger.Info("conversion run finished",
		"converted", converted,
		"failed", failed,
		"cancelled", runErr != nil,
	)
	return runErr
}

// writeBack stores an item snapshot produced outside the lock. Output for an
// item removed mid-run is released instead of stored.
func (s *queueService) writeBack(ctx context.Context, snapshot domain.ConversionItem) {
	s.mu.Lock()
	idx := s.indexOf(snapshot.ID)
	if idx < 0 {
		s.mu.Unlock()
		s.release(ctx, snapshot.OutputHandle)
		return
	}
	item := s.items[idx]
	var stale domain.Handle
	if item.OutputHandle != "" && item.OutputHandle != snapshot.OutputHandle {
		stale = item.OutputHandle
	}
	*item = snapshot
	s.mu.Unlock()

	s.release(ctx, stale)
	s.publish(ctx, domain.EventItemUpdated, &snapshot, "")
}

func (s *queueService) describe(ctx context.Context, item domain.ConversionItem) {
	text, err := s.describer.Describe(ctx, item.Source(), item.Metadata.MIMEType)
	switch {
	case err != nil:
		s.logger.Warn("description failed", "item_id", item.ID, "error", err)
		text = DescriptionUnavailable
	case strings.TrimSpace(text) == "":
		text = DescriptionFallback
	}

	s.mu.Lock()
	if s.indexOf(item.ID) < 0 {
		s.mu.Unlock()
		return
	}
	s.description = text
	s.mu.Unlock()

	s.publish(ctx, domain.EventDescriptionUpdated, nil, text)
}

func (s *queueService) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *queueService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *queueService) List() []domain.ConversionItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ConversionItem, len(s.items))
	for i, item := range s.items {
		out[i] = *item
	}
	return out
}

func (s *queueService) Get(id string) (domain.ConversionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return domain.ConversionItem{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, id)
	}
	return *s.items[idx], nil
}

// AllCompleted reports whether the queue is non-empty and every item has
// output.
func (s *queueService) AllCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return false
	}
	for _, item := range s.items {
		if !item.IsCompleted() {
			return false
		}
	}
	return true
}

func (s *queueService) Description() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.description
}

func (s *queueService) Options() domain.ConversionOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

func (s *queueService) SetOptions(opts domain.ConversionOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.options = opts
	s.mu.Unlock()
	return nil
}

func (s *queueService) Output(ctx context.Context, id string) (Download, error) {
	item, err := s.Get(id)
	if err != nil {
		return Download{}, err
	}
	if !item.IsCompleted() {
		return Download{}, fmt.Errorf("%w: item %s is %s", domain.ErrInvalidState, id, item.Status)
	}

	data, err := s.store.Get(ctx, item.OutputHandle)
	if err != nil {
		return Download{}, fmt.Errorf("failed to read output: %w", err)
	}

	format := item.OutputFormat
	if format == "" {
		format = s.Options().Format
	}
	return Download{
		Name:     archive.DownloadName(item.Name, format),
		MIMEType: format.MIMEType(),
		Data:     data,
	}, nil
}

func (s *queueService) Preview(ctx context.Context, id string) ([]byte, error) {
	item, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if item.PreviewHandle == "" {
		return nil, fmt.Errorf("%w: item %s has no preview", domain.ErrHandleNotFound, id)
	}
	return s.store.Get(ctx, item.PreviewHandle)
}

func (s *queueService) Archive(ctx context.Context) (Download, error) {
	items := s.List()
	data, err := archive.Pack(ctx, items, s.Options(), s.store, s.logger)
	if err != nil {
		return Download{}, err
	}
	return Download{
		Name:     archive.ArchiveName(time.Now()),
		MIMEType: "application/zip",
		Data:     data,
	}, nil
}

func (s *queueService) Close(ctx context.Context) error {
	s.Cancel()
	if err := s.Clear(ctx); err != nil {
		return err
	}
	return s.store.Purge(ctx)
}

// indexOf must be called with mu held.
func (s *queueService) indexOf(id string) int {
	for i, item := range s.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (s *queueService) release(ctx context.Context, handles ...domain.Handle) {
	for _, h := range handles {
		if h == "" {
			continue
		}
		if err := s.store.Release(ctx, h); err != nil && !errors.Is(err, domain.ErrHandleNotFound) {
			s.logger.Warn("failed to release blob", "handle", h, "error", err)
		}
	}
}

func (s *queueService) publish(ctx context.Context, typ domain.EventType, item *domain.ConversionItem, description string) {
	if s.publisher == nil {
		return
	}
	event := domain.ItemEvent{
		Type:        typ,
		Item:        item,
		Description: description,
		At:          time.Now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "type", typ, "error", err)
	}
}

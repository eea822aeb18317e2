package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oziev02/pixelflex/internal/domain"
)

type recordingAdder struct {
	mu    sync.Mutex
	files []domain.SourceFile
	added chan string
}

func (a *recordingAdder) Add(ctx context.Context, files []domain.SourceFile) ([]domain.ConversionItem, error) {
	a.mu.Lock()
	a.files = append(a.files, files...)
	a.mu.Unlock()

	out := make([]domain.ConversionItem, 0, len(files))
	for _, f := range files {
		out = append(out, *domain.NewItem("id-"+f.Name, f.Name, f.Data, domain.Metadata{}))
		a.added <- f.Name
	}
	return out, nil
}

func TestWatcherAddsNewFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	adder := &recordingAdder{added: make(chan string, 10)}

	w, err := New(dir, 50*time.Millisecond, adder, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := os.WriteFile(filepath.Join(dir, ".partial"), []byte("tmp"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "photo.png"), []byte("image bytes"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case name := <-adder.added:
		if name != "photo.png" {
			t.Errorf("added %q, want photo.png", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for inbox file")
	}

	// Debounced writes of one file produce a single add.
	select {
	case name := <-adder.added:
		t.Errorf("unexpected extra add of %q", name)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}

	adder.mu.Lock()
	defer adder.mu.Unlock()
	if len(adder.files) != 1 || string(adder.files[0].Data) != "image bytes" {
		t.Errorf("files = %+v", adder.files)
	}
}

func TestWatcherSkipsUnchangedRewrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	adder := &recordingAdder{added: make(chan string, 10)}

	w, err := New(dir, 30*time.Millisecond, adder, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	path := filepath.Join(dir, "photo.png")
	expectAdd := func(step string) {
		t.Helper()
		select {
		case <-adder.added:
		case <-time.After(5 * time.Second):
			t.Fatalf("%s: timeout waiting for add", step)
		}
	}
	expectNoAdd := func(step string) {
		t.Helper()
		select {
		case name := <-adder.added:
			t.Fatalf("%s: unexpected add of %q", step, name)
		case <-time.After(300 * time.Millisecond):
		}
	}

	if err := os.WriteFile(path, []byte("v1"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	expectAdd("create")

	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("v1"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	expectNoAdd("identical re-save")

	if err := os.WriteFile(path, []byte("v2"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	expectAdd("changed content")

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("v2"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	expectAdd("dropped again after removal")
}

package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/oziev02/pixelflex/internal/domain"
	"github.com/oziev02/pixelflex/internal/repo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completedItem(t *testing.T, store repo.BlobRepository, name string, format domain.ImageFormat, data string) domain.ConversionItem {
	t.Helper()
	h, err := store.Put(context.Background(), []byte(data))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	item := domain.NewItem(repo.GenerateID(), name, []byte("src"), domain.Metadata{Width: 1, Height: 1})
	item.Complete(h, format)
	return *item
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		if _, dup := out[f.Name]; dup {
			t.Errorf("duplicate entry %s", f.Name)
		}
		out[f.Name] = string(b)
	}
	return out
}

func TestPack(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryRepository()

	pending := domain.NewItem(repo.GenerateID(), "pending.png", []byte("src"), domain.Metadata{Width: 1, Height: 1})
	failed := domain.NewItem(repo.GenerateID(), "failed.png", []byte("src"), domain.Metadata{Width: 1, Height: 1})
	failed.Fail("decode error")

	items := []domain.ConversionItem{
		completedItem(t, store, "photo.jpeg", domain.FormatWEBP, "one"),
		*pending,
		completedItem(t, store, "scan.final.png", domain.FormatJPEG, "two"),
		*failed,
	}

	data, err := Pack(ctx, items, domain.DefaultOptions(), store, testLogger())
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	entries := readZip(t, data)
	want := map[string]string{
		"photo.webp":     "one",
		"scan.final.jpg": "two",
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %v, want %v", entries, want)
	}
	for name, content := range want {
		if entries[name] != content {
			t.Errorf("entry %s = %q, want %q", name, entries[name], content)
		}
	}
}

func TestPackCollisionLastWriteWins(t *testing.T) {
	store := repo.NewMemoryRepository()
	items := []domain.ConversionItem{
		completedItem(t, store, "a.png", domain.FormatJPEG, "first"),
		completedItem(t, store, "a.jpg", domain.FormatJPEG, "second"),
	}

	data, err := Pack(context.Background(), items, domain.DefaultOptions(), store, testLogger())
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	entries := readZip(t, data)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %v", entries)
	}
	if entries["a.jpg"] != "second" {
		t.Errorf("a.jpg = %q, want the later item", entries["a.jpg"])
	}
}

func TestPackFallsBackToOptionsFormat(t *testing.T) {
	store := repo.NewMemoryRepository()
	item := completedItem(t, store, "x.png", "", "data")

	opts := domain.DefaultOptions()
	opts.Format = domain.FormatSVG
	data, err := Pack(context.Background(), []domain.ConversionItem{item}, opts, store, testLogger())
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if _, ok := readZip(t, data)["x.svg"]; !ok {
		t.Error("expected entry named from options format")
	}
}

func TestPackErrors(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryRepository()

	_, err := Pack(ctx, nil, domain.DefaultOptions(), store, testLogger())
	if !errors.Is(err, domain.ErrEmptyArchive) {
		t.Errorf("empty queue error = %v, want ErrEmptyArchive", err)
	}

	pending := domain.NewItem(repo.GenerateID(), "p.png", []byte("src"), domain.Metadata{Width: 1, Height: 1})
	_, err = Pack(ctx, []domain.ConversionItem{*pending}, domain.DefaultOptions(), store, testLogger())
	if !errors.Is(err, domain.ErrEmptyArchive) {
		t.Errorf("no completed items error = %v, want ErrEmptyArchive", err)
	}

	item := completedItem(t, store, "gone.png", domain.FormatPNG, "data")
	if err := store.Release(ctx, item.OutputHandle); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	_, err = Pack(ctx, []domain.ConversionItem{item}, domain.DefaultOptions(), store, testLogger())
	if !errors.Is(err, domain.ErrHandleNotFound) {
		t.Errorf("missing output error = %v, want ErrHandleNotFound", err)
	}
}

func TestNames(t *testing.T) {
	tests := []struct {
		source string
		format domain.ImageFormat
		entry  string
	}{
		{"photo.png", domain.FormatJPEG, "photo.jpg"},
		{"photo", domain.FormatPNG, "photo.png"},
		{"my.holiday.pic.gif", domain.FormatWEBP, "my.holiday.pic.webp"},
		{"dir/sub/pic.bmp", domain.FormatSVG, "pic.svg"},
		{`C:\Users\me\pic.bmp`, domain.FormatBMP, "pic.bmp"},
		{"", domain.FormatGIF, "image.gif"},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := EntryName(tt.source, tt.format); got != tt.entry {
				t.Errorf("EntryName(%q) = %q, want %q", tt.source, got, tt.entry)
			}
			if got := DownloadName(tt.source, tt.format); got != "converted-"+tt.entry {
				t.Errorf("DownloadName(%q) = %q", tt.source, got)
			}
		})
	}

	at := time.UnixMilli(1700000000123)
	if got := ArchiveName(at); got != "pixelflex-converted-1700000000123.zip" {
		t.Errorf("ArchiveName = %q", got)
	}
}

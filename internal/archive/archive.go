// Package archive bundles completed conversion outputs into a zip file.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/oziev02/pixelflex/internal/domain"
)

// BlobReader resolves output handles to bytes.
type BlobReader interface {
	Get(ctx context.Context, h domain.Handle) ([]byte, error)
}

type entry struct {
	name   string
	itemID string
	data   []byte
}

// Pack writes one entry per completed item, in queue order. Entries whose
// names collide are not renamed: the later item replaces the earlier one.
// Either every entry is written or an error is returned.
func Pack(ctx context.Context, items []domain.ConversionItem, opts domain.ConversionOptions, reader BlobReader, logger *slog.Logger) ([]byte, error) {
	var entries []*entry
	byName := make(map[string]*entry)

	for _, item := range items {
		if !item.IsCompleted() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := reader.Get(ctx, item.OutputHandle)
		if err != nil {
			return nil, fmt.Errorf("failed to read output of %s: %w", item.ID, err)
		}

		format := item.OutputFormat
		if format == "" {
			format = opts.Format
		}
		name := EntryName(item.Name, format)

		if prev, ok := byName[name]; ok {
			logger.Warn("archive entry name collision, keeping later item",
				"entry", name,
				"replaced_item_id", prev.itemID,
				"item_id", item.ID,
			)
			prev.itemID = item.ID
			prev.data = data
			continue
		}

		e := &entry{name: name, itemID: item.ID, data: data}
		byName[name] = e
		entries = append(entries, e)
	}

	if len(entries) == 0 {
		return nil, domain.ErrEmptyArchive
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	now := time.Now()
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create entry %s: %w", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, fmt.Errorf("failed to write entry %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return buf.Bytes(), nil
}

// EntryName is the source name without its last extension, plus the
// extension of format.
func EntryName(sourceName string, format domain.ImageFormat) string {
	return baseName(sourceName) + "." + format.Extension()
}

// DownloadName is the file name offered for a single converted item.
func DownloadName(sourceName string, format domain.ImageFormat) string {
	return "converted-" + EntryName(sourceName, format)
}

// ArchiveName is the file name offered for the whole archive.
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("pixelflex-converted-%d.zip", t.UnixMilli())
}

func baseName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}
	if ext := path.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	if name == "" {
		return "image"
	}
	return name
}

package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, slog.LevelWarn, true)

	logger.Info("hidden")
	logger.With("item_id", "abc").Error("conversion failed", "error", errors.New("decode error"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %s", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatalf("record is not json: %v", err)
	}
	if rec["msg"] != "conversion failed" || rec["item_id"] != "abc" || rec["error"] != "decode error" {
		t.Errorf("record = %v", rec)
	}
}

package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// NewLogger returns a JSON logger on stdout.
func NewLogger(level slog.Level) *slog.Logger {
	return newLogger(os.Stdout, level, false)
}

// NewReportingLogger also forwards error records to Sentry. InitSentry must
// have been called.
func NewReportingLogger(level slog.Level) *slog.Logger {
	return newLogger(os.Stdout, level, true)
}

func newLogger(w io.Writer, level slog.Level, report bool) *slog.Logger {
	var h slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	if report {
		h = &sentryHandler{Handler: h}
	}
	return slog.New(h)
}

func InitSentry(dsn, environment, release string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
}

// FlushSentry waits for buffered events to be sent.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

type sentryHandler struct {
	slog.Handler
	attrs []slog.Attr
}

func (h *sentryHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		h.capture(r)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &sentryHandler{Handler: h.Handler.WithAttrs(attrs), attrs: merged}
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{Handler: h.Handler.WithGroup(name), attrs: h.attrs}
}

func (h *sentryHandler) capture(r slog.Record) {
	event := sentry.NewEvent()
	event.Level = sentry.LevelError
	event.Message = r.Message
	event.Timestamp = r.Time

	add := func(a slog.Attr) bool {
		if err, ok := a.Value.Any().(error); ok {
			event.Exception = append(event.Exception, sentry.Exception{
				Type:  "error",
				Value: err.Error(),
			})
		}
		event.Extra[a.Key] = a.Value.String()
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(add)

	sentry.CaptureEvent(event)
}

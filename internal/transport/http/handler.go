package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oziev02/pixelflex/internal/domain"
	"github.com/oziev02/pixelflex/internal/service"
)

const uploadField = "images"

type Handler struct {
	queue         service.QueueService
	events        http.Handler
	logger        *slog.Logger
	maxUploadSize int64
}

// NewHandler builds the session API. events serves the websocket stream and
// may be nil.
func NewHandler(queue service.QueueService, events http.Handler, logger *slog.Logger, maxUploadSize int64) *Handler {
	return &Handler{
		queue:         queue,
		events:        events,
		logger:        logger,
		maxUploadSize: maxUploadSize,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type queueResponse struct {
	Items        []domain.ConversionItem `json:"items"`
	Description  string                  `json:"description"`
	AllCompleted bool                    `json:"all_completed"`
	Running      bool                    `json:"running"`
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
	if h.events != nil {
		r.Handle("/ws", h.events)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/items", h.AddItems)
		r.Get("/items", h.ListItems)
		r.Delete("/items", h.ClearItems)
		r.Get("/items/{id}", h.GetItem)
		r.Delete("/items/{id}", h.RemoveItem)
		r.Get("/items/{id}/preview", h.Preview)
		r.Get("/items/{id}/download", h.Download)

		r.Get("/options", h.GetOptions)
		r.Put("/options", h.SetOptions)

		r.Post("/run", h.Run)
		r.Post("/run/cancel", h.CancelRun)
		r.Get("/archive", h.Archive)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) AddItems(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("no files in form field %q", uploadField))
		return
	}

	files := make([]domain.SourceFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to open %s: %v", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to read %s: %v", fh.Filename, err))
			return
		}
		files = append(files, domain.SourceFile{Name: fh.Filename, Data: data})
	}

	added, err := h.queue.Add(r.Context(), files)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]any{
		"items":   added,
		"skipped": len(files) - len(added),
	})
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.snapshot())
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.queue.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, item)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearItems(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Clear(r.Context()); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	data, err := h.queue.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondBinary(w, "image/png", "", data)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	dl, err := h.queue.Output(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondBinary(w, dl.MIMEType, dl.Name, dl.Data)
}

func (h *Handler) GetOptions(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.queue.Options())
}

func (h *Handler) SetOptions(w http.ResponseWriter, r *http.Request) {
	var opts domain.ConversionOptions
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid options body: %v", err))
		return
	}
	if f, err := domain.ParseFormat(string(opts.Format)); err == nil {
		opts.Format = f
	}

	if err := h.queue.SetOptions(opts); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.queue.Options())
}

// Run starts a conversion pass with the current options. With ?wait=true it
// answers after the pass; otherwise the run slot is claimed before answering
// 202 and the pass continues in the background, reporting through the event
// stream.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	opts := h.queue.Options()

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		if err := h.queue.RunAll(r.Context(), opts); err != nil {
			h.respondServiceError(w, err)
			return
		}
		h.respondJSON(w, http.StatusOK, h.snapshot())
		return
	}

	done, err := h.queue.Start(context.WithoutCancel(r.Context()), opts)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	go func() {
		if err := <-done; err != nil {
			h.logger.Warn("conversion run ended with error", "error", err)
		}
	}()
	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	h.queue.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	dl, err := h.queue.Archive(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondBinary(w, dl.MIMEType, dl.Name, dl.Data)
}

func (h *Handler) snapshot() queueResponse {
	return queueResponse{
		Items:        h.queue.List(),
		Description:  h.queue.Description(),
		AllCompleted: h.queue.AllCompleted(),
		Running:      h.queue.Running(),
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode json", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, message string) {
	h.respondJSON(w, code, errorResponse{Error: message})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.respondError(w, code, err.Error())
}

func (h *Handler) respondBinary(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrHandleNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidOptions), errors.Is(err, domain.ErrInvalidFormat):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmptyArchive),
		errors.Is(err, domain.ErrRunInProgress),
		errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

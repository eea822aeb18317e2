package domain

import (
	"time"
)

// ProcessingStatus represents the status of a queued item
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Handle is an opaque reference to a stored binary resource.
type Handle string

// Metadata is captured once when the item is enqueued
type Metadata struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	ByteSize int64  `json:"byte_size"`
	MIMEType string `json:"mime_type"`
}

// ConversionItem is one queued image and its conversion state.
//
// Status, OutputHandle, OutputFormat and Error only change through the
// transition methods so that exactly one of {output, error, neither} is set
// for completed, failed and pending/processing respectively.
type ConversionItem struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Metadata      Metadata         `json:"metadata"`
	Status        ProcessingStatus `json:"status"`
	PreviewHandle Handle           `json:"preview_handle,omitempty"`
	OutputHandle  Handle           `json:"output_handle,omitempty"`
	OutputFormat  ImageFormat      `json:"output_format,omitempty"`
	Error         string           `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`

	source []byte
}

// NewItem creates a pending item that owns source.
func NewItem(id, name string, source []byte, meta Metadata) *ConversionItem {
	now := time.Now()
	return &ConversionItem{
		ID:        id,
		Name:      name,
		Metadata:  meta,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		source:    source,
	}
}

// Source returns the original bytes. Callers must not modify them.
func (i *ConversionItem) Source() []byte {
	return i.source
}

func (i *ConversionItem) MarkProcessing() {
	i.Status = StatusProcessing
	i.OutputHandle = ""
	i.OutputFormat = ""
	i.Error = ""
	i.UpdatedAt = time.Now()
}

func (i *ConversionItem) Complete(output Handle, format ImageFormat) {
	i.Status = StatusCompleted
	i.OutputHandle = output
	i.OutputFormat = format
	i.Error = ""
	i.UpdatedAt = time.Now()
}

func (i *ConversionItem) Fail(msg string) {
	i.Status = StatusFailed
	i.OutputHandle = ""
	i.OutputFormat = ""
	i.Error = msg
	i.UpdatedAt = time.Now()
}

// Reset returns the item to pending. It is used when a run is cancelled
// before the item produced a result.
func (i *ConversionItem) Reset() {
	i.Status = StatusPending
	i.OutputHandle = ""
	i.OutputFormat = ""
	i.Error = ""
	i.UpdatedAt = time.Now()
}

func (i *ConversionItem) IsCompleted() bool {
	return i.Status == StatusCompleted && i.OutputHandle != ""
}

// Validate validates item invariants
func (i *ConversionItem) Validate() error {
	if i.ID == "" {
		return ErrInvalidItemID
	}
	if len(i.source) == 0 {
		return ErrEmptySource
	}
	switch i.Status {
	case StatusCompleted:
		if i.OutputHandle == "" || i.Error != "" {
			return ErrInvalidState
		}
	case StatusFailed:
		if i.OutputHandle != "" || i.Error == "" {
			return ErrInvalidState
		}
	case StatusPending, StatusProcessing:
		if i.OutputHandle != "" || i.Error != "" {
			return ErrInvalidState
		}
	default:
		return ErrInvalidState
	}
	return nil
}

// SourceFile is an input handed to the queue.
type SourceFile struct {
	Name string
	Data []byte
}

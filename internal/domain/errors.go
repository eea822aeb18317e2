package domain

import "errors"

// Pipeline errors. Per-item errors are recorded on the item, collaborator
// errors degrade to a fallback, archive errors surface to the caller.
var (
	ErrInvalidDimensions      = errors.New("invalid dimensions")
	ErrDecode                 = errors.New("decode error")
	ErrEncode                 = errors.New("encode error")
	ErrEmptyArchive           = errors.New("no completed items to archive")
	ErrEnhancementUnavailable = errors.New("enhancement unavailable")
	ErrMetadataProbe          = errors.New("metadata probe failed")
)

// Queue and domain errors
var (
	ErrInvalidItemID  = errors.New("invalid item id")
	ErrEmptySource    = errors.New("empty source")
	ErrInvalidState   = errors.New("invalid item state")
	ErrItemNotFound   = errors.New("item not found")
	ErrInvalidFormat  = errors.New("invalid image format")
	ErrInvalidOptions = errors.New("invalid conversion options")
	ErrRunInProgress  = errors.New("conversion run already in progress")
	ErrHandleNotFound = errors.New("handle not found")
	ErrFileTooLarge   = errors.New("file too large")
)

package domain

import "time"

type EventType string

const (
	EventItemAdded          EventType = "item.added"
	EventItemUpdated        EventType = "item.updated"
	EventItemRemoved        EventType = "item.removed"
	EventQueueCleared       EventType = "queue.cleared"
	EventRunStarted         EventType = "run.started"
	EventRunFinished        EventType = "run.finished"
	EventDescriptionUpdated EventType = "description.updated"
)

// ItemEvent is published on every observable queue change.
type ItemEvent struct {
	Type        EventType       `json:"type"`
	Item        *ConversionItem `json:"item,omitempty"`
	Description string          `json:"description,omitempty"`
	At          time.Time       `json:"at"`
}

// Key is used to partition events by item.
func (e ItemEvent) Key() string {
	if e.Item != nil {
		return e.Item.ID
	}
	return string(e.Type)
}

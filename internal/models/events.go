package models

import "time"

// GenerationEventType identifies a message on the generation stream
type GenerationEventType string

const (
	EventTypeGenerating GenerationEventType = "generating"
	EventTypeCompleted  GenerationEventType = "completed"
	EventTypeError      GenerationEventType = "error"
)

// GenerationEvent is sent to websocket clients while a spec is being generated
type GenerationEvent struct {
	EventType GenerationEventType `json:"event_type"`
	Prompt    string              `json:"prompt,omitempty"`
	Result    *GenerationResult   `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

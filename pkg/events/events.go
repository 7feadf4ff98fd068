// Package events defines the engine's stream events and the history events
// published on the internal event bus.
package events

import (
	"time"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every history event.
const Topic = "comfyphone.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ImageGeneratedEvent  EventType = "image.generated"
	PromptSubmittedEvent EventType = "prompt.submitted"
	BatchFailedEvent     EventType = "batch.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	ClientID  string         `json:"client_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ImageGenerated is published once per output image of a batch.
type ImageGenerated struct {
	BaseEvent

	PromptID string              `json:"prompt_id,omitempty"`
	Image    models.GalleryImage `json:"image"`
}

func (e ImageGenerated) GetType() EventType {
	return ImageGeneratedEvent
}

// PromptSubmitted is published when a batch for a prompt is about to be queued.
type PromptSubmitted struct {
	BaseEvent

	Prompt string `json:"prompt"`
	Count  int    `json:"count"`
}

func (e PromptSubmitted) GetType() EventType {
	return PromptSubmittedEvent
}

// BatchFailed is published when a submission aborts a batch.
type BatchFailed struct {
	BaseEvent

	Prompt    string `json:"prompt"`
	Submitted int    `json:"submitted"`
	Error     string `json:"error"`
}

func (e BatchFailed) GetType() EventType {
	return BatchFailedEvent
}

func NewBaseEvent(eventType EventType, clientID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ClientID:  clientID,
		Metadata:  make(map[string]any),
	}
}

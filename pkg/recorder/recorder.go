// Package recorder turns generation outcomes into history events and
// persists them when they come back off the event bus.
package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/comfyphone/pkg/eventbus"
	"github.com/dukex/comfyphone/pkg/events"
	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/persistence"
	"github.com/google/uuid"
)

type Recorder struct {
	clientID    string
	eventBus    eventbus.EventBus
	persistence persistence.Persistence
	logger      *slog.Logger
}

func New(clientID string, eventBus eventbus.EventBus, persistence persistence.Persistence, logger *slog.Logger) *Recorder {
	return &Recorder{
		clientID:    clientID,
		eventBus:    eventBus,
		persistence: persistence,
		logger:      logger.With("module", "recorder"),
	}
}

// Start registers the history handlers and subscribes to the bus.
func (r *Recorder) Start(ctx context.Context) error {
	err := r.eventBus.Handle(events.ImageGeneratedEvent, r.handleImageGenerated)
	if err != nil {
		return err
	}

	err = r.eventBus.Handle(events.PromptSubmittedEvent, r.handlePromptSubmitted)
	if err != nil {
		return err
	}

	err = r.eventBus.Handle(events.BatchFailedEvent, r.handleBatchFailed)
	if err != nil {
		return err
	}

	err = r.eventBus.Subscribe(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	return nil
}

// Record publishes a finished image. Failures are logged, never returned.
func (r *Recorder) Record(ctx context.Context, image models.GalleryImage) {
	event := events.ImageGenerated{
		BaseEvent: events.NewBaseEvent(events.ImageGeneratedEvent, r.clientID),
		Image:     image,
	}

	r.publish(ctx, image.ID, event)
}

// RecordPrompt publishes the prompt of a batch about to be queued.
func (r *Recorder) RecordPrompt(ctx context.Context, prompt string, count int) {
	event := events.PromptSubmitted{
		BaseEvent: events.NewBaseEvent(events.PromptSubmittedEvent, r.clientID),
		Prompt:    prompt,
		Count:     count,
	}

	r.publish(ctx, r.clientID, event)
}

// RecordFailure publishes a batch aborted after submitted accepted jobs.
func (r *Recorder) RecordFailure(ctx context.Context, prompt string, submitted int, cause error) {
	event := events.BatchFailed{
		BaseEvent: events.NewBaseEvent(events.BatchFailedEvent, r.clientID),
		Prompt:    prompt,
		Submitted: submitted,
		Error:     cause.Error(),
	}

	r.publish(ctx, r.clientID, event)
}

func (r *Recorder) publish(ctx context.Context, key string, event eventbus.Event) {
	err := r.eventBus.Publish(ctx, key, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish history event", "event_type", event.GetType(), "error", err)
	}
}

func (r *Recorder) handleImageGenerated(ctx context.Context, event any) error {
	generated, ok := event.(*events.ImageGenerated)
	if !ok {
		r.logger.ErrorContext(ctx, "Invalid event type for ImageGenerated")

		return nil
	}

	image := generated.Image

	err := r.persistence.SaveImage(ctx, &image)
	if err != nil {
		return err
	}

	r.logger.DebugContext(ctx, "Image recorded", "image_id", image.ID, "url", image.URL)

	return nil
}

func (r *Recorder) handlePromptSubmitted(ctx context.Context, event any) error {
	submitted, ok := event.(*events.PromptSubmitted)
	if !ok {
		r.logger.ErrorContext(ctx, "Invalid event type for PromptSubmitted")

		return nil
	}

	timestamp := submitted.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	stored, err := r.persistence.SavePrompt(ctx, &models.PromptRecord{
		ID:        uuid.NewString(),
		Text:      submitted.Prompt,
		Timestamp: timestamp.UnixMilli(),
	})
	if err != nil {
		return err
	}

	r.logger.DebugContext(ctx, "Prompt recorded", "stored", stored, "count", submitted.Count)

	return nil
}

func (r *Recorder) handleBatchFailed(ctx context.Context, event any) error {
	failed, ok := event.(*events.BatchFailed)
	if !ok {
		r.logger.ErrorContext(ctx, "Invalid event type for BatchFailed")

		return nil
	}

	r.logger.WarnContext(ctx, "Batch failed",
		"client_id", failed.ClientID,
		"submitted", failed.Submitted,
		"error", failed.Error,
	)

	return nil
}

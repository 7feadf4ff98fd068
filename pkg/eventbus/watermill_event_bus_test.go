package eventbus_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/comfyphone/pkg/channels/gochannel"
	"github.com/dukex/comfyphone/pkg/eventbus"
	"github.com/dukex/comfyphone/pkg/events"
	"github.com/dukex/comfyphone/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, logger)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	received := make(chan *events.ImageGenerated, 1)

	require.NoError(t, bus.Handle(events.ImageGeneratedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.ImageGenerated)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	event := events.ImageGenerated{
		BaseEvent: events.NewBaseEvent(events.ImageGeneratedEvent, "client-1"),
		Image:     models.GalleryImage{ID: "img-1", URL: "http://engine/view?filename=a.png", Prompt: "1girl"},
	}
	require.NoError(t, bus.Publish(ctx, "img-1", event))

	select {
	case got := <-received:
		assert.Equal(t, "img-1", got.Image.ID)
		assert.Equal(t, "1girl", got.Image.Prompt)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_FailingHandlerDoesNotBlockLaterEvents(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	received := make(chan string, 4)

	require.NoError(t, bus.Handle(events.PromptSubmittedEvent, func(_ context.Context, event any) error {
		prompt := event.(*events.PromptSubmitted).Prompt
		received <- prompt

		if prompt == "first" {
			return errors.New("storage down")
		}

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	for _, prompt := range []string{"first", "second"} {
		require.NoError(t, bus.Publish(ctx, prompt, events.PromptSubmitted{
			BaseEvent: events.NewBaseEvent(events.PromptSubmittedEvent, "client-1"),
			Prompt:    prompt,
		}))
	}

	var got []string

	for range 2 {
		select {
		case prompt := <-received:
			got = append(got, prompt)
		case <-time.After(2 * time.Second):
			t.Fatal("event was not delivered")
		}
	}

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestWatermillEventBus_UnhandledTypeIsAcked(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	received := make(chan struct{}, 1)

	require.NoError(t, bus.Handle(events.BatchFailedEvent, func(context.Context, any) error {
		received <- struct{}{}

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "x", events.PromptSubmitted{
		BaseEvent: events.NewBaseEvent(events.PromptSubmittedEvent, "client-1"),
		Prompt:    "ignored",
	}))
	require.NoError(t, bus.Publish(ctx, "x", events.BatchFailed{
		BaseEvent: events.NewBaseEvent(events.BatchFailedEvent, "client-1"),
		Error:     "boom",
	}))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("event after an unhandled type was not delivered")
	}
}

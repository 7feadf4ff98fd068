package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageGenerated_GetType(t *testing.T) {
	event := ImageGenerated{}
	assert.Equal(t, ImageGeneratedEvent, event.GetType())
}

func TestImageGenerated_JSONSerialization(t *testing.T) {
	original := &ImageGenerated{
		BaseEvent: NewBaseEvent(ImageGeneratedEvent, "client-1"),
		PromptID:  "prompt-1",
		Image: models.GalleryImage{
			ID:        "img-1",
			URL:       "http://127.0.0.1:8188/view?filename=a.png&subfolder=&type=output",
			Prompt:    "1girl",
			Timestamp: 1700000000000,
			Workflow: models.Graph{
				"6": {ClassType: "CLIPTextEncode", Inputs: map[string]any{"text": "1girl"}},
			},
		},
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"image.generated"`)
	assert.Contains(t, string(jsonData), `"client_id":"client-1"`)

	var deserialized ImageGenerated

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)

	assert.Equal(t, original.ID, deserialized.ID)
	assert.Equal(t, original.PromptID, deserialized.PromptID)
	assert.Equal(t, original.Image.URL, deserialized.Image.URL)
	assert.Equal(t, "1girl", deserialized.Image.Workflow["6"].Inputs["text"])
}

func TestPromptSubmitted_GetType(t *testing.T) {
	event := PromptSubmitted{}
	assert.Equal(t, PromptSubmittedEvent, event.GetType())
}

func TestBatchFailed_GetType(t *testing.T) {
	event := BatchFailed{}
	assert.Equal(t, BatchFailedEvent, event.GetType())
}

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(PromptSubmittedEvent, "client-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, PromptSubmittedEvent, event.Type)
	assert.Equal(t, "client-1", event.ClientID)
	assert.False(t, event.Timestamp.IsZero())
	assert.NotNil(t, event.Metadata)
}

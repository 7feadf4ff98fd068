// Package web provides HTTP request and response types for the generation API.
package web

import (
	"github.com/dukex/comfyphone/pkg/autocomplete"
	"github.com/dukex/comfyphone/pkg/models"
)

// GenerateResponse lists the jobs the engine accepted.
type GenerateResponse struct {
	Submissions []models.Submission `json:"submissions"`
}

// GalleryResponse is one page of the gallery.
type GalleryResponse struct {
	Images []*models.GalleryImage `json:"images"`
	Page   int                    `json:"page"`
	Limit  int                    `json:"limit"`
}

// SaveImageRequest adds an image to the gallery by hand.
type SaveImageRequest struct {
	URL      string       `json:"url"      validate:"required,url"`
	Prompt   string       `json:"prompt"`
	Workflow models.Graph `json:"workflow"`
}

// SavePromptRequest remembers a prompt text.
type SavePromptRequest struct {
	Text string `json:"text" validate:"required"`
}

// SavePromptResponse reports whether the text was new.
type SavePromptResponse struct {
	Stored bool `json:"stored"`
}

// TagsResponse mirrors the tag lookup endpoint format.
type TagsResponse struct {
	Tags []models.TagSuggestion `json:"tags"`
}

// InsertRequest replaces the segment under Cursor with Name.
type InsertRequest struct {
	Text   string `json:"text"`
	Cursor int    `json:"cursor" validate:"min=0"`
	Name   string `json:"name"   validate:"required"`
}

// InsertResponse is the new text and cursor after an insertion.
type InsertResponse struct {
	Text   string `json:"text"`
	Cursor int    `json:"cursor"`
}

// SegmentResponse describes the segment under the cursor and, when it is
// eligible for lookup, its suggestions.
type SegmentResponse struct {
	Segment     autocomplete.Segment   `json:"segment"`
	Suggestions []models.TagSuggestion `json:"suggestions"`
}

// WorkflowResponse is the active template and its bindings.
type WorkflowResponse struct {
	Workflow models.Graph        `json:"workflow"`
	Bindings models.NodeBindings `json:"bindings"`
}

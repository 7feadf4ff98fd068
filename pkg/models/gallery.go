package models

import "time"

// GalleryImage is a finished output recorded in the local history.
type GalleryImage struct {
	ID        string `json:"id"        validate:"required"`
	URL       string `json:"url"       validate:"required,url"`
	Prompt    string `json:"prompt"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Workflow  Graph  `json:"workflow"`
}

// CreatedAt returns the timestamp as time.Time.
func (g *GalleryImage) CreatedAt() time.Time {
	return time.UnixMilli(g.Timestamp)
}

// PromptRecord is a prompt text remembered for reuse.
type PromptRecord struct {
	ID        string `json:"id"        validate:"required"`
	Text      string `json:"text"      validate:"required"`
	Timestamp int64  `json:"timestamp"`
}

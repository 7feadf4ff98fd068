package orchestrator

import "errors"

var (
	// ErrBusy is returned when a batch is requested while another is active.
	ErrBusy = errors.New("a generation is already in progress")

	// ErrEmptyPrompt is returned for a prompt with no visible characters.
	ErrEmptyPrompt = errors.New("prompt is empty")
)

package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEvent is returned when a stream frame cannot be decoded.
var ErrMalformedEvent = errors.New("malformed engine event")

// Frame types sent by the engine on the event stream.
const (
	TypeProgress       = "progress"
	TypeExecuting      = "executing"
	TypeExecuted       = "executed"
	TypeStatus         = "status"
	TypeExecutionError = "execution_error"
)

// Event is one decoded engine stream frame. The set of implementations is
// closed; frames with an unrecognised type decode to Unknown.
type Event interface {
	Kind() string
	engineEvent()
}

// Progress reports step progress of the node currently executing.
type Progress struct {
	Value    float64 `json:"value"`
	Max      float64 `json:"max"`
	Node     string  `json:"node,omitempty"`
	PromptID string  `json:"prompt_id,omitempty"`
}

// Percent returns 100*Value/Max. ok is false when Max is not positive.
func (p Progress) Percent() (float64, bool) {
	if p.Max <= 0 {
		return 0, false
	}

	return 100 * p.Value / p.Max, true
}

// Executing names the node that started executing. A nil Node means the
// engine is between nodes.
type Executing struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id,omitempty"`
}

// ImageOutput addresses one image produced by an output node.
type ImageOutput struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// Executed reports the outputs of a finished node.
type Executed struct {
	Node     string
	PromptID string
	Images   []ImageOutput
}

// Status reports the engine's queue state.
type Status struct {
	QueueRemaining int
}

// ExecutionError reports a node failure inside the engine.
type ExecutionError struct {
	PromptID  string `json:"prompt_id"`
	NodeID    string `json:"node_id"`
	NodeType  string `json:"node_type"`
	Exception string `json:"exception_message"`
}

// Unknown is any frame whose type is not handled.
type Unknown struct {
	Type string
	Data json.RawMessage
}

func (Progress) Kind() string       { return TypeProgress }
func (Executing) Kind() string      { return TypeExecuting }
func (Executed) Kind() string       { return TypeExecuted }
func (Status) Kind() string         { return TypeStatus }
func (ExecutionError) Kind() string { return TypeExecutionError }
func (u Unknown) Kind() string      { return u.Type }

func (Progress) engineEvent()       {}
func (Executing) engineEvent()      {}
func (Executed) engineEvent()       {}
func (Status) engineEvent()         {}
func (ExecutionError) engineEvent() {}
func (Unknown) engineEvent()        {}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type executedData struct {
	Node     string `json:"node"`
	PromptID string `json:"prompt_id"`
	Output   struct {
		Images []ImageOutput `json:"images"`
	} `json:"output"`
}

type statusData struct {
	Status struct {
		ExecInfo struct {
			QueueRemaining int `json:"queue_remaining"`
		} `json:"exec_info"`
	} `json:"status"`
}

// Decode parses a text frame `{"type": ..., "data": {...}}` into an Event.
func Decode(data []byte) (Event, error) {
	var f frame

	err := json.Unmarshal(data, &f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	switch f.Type {
	case TypeProgress:
		var event Progress

		return decodeData(f, &event, func() Event { return event })
	case TypeExecuting:
		var event Executing

		return decodeData(f, &event, func() Event { return event })
	case TypeExecuted:
		var payload executedData

		return decodeData(f, &payload, func() Event {
			return Executed{Node: payload.Node, PromptID: payload.PromptID, Images: payload.Output.Images}
		})
	case TypeStatus:
		var payload statusData

		return decodeData(f, &payload, func() Event {
			return Status{QueueRemaining: payload.Status.ExecInfo.QueueRemaining}
		})
	case TypeExecutionError:
		var event ExecutionError

		return decodeData(f, &event, func() Event { return event })
	default:
		return Unknown{Type: f.Type, Data: f.Data}, nil
	}
}

func decodeData(f frame, target any, build func() Event) (Event, error) {
	if len(f.Data) == 0 {
		return nil, fmt.Errorf("%w: %s frame without data", ErrMalformedEvent, f.Type)
	}

	err := json.Unmarshal(f.Data, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedEvent, f.Type, err)
	}

	return build(), nil
}

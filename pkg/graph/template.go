package graph

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed default_workflow.json
var defaultWorkflow []byte

// ErrInvalidTemplate indicates an imported graph could not be accepted.
var ErrInvalidTemplate = errors.New("invalid workflow template")

// ParseError describes why a template was rejected.
type ParseError struct {
	Reasons []string
	Err     error
}

func (e *ParseError) Error() string {
	if len(e.Reasons) > 0 {
		return fmt.Sprintf("%v: %s", ErrInvalidTemplate, strings.Join(e.Reasons, "; "))
	}

	return fmt.Sprintf("%v: %v", ErrInvalidTemplate, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidTemplate || errors.Is(e.Err, target)
}

// IsInvalidTemplate checks if an error indicates a rejected template.
func IsInvalidTemplate(err error) bool {
	return errors.Is(err, ErrInvalidTemplate)
}

const templateSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"minProperties": 1,
	"additionalProperties": {
		"type": "object",
		"required": ["class_type", "inputs"],
		"properties": {
			"class_type": {"type": "string", "minLength": 1},
			"inputs": {"type": "object"},
			"_meta": {"type": "object"}
		}
	}
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(templateSchema))
})

// ParseTemplate decodes and validates an API-format workflow export.
func ParseTemplate(data []byte) (models.Graph, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile template schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("malformed JSON: %w", err)}
	}

	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}

		return nil, &ParseError{Reasons: reasons, Err: ErrInvalidTemplate}
	}

	var graph models.Graph

	err = json.Unmarshal(data, &graph)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	return graph, nil
}

var defaultTemplate = sync.OnceValue(func() models.Graph {
	graph, err := ParseTemplate(defaultWorkflow)
	if err != nil {
		panic(fmt.Errorf("embedded default workflow: %w", err))
	}

	return graph
})

// DefaultTemplate returns a fresh copy of the built-in workflow.
func DefaultTemplate() models.Graph {
	return defaultTemplate().Clone()
}

// Package engine talks to the remote generation engine over HTTP: job intake,
// image addressing and option enumeration.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/dukex/comfyphone/pkg/events"
	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultAddress = "http://127.0.0.1:8188"
	DefaultTimeout = 30 * time.Second

	// DefaultImageType is used when an output descriptor has no type.
	DefaultImageType = "output"
)

// PromptRequest is the body of POST /prompt.
type PromptRequest struct {
	Prompt   models.Graph `json:"prompt"`
	ClientID string       `json:"client_id"`
}

// PromptResponse is the engine's acknowledgement of a queued job.
type PromptResponse struct {
	PromptID   string                     `json:"prompt_id"`
	Number     int                        `json:"number"`
	NodeErrors map[string]json.RawMessage `json:"node_errors,omitempty"`
}

// Client is an HTTP client for one engine address.
type Client struct {
	address    string
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the engine at address (http or https).
func NewClient(address string, opts ...Option) (*Client, error) {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	c := &Client{
		address:    normalized,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tracer:     otelhelper.NoopTracer(),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("module", "engine_client")

	return c, nil
}

// NormalizeAddress validates an engine address and strips trailing slashes.
func NormalizeAddress(address string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(address), "/")

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, parsed.Scheme)
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidAddress)
	}

	return trimmed, nil
}

// Address returns the normalized engine address.
func (c *Client) Address() string {
	return c.address
}

// QueuePrompt submits one graph to the engine's job intake.
func (c *Client) QueuePrompt(ctx context.Context, clientID string, graph models.Graph) (*PromptResponse, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "engine.queue_prompt",
		attribute.String(otelhelper.ClientIDKey, clientID),
		attribute.String(otelhelper.EngineURLKey, c.address),
	)
	defer span.End()

	body, err := json.Marshal(PromptRequest{Prompt: graph, ClientID: clientID})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to encode prompt: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, c.address+"/prompt", body)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	var response PromptResponse

	err = json.Unmarshal(respBody, &response)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to decode prompt response: %w", err)
	}

	if len(response.NodeErrors) > 0 {
		err = &HTTPError{StatusCode: http.StatusOK, Message: "node errors: " + nodeErrorIDs(response.NodeErrors)}
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.PromptIDKey, response.PromptID))

	c.logger.DebugContext(ctx, "Prompt queued", "prompt_id", response.PromptID, "number", response.Number)

	return &response, nil
}

// ImageURL builds the browsable URL of an output image.
func (c *Client) ImageURL(image events.ImageOutput) string {
	imageType := image.Type
	if imageType == "" {
		imageType = DefaultImageType
	}

	query := url.Values{}
	query.Set("filename", image.Filename)
	query.Set("subfolder", image.Subfolder)
	query.Set("type", imageType)

	return c.address + "/view?" + query.Encode()
}

// Options returns the choices the engine offers for field of nodeType, read
// from GET /object_info/<nodeType>. A response without the expected shape
// yields an empty list and no error.
func (c *Client) Options(ctx context.Context, nodeType, field string) ([]string, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "engine.object_info",
		attribute.String(otelhelper.NodeTypeKey, nodeType),
	)
	defer span.End()

	respBody, err := c.do(ctx, http.MethodGet, c.address+"/object_info/"+url.PathEscape(nodeType), nil)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return extractOptions(respBody, nodeType, field), nil
}

// Models lists checkpoint names.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	return c.Options(ctx, models.NodeTypeCheckpoint, models.InputCheckpoint)
}

// Samplers lists sampler names.
func (c *Client) Samplers(ctx context.Context) ([]string, error) {
	return c.Options(ctx, models.NodeTypeKSampler, models.InputSamplerName)
}

// Schedulers lists scheduler names.
func (c *Client) Schedulers(ctx context.Context) ([]string, error) {
	return c.Options(ctx, models.NodeTypeKSampler, models.InputScheduler)
}

// Ping checks the engine answers on /system_stats.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, c.address+"/system_stats", nil)

	return err
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	return respBody, nil
}

// errorMessage extracts a readable message from an engine error body, which
// is either {"error": "..."} or {"error": {"message": "..."}, "node_errors": {...}}.
func errorMessage(body []byte) string {
	var payload struct {
		Error      json.RawMessage            `json:"error"`
		NodeErrors map[string]json.RawMessage `json:"node_errors"`
	}

	err := json.Unmarshal(body, &payload)
	if err != nil || len(payload.Error) == 0 {
		return strings.TrimSpace(string(body))
	}

	var message string

	var text string
	if json.Unmarshal(payload.Error, &text) == nil {
		message = text
	} else {
		var detailed struct {
			Message string `json:"message"`
			Details string `json:"details"`
		}

		_ = json.Unmarshal(payload.Error, &detailed)

		message = detailed.Message
		if detailed.Details != "" {
			message += ": " + detailed.Details
		}
	}

	if len(payload.NodeErrors) > 0 {
		message += " (nodes " + nodeErrorIDs(payload.NodeErrors) + ")"
	}

	return message
}

func nodeErrorIDs(nodeErrors map[string]json.RawMessage) string {
	return strings.Join(slices.Sorted(maps.Keys(nodeErrors)), ", ")
}

func extractOptions(body []byte, nodeType, field string) []string {
	var info map[string]struct {
		Input struct {
			Required map[string][]json.RawMessage `json:"required"`
		} `json:"input"`
	}

	err := json.Unmarshal(body, &info)
	if err != nil {
		return []string{}
	}

	entry, ok := info[nodeType]
	if !ok {
		return []string{}
	}

	spec := entry.Input.Required[field]
	if len(spec) == 0 {
		return []string{}
	}

	var options []string

	err = json.Unmarshal(spec[0], &options)
	if err == nil {
		return options
	}

	// Newer engines describe combo inputs as ["COMBO", {"options": [...]}].
	var kind string
	if json.Unmarshal(spec[0], &kind) != nil || kind != "COMBO" || len(spec) < 2 {
		return []string{}
	}

	var combo struct {
		Options []string `json:"options"`
	}

	err = json.Unmarshal(spec[1], &combo)
	if err != nil || combo.Options == nil {
		return []string{}
	}

	return combo.Options
}

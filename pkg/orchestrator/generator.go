// Package orchestrator wires the engine client, event stream, session and
// history recorder into a single generation workflow.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukex/comfyphone/pkg/engine"
	"github.com/dukex/comfyphone/pkg/events"
	"github.com/dukex/comfyphone/pkg/graph"
	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/session"
	"github.com/dukex/comfyphone/pkg/stream"
	"go.opentelemetry.io/otel/trace"
)

// MaxBatchSize caps a single Generate call.
const MaxBatchSize = 16

// Engine is the part of the engine client the generator needs.
type Engine interface {
	engine.PromptQueuer
	ImageURL(image events.ImageOutput) string
	Address() string
}

// HistoryRecorder receives images, prompts and failures.
type HistoryRecorder interface {
	session.Recorder
	RecordPrompt(ctx context.Context, prompt string, count int)
	RecordFailure(ctx context.Context, prompt string, submitted int, cause error)
}

// GenerateRequest is one user request for a batch of images.
type GenerateRequest struct {
	Prompt         string `json:"prompt"                    validate:"required"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Model          string `json:"model,omitempty"`
	Sampler        string `json:"sampler,omitempty"`
	Scheduler      string `json:"scheduler,omitempty"`
	Count          int    `json:"count,omitempty"           validate:"omitempty,min=1,max=16"`
}

// Status is the generator's externally visible state.
type Status struct {
	ClientID        string           `json:"client_id"`
	EngineURL       string           `json:"engine_url"`
	Connected       bool             `json:"connected"`
	ConnectionError string           `json:"connection_error,omitempty"`
	Session         session.Snapshot `json:"session"`
}

type config struct {
	patcher        *graph.Patcher
	tracer         trace.Tracer
	template       models.Graph
	bindings       models.NodeBindings
	streamOptions  []stream.Option
	sessionOptions []session.Option
}

type Option func(*config)

func WithPatcher(patcher *graph.Patcher) Option {
	return func(c *config) {
		c.patcher = patcher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		c.tracer = tracer
	}
}

// WithTemplate replaces the built-in workflow.
func WithTemplate(template models.Graph) Option {
	return func(c *config) {
		if len(template) > 0 {
			c.template = template
		}
	}
}

func WithBindings(bindings models.NodeBindings) Option {
	return func(c *config) {
		c.bindings = bindings.WithDefaults()
	}
}

func WithStallTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.sessionOptions = append(c.sessionOptions, session.WithStallTimeout(timeout))
	}
}

func WithStreamOptions(opts ...stream.Option) Option {
	return func(c *config) {
		c.streamOptions = append(c.streamOptions, opts...)
	}
}

// Generator is the explicit context object of the application: it owns the
// event stream, the session and the active workflow template.
type Generator struct {
	clientID  string
	client    Engine
	submitter *engine.Submitter
	streams   *stream.Manager
	session   *session.Session
	recorder  HistoryRecorder
	logger    *slog.Logger

	generateMu sync.Mutex

	mu        sync.RWMutex
	template  models.Graph
	bindings  models.NodeBindings
	connected bool
	connErr   error
}

func New(clientID string, client Engine, recorder HistoryRecorder, logger *slog.Logger, opts ...Option) *Generator {
	cfg := &config{
		template: graph.DefaultTemplate(),
		bindings: models.DefaultBindings(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	g := &Generator{
		clientID: clientID,
		client:   client,
		recorder: recorder,
		logger:   logger.With("module", "generator", "client_id", clientID),
		template: cfg.template,
		bindings: cfg.bindings,
	}

	g.submitter = engine.NewSubmitter(client, cfg.patcher, cfg.tracer, logger)
	g.session = session.New(client, recorder, logger, cfg.sessionOptions...)
	g.streams = stream.NewManager(stream.Handlers{
		OnEvent: g.onEvent,
		OnError: g.onStreamError,
		OnOpen:  g.onStreamOpen,
	}, logger, cfg.streamOptions...)

	return g
}

// Connect ensures the event stream for the engine and client id is open.
func (g *Generator) Connect(ctx context.Context) error {
	_, err := g.streams.Ensure(ctx, g.client.Address(), g.clientID)
	if err != nil {
		return fmt.Errorf("failed to connect event stream: %w", err)
	}

	return nil
}

// Generate queues Count jobs for the request. Submissions accepted before a
// failure are returned with the error.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) ([]models.Submission, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	count := min(max(req.Count, 1), MaxBatchSize)

	g.generateMu.Lock()
	defer g.generateMu.Unlock()

	if g.session.Snapshot().Active {
		return nil, ErrBusy
	}

	err := g.Connect(ctx)
	if err != nil {
		g.logger.WarnContext(ctx, "Generating without event stream", "error", err)
	}

	g.mu.RLock()
	template := g.template
	bindings := g.bindings
	g.mu.RUnlock()

	params := models.GenerationParameters{
		Prompt:         prompt,
		NegativePrompt: req.NegativePrompt,
		Model:          req.Model,
		Sampler:        req.Sampler,
		Scheduler:      req.Scheduler,
		Bindings:       bindings,
	}

	g.recorder.RecordPrompt(ctx, prompt, count)
	g.session.Begin(session.Batch{Size: count, Prompt: prompt, Workflow: template})

	submissions, err := g.submitter.Submit(ctx, g.clientID, template, params, count)
	g.session.Attach(submissions)

	if err != nil {
		g.session.Fail(err)
		g.recorder.RecordFailure(ctx, prompt, len(submissions), err)

		return submissions, err
	}

	g.logger.InfoContext(ctx, "Batch queued", "count", count)

	return submissions, nil
}

// Wait blocks until the session is idle and returns its final snapshot.
func (g *Generator) Wait(ctx context.Context) (session.Snapshot, error) {
	updates, unsubscribe := g.session.Subscribe()
	defer unsubscribe()

	snapshot := g.session.Snapshot()

	for snapshot.Active {
		select {
		case <-ctx.Done():
			return snapshot, ctx.Err()
		case next, ok := <-updates:
			if !ok {
				return g.session.Snapshot(), nil
			}

			snapshot = next
		}
	}

	return snapshot, nil
}

// ImportTemplate replaces the workflow with an API-format export. On error
// the current template is kept.
func (g *Generator) ImportTemplate(data []byte) error {
	template, err := graph.ParseTemplate(data)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.template = template
	bindings := g.bindings
	g.mu.Unlock()

	for _, id := range []string{bindings.PromptNodeID, bindings.SeedNodeID} {
		if _, ok := template[id]; !ok {
			g.logger.Warn("Imported workflow lacks bound node", "node_id", id)
		}
	}

	g.logger.Info("Workflow imported", "nodes", len(template))

	return nil
}

// Template returns a copy of the active workflow.
func (g *Generator) Template() models.Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.template.Clone()
}

func (g *Generator) Bindings() models.NodeBindings {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.bindings
}

// SetBindings changes the nodes that receive runtime parameters. Empty
// fields fall back to the built-in workflow's nodes.
func (g *Generator) SetBindings(bindings models.NodeBindings) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.bindings = bindings.WithDefaults()
}

func (g *Generator) Session() *session.Session {
	return g.session
}

func (g *Generator) ClientID() string {
	return g.clientID
}

func (g *Generator) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()

	status := Status{
		ClientID:  g.clientID,
		EngineURL: g.client.Address(),
		Connected: g.connected,
		Session:   g.session.Snapshot(),
	}

	if g.connErr != nil {
		status.ConnectionError = g.connErr.Error()
	}

	return status
}

// Close closes the event stream and the session. Jobs already queued keep
// running on the engine.
func (g *Generator) Close() error {
	err := g.streams.Close()
	g.session.Close()

	return err
}

func (g *Generator) onEvent(event events.Event) {
	g.session.Handle(context.Background(), event)
}

func (g *Generator) onStreamOpen() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.connected = true
	g.connErr = nil
}

func (g *Generator) onStreamError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.connected = false
	g.connErr = err
}

// Package session tracks the batch currently running on the engine: progress
// of the executing node, the images it produced and whether work is pending.
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/comfyphone/pkg/events"
	"github.com/dukex/comfyphone/pkg/models"
	"github.com/google/uuid"
)

// ErrStalled is recorded when an active batch receives no event within the
// stall timeout.
var ErrStalled = errors.New("generation stalled")

// Recorder receives every finished image. Record must not block.
type Recorder interface {
	Record(ctx context.Context, image models.GalleryImage)
}

// URLBuilder turns an output descriptor into a browsable URL.
type URLBuilder interface {
	ImageURL(image events.ImageOutput) string
}

// Batch describes a submission that is about to be queued.
type Batch struct {
	Size     int
	Prompt   string
	Workflow models.Graph
}

// Snapshot is an immutable view of the session.
type Snapshot struct {
	Active         bool                  `json:"active"`
	Progress       float64               `json:"progress"`
	QueueSize      int                   `json:"queue_size"`
	QueueRemaining int                   `json:"queue_remaining"`
	CurrentNode    string                `json:"current_node,omitempty"`
	CurrentImage   string                `json:"current_image,omitempty"`
	Outputs        []models.GalleryImage `json:"outputs"`
	LastBatch      []models.GalleryImage `json:"last_batch,omitempty"`
	LastError      string                `json:"last_error,omitempty"`
	Err            error                 `json:"-"`
}

type Option func(*Session)

// WithStallTimeout returns an active session to idle when no event arrives
// for d. Zero disables the timeout.
func WithStallTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.stallTimeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Session) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// Session is the Idle/Active state machine driven by engine events. It is
// safe for concurrent use; events are applied in call order.
type Session struct {
	urls     URLBuilder
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	stallTimeout time.Duration

	mu          sync.Mutex
	state       Snapshot
	batch       Batch
	workflows   map[string]models.Graph
	stallTimer  *time.Timer
	stallGen    uint64
	subscribers map[chan Snapshot]struct{}
	closed      bool
}

func New(urls URLBuilder, recorder Recorder, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		urls:        urls,
		recorder:    recorder,
		logger:      logger.With("module", "session"),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
		workflows:   make(map[string]models.Graph),
		subscribers: make(map[chan Snapshot]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Begin activates the session optimistically when a batch is submitted,
// before the engine reports its queue.
func (s *Session) Begin(batch Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch = batch
	s.workflows = make(map[string]models.Graph)

	s.state.Active = true
	s.state.Progress = 0
	s.state.QueueSize = max(batch.Size, 1)
	s.state.CurrentNode = ""
	s.state.Outputs = nil
	s.state.LastError = ""
	s.state.Err = nil

	s.armStallTimer()
	s.notify()
}

// Attach associates the graphs actually sent with their engine prompt ids so
// history records carry the exact workflow of each job.
func (s *Session) Attach(submissions []models.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, submission := range submissions {
		if submission.PromptID != "" && submission.Graph != nil {
			s.workflows[submission.PromptID] = submission.Graph
		}
	}
}

// Fail ends the batch after a submission error.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopStallTimer()

	s.state.Active = false
	s.state.Progress = 0
	s.state.CurrentNode = ""
	s.state.LastBatch = s.state.Outputs
	s.state.Outputs = nil
	s.setError(err)

	s.notify()
}

// Handle applies one engine event.
func (s *Session) Handle(ctx context.Context, event events.Event) {
	var recorded []models.GalleryImage

	s.mu.Lock()

	if s.state.Active {
		s.armStallTimer()
	}

	switch e := event.(type) {
	case events.Status:
		s.handleStatus(ctx, e)
	case events.Progress:
		s.handleProgress(e)
	case events.Executing:
		s.handleExecuting(e)
	case events.Executed:
		recorded = s.handleExecuted(e)
	case events.ExecutionError:
		s.logger.WarnContext(ctx, "Engine reported an execution error",
			"prompt_id", e.PromptID,
			"node_id", e.NodeID,
			"node_type", e.NodeType,
			"error", e.Exception)
		s.setError(errors.New(e.NodeType + ": " + e.Exception))
	default:
		s.mu.Unlock()

		s.logger.DebugContext(ctx, "Ignoring engine event", "type", event.Kind())

		return
	}

	s.notify()
	s.mu.Unlock()

	if s.recorder == nil {
		return
	}

	for _, image := range recorded {
		s.recorder.Record(ctx, image)
	}
}

func (s *Session) handleStatus(ctx context.Context, e events.Status) {
	s.state.QueueRemaining = e.QueueRemaining

	switch {
	case e.QueueRemaining > 0 && !s.state.Active:
		s.state.Active = true
		s.state.Progress = 0
		s.state.QueueSize = max(s.state.QueueSize, e.QueueRemaining)
		s.armStallTimer()
		s.logger.DebugContext(ctx, "Session active", "queue_remaining", e.QueueRemaining)
	case e.QueueRemaining == 0 && s.state.Active:
		s.finish()
		s.logger.DebugContext(ctx, "Session idle")
	case e.QueueRemaining == 0:
		s.state.Progress = 0
	}
}

func (s *Session) handleProgress(e events.Progress) {
	if !s.state.Active {
		return
	}

	percent, ok := e.Percent()
	if !ok {
		return
	}

	s.state.Progress = min(max(percent, 0), 100)
}

func (s *Session) handleExecuting(e events.Executing) {
	if e.Node == nil {
		s.state.CurrentNode = ""
		s.state.Progress = 0

		return
	}

	s.state.CurrentNode = *e.Node
}

func (s *Session) handleExecuted(e events.Executed) []models.GalleryImage {
	if len(e.Images) == 0 {
		return nil
	}

	workflow, ok := s.workflows[e.PromptID]

	// While idle only late outputs of the last batch's own jobs are kept;
	// they join LastBatch instead of starting a new output list.
	if !s.state.Active {
		if !ok {
			s.logger.Debug("Ignoring output outside a batch", "prompt_id", e.PromptID)

			return nil
		}

		recorded := s.buildImages(e.Images, workflow)
		s.state.LastBatch = append(s.state.LastBatch, recorded...)
		s.state.CurrentImage = recorded[len(recorded)-1].URL

		return recorded
	}

	if !ok {
		workflow = s.batch.Workflow
	}

	recorded := s.buildImages(e.Images, workflow)

	// Outputs beyond the batch size are kept rather than dropped.
	s.state.Outputs = append(s.state.Outputs, recorded...)
	s.state.CurrentImage = recorded[len(recorded)-1].URL

	return recorded
}

func (s *Session) buildImages(outputs []events.ImageOutput, workflow models.Graph) []models.GalleryImage {
	images := make([]models.GalleryImage, 0, len(outputs))

	for _, output := range outputs {
		images = append(images, models.GalleryImage{
			ID:        s.newID(),
			URL:       s.urls.ImageURL(output),
			Prompt:    s.batch.Prompt,
			Timestamp: s.now().UnixMilli(),
			Workflow:  workflow,
		})
	}

	return images
}

// finish returns the session to idle and hands the outputs to LastBatch.
func (s *Session) finish() {
	s.stopStallTimer()

	s.state.Active = false
	s.state.Progress = 0
	s.state.CurrentNode = ""
	s.state.LastBatch = s.state.Outputs
	s.state.Outputs = nil
}

func (s *Session) setError(err error) {
	s.state.Err = err
	s.state.LastError = ""

	if err != nil {
		s.state.LastError = err.Error()
	}
}

func (s *Session) armStallTimer() {
	if s.stallTimeout <= 0 || s.closed {
		return
	}

	s.stopStallTimer()

	s.stallGen++
	gen := s.stallGen

	s.stallTimer = time.AfterFunc(s.stallTimeout, func() {
		s.onStall(gen)
	})
}

func (s *Session) stopStallTimer() {
	if s.stallTimer != nil {
		s.stallTimer.Stop()
		s.stallTimer = nil
	}
}

func (s *Session) onStall(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.stallGen || !s.state.Active {
		return
	}

	s.logger.Warn("No engine events within stall timeout, returning to idle", "timeout", s.stallTimeout)

	s.finish()
	s.setError(ErrStalled)
	s.notify()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	snap := s.state
	snap.Outputs = slices.Clone(s.state.Outputs)
	snap.LastBatch = slices.Clone(s.state.LastBatch)

	if snap.Outputs == nil {
		snap.Outputs = []models.GalleryImage{}
	}

	return snap
}

// Subscribe returns a channel receiving the latest snapshot after every
// change. Slow readers only see the most recent state. The returned function
// unsubscribes and closes the channel.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)

	if s.closed {
		close(ch)

		return ch, func() {}
	}

	s.subscribers[ch] = struct{}{}

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
		})
	}
}

func (s *Session) notify() {
	if len(s.subscribers) == 0 {
		return
	}

	snap := s.snapshot()

	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}

			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Close stops the stall timer and closes every subscription.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	s.stopStallTimer()

	for ch := range s.subscribers {
		close(ch)
	}

	s.subscribers = make(map[chan Snapshot]struct{})
}

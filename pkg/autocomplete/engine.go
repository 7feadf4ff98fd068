package autocomplete

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dukex/comfyphone/pkg/models"
)

const (
	DefaultDelay = 600 * time.Millisecond

	// minTermLength is the shortest term that is looked up.
	minTermLength = 3
)

// Eligible reports whether a segment is looked up: its term has at least
// three characters and it is not a finished tag.
func Eligible(segment Segment) bool {
	return !segment.Completed && utf8.RuneCountInString(segment.Term) >= minTermLength
}

// Source finds tags starting with term.
type Source interface {
	Search(ctx context.Context, term string) ([]models.TagSuggestion, error)
}

// State is what a text input shows next to the cursor.
type State struct {
	Segment     Segment                `json:"segment"`
	Suggestions []models.TagSuggestion `json:"suggestions"`
	Loading     bool                   `json:"loading"`
}

type Option func(*Engine)

// WithDelay sets the quiet period before a lookup fires.
func WithDelay(delay time.Duration) Option {
	return func(e *Engine) {
		if delay > 0 {
			e.delay = delay
		}
	}
}

// Engine debounces lookups for the segment under the cursor. Only the latest
// scheduled lookup may publish suggestions; older results are discarded.
type Engine struct {
	source Source
	delay  time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	gen       uint64
	timer     *time.Timer
	cancel    context.CancelFunc
	listeners []func(State)
	closed    bool

	emitMu sync.Mutex
}

func New(source Source, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		source: source,
		delay:  DefaultDelay,
		logger: logger.With("module", "autocomplete"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// OnChange registers a listener called whenever suggestions or the loading
// flag change.
func (e *Engine) OnChange(listener func(State)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.listeners = append(e.listeners, listener)
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.snapshot()
}

// Update recomputes the segment for text and cursor and reschedules the
// lookup. Pending and in-flight lookups are invalidated.
func (e *Engine) Update(text string, cursor int) {
	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()

		return
	}

	segment := ExtractSegment(text, cursor)
	e.state.Segment = segment

	e.gen++
	e.stopPending()

	if !Eligible(segment) {
		changed := e.setSuggestions(nil, false)
		e.mu.Unlock()

		if changed {
			e.emit()
		}

		return
	}

	gen := e.gen
	term := segment.Term

	e.timer = time.AfterFunc(e.delay, func() {
		e.lookup(gen, term)
	})

	e.mu.Unlock()
}

func (e *Engine) lookup(gen uint64, term string) {
	e.mu.Lock()

	if gen != e.gen || e.closed {
		e.mu.Unlock()

		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	changed := e.setSuggestions(e.state.Suggestions, true)

	e.mu.Unlock()

	if changed {
		e.emit()
	}

	results, err := e.source.Search(ctx, term)

	e.mu.Lock()

	if gen != e.gen || e.closed {
		e.mu.Unlock()
		cancel()

		e.logger.Debug("Discarding stale suggestions", "term", term)

		return
	}

	cancel()
	e.cancel = nil

	if err != nil {
		e.logger.Debug("Tag lookup failed", "term", term, "error", err)

		results = nil
	}

	changed = e.setSuggestions(results, false)

	e.mu.Unlock()

	if changed {
		e.emit()
	}
}

// Close cancels pending work. Later updates are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.gen++
	e.stopPending()
}

func (e *Engine) stopPending() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// setSuggestions stores the new values and reports whether anything visible
// changed. Empty and nil lists are the same state.
func (e *Engine) setSuggestions(suggestions []models.TagSuggestion, loading bool) bool {
	if len(suggestions) == 0 {
		suggestions = nil
	}

	changed := loading != e.state.Loading ||
		!slices.Equal(suggestions, e.state.Suggestions)

	e.state.Suggestions = suggestions
	e.state.Loading = loading

	return changed
}

func (e *Engine) snapshot() State {
	state := e.state
	state.Suggestions = slices.Clone(e.state.Suggestions)

	if state.Suggestions == nil {
		state.Suggestions = []models.TagSuggestion{}
	}

	return state
}

// emit delivers the latest state, serialized so listeners never observe an
// older state after a newer one.
func (e *Engine) emit() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	state := e.snapshot()
	listeners := slices.Clone(e.listeners)
	e.mu.Unlock()

	for _, listener := range listeners {
		listener(state)
	}
}

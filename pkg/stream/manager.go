package stream

import (
	"context"
	"log/slog"
	"sync"
)

// Manager keeps at most one event stream open, keyed by (address, client id).
type Manager struct {
	handlers Handlers
	opts     []Option
	logger   *slog.Logger

	mu   sync.Mutex
	conn *Conn
}

func NewManager(handlers Handlers, logger *slog.Logger, opts ...Option) *Manager {
	return &Manager{
		handlers: handlers,
		opts:     append([]Option{WithLogger(logger)}, opts...),
		logger:   logger.With("module", "stream_manager"),
	}
}

// Ensure returns the live stream for the pair, dialing when there is none or
// the previous one ended. A stream for a different pair is closed before the
// new one is opened, so events are never delivered twice.
func (m *Manager) Ensure(ctx context.Context, address, clientID string) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		if m.conn.address == address && m.conn.clientID == clientID && !isDone(m.conn) {
			return m.conn, nil
		}

		m.logger.InfoContext(ctx, "Replacing event stream",
			"previous_address", m.conn.address,
			"address", address)

		_ = m.conn.Close()
		m.conn = nil
	}

	conn, err := Dial(ctx, address, clientID, m.handlers, m.opts...)
	if err != nil {
		return nil, err
	}

	m.conn = conn

	return conn, nil
}

// Current returns the open stream, or nil.
func (m *Manager) Current() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.conn
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}

	err := m.conn.Close()
	m.conn = nil

	return err
}

func isDone(conn *Conn) bool {
	select {
	case <-conn.done:
		return true
	default:
		return false
	}
}

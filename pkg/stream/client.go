// Package stream owns the long-lived websocket to the engine and turns its
// frames into typed events.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/comfyphone/pkg/events"
	"github.com/gorilla/websocket"
)

const (
	DefaultHandshakeTimeout = 15 * time.Second
	closeWriteTimeout       = time.Second
)

// Handlers receive stream notifications. OnEvent is called synchronously
// from the read loop, in arrival order.
type Handlers struct {
	OnEvent func(events.Event)
	OnError func(error)
	OnOpen  func()
}

type config struct {
	dialer *websocket.Dialer
	logger *slog.Logger
}

type Option func(*config)

func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *config) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// URL maps an engine address to its event stream endpoint.
func URL(address, clientID string) (string, error) {
	parsed, err := url.Parse(address)
	if err != nil {
		return "", err
	}

	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("missing host in %q", address)
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws"
	parsed.RawPath = ""
	parsed.RawQuery = url.Values{"clientId": {clientID}}.Encode()

	return parsed.String(), nil
}

// Conn is one open event stream.
type Conn struct {
	ws       *websocket.Conn
	address  string
	clientID string
	handlers Handlers
	logger   *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens the event stream for clientID and starts delivering events.
// A dial failure is reported to OnError and returned.
func Dial(ctx context.Context, address, clientID string, handlers Handlers, opts ...Option) (*Conn, error) {
	cfg := &config{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger.With("module", "stream", "address", address, "client_id", clientID)

	target, err := URL(address, clientID)
	if err != nil {
		connErr := &ConnectionError{Address: address, Err: err}
		notifyError(handlers, connErr)

		return nil, connErr
	}

	ws, resp, err := cfg.dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		connErr := &ConnectionError{Address: address, Err: err}
		logger.WarnContext(ctx, "Failed to open event stream", "error", err)
		notifyError(handlers, connErr)

		return nil, connErr
	}

	conn := &Conn{
		ws:       ws,
		address:  address,
		clientID: clientID,
		handlers: handlers,
		logger:   logger,
		done:     make(chan struct{}),
	}

	logger.InfoContext(ctx, "Event stream opened")

	if handlers.OnOpen != nil {
		handlers.OnOpen()
	}

	go conn.readLoop()

	return conn, nil
}

// Address returns the engine address the stream was opened for.
func (c *Conn) Address() string {
	return c.address
}

// ClientID returns the client id the stream was opened for.
func (c *Conn) ClientID() string {
	return c.clientID
}

// Done is closed when the read loop has stopped.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close stops event delivery and closes the socket. It does not cancel work
// already queued in the engine. Calling Close more than once is safe.
func (c *Conn) Close() error {
	var err error

	c.closeOnce.Do(func() {
		c.closed.Store(true)

		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout),
		)

		err = c.ws.Close()

		c.logger.Info("Event stream closed")
	})

	return err
}

func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			c.logger.Warn("Event stream dropped", "error", err)
			notifyError(c.handlers, &ConnectionError{Address: c.address, Err: err})

			return
		}

		// Binary frames carry preview images.
		if messageType != websocket.TextMessage {
			continue
		}

		event, err := events.Decode(data)
		if err != nil {
			c.logger.Debug("Dropping malformed frame", "error", err)

			continue
		}

		if c.closed.Load() {
			return
		}

		if c.handlers.OnEvent != nil {
			c.handlers.OnEvent(event)
		}
	}
}

func notifyError(handlers Handlers, err error) {
	if handlers.OnError != nil {
		handlers.OnError(err)
	}
}

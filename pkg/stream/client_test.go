package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukex/comfyphone/pkg/events"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine accepts websocket connections on /ws and writes the frames it is
// given to every connection.
type fakeEngine struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	clientIDs []string
	conns     []*websocket.Conn
	connected chan *websocket.Conn
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()

	engine := &fakeEngine{connected: make(chan *websocket.Conn, 8)}
	engine.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)

			return
		}

		conn, err := engine.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		engine.mu.Lock()
		engine.clientIDs = append(engine.clientIDs, r.URL.Query().Get("clientId"))
		engine.conns = append(engine.conns, conn)
		engine.mu.Unlock()

		engine.connected <- conn

		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}))

	t.Cleanup(func() {
		engine.mu.Lock()
		for _, conn := range engine.conns {
			_ = conn.Close()
		}
		engine.mu.Unlock()
		engine.server.Close()
	})

	return engine
}

func (e *fakeEngine) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()

	select {
	case conn := <-e.connected:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection")

		return nil
	}
}

type collector struct {
	events chan events.Event
	errors chan error
	opens  chan struct{}
}

func newCollector() *collector {
	return &collector{
		events: make(chan events.Event, 16),
		errors: make(chan error, 4),
		opens:  make(chan struct{}, 4),
	}
}

func (c *collector) handlers() Handlers {
	return Handlers{
		OnEvent: func(event events.Event) { c.events <- event },
		OnError: func(err error) { c.errors <- err },
		OnOpen:  func() { c.opens <- struct{}{} },
	}
}

func (c *collector) next(t *testing.T) events.Event {
	t.Helper()

	select {
	case event := <-c.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")

		return nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		address string
		want    string
		wantErr bool
	}{
		{address: "http://127.0.0.1:8188", want: "ws://127.0.0.1:8188/ws?clientId=abc"},
		{address: "https://comfy.example.com", want: "wss://comfy.example.com/ws?clientId=abc"},
		{address: "http://host:8188/comfy", want: "ws://host:8188/comfy/ws?clientId=abc"},
		{address: "https://host/comfy/", want: "wss://host/comfy/ws?clientId=abc"},
		{address: "ftp://comfy", wantErr: true},
		{address: "http://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			t.Parallel()

			got, err := URL(tt.address, "abc")
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDial_DeliversEventsInOrder(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(t)
	collected := newCollector()

	conn, err := Dial(context.Background(), engine.server.URL, "client-1", collected.handlers(), WithLogger(discardLogger()))
	require.NoError(t, err)

	defer func() { _ = conn.Close() }()

	server := engine.waitConn(t)

	frames := []string{
		`{"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 1}}}}`,
		`not json at all`,
		`{"type": "progress", "data": {"value": 1, "max": 10}}`,
		`{"type": "executing", "data": {"node": null}}`,
	}
	for _, frame := range frames {
		require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(frame)))
	}

	require.NoError(t, server.WriteMessage(websocket.BinaryMessage, []byte{0, 0, 0, 1}))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 0}}}}`)))

	assert.Equal(t, events.Status{QueueRemaining: 1}, collected.next(t))
	assert.Equal(t, events.Progress{Value: 1, Max: 10}, collected.next(t))
	assert.Equal(t, events.Executing{}, collected.next(t))
	assert.Equal(t, events.Status{QueueRemaining: 0}, collected.next(t))

	assert.Len(t, collected.opens, 1)
	assert.Empty(t, collected.errors)

	engine.mu.Lock()
	assert.Equal(t, []string{"client-1"}, engine.clientIDs)
	engine.mu.Unlock()
}

func TestDial_FailureReportsConnectionError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	collected := newCollector()

	conn, err := Dial(context.Background(), server.URL, "client-1", collected.handlers(), WithLogger(discardLogger()))
	require.Error(t, err)
	assert.Nil(t, conn)
	assert.True(t, IsConnectionError(err))

	select {
	case reported := <-collected.errors:
		assert.True(t, errors.Is(reported, ErrConnection))
	default:
		t.Fatal("OnError was not called")
	}

	assert.Empty(t, collected.opens)
}

func TestConn_DropReportsErrorOnce(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(t)
	collected := newCollector()

	conn, err := Dial(context.Background(), engine.server.URL, "client-1", collected.handlers(), WithLogger(discardLogger()))
	require.NoError(t, err)

	server := engine.waitConn(t)
	require.NoError(t, server.Close())

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop")
	}

	require.Len(t, collected.errors, 1)
	assert.True(t, IsConnectionError(<-collected.errors))
}

func TestConn_CloseIsIdempotentAndSilent(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(t)
	collected := newCollector()

	conn, err := Dial(context.Background(), engine.server.URL, "client-1", collected.handlers(), WithLogger(discardLogger()))
	require.NoError(t, err)

	engine.waitConn(t)

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop")
	}

	assert.Empty(t, collected.errors)
	assert.True(t, strings.HasPrefix(conn.Address(), "http://"))
	assert.Equal(t, "client-1", conn.ClientID())
}

package stream

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/comfyphone/pkg/events"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_EnsureReusesConnection(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(t)
	collected := newCollector()
	manager := NewManager(collected.handlers(), discardLogger())

	defer func() { _ = manager.Close() }()

	first, err := manager.Ensure(context.Background(), engine.server.URL, "client-1")
	require.NoError(t, err)

	engine.waitConn(t)

	second, err := manager.Ensure(context.Background(), engine.server.URL, "client-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first, manager.Current())

	engine.mu.Lock()
	assert.Len(t, engine.clientIDs, 1)
	engine.mu.Unlock()
}

func TestManager_EnsureReplacesOnClientChange(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(t)
	collected := newCollector()
	manager := NewManager(collected.handlers(), discardLogger())

	defer func() { _ = manager.Close() }()

	first, err := manager.Ensure(context.Background(), engine.server.URL, "client-1")
	require.NoError(t, err)

	oldServer := engine.waitConn(t)

	second, err := manager.Ensure(context.Background(), engine.server.URL, "client-2")
	require.NoError(t, err)

	newServer := engine.waitConn(t)

	assert.NotSame(t, first, second)

	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("previous connection was not closed")
	}

	// Only the new connection delivers.
	_ = oldServer.WriteMessage(websocket.TextMessage, []byte(`{"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 9}}}}`))
	require.NoError(t, newServer.WriteMessage(websocket.TextMessage, []byte(`{"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 1}}}}`)))

	assert.Equal(t, events.Status{QueueRemaining: 1}, collected.next(t))
	assert.Empty(t, collected.errors)

	engine.mu.Lock()
	assert.Equal(t, []string{"client-1", "client-2"}, engine.clientIDs)
	engine.mu.Unlock()
}

func TestManager_EnsureRedialsAfterDrop(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(t)
	collected := newCollector()
	manager := NewManager(collected.handlers(), discardLogger())

	defer func() { _ = manager.Close() }()

	first, err := manager.Ensure(context.Background(), engine.server.URL, "client-1")
	require.NoError(t, err)

	require.NoError(t, engine.waitConn(t).Close())

	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop")
	}

	second, err := manager.Ensure(context.Background(), engine.server.URL, "client-1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestManager_CloseWithoutConnection(t *testing.T) {
	t.Parallel()

	manager := NewManager(Handlers{}, discardLogger())
	assert.NoError(t, manager.Close())
	assert.Nil(t, manager.Current())
}

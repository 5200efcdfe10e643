package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/nlukit/internal/config"
	"github.com/chatforge/nlukit/internal/events"
	"github.com/chatforge/nlukit/pkg/types"
)

// mockClient stands in for a WebSocket connection.
type mockClient struct {
	send chan []byte
}

func (m *mockClient) sendChannel() chan []byte { return m.send }
func (m *mockClient) close()                   {}

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func receiveEvent(t *testing.T, ch chan []byte) Event {
	t.Helper()
	select {
	case data := <-ch:
		var event Event
		require.NoError(t, json.Unmarshal(data, &event))
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed event")
		return Event{}
	}
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	hub := newRunningHub(t)

	first := &mockClient{send: make(chan []byte, 4)}
	second := &mockClient{send: make(chan []byte, 4)}
	hub.register <- first
	hub.register <- second

	hub.Broadcast("entity.created", map[string]string{"name": "intent"})

	for _, c := range []*mockClient{first, second} {
		event := receiveEvent(t, c.send)
		assert.Equal(t, "entity.created", event.Topic)
	}
}

func TestHubDropsSlowConsumers(t *testing.T) {
	hub := newRunningHub(t)

	slow := &mockClient{send: make(chan []byte)} // unbuffered, never read
	healthy := &mockClient{send: make(chan []byte, 8)}
	hub.register <- slow
	hub.register <- healthy

	hub.Broadcast("value.created", nil)
	receiveEvent(t, healthy.send)

	hub.Broadcast("value.updated", nil)
	event := receiveEvent(t, healthy.send)
	assert.Equal(t, "value.updated", event.Topic)

	hub.mu.Lock()
	_, stillThere := hub.clients[slow]
	hub.mu.Unlock()
	assert.False(t, stillThere, "slow consumer must be evicted")
}

func TestSubscribeRelaysMutationEvents(t *testing.T) {
	logger := zerolog.Nop()
	srv := New(config.ServerConfig{}, logger)
	go srv.hub.Run()
	t.Cleanup(srv.hub.Stop)

	sink := &mockClient{send: make(chan []byte, 8)}
	srv.hub.register <- sink

	bus := events.NewBus(logger)
	srv.Subscribe(bus)

	ctx := context.Background()
	bus.EmitEntityCreated(ctx, &types.Entity{Name: "intent"})
	assert.Equal(t, "entity.created", receiveEvent(t, sink.send).Topic)

	require.NoError(t, bus.EmitValueDeleting(ctx, &types.Value{Value: "greeting"}))
	assert.Equal(t, "value.deleted", receiveEvent(t, sink.send).Topic)
}

func TestServerServesHealthAndMetrics(t *testing.T) {
	cfg := config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 2 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := New(cfg, zerolog.Nop())
	addr, err := srv.Start(ctx)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

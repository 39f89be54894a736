package sse

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, context.CancelFunc) {
	t.Helper()
	m := NewManager(slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(cancel)
	return m, cancel
}

func TestEmit_DeliversToConnectedClient(t *testing.T) {
	m, _ := newTestManager(t)

	client, err := m.Connect()
	require.NoError(t, err)
	defer m.Disconnect(client.ID)

	m.Emit(NewGenerationProgressEvent("seg_1", 40))

	select {
	case event := <-client.EventChan:
		assert.Equal(t, EventGenerationProgress, event.Type)
		data, ok := event.Data.(GenerationProgressEventData)
		require.True(t, ok)
		assert.Equal(t, "seg_1", data.SegmentID)
		assert.Equal(t, 40, data.Progress)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEmit_AllClientsReceiveBroadcast(t *testing.T) {
	m, _ := newTestManager(t)

	a, err := m.Connect()
	require.NoError(t, err)
	b, err := m.Connect()
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())

	m.Emit(NewCatalogUpdatedEvent())

	for _, client := range []*Client{a, b} {
		select {
		case event := <-client.EventChan:
			assert.Equal(t, EventCatalogUpdated, event.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered to all clients")
		}
	}
}

func TestDisconnect_RemovesClient(t *testing.T) {
	m, _ := newTestManager(t)

	client, err := m.Connect()
	require.NoError(t, err)
	require.Equal(t, 1, m.ClientCount())

	m.Disconnect(client.ID)
	assert.Equal(t, 0, m.ClientCount())

	// Disconnecting twice is harmless.
	m.Disconnect(client.ID)
}

func TestEmit_AfterShutdownIsDropped(t *testing.T) {
	m := NewManager(slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	// Must not panic on the closed channel.
	m.Emit(NewCatalogUpdatedEvent())
}

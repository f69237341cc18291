package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeVersions struct {
	version atomic.Int64
	fail    atomic.Bool
}

func (f *fakeVersions) LeaderboardVersion(context.Context) (int64, error) {
	if f.fail.Load() {
		return 0, errors.New("redis down")
	}
	return f.version.Load(), nil
}

func receive(t *testing.T, ch <-chan []byte) VersionUpdate {
	t.Helper()
	select {
	case raw, ok := <-ch:
		require.True(t, ok, "channel closed")
		var update VersionUpdate
		require.NoError(t, json.Unmarshal(raw, &update))
		return update
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return VersionUpdate{}
	}
}

func TestHub_BroadcastsVersionChanges(t *testing.T) {
	versions := &fakeVersions{}
	versions.version.Store(3)

	hub := NewHub(versions, zap.NewNop(), nil)
	hub.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := &Client{hub: hub, send: make(chan []byte, 8)}
	hub.register <- client

	initial := receive(t, client.send)
	assert.Equal(t, VersionUpdate{Type: "VERSION_UPDATE", Version: 3}, initial)
	assert.Equal(t, 1, hub.GetClientCount())

	versions.version.Store(4)
	assert.Equal(t, int64(4), receive(t, client.send).Version)

	hub.unregister <- client
	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, time.Second, time.Millisecond)
	_, open := <-client.send
	assert.False(t, open, "send channel closed on unregister")

	cancel()
	<-done
}

func TestHub_VersionErrorsAreSkipped(t *testing.T) {
	versions := &fakeVersions{}
	versions.fail.Store(true)

	hub := NewHub(versions, zap.NewNop(), nil)
	client := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.clients[client] = true

	hub.checkAndBroadcastVersion(context.Background())
	assert.Empty(t, client.send)

	versions.fail.Store(false)
	versions.version.Store(1)
	hub.checkAndBroadcastVersion(context.Background())
	assert.Len(t, client.send, 1)

	hub.checkAndBroadcastVersion(context.Background())
	assert.Len(t, client.send, 1, "unchanged version is not rebroadcast")
}

func TestHub_CancelClosesClients(t *testing.T) {
	hub := NewHub(&fakeVersions{}, zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := &Client{hub: hub, send: make(chan []byte, 8)}
	hub.register <- client
	receive(t, client.send)

	cancel()
	<-done
	assert.Zero(t, hub.GetClientCount())
	_, open := <-client.send
	assert.False(t, open)
}

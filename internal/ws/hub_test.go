package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func startHub(t *testing.T, snapshot func() Message) (*Hub, string) {
	t.Helper()

	hub := NewHub(zap.NewNop(), snapshot)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHub_SnapshotOnConnect(t *testing.T) {
	snapshot := func() Message {
		return Message{Event: "trending_update", Data: map[string]any{"trending": []any{}}}
	}
	_, url := startHub(t, snapshot)

	conn := dial(t, url)

	env := readEnvelope(t, conn)
	assert.Equal(t, "trending_update", env.Event)
}

func TestHub_SnapshotReflectsCurrentState(t *testing.T) {
	// A late joiner sees counts accumulated before it connected, without
	// waiting for a new click.
	type entry struct {
		ShortCode   string `json:"shortCode"`
		TotalClicks int64  `json:"totalClicks"`
		Rank        int    `json:"rank"`
	}

	snapshot := func() Message {
		return Message{Event: "trending_update", Data: map[string]any{
			"trending": []entry{
				{ShortCode: "x", TotalClicks: 3, Rank: 1},
				{ShortCode: "y", TotalClicks: 1, Rank: 2},
			},
		}}
	}
	_, url := startHub(t, snapshot)

	conn := dial(t, url)

	env := readEnvelope(t, conn)
	require.Equal(t, "trending_update", env.Event)

	var data struct {
		Trending []entry `json:"trending"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Trending, 2)
	assert.Equal(t, "x", data.Trending[0].ShortCode)
	assert.Equal(t, 1, data.Trending[0].Rank)
	assert.Equal(t, "y", data.Trending[1].ShortCode)
}

func TestHub_BroadcastOrderPreserved(t *testing.T) {
	hub, url := startHub(t, func() Message {
		return Message{Event: "trending_update", Data: map[string]any{"trending": []any{}}}
	})

	conn := dial(t, url)
	// The snapshot confirms registration has been processed.
	readEnvelope(t, conn)

	hub.Broadcast("click_event", map[string]string{"shortCode": "abc"})
	hub.Broadcast("trending_update", map[string]any{"trending": []any{}})

	first := readEnvelope(t, conn)
	second := readEnvelope(t, conn)

	assert.Equal(t, "click_event", first.Event)
	assert.Equal(t, "trending_update", second.Event)
}

func TestHub_BroadcastReachesAllSubscribers(t *testing.T) {
	hub, url := startHub(t, func() Message {
		return Message{Event: "trending_update", Data: map[string]any{"trending": []any{}}}
	})

	a := dial(t, url)
	b := dial(t, url)
	readEnvelope(t, a)
	readEnvelope(t, b)

	hub.Broadcast("click_event", map[string]string{"shortCode": "abc"})

	assert.Equal(t, "click_event", readEnvelope(t, a).Event)
	assert.Equal(t, "click_event", readEnvelope(t, b).Event)
}

func TestHub_BroadcastAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	cancel()
	<-hub.done

	// Well past the broadcast buffer size; every send must fall through.
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Broadcast("click_event", map[string]string{"shortCode": "abc"})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked after the hub stopped")
	}
}

func TestHub_ConnectionsTracksSubscribers(t *testing.T) {
	hub, url := startHub(t, nil)

	require.Equal(t, int64(0), hub.Connections())

	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Serve(ctx)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() {
		resp.Body.Close()
		conn.Close()
	})
	return conn
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	hub, url := startHub(t)
	a := dial(t, url, nil)
	b := dial(t, url, nil)

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Broadcast(map[string]any{"type": "occupancy_update", "people_count": 17}))

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"occupancy_update","people_count":17}`, string(msg))
	}
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url, nil)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	_, url := startHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub()
	assert.NoError(t, hub.Broadcast("ping"))
	assert.Error(t, hub.Broadcast(make(chan int)))
	assert.Equal(t, "live-hub", hub.String())
}

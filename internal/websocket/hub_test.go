package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zap.NewNop())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, r.URL.Query().Get("email"))
		if !hub.Attach(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, email string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?email=" + email
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_PublishReachesOnlyMatchingAccount(t *testing.T) {
	hub, srv := startHub(t)

	owner := dial(t, srv, "Owner@Example.com")
	other := dial(t, srv, "other@example.com")
	require.Eventually(t, func() bool {
		return hub.Connections("owner@example.com") == 1 && hub.Connections("other@example.com") == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish("OWNER@example.com", "subscription.updated", map[string]string{"status": "active"})

	_ = owner.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := owner.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	require.Equal(t, "subscription.updated", event.Type)
	require.Equal(t, map[string]any{"status": "active"}, event.Payload)

	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = other.ReadMessage()
	require.Error(t, err)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv, "owner@example.com")
	require.Eventually(t, func() bool { return hub.Connections("owner@example.com") == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections("owner@example.com") == 0 }, time.Second, 10*time.Millisecond)

	hub.Publish("owner@example.com", "subscription.updated", nil)
}

func TestHub_AttachAfterStopReturns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zap.NewNop())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	attached := make(chan bool, 1)
	go func() { attached <- hub.Attach(NewClient(hub, nil, "owner@example.com")) }()

	select {
	case ok := <-attached:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Attach blocked on a stopped hub")
	}
	require.Zero(t, hub.Connections("owner@example.com"))
}

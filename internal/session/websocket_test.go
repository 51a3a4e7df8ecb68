// internal/session/websocket_test.go
package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/protocol"
)

func TestWebSocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8000":          "ws://localhost:8000/ws",
		"https://runner.example.com/":    "wss://runner.example.com/ws",
		"https://runner.example.com/api": "wss://runner.example.com/api/ws",
		"ws://127.0.0.1:9000":            "ws://127.0.0.1:9000/ws",
	}
	for in, want := range cases {
		got, err := WebSocketURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"ftp://host", "localhost:8000", "http://"} {
		_, err := WebSocketURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestWebSocketChannelRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, document, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(protocol.StartLine))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("len="+strconv.Itoa(len(document))))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(protocol.CompletionMarker))

		// 等待客户端关闭
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	dialer, err := NewWebSocketDialer(server.URL)
	require.NoError(t, err)

	client := NewClient(dialer)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.Run(ctx, "::c\nint x;")
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, result.Outcome)
	assert.Equal(t, []string{protocol.StartLine, "len=10", protocol.CompletionMarker}, result.Lines)
	assert.Equal(t, []string{"len=10"}, client.Snapshot().Visible(false))

	require.NoError(t, client.Close())
	assert.Equal(t, StateIdle, client.State())
}

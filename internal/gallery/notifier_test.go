package gallery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/snappic/server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNotifier(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:5000", "ws://localhost:5000/ws"},
		{"https://gallery.example.com/", "wss://gallery.example.com/ws"},
		{"ws://10.0.0.2:5000", "ws://10.0.0.2:5000/ws"},
	}
	for _, c := range cases {
		t.Run(c.base, func(t *testing.T) {
			n, err := NewNotifier(c.base, func() {})
			require.NoError(t, err)
			assert.Equal(t, c.want, n.URL())
		})
	}

	t.Run("rejects other schemes", func(t *testing.T) {
		_, err := NewNotifier("ftp://example.com", func() {})
		assert.Error(t, err)
	})
}

func TestNotifier_Run(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, NotifyPath, r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(models.WSMessage{Type: models.WSTypePing})
		conn.WriteJSON(models.WSMessage{
			Type:    models.WSTypeGalleryChanged,
			Payload: models.GalleryChangedPayload{Reason: models.ChangeUploaded, PhotoID: "1"},
		})
		conn.WriteJSON(models.WSMessage{Type: models.WSTypeGalleryChanged})

		// hold the connection until the client goes away
		conn.ReadMessage()
	}))
	defer srv.Close()

	var changes atomic.Int32
	n, err := NewNotifier(srv.URL, func() { changes.Add(1) })
	require.NoError(t, err)
	n.retryDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.Eventually(t, func() bool { return changes.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("notifier did not stop")
	}
}

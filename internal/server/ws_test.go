package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caro-arena/internal/model"
	"caro-arena/internal/realtime"
)

// TestPumpClosesDroppedSubscriber covers the overflow path: when the hub
// drops a subscriber that fell behind, the pump must drain what is left in
// the buffer, close the connection with a going-away status and exit. The
// closed channel must never be treated as an endless stream of empty
// messages.
func TestPumpClosesDroppedSubscriber(t *testing.T) {
	s := &Server{logger: zerolog.Nop(), writeTimeout: time.Second}
	hub := realtime.NewHub(zerolog.Nop())

	startPump := make(chan struct{})
	pumpDone := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		sub := hub.Subscribe("lobby-1")
		defer sub.Close()

		ctx := conn.CloseRead(r.Context())
		<-startPump
		s.pump(ctx, conn, sub)
		close(pumpDone)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the handler to subscribe, then overflow the buffer before
	// the pump starts draining: the hub drops the subscriber and closes
	// its channel, leaving a full buffer behind.
	require.Eventually(t, func() bool {
		return hub.SubscriberCount("lobby-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	const published = 32
	view := &model.GameView{ID: "g1", RoomName: "lobby-1", Player1: "alice", Status: model.StatusPlaying}
	for i := 0; i < published; i++ {
		hub.Publish(realtime.GameState(view))
	}
	require.Equal(t, 0, hub.SubscriberCount("lobby-1"), "overflowed subscriber should be dropped")
	close(startPump)

	// The buffered messages still arrive, every one non-empty.
	received := 0
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
			break
		}
		require.NotEmpty(t, data)
		received++
		require.Less(t, received, published, "pump delivered more messages than were ever buffered")
	}

	select {
	case <-pumpDone:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not exit after the hub dropped the subscriber")
	}
}

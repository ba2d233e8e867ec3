package server

import (
	"context"
	"net/http"

	"github.com/coder/websocket"

	"caro-arena/internal/realtime"
)

// handleRoomSocket streams game_state events for one room. On connect the
// client receives the current game snapshot, if the room has one, then
// every subsequent transition as it commits.
func (s *Server) handleRoomSocket(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Str("room", room).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	// Subscribe before the snapshot so no transition lands in the gap.
	sub := s.hub.Subscribe(room)
	defer sub.Close()

	ctx := conn.CloseRead(r.Context())

	if game, err := s.caro.GetGame(ctx, room); err == nil {
		if err := s.writeSocket(ctx, conn, realtime.GameState(game)); err != nil {
			return
		}
	}

	s.pump(ctx, conn, sub)
	conn.Close(websocket.StatusNormalClosure, "")
}

// handleRoomListSocket streams rooms_update events, starting with the
// current active room list.
func (s *Server) handleRoomListSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	sub := s.hub.Subscribe(realtime.RoomListChannel)
	defer sub.Close()

	ctx := conn.CloseRead(r.Context())

	rooms, err := s.caro.ActiveRooms(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load room list for socket")
		return
	}
	if err := s.writeSocket(ctx, conn, realtime.RoomsUpdate(rooms)); err != nil {
		return
	}

	s.pump(ctx, conn, sub)
	conn.Close(websocket.StatusNormalClosure, "")
}

// pump forwards hub messages to the connection until either side goes
// away. The hub closes Msgs when it drops a subscriber that fell behind,
// so a closed channel means this client lost its stream and must
// reconnect for a fresh snapshot.
func (s *Server) pump(ctx context.Context, conn *websocket.Conn, sub *realtime.Subscriber) {
	for {
		select {
		case msg, ok := <-sub.Msgs:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "event stream overflow")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writeSocket(ctx context.Context, conn *websocket.Conn, event *realtime.Event) error {
	data, err := event.Encode()
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}

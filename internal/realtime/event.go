// Package realtime fans out game state changes to subscribed clients.
// Delivery is best-effort and never blocks the game core: the core emits
// one event per successful state transition and treats its own success
// independently of whether anyone is listening.
package realtime

import (
	"encoding/json"
	"fmt"

	"caro-arena/internal/model"
)

// Event types pushed to clients.
const (
	EventGameState   = "game_state"   // full snapshot of one game
	EventRoomsUpdate = "rooms_update" // the active room list changed
)

// RoomListChannel is the subscription key for room-list events.
const RoomListChannel = "rooms"

// Event is the payload published on every successful state transition.
type Event struct {
	Type     string               `json:"type"`
	RoomName string               `json:"room_name,omitempty"`
	Game     *model.GameView      `json:"game,omitempty"`
	Rooms    []*model.RoomSummary `json:"rooms,omitempty"`
}

// GameState builds a snapshot event for one game.
func GameState(view *model.GameView) *Event {
	return &Event{
		Type:     EventGameState,
		RoomName: view.RoomName,
		Game:     view,
	}
}

// RoomsUpdate builds a room-list event.
func RoomsUpdate(rooms []*model.RoomSummary) *Event {
	return &Event{
		Type:  EventRoomsUpdate,
		Rooms: rooms,
	}
}

// channel returns the subscription key the event is delivered on.
func (e *Event) channel() string {
	if e.Type == EventRoomsUpdate {
		return RoomListChannel
	}
	return e.RoomName
}

// Encode marshals the event for delivery.
func (e *Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}

package realtime

import (
	"sync"

	"github.com/rs/zerolog"
)

// subscriberBuffer is the per-subscriber message queue depth. A subscriber
// that falls this far behind is dropped rather than blocking publishers.
const subscriberBuffer = 16

// Subscriber receives encoded events for one channel. The transport layer
// drains Msgs and writes frames to the client connection.
type Subscriber struct {
	Msgs    chan []byte
	channel string
	hub     *Hub
}

// Close detaches the subscriber from its hub.
func (s *Subscriber) Close() {
	s.hub.unsubscribe(s)
}

// Hub is an in-process fan-out registry keyed by room name (plus the
// room-list channel). Publishing never blocks: slow subscribers lose
// their connection, not the publisher.
type Hub struct {
	logger zerolog.Logger

	mu   sync.RWMutex
	subs map[string]map[*Subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "realtime_hub").Logger(),
		subs:   make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber for a channel. Game channels are
// keyed by room name; RoomListChannel carries room-list updates.
func (h *Hub) Subscribe(channel string) *Subscriber {
	sub := &Subscriber{
		Msgs:    make(chan []byte, subscriberBuffer),
		channel: channel,
		hub:     h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*Subscriber]struct{})
	}
	h.subs[channel][sub] = struct{}{}

	return sub
}

func (h *Hub) unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[sub.channel]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			close(sub.Msgs)
		}
		if len(set) == 0 {
			delete(h.subs, sub.channel)
		}
	}
}

// Publish delivers an event to every subscriber of its channel.
func (h *Hub) Publish(event *Event) {
	data, err := event.Encode()
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("dropping unencodable event")
		return
	}

	channel := event.channel()

	h.mu.RLock()
	var overflowed []*Subscriber
	for sub := range h.subs[channel] {
		select {
		case sub.Msgs <- data:
		default:
			overflowed = append(overflowed, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range overflowed {
		h.logger.Warn().Str("channel", channel).Msg("dropping slow subscriber")
		h.unsubscribe(sub)
	}
}

// SubscriberCount returns the number of subscribers on a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

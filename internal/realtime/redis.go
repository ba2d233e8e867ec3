package realtime

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// channelPrefix namespaces event channels so external collaborators (chat,
// presence) can subscribe without colliding with their own keys.
const channelPrefix = "caro:events:"

// publishTimeout bounds how long a broadcast may take; the game core never
// waits longer than this on delivery.
const publishTimeout = 2 * time.Second

// RedisBroadcaster publishes events on Redis pub/sub channels so other
// processes receive the same events the local hub delivers.
type RedisBroadcaster struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisBroadcaster connects to Redis and verifies the connection.
func NewRedisBroadcaster(ctx context.Context, addr, password string, db int, logger zerolog.Logger) (*RedisBroadcaster, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisBroadcaster{
		client: client,
		logger: logger.With().Str("component", "redis_broadcaster").Logger(),
	}, nil
}

// Publish sends the event on its namespaced channel. Errors are logged and
// swallowed; broadcasting is best-effort.
func (b *RedisBroadcaster) Publish(event *Event) {
	data, err := event.Encode()
	if err != nil {
		b.logger.Error().Err(err).Str("type", event.Type).Msg("dropping unencodable event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, channelPrefix+event.channel(), data).Err(); err != nil {
		b.logger.Warn().Err(err).Str("channel", event.channel()).Msg("failed to broadcast event")
	}
}

// Close releases the Redis connection.
func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}

// fanoutBuffer is how many pending events the dispatcher holds before it
// starts dropping; subscribers resync from the next snapshot they fetch.
const fanoutBuffer = 64

// Fanout delivers events to the local hub and, when configured, to the
// Redis broadcaster. A single dispatcher goroutine drains a buffered queue,
// so state transitions never block on fan-out and events reach subscribers
// in the order they were published.
type Fanout struct {
	hub       *Hub
	broadcast *RedisBroadcaster
	queue     chan *Event
	done      chan struct{}
}

// NewFanout composes the local hub with an optional broadcaster and starts
// the dispatcher. broadcast may be nil when cross-process delivery is
// disabled.
func NewFanout(hub *Hub, broadcast *RedisBroadcaster) *Fanout {
	f := &Fanout{
		hub:       hub,
		broadcast: broadcast,
		queue:     make(chan *Event, fanoutBuffer),
		done:      make(chan struct{}),
	}
	go f.dispatch()
	return f
}

func (f *Fanout) dispatch() {
	defer close(f.done)
	for event := range f.queue {
		f.hub.Publish(event)
		if f.broadcast != nil {
			f.broadcast.Publish(event)
		}
	}
}

// Publish enqueues the event for delivery without blocking the caller. If
// the queue is full the event is dropped.
func (f *Fanout) Publish(event *Event) {
	select {
	case f.queue <- event:
	default:
		f.hub.logger.Warn().Str("type", event.Type).Msg("fanout queue full, dropping event")
	}
}

// Close stops the dispatcher after the queued events drain. Publish must
// not be called after Close.
func (f *Fanout) Close() {
	close(f.queue)
	<-f.done
}

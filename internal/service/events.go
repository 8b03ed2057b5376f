package service

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/attempt"
)

// EventHub fans attempt events out to in-process subscribers such as
// WebSocket connections. Slow subscribers miss events rather than block.
type EventHub struct {
	log zerolog.Logger

	mu   sync.Mutex
	next int
	subs map[int]chan attempt.Event
}

// NewEventHub creates an empty hub.
func NewEventHub(log zerolog.Logger) *EventHub {
	return &EventHub{
		log:  log.With().Str("component", "event_hub").Logger(),
		subs: make(map[int]chan attempt.Event),
	}
}

// Subscribe registers a subscriber with the given channel capacity. The
// returned function unsubscribes and closes the channel.
func (h *EventHub) Subscribe(buffer int) (<-chan attempt.Event, func()) {
	ch := make(chan attempt.Event, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (h *EventHub) Publish(ev attempt.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.Debug().Int("subscriber", id).Str("event", string(ev.Type)).Msg("Subscriber full, dropping event")
		}
	}
}

package app

import (
	"sync"

	"quiz-battle-service/internal/domain"
)

// RoomEvent is a room-topic broadcast delivered to every subscriber of a
// room (transport connections, mostly).
type RoomEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// roomHandle wraps one room with its lock and subscriber set. The mutex is
// the per-room serialization unit: every check-and-transition (start,
// advance, finish) runs entirely under it, so two operations on the same
// room never interleave. Different rooms share nothing.
type roomHandle struct {
	mu          sync.Mutex
	room        *domain.Room
	subscribers map[chan RoomEvent]struct{}
}

func newRoomHandle(room *domain.Room) *roomHandle {
	return &roomHandle{
		room:        room,
		subscribers: make(map[chan RoomEvent]struct{}),
	}
}

func (h *roomHandle) subscribe() (<-chan RoomEvent, func()) {
	ch := make(chan RoomEvent, 16)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// broadcastLocked fans an event out to all subscribers without blocking on a
// slow one: when a subscriber's buffer is full the oldest pending event is
// dropped in its favor.
func (h *roomHandle) broadcastLocked(event RoomEvent) {
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

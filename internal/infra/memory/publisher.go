package memory

import (
	"context"
	"log/slog"
	"sync"

	"quiz-battle-service/internal/domain"
)

// EventRecorder collects published events in order. Tests assert against the
// recorded slice; consumers of the real broker see the same payloads.
type EventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

func (r *EventRecorder) Publish(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *EventRecorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// LogPublisher writes events to the structured log. It stands in for a real
// broker when none is configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.Event) error {
	p.log.Info("battle event", "event", event.EventName(), "payload", event)
	return nil
}

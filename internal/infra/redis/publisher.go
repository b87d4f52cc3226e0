package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quiz-battle-service/internal/domain"
)

// EventsChannel is the pub/sub channel battle events are published on.
const EventsChannel = "battle:events"

// EventPublisher fans battle events out over Redis pub/sub. Delivery is
// at-least-once from the engine's perspective; consumers must be idempotent.
type EventPublisher struct {
	client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{client: client}
}

type eventEnvelope struct {
	Event   string       `json:"event"`
	Payload domain.Event `json:"payload"`
}

func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(eventEnvelope{Event: event.EventName(), Payload: event})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventName(), err)
	}
	if err := p.client.Publish(ctx, EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.EventName(), err)
	}
	return nil
}

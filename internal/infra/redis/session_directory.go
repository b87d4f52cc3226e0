package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-battle-service/internal/app"
)

// SessionDirectory stores connection → participant bindings in Redis with a
// TTL. Entries are disposable by design: an expired or evicted key reads as
// a miss and the caller rebuilds it from the durable room store.
type SessionDirectory struct {
	client *redis.Client
	ttl    time.Duration
}

var _ app.SessionDirectory = (*SessionDirectory)(nil)

func NewSessionDirectory(client *redis.Client, ttl time.Duration) *SessionDirectory {
	return &SessionDirectory{client: client, ttl: ttl}
}

func (d *SessionDirectory) Put(ctx context.Context, connID string, session app.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := d.client.Set(ctx, d.key(connID), data, d.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (d *SessionDirectory) Get(ctx context.Context, connID string) (app.Session, bool, error) {
	data, err := d.client.Get(ctx, d.key(connID)).Bytes()
	if err == redis.Nil {
		return app.Session{}, false, nil
	}
	if err != nil {
		return app.Session{}, false, fmt.Errorf("read session: %w", err)
	}
	var session app.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return app.Session{}, false, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, true, nil
}

func (d *SessionDirectory) Touch(ctx context.Context, connID string) (bool, error) {
	ok, err := d.client.Expire(ctx, d.key(connID), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("refresh session ttl: %w", err)
	}
	return ok, nil
}

func (d *SessionDirectory) Delete(ctx context.Context, connID string) error {
	if err := d.client.Del(ctx, d.key(connID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (d *SessionDirectory) key(connID string) string {
	return "battle:session:" + connID
}

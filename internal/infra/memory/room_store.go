package memory

import (
	"context"
	"sync"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.BattleStore, used in tests
// and when no Postgres is configured. Snapshots are deep-copied on the way in
// and out so callers never share mutable state with the store.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

var _ app.BattleStore = (*RoomStore)(nil)

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*domain.Room)}
}

func (s *RoomStore) SaveRoom(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *RoomStore) LoadRoom(_ context.Context, roomID string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room.Clone(), nil
}

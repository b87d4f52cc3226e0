package memory

import (
	"context"
	"sync"

	"quiz-battle-service/internal/domain"
)

// UserDirectory resolves display names from a fixed map. With allowUnknown
// set, unknown users resolve to their own id, which keeps demo setups free
// of a real user service.
type UserDirectory struct {
	mu           sync.RWMutex
	names        map[string]string
	allowUnknown bool
}

func NewUserDirectory(names map[string]string) *UserDirectory {
	if names == nil {
		names = make(map[string]string)
	}
	return &UserDirectory{names: names}
}

// NewOpenUserDirectory accepts any user id and echoes it as display name.
func NewOpenUserDirectory() *UserDirectory {
	return &UserDirectory{names: make(map[string]string), allowUnknown: true}
}

func (d *UserDirectory) Lookup(_ context.Context, userID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if name, ok := d.names[userID]; ok {
		return name, nil
	}
	if d.allowUnknown {
		return userID, nil
	}
	return "", domain.ErrUserNotFound
}

// SetName adds or updates a display name.
func (d *UserDirectory) SetName(userID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[userID] = name
}

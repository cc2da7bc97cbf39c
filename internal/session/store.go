package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/aspecsweb/nano-tags/internal/config"
)

// ErrUnknownStore is returned for a session.store value other than memory or redis.
var ErrUnknownStore = errors.New("unknown session store")

// Store keeps one session id per browser and tag, the way each tag persisted
// its own id in the browser's local storage.
type Store interface {
	// Resolve returns the session id for browserID and tag. A supplied id
	// is remembered and returned as is. Without a browser id a fresh id is
	// returned and nothing is stored.
	Resolve(ctx context.Context, browserID, tag, supplied string) (string, error)
	Close() error
}

// New builds the store selected by cfg.Session.Store.
func New(cfg *config.Config) (Store, error) {
	switch cfg.Session.Store {
	case "memory":
		return NewMemoryStore(cfg.Session.TTL), nil
	case "redis":
		return NewRedisStore(cfg.Redis, cfg.Session.TTL), nil
	default:
		return nil, ErrUnknownStore
	}
}

func newID() string {
	return uuid.New().String()
}

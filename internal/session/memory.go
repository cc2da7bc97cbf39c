package session

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const memoryStoreSize = 100000

// MemoryStore is a process-local Store. Entries expire ttl after their last
// use and the least recently used browsers are evicted past a fixed size.
type MemoryStore struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, map[string]string]
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		lru: expirable.NewLRU[string, map[string]string](memoryStoreSize, nil, ttl),
	}
}

func (s *MemoryStore) Resolve(_ context.Context, browserID, tag, supplied string) (string, error) {
	if browserID == "" {
		if supplied != "" {
			return supplied, nil
		}
		return newID(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.lru.Get(browserID)
	if !ok {
		ids = make(map[string]string)
	}

	id := supplied
	if id == "" {
		id = ids[tag]
	}
	if id == "" {
		id = newID()
	}
	ids[tag] = id

	// re-adding refreshes the ttl
	s.lru.Add(browserID, ids)
	return id, nil
}

func (s *MemoryStore) Close() error {
	s.lru.Purge()
	return nil
}

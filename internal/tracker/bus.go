package tracker

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/aspecsweb/nano-tags/internal/platform"
)

// AnalyticsEvent is an application event for the analytics tag.
type AnalyticsEvent struct {
	Name string      `json:"name"`
	Data interface{} `json:"data,omitempty"`
}

// CustomEvent is an application event for the custom tag.
type CustomEvent struct {
	Name string                 `json:"name"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// Bus is a typed publish/subscribe channel owned by one page instance.
// Subscribers are called synchronously, in subscription order, outside the
// bus lock.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   []*busSub[T]
	nextID uint64
}

type busSub[T any] struct {
	bus       *Bus[T]
	id        uint64
	fn        func(T)
	cancelled atomic.Bool
}

func (s *busSub[T]) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.subs = slices.DeleteFunc(s.bus.subs, func(o *busSub[T]) bool { return o.id == s.id })
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers fn for every later Publish.
func (b *Bus[T]) Subscribe(fn func(T)) platform.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &busSub[T]{bus: b, id: b.nextID, fn: fn}
	b.subs = append(b.subs, s)
	return s
}

// Publish delivers ev to every live subscriber and returns how many got it.
func (b *Bus[T]) Publish(ev T) int {
	b.mu.Lock()
	targets := slices.Clone(b.subs)
	b.mu.Unlock()

	n := 0
	for _, s := range targets {
		if s.cancelled.Load() {
			continue
		}
		s.fn(ev)
		n++
	}
	return n
}

// Len returns the number of live subscribers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

package platform

import "errors"

var (
	// ErrUnsupportedKind is returned when the page cannot observe the requested kind.
	ErrUnsupportedKind = errors.New("entry kind not supported")
	// ErrNilHandler is returned when Observe is called without a handler.
	ErrNilHandler = errors.New("nil handler")
)

// Handler receives one batch of entries of a single kind, ordered by start
// time. The subscription that produced the batch is passed along so the
// handler can cancel itself.
type Handler func(entries []Entry, sub Subscription)

// Subscription is a cancel handle for an observation or a lifecycle listener.
// Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// Observer subscribes to performance entries of one kind. With buffered set,
// entries recorded before the subscription are delivered as the first batch.
type Observer interface {
	Observe(kind Kind, buffered bool, fn Handler) (Subscription, error)
}

// Timeline gives point-in-time access to recorded entries.
type Timeline interface {
	EntriesByType(kind Kind) ([]Entry, error)
}

// LifecycleHandler receives lifecycle transitions together with the listener's
// own subscription.
type LifecycleHandler func(ev LifecycleEvent, sub Subscription)

// Lifecycle exposes the document lifecycle as queryable state plus a stream of
// transitions.
type Lifecycle interface {
	ReadyState() ReadyState
	VisibilityState() Visibility
	OnLifecycle(fn LifecycleHandler) Subscription
}

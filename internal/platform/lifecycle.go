package platform

// ReadyState mirrors document.readyState.
type ReadyState string

const (
	ReadyLoading     ReadyState = "loading"
	ReadyInteractive ReadyState = "interactive"
	ReadyComplete    ReadyState = "complete"
)

// Valid reports whether s is a known ready state.
func (s ReadyState) Valid() bool {
	switch s {
	case ReadyLoading, ReadyInteractive, ReadyComplete:
		return true
	}
	return false
}

// Visibility mirrors document.visibilityState.
type Visibility string

const (
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)

// Valid reports whether v is a known visibility state.
func (v Visibility) Valid() bool {
	return v == VisibilityVisible || v == VisibilityHidden
}

// EventType names a page lifecycle transition.
type EventType string

const (
	EventReadyStateChange EventType = "readystatechange"
	EventLoad             EventType = "load"
	EventVisibilityChange EventType = "visibilitychange"
	EventBeforeUnload     EventType = "beforeunload"
	EventPopState         EventType = "popstate"
)

// LifecycleEvent is delivered to lifecycle listeners. It carries the state of
// the page as of the transition.
type LifecycleEvent struct {
	Type       EventType
	ReadyState ReadyState
	Visibility Visibility
}

package platform

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
)

// PageOptions configures a new Page.
type PageOptions struct {
	// Supported lists the observable kinds. Nil means every kind.
	Supported  []Kind
	ReadyState ReadyState
	Visibility Visibility
}

// Page is an in-memory model of one document's performance timeline and
// lifecycle. Signals forwarded from the browser are fed in through Record and
// the Set/Fire methods; Page implements Observer, Timeline and Lifecycle on top
// of them.
//
// Handler and listener invocations for one Page never overlap. They must not
// call Record, Observe or any of the lifecycle setters on the same Page.
type Page struct {
	// dispatchMu serializes every callback invocation.
	dispatchMu sync.Mutex

	mu         sync.Mutex
	supported  map[Kind]bool
	history    map[Kind][]Entry
	observers  []*observer
	listeners  []*listener
	nextID     uint64
	ready      ReadyState
	visibility Visibility
	loaded     bool
}

type observer struct {
	sub  *subscription
	kind Kind
	fn   Handler
}

type listener struct {
	sub *subscription
	fn  LifecycleHandler
}

type subscription struct {
	page      *Page
	id        uint64
	cancelled atomic.Bool
}

func (s *subscription) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	s.page.remove(s.id)
}

// NewPage creates a page in the given initial state.
func NewPage(opts PageOptions) *Page {
	kinds := opts.Supported
	if kinds == nil {
		kinds = AllKinds
	}
	supported := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		supported[k] = true
	}

	ready := opts.ReadyState
	if !ready.Valid() {
		ready = ReadyLoading
	}
	visibility := opts.Visibility
	if !visibility.Valid() {
		visibility = VisibilityVisible
	}

	return &Page{
		supported:  supported,
		history:    make(map[Kind][]Entry),
		ready:      ready,
		visibility: visibility,
		loaded:     ready == ReadyComplete,
	}
}

// Supports reports whether kind can be observed on this page.
func (p *Page) Supports(kind Kind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.supported[kind]
}

// Observe implements Observer.
func (p *Page) Observe(kind Kind, buffered bool, fn Handler) (Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}

	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()

	p.mu.Lock()
	if !p.supported[kind] {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	sub := p.newSubscription()
	p.observers = append(p.observers, &observer{sub: sub, kind: kind, fn: fn})
	var backlog []Entry
	if buffered {
		backlog = slices.Clone(p.history[kind])
	}
	p.mu.Unlock()

	if len(backlog) > 0 {
		fn(backlog, sub)
	}
	return sub, nil
}

// Record adds entries to the timeline and delivers them, one batch per kind,
// to the live observers of that kind. Entries of unsupported kinds are ignored.
func (p *Page) Record(entries ...Entry) {
	if len(entries) == 0 {
		return
	}

	var order []Kind
	batches := make(map[Kind][]Entry)
	for _, e := range entries {
		if _, ok := batches[e.EntryType]; !ok {
			order = append(order, e.EntryType)
		}
		batches[e.EntryType] = append(batches[e.EntryType], e)
	}

	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()

	for _, kind := range order {
		batch := batches[kind]
		sort.SliceStable(batch, func(i, j int) bool {
			return batch[i].StartTime < batch[j].StartTime
		})

		p.mu.Lock()
		if !p.supported[kind] {
			p.mu.Unlock()
			continue
		}
		p.appendHistory(kind, batch)
		var targets []*observer
		for _, o := range p.observers {
			if o.kind == kind {
				targets = append(targets, o)
			}
		}
		p.mu.Unlock()

		for _, o := range targets {
			if o.sub.cancelled.Load() {
				continue
			}
			o.fn(slices.Clone(batch), o.sub)
		}
	}
}

// appendHistory keeps the first entries of a kind up to historyLimit.
// Caller holds p.mu.
func (p *Page) appendHistory(kind Kind, batch []Entry) {
	room := historyLimit - len(p.history[kind])
	if room <= 0 {
		return
	}
	if room < len(batch) {
		batch = batch[:room]
	}
	p.history[kind] = append(p.history[kind], batch...)
}

// EntriesByType implements Timeline.
func (p *Page) EntriesByType(kind Kind) ([]Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.supported[kind] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	return slices.Clone(p.history[kind]), nil
}

// ReadyState implements Lifecycle.
func (p *Page) ReadyState() ReadyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// VisibilityState implements Lifecycle.
func (p *Page) VisibilityState() Visibility {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visibility
}

// OnLifecycle implements Lifecycle.
func (p *Page) OnLifecycle(fn LifecycleHandler) Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub := p.newSubscription()
	p.listeners = append(p.listeners, &listener{sub: sub, fn: fn})
	return sub
}

// SetReadyState moves the document to state. Reaching complete for the first
// time also fires load.
func (p *Page) SetReadyState(state ReadyState) {
	if !state.Valid() {
		return
	}

	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()

	p.mu.Lock()
	if p.ready == state {
		p.mu.Unlock()
		return
	}
	p.ready = state
	fireLoad := state == ReadyComplete && !p.loaded
	if fireLoad {
		p.loaded = true
	}
	visibility := p.visibility
	p.mu.Unlock()

	p.emit(LifecycleEvent{Type: EventReadyStateChange, ReadyState: state, Visibility: visibility})
	if fireLoad {
		p.emit(LifecycleEvent{Type: EventLoad, ReadyState: state, Visibility: visibility})
	}
}

// FireLoad signals load completion, completing the document if needed.
func (p *Page) FireLoad() {
	p.SetReadyState(ReadyComplete)
}

// SetVisibility changes the visibility state and fires visibilitychange.
func (p *Page) SetVisibility(v Visibility) {
	if !v.Valid() {
		return
	}

	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()

	p.mu.Lock()
	if p.visibility == v {
		p.mu.Unlock()
		return
	}
	p.visibility = v
	ready := p.ready
	p.mu.Unlock()

	p.emit(LifecycleEvent{Type: EventVisibilityChange, ReadyState: ready, Visibility: v})
}

// BeforeUnload fires beforeunload.
func (p *Page) BeforeUnload() {
	p.fire(EventBeforeUnload)
}

// PopState fires popstate.
func (p *Page) PopState() {
	p.fire(EventPopState)
}

func (p *Page) fire(t EventType) {
	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()

	p.mu.Lock()
	ev := LifecycleEvent{Type: t, ReadyState: p.ready, Visibility: p.visibility}
	p.mu.Unlock()

	p.emit(ev)
}

// emit delivers ev to every live listener. Caller holds p.dispatchMu.
func (p *Page) emit(ev LifecycleEvent) {
	p.mu.Lock()
	targets := slices.Clone(p.listeners)
	p.mu.Unlock()

	for _, l := range targets {
		if l.sub.cancelled.Load() {
			continue
		}
		l.fn(ev, l.sub)
	}
}

// Caller holds p.mu.
func (p *Page) newSubscription() *subscription {
	p.nextID++
	return &subscription{page: p, id: p.nextID}
}

func (p *Page) remove(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = slices.DeleteFunc(p.observers, func(o *observer) bool { return o.sub.id == id })
	p.listeners = slices.DeleteFunc(p.listeners, func(l *listener) bool { return l.sub.id == id })
}

// Observers returns the number of live entry subscriptions.
func (p *Page) Observers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.observers)
}

// Listeners returns the number of live lifecycle listeners.
func (p *Page) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

package tracker

import (
	"sync"

	"github.com/aspecsweb/nano-tags/internal/platform"
	"github.com/aspecsweb/nano-tags/internal/report"
)

// Sender is the part of report.Reporter the trackers need.
type Sender interface {
	Send(sc report.Context, data map[string]interface{})
}

const eventPageView = "page_view"

// PageViewTracker reports a page view when started and on every popstate,
// and relays analytics events published on its bus.
type PageViewTracker struct {
	lifecycle platform.Lifecycle
	bus       *Bus[AnalyticsEvent]
	sender    Sender
	contextFn report.ContextFunc

	popSub platform.Subscription
	busSub platform.Subscription

	// mu ties the stopped check to the send.
	mu      sync.Mutex
	stopped bool
}

func NewPageViewTracker(lc platform.Lifecycle, bus *Bus[AnalyticsEvent], sender Sender, contextFn report.ContextFunc) *PageViewTracker {
	return &PageViewTracker{
		lifecycle: lc,
		bus:       bus,
		sender:    sender,
		contextFn: contextFn,
	}
}

func (t *PageViewTracker) Start() {
	t.TrackPageView()
	t.popSub = t.lifecycle.OnLifecycle(func(ev platform.LifecycleEvent, _ platform.Subscription) {
		if ev.Type == platform.EventPopState {
			t.TrackPageView()
		}
	})
	t.busSub = t.bus.Subscribe(t.TrackEvent)
}

// TrackPageView reports the current page as viewed.
func (t *PageViewTracker) TrackPageView() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	sc := t.contextFn()
	t.sender.Send(sc, map[string]interface{}{
		"eventType":     eventPageView,
		"page_title":    sc.Title,
		"page_location": sc.URL,
		"page_path":     sc.Path,
	})
}

// TrackEvent reports an analytics event under its own event type.
func (t *PageViewTracker) TrackEvent(ev AnalyticsEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.sender.Send(t.contextFn(), map[string]interface{}{
		"eventType":  ev.Name,
		"event_data": ev.Data,
	})
}

// Stop unsubscribes the tracker. Nothing is sent once Stop returns.
func (t *PageViewTracker) Stop() {
	t.mu.Lock()
	already := t.stopped
	t.stopped = true
	t.mu.Unlock()
	if already {
		return
	}
	if t.popSub != nil {
		t.popSub.Cancel()
	}
	if t.busSub != nil {
		t.busSub.Cancel()
	}
}

// CustomTracker reports named custom events, either called directly through
// TrackEvent or published on its bus.
type CustomTracker struct {
	bus       *Bus[CustomEvent]
	sender    Sender
	contextFn report.ContextFunc

	busSub platform.Subscription

	mu      sync.Mutex
	stopped bool
}

func NewCustomTracker(bus *Bus[CustomEvent], sender Sender, contextFn report.ContextFunc) *CustomTracker {
	return &CustomTracker{
		bus:       bus,
		sender:    sender,
		contextFn: contextFn,
	}
}

func (t *CustomTracker) Start() {
	t.busSub = t.bus.Subscribe(func(ev CustomEvent) {
		t.TrackEvent(ev.Name, ev.Data)
	})
}

// TrackEvent reports a custom event. Nil data is sent as an empty object.
func (t *CustomTracker) TrackEvent(name string, data map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	t.sender.Send(t.contextFn(), map[string]interface{}{
		"event_name": name,
		"event_data": data,
	})
}

// Stop unsubscribes the tracker. Nothing is sent once Stop returns.
func (t *CustomTracker) Stop() {
	t.mu.Lock()
	already := t.stopped
	t.stopped = true
	t.mu.Unlock()
	if already {
		return
	}
	if t.busSub != nil {
		t.busSub.Cancel()
	}
}

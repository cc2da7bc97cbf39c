package tracker

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aspecsweb/nano-tags/internal/platform"
	"github.com/aspecsweb/nano-tags/internal/report"
)

type sent struct {
	ctx  report.Context
	data map[string]interface{}
}

type recordingSender struct {
	sends []sent
}

func (s *recordingSender) Send(sc report.Context, data map[string]interface{}) {
	s.sends = append(s.sends, sent{ctx: sc, data: data})
}

type pageContext struct {
	ctx report.Context
}

func (p *pageContext) get() report.Context { return p.ctx }

func newContext() *pageContext {
	return &pageContext{ctx: report.Context{
		ProjectKey: "proj-1",
		SessionID:  "sess-1",
		URL:        "https://example.com/shop?item=1",
		Title:      "Shop",
		Path:       "/shop",
	}}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus[AnalyticsEvent]()

	var a, b []string
	subA := bus.Subscribe(func(ev AnalyticsEvent) { a = append(a, ev.Name) })
	bus.Subscribe(func(ev AnalyticsEvent) { b = append(b, ev.Name) })

	assert.Equal(t, 2, bus.Publish(AnalyticsEvent{Name: "signup"}))
	subA.Cancel()
	subA.Cancel()
	assert.Equal(t, 1, bus.Publish(AnalyticsEvent{Name: "purchase"}))

	assert.Equal(t, []string{"signup"}, a)
	assert.Equal(t, []string{"signup", "purchase"}, b)
	assert.Equal(t, 1, bus.Len())
}

func TestBus_CancelDuringPublish(t *testing.T) {
	bus := NewBus[CustomEvent]()

	var calls int
	var sub platform.Subscription
	sub = bus.Subscribe(func(CustomEvent) {
		calls++
		sub.Cancel()
	})

	bus.Publish(CustomEvent{Name: "x"})
	bus.Publish(CustomEvent{Name: "y"})
	assert.Equal(t, 1, calls)
	assert.Zero(t, bus.Len())
}

func TestPageViewTracker_ViewsOnStartAndPopState(t *testing.T) {
	page := platform.NewPage(platform.PageOptions{})
	pc := newContext()
	sender := &recordingSender{}
	bus := NewBus[AnalyticsEvent]()

	tr := NewPageViewTracker(page, bus, sender, pc.get)
	tr.Start()

	require.Len(t, sender.sends, 1)
	assert.Equal(t, map[string]interface{}{
		"eventType":     "page_view",
		"page_title":    "Shop",
		"page_location": "https://example.com/shop?item=1",
		"page_path":     "/shop",
	}, sender.sends[0].data)

	pc.ctx.URL = "https://example.com/cart"
	pc.ctx.Path = "/cart"
	pc.ctx.Title = "Cart"
	page.PopState()

	// other lifecycle events are not page views
	page.FireLoad()
	page.SetVisibility(platform.VisibilityHidden)

	require.Len(t, sender.sends, 2)
	assert.Equal(t, "/cart", sender.sends[1].data["page_path"])
	assert.Equal(t, "Cart", sender.sends[1].data["page_title"])
	assert.Equal(t, "sess-1", sender.sends[1].ctx.SessionID)
}

func TestPageViewTracker_AnalyticsEvents(t *testing.T) {
	page := platform.NewPage(platform.PageOptions{})
	sender := &recordingSender{}
	bus := NewBus[AnalyticsEvent]()

	tr := NewPageViewTracker(page, bus, sender, newContext().get)
	tr.Start()

	bus.Publish(AnalyticsEvent{Name: "add_to_cart", Data: map[string]interface{}{"sku": "A-1"}})

	require.Len(t, sender.sends, 2)
	assert.Equal(t, map[string]interface{}{
		"eventType":  "add_to_cart",
		"event_data": map[string]interface{}{"sku": "A-1"},
	}, sender.sends[1].data)
}

func TestPageViewTracker_StopUnsubscribes(t *testing.T) {
	page := platform.NewPage(platform.PageOptions{})
	sender := &recordingSender{}
	bus := NewBus[AnalyticsEvent]()

	tr := NewPageViewTracker(page, bus, sender, newContext().get)
	tr.Start()
	tr.Stop()
	tr.Stop()

	page.PopState()
	assert.Zero(t, bus.Publish(AnalyticsEvent{Name: "late"}))
	tr.TrackPageView()

	assert.Len(t, sender.sends, 1)
	assert.Zero(t, page.Listeners())
}

func TestCustomTracker_TrackEvent(t *testing.T) {
	sender := &recordingSender{}
	bus := NewBus[CustomEvent]()

	tr := NewCustomTracker(bus, sender, newContext().get)
	tr.Start()

	tr.TrackEvent("button_click", map[string]interface{}{"id": "cta"})
	tr.TrackEvent("no_data", nil)
	bus.Publish(CustomEvent{Name: "from_bus"})

	require.Len(t, sender.sends, 3)
	assert.Equal(t, map[string]interface{}{
		"event_name": "button_click",
		"event_data": map[string]interface{}{"id": "cta"},
	}, sender.sends[0].data)
	assert.Equal(t, map[string]interface{}{}, sender.sends[1].data["event_data"])
	assert.Equal(t, "from_bus", sender.sends[2].data["event_name"])
	assert.Equal(t, map[string]interface{}{}, sender.sends[2].data["event_data"])

	tr.Stop()
	tr.TrackEvent("after_stop", nil)
	bus.Publish(CustomEvent{Name: "after_stop"})
	assert.Len(t, sender.sends, 3)
}

// lateSender counts sends that start after stopped is set.
type lateSender struct {
	stopped atomic.Bool
	late    atomic.Int32
}

func (s *lateSender) Send(report.Context, map[string]interface{}) {
	if s.stopped.Load() {
		s.late.Add(1)
	}
}

func TestTrackers_NoSendAfterStopReturns(t *testing.T) {
	page := platform.NewPage(platform.PageOptions{})
	sender := &lateSender{}
	views := NewPageViewTracker(page, NewBus[AnalyticsEvent](), sender, newContext().get)
	custom := NewCustomTracker(NewBus[CustomEvent](), sender, newContext().get)
	views.Start()
	custom.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				views.TrackPageView()
				custom.TrackEvent("tick", nil)
			}
		}()
	}

	views.Stop()
	custom.Stop()
	sender.stopped.Store(true)
	wg.Wait()

	assert.Zero(t, sender.late.Load())
}

package agent

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/aspecsweb/nano-tags/internal/config"
	"github.com/aspecsweb/nano-tags/internal/metrics"
	"github.com/aspecsweb/nano-tags/internal/platform"
	"github.com/aspecsweb/nano-tags/internal/report"
	"github.com/aspecsweb/nano-tags/internal/tracker"
	"github.com/aspecsweb/nano-tags/internal/vitals"
)

// Instance is one activated page: its platform model plus the engine and
// trackers of every hosted tag.
type Instance struct {
	id      string
	page    *platform.Page
	limiter *rate.Limiter

	engine    *vitals.Engine
	pageViews *tracker.PageViewTracker
	custom    *tracker.CustomTracker

	analyticsBus *tracker.Bus[tracker.AnalyticsEvent]
	customBus    *tracker.Bus[tracker.CustomEvent]

	mu       sync.RWMutex
	base     report.Context
	sessions map[string]string

	stopOnce    sync.Once
	deactivated atomic.Bool
}

// ID returns the page id.
func (in *Instance) ID() string {
	return in.id
}

// Page returns the page model.
func (in *Instance) Page() *platform.Page {
	return in.page
}

// Context returns the session context for tag as of now.
func (in *Instance) Context(tag string) report.Context {
	in.mu.RLock()
	defer in.mu.RUnlock()
	sc := in.base
	sc.SessionID = in.sessions[tag]
	return sc
}

func (in *Instance) contextFunc(tag string) report.ContextFunc {
	return func() report.Context {
		return in.Context(tag)
	}
}

// navigate updates the page context after in-page navigation. Empty values
// keep what was there.
func (in *Instance) navigate(url, title, path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if url != "" {
		in.base.URL = url
	}
	if title != "" {
		in.base.Title = title
	}
	if path != "" {
		in.base.Path = path
	}
}

func (in *Instance) start() {
	if in.engine != nil {
		in.engine.Start()
	}
	if in.pageViews != nil {
		in.pageViews.Start()
	}
	if in.custom != nil {
		in.custom.Start()
	}
}

// Deactivate unmounts every hosted tag. It reports whether this call did
// the work.
func (in *Instance) Deactivate() bool {
	first := false
	in.stopOnce.Do(func() {
		first = true
		in.deactivated.Store(true)
		if in.engine != nil {
			in.engine.Stop()
		}
		if in.pageViews != nil {
			in.pageViews.Stop()
		}
		if in.custom != nil {
			in.custom.Stop()
		}
		metrics.ActivePages.Dec()
	})
	return first
}

func (in *Instance) record(entries []platform.Entry) {
	counts := make(map[platform.Kind]int)
	for _, e := range entries {
		counts[e.EntryType]++
	}
	for kind, n := range counts {
		if in.page.Supports(kind) {
			metrics.RecordEntries(string(kind), n)
		}
	}
	in.page.Record(entries...)
}

func (in *Instance) lifecycle(l *LifecycleSignal) {
	switch l.Type {
	case platform.EventReadyStateChange:
		in.page.SetReadyState(l.ReadyState)
	case platform.EventLoad:
		in.page.FireLoad()
	case platform.EventVisibilityChange:
		in.page.SetVisibility(l.VisibilityState)
	case platform.EventBeforeUnload:
		in.page.BeforeUnload()
	case platform.EventPopState:
		in.navigate(l.URL, l.Title, l.Path)
		in.page.PopState()
	}
}

// publish hands an event to the bus of its channel and returns how many
// trackers received it.
func (in *Instance) publish(e *EventSignal) int {
	switch e.Channel {
	case ChannelAnalytics:
		return in.analyticsBus.Publish(tracker.AnalyticsEvent{Name: e.Name, Data: e.Data})
	case ChannelCustom:
		data, _ := e.Data.(map[string]interface{})
		return in.customBus.Publish(tracker.CustomEvent{Name: e.Name, Data: data})
	}
	return 0
}

// TrackEvent reports a custom event directly, as the custom tag's global
// trackEvent did. It is a no-op when the custom tag is not hosted.
func (in *Instance) TrackEvent(name string, data map[string]interface{}) {
	if in.custom != nil {
		in.custom.TrackEvent(name, data)
	}
}

func newLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
}

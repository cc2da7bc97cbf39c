package vitals

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/aspecsweb/nano-tags/internal/platform"
)

// NavigationExtractor waits for load, then reads the document's navigation
// entry and reports TTFB plus the navigation timing breakdown, once.
// If the page is already complete when it starts, it reads the entry right
// away since load will not fire again.
type NavigationExtractor struct {
	page         Page
	emit         func(Report)
	lifecycleSub platform.Subscription
	once         sync.Once
}

func NewNavigationExtractor() *NavigationExtractor {
	return &NavigationExtractor{}
}

func (x *NavigationExtractor) Start(page Page, emit func(Report)) {
	x.page = page
	x.emit = emit
	x.lifecycleSub = page.OnLifecycle(x.onLifecycle)

	if page.ReadyState() == platform.ReadyComplete {
		x.lifecycleSub.Cancel()
		x.once.Do(x.evaluate)
	}
}

func (x *NavigationExtractor) onLifecycle(ev platform.LifecycleEvent, sub platform.Subscription) {
	if ev.Type != platform.EventLoad {
		return
	}
	sub.Cancel()
	x.once.Do(x.evaluate)
}

func (x *NavigationExtractor) evaluate() {
	entries, err := x.page.EntriesByType(platform.KindNavigation)
	if err != nil {
		if !errors.Is(err, platform.ErrUnsupportedKind) {
			log.Debug().Err(err).Msg("Failed to read navigation entries")
		}
		return
	}
	if len(entries) == 0 {
		return
	}

	nav := entries[0]
	x.emit(Metric{Name: TTFB, Value: nav.ResponseStart, Unit: Milliseconds})
	x.emit(BreakdownFrom(nav))
}

func (x *NavigationExtractor) Stop() {
	cancel(x.lifecycleSub)
}

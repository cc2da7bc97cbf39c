package vitals

import "github.com/aspecsweb/nano-tags/internal/platform"

// CLSExtractor sums layout shifts that happened without recent user input and
// reports the total once, on whichever terminal signal comes first: the page
// becoming hidden or beforeunload. The first signal finalizes the extractor
// even when there is nothing to report.
type CLSExtractor struct {
	emit         func(Report)
	sub          platform.Subscription
	lifecycleSub platform.Subscription

	total              float64
	hasQualifyingShift bool
	finalized          bool
}

func NewCLSExtractor() *CLSExtractor {
	return &CLSExtractor{}
}

func (x *CLSExtractor) Start(page Page, emit func(Report)) {
	x.emit = emit
	x.sub = observeOrSkip(page, CLS, platform.KindLayoutShift, x.onEntries)
	if x.sub == nil {
		// no layout shift can ever qualify
		return
	}
	x.lifecycleSub = page.OnLifecycle(x.onLifecycle)
}

func (x *CLSExtractor) onEntries(entries []platform.Entry, _ platform.Subscription) {
	if x.finalized {
		return
	}
	for _, e := range entries {
		if !qualifies(e) {
			continue
		}
		x.total += *e.Value
		x.hasQualifyingShift = true
	}
}

// qualifies reports whether a layout shift counts towards CLS: it must state
// that there was no recent input and carry a value.
func qualifies(e platform.Entry) bool {
	return e.HadRecentInput != nil && !*e.HadRecentInput && e.Value != nil
}

func (x *CLSExtractor) onLifecycle(ev platform.LifecycleEvent, sub platform.Subscription) {
	if x.finalized || !isTerminal(ev) {
		return
	}

	x.finalized = true
	cancel(x.sub, sub)

	if !x.hasQualifyingShift {
		return
	}
	x.emit(Metric{Name: CLS, Value: x.total, Unit: Unitless})
}

func isTerminal(ev platform.LifecycleEvent) bool {
	switch ev.Type {
	case platform.EventBeforeUnload:
		return true
	case platform.EventVisibilityChange:
		return ev.Visibility == platform.VisibilityHidden
	}
	return false
}

// Total returns the accumulated layout shift score.
func (x *CLSExtractor) Total() float64 {
	return x.total
}

func (x *CLSExtractor) Stop() {
	cancel(x.sub, x.lifecycleSub)
}

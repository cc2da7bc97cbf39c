package vitals

import "github.com/aspecsweb/nano-tags/internal/platform"

// LCPExtractor reports the latest largest-contentful-paint candidate on the
// first batch that arrives once the document is complete. Ready state is only
// checked when a batch arrives, so the report may trail the transition to
// complete by one batch. A page that completes before any candidate never
// reports LCP.
type LCPExtractor struct {
	page Page
	emit func(Report)
	sub  platform.Subscription

	lastCandidate *platform.Entry
	done          bool
}

func NewLCPExtractor() *LCPExtractor {
	return &LCPExtractor{}
}

func (x *LCPExtractor) Start(page Page, emit func(Report)) {
	x.page = page
	x.emit = emit
	x.sub = observeOrSkip(page, LCP, platform.KindLargestContentfulPaint, x.onEntries)
}

func (x *LCPExtractor) onEntries(entries []platform.Entry, sub platform.Subscription) {
	if x.done || len(entries) == 0 {
		return
	}

	// later candidates supersede earlier ones
	last := entries[len(entries)-1]
	x.lastCandidate = &last

	if x.page.ReadyState() != platform.ReadyComplete {
		return
	}

	x.done = true
	sub.Cancel()
	x.emit(Metric{Name: LCP, Value: x.lastCandidate.StartTime, Unit: Milliseconds})
}

func (x *LCPExtractor) Stop() {
	cancel(x.sub)
}

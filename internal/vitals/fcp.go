package vitals

import "github.com/aspecsweb/nano-tags/internal/platform"

// FCPExtractor reports the start time of every paint entry in the first batch
// it receives, then stops observing.
type FCPExtractor struct {
	emit func(Report)
	sub  platform.Subscription
	done bool
}

func NewFCPExtractor() *FCPExtractor {
	return &FCPExtractor{}
}

func (x *FCPExtractor) Start(page Page, emit func(Report)) {
	x.emit = emit
	x.sub = observeOrSkip(page, FCP, platform.KindPaint, x.onEntries)
}

func (x *FCPExtractor) onEntries(entries []platform.Entry, sub platform.Subscription) {
	if x.done {
		return
	}
	x.done = true
	sub.Cancel()

	for _, e := range entries {
		x.emit(Metric{Name: FCP, Value: e.StartTime, Unit: Milliseconds})
	}
}

func (x *FCPExtractor) Stop() {
	cancel(x.sub)
}

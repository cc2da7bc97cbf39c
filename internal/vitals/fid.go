package vitals

import "github.com/aspecsweb/nano-tags/internal/platform"

// FIDExtractor reports processingStart - startTime for every first-input entry
// that carries processingStart. It does not limit itself to one report.
type FIDExtractor struct {
	emit func(Report)
	sub  platform.Subscription
}

func NewFIDExtractor() *FIDExtractor {
	return &FIDExtractor{}
}

func (x *FIDExtractor) Start(page Page, emit func(Report)) {
	x.emit = emit
	x.sub = observeOrSkip(page, FID, platform.KindFirstInput, x.onEntries)
}

func (x *FIDExtractor) onEntries(entries []platform.Entry, _ platform.Subscription) {
	for _, e := range entries {
		if e.ProcessingStart == nil {
			continue
		}
		x.emit(Metric{Name: FID, Value: *e.ProcessingStart - e.StartTime, Unit: Milliseconds})
	}
}

func (x *FIDExtractor) Stop() {
	cancel(x.sub)
}

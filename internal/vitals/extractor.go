package vitals

import (
	"github.com/rs/zerolog/log"

	"github.com/aspecsweb/nano-tags/internal/platform"
)

// Page is the platform surface the extractors observe.
type Page interface {
	platform.Observer
	platform.Timeline
	platform.Lifecycle
}

// Extractor derives one metric from page signals and emits it when final.
// Start is called once; Stop releases every subscription still held.
type Extractor interface {
	Start(page Page, emit func(Report))
	Stop()
}

func cancel(subs ...platform.Subscription) {
	for _, s := range subs {
		if s != nil {
			s.Cancel()
		}
	}
}

// observeOrSkip subscribes to kind. A page that cannot observe the kind is
// not an error: the metric is simply never reported.
func observeOrSkip(page Page, metric Name, kind platform.Kind, fn platform.Handler) platform.Subscription {
	sub, err := page.Observe(kind, true, fn)
	if err != nil {
		log.Debug().
			Err(err).
			Str("metric", string(metric)).
			Str("kind", string(kind)).
			Msg("Metric not observable on this page")
		return nil
	}
	return sub
}

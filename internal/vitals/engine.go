package vitals

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/aspecsweb/nano-tags/internal/config"
	"github.com/aspecsweb/nano-tags/internal/metrics"
	"github.com/aspecsweb/nano-tags/internal/report"
)

// Sender is the part of report.Reporter the engine needs.
type Sender interface {
	Send(sc report.Context, data map[string]interface{})
}

// Engine runs the enabled extractors against one page and forwards their
// reports. Extractors never coordinate with each other; the engine only owns
// their lifetime.
type Engine struct {
	page      Page
	sender    Sender
	contextFn report.ContextFunc
	cfg       config.VitalsConfig

	// lifecycleMu guards Start and Stop. It is never held while a report is
	// emitted so that buffered batches delivered during Start can report.
	lifecycleMu sync.Mutex
	extractors  []Extractor
	started     bool

	mu      sync.Mutex
	stopped bool
}

// NewEngine creates an engine. A config with no extractor enabled enables all.
func NewEngine(page Page, sender Sender, contextFn report.ContextFunc, cfg config.VitalsConfig) *Engine {
	if !cfg.AnyEnabled() {
		cfg = config.AllVitals()
	}
	return &Engine{
		page:      page,
		sender:    sender,
		contextFn: contextFn,
		cfg:       cfg,
	}
}

func (e *Engine) build() []Extractor {
	var xs []Extractor
	if e.cfg.LCP {
		xs = append(xs, NewLCPExtractor())
	}
	if e.cfg.FID {
		xs = append(xs, NewFIDExtractor())
	}
	if e.cfg.CLS {
		xs = append(xs, NewCLSExtractor())
	}
	if e.cfg.FCP {
		xs = append(xs, NewFCPExtractor())
	}
	if e.cfg.Navigation {
		xs = append(xs, NewNavigationExtractor())
	}
	return xs
}

// Start starts every enabled extractor. Calling it again, or after Stop, does
// nothing.
func (e *Engine) Start() {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.started || e.isStopped() {
		return
	}
	e.started = true

	e.extractors = e.build()
	for _, x := range e.extractors {
		x.Start(e.page, e.emit)
	}

	log.Debug().Int("extractors", len(e.extractors)).Msg("Vitals engine started")
}

// Stop cancels every remaining subscription. No report is emitted once Stop
// returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	already := e.stopped
	e.stopped = true
	e.mu.Unlock()
	if already {
		return
	}

	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()
	for _, x := range e.extractors {
		x.Stop()
	}
}

func (e *Engine) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

func (e *Engine) emit(r Report) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}

	metrics.RecordMetricFinalized(r.Label())
	e.sender.Send(e.contextFn(), r.Fields())
}

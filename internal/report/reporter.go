package report

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aspecsweb/nano-tags/internal/metrics"
)

// Delivery is one encoded report ready for transmission.
type Delivery struct {
	Tag        string
	ProjectKey string
	SessionID  string
	Body       []byte
}

// Sink transmits encoded reports.
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
	Close() error
}

// Reporter merges session context with report data and hands the result to a
// sink. Sends are fire-and-forget: Send never blocks on the transport and
// never returns an error.
type Reporter struct {
	tag     string
	sink    Sink
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewReporter creates a reporter for one tag (insights, analytics, custom).
func NewReporter(tag string, sink Sink, timeout time.Duration) *Reporter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Reporter{
		tag:     tag,
		sink:    sink,
		timeout: timeout,
		now:     time.Now,
	}
}

// Tag returns the tag the reporter sends for.
func (r *Reporter) Tag() string {
	return r.tag
}

// Send merges sc with data (data keys win) and transmits the payload in the
// background. Reports without a project key are dropped.
func (r *Reporter) Send(sc Context, data map[string]interface{}) {
	if sc.ProjectKey == "" {
		log.Warn().
			Str("tag", r.tag).
			Str("session_id", sc.SessionID).
			Msg("No project key provided, dropping report")
		metrics.RecordReportDropped(r.tag, "missing_project_key")
		return
	}

	payload := sc.Fields(r.now())
	for k, v := range data {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Debug().Err(err).Str("tag", r.tag).Msg("Failed to encode report")
		metrics.RecordReportDropped(r.tag, "encode")
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.RecordReportDropped(r.tag, "closed")
		return
	}

	d := Delivery{
		Tag:        r.tag,
		ProjectKey: sc.ProjectKey,
		SessionID:  sc.SessionID,
		Body:       body,
	}

	r.wg.Add(1)
	go r.deliver(d)
}

func (r *Reporter) deliver(d Delivery) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.sink.Deliver(ctx, d); err != nil {
		log.Debug().
			Err(err).
			Str("tag", r.tag).
			Str("session_id", d.SessionID).
			Msg("Failed to send report")
		metrics.RecordSendFailure(r.tag)
		return
	}
	metrics.RecordReportSent(r.tag)
}

// Close stops accepting reports and waits for in-flight sends until ctx is
// done. The sink is left open since sinks may be shared between reporters.
func (r *Reporter) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

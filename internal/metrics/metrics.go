package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Report Metrics
//
// These metrics track what the agent relays to the collection endpoint.
// Delivery is fire-and-forget, so failures are only visible here.

var (
	// ReportsSent counts reports handed to a sink without a transport error.
	// Labels: tag (insights, analytics, custom)
	ReportsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanotags_reports_sent_total",
			Help: "Total number of reports delivered to a sink",
		},
		[]string{"tag"},
	)

	// ReportsDropped counts reports that were never sent.
	// Labels: tag, reason (missing_project_key, closed, encode)
	ReportsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanotags_reports_dropped_total",
			Help: "Total number of reports dropped before sending",
		},
		[]string{"tag", "reason"},
	)

	// SendFailures counts transport errors. Failed reports are not retried.
	// Labels: tag
	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanotags_send_failures_total",
			Help: "Total number of failed report transmissions",
		},
		[]string{"tag"},
	)

	// MetricsFinalized counts metric values produced by the extractors.
	// Labels: metric (LCP, FID, CLS, FCP, TTFB, NAV)
	MetricsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanotags_metrics_finalized_total",
			Help: "Total number of metric values finalized by extractors",
		},
		[]string{"metric"},
	)
)

// Page Metrics
//
// These metrics track hosted page instances and the signals that drive them.

var (
	// ActivePages is the number of page instances currently hosted.
	ActivePages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nanotags_active_pages",
			Help: "Number of active page instances",
		},
	)

	// PagesExpired counts page instances deactivated for inactivity.
	PagesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nanotags_pages_expired_total",
			Help: "Total number of page instances expired after being idle",
		},
	)

	// SignalsReceived counts ingress signals.
	// Labels: type, source (http, kafka)
	SignalsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanotags_signals_received_total",
			Help: "Total number of page signals received",
		},
		[]string{"type", "source"},
	)

	// EntriesRecorded counts performance entries fed into page timelines.
	// Labels: kind
	EntriesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanotags_entries_recorded_total",
			Help: "Total number of performance entries recorded",
		},
		[]string{"kind"},
	)
)

// RecordReportSent records a delivered report.
func RecordReportSent(tag string) {
	ReportsSent.WithLabelValues(tag).Inc()
}

// RecordReportDropped records a report dropped before sending.
func RecordReportDropped(tag, reason string) {
	ReportsDropped.WithLabelValues(tag, reason).Inc()
}

// RecordSendFailure records a failed transmission.
func RecordSendFailure(tag string) {
	SendFailures.WithLabelValues(tag).Inc()
}

// RecordMetricFinalized records one finalized metric value.
func RecordMetricFinalized(metric string) {
	MetricsFinalized.WithLabelValues(metric).Inc()
}

// RecordSignal records an ingress signal.
func RecordSignal(signalType, source string) {
	SignalsReceived.WithLabelValues(signalType, source).Inc()
}

// RecordEntries records n entries of one kind.
func RecordEntries(kind string, n int) {
	EntriesRecorded.WithLabelValues(kind).Add(float64(n))
}

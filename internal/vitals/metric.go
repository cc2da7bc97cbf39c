package vitals

import "github.com/aspecsweb/nano-tags/internal/platform"

// Name identifies a metric.
type Name string

const (
	LCP  Name = "LCP"
	FID  Name = "FID"
	CLS  Name = "CLS"
	FCP  Name = "FCP"
	TTFB Name = "TTFB"
)

// Unit is the unit a metric value is expressed in.
type Unit string

const (
	Milliseconds Unit = "ms"
	Unitless     Unit = ""
)

const (
	metricTypeWebVital         = "web_vital"
	metricTypeNavigationTiming = "navigation_timing"
)

// Report is a finalized value ready to be merged into a payload.
type Report interface {
	Label() string
	Fields() map[string]interface{}
}

// Metric is a single web vital measurement.
type Metric struct {
	Name  Name
	Value float64
	Unit  Unit
}

func (m Metric) Label() string { return string(m.Name) }

func (m Metric) Fields() map[string]interface{} {
	return map[string]interface{}{
		"metric_type":  metricTypeWebVital,
		"metric_name":  string(m.Name),
		"metric_value": m.Value,
		"metric_unit":  string(m.Unit),
	}
}

// NavigationBreakdown holds interval durations derived from one navigation
// entry, all in milliseconds.
type NavigationBreakdown struct {
	DNSLookup      float64
	TCPConnection  float64
	ServerResponse float64
	DOMInteractive float64
	DOMComplete    float64
	PageLoad       float64
	TotalPageLoad  float64
}

// BreakdownFrom derives the navigation breakdown from a navigation entry.
func BreakdownFrom(nav platform.Entry) NavigationBreakdown {
	return NavigationBreakdown{
		DNSLookup:      nav.DomainLookupEnd - nav.DomainLookupStart,
		TCPConnection:  nav.ConnectEnd - nav.ConnectStart,
		ServerResponse: nav.ResponseEnd - nav.ResponseStart,
		DOMInteractive: nav.DomInteractive - nav.ResponseEnd,
		DOMComplete:    nav.DomComplete - nav.DomInteractive,
		PageLoad:       nav.LoadEventEnd - nav.LoadEventStart,
		TotalPageLoad:  nav.LoadEventEnd,
	}
}

func (b NavigationBreakdown) Label() string { return "NAV" }

func (b NavigationBreakdown) Fields() map[string]interface{} {
	return map[string]interface{}{
		"metric_type":     metricTypeNavigationTiming,
		"dns_lookup":      b.DNSLookup,
		"tcp_connection":  b.TCPConnection,
		"server_response": b.ServerResponse,
		"dom_interactive": b.DOMInteractive,
		"dom_complete":    b.DOMComplete,
		"page_load":       b.PageLoad,
		"total_page_load": b.TotalPageLoad,
	}
}

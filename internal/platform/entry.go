package platform

// Kind is a category of performance entry reported by the browser.
type Kind string

const (
	KindPaint                  Kind = "paint"
	KindLayoutShift            Kind = "layout-shift"
	KindFirstInput             Kind = "first-input"
	KindLargestContentfulPaint Kind = "largest-contentful-paint"
	KindNavigation             Kind = "navigation"
)

// AllKinds lists every kind the agent knows how to observe.
var AllKinds = []Kind{
	KindPaint,
	KindLayoutShift,
	KindFirstInput,
	KindLargestContentfulPaint,
	KindNavigation,
}

// historyLimit bounds the buffered history kept per kind.
const historyLimit = 1000

// Entry is one performance entry as serialized by PerformanceEntry.toJSON().
// Fields that only some kinds carry are pointers so that a missing field can be
// told apart from a zero value. Entries are treated as read-only once recorded.
type Entry struct {
	Name      string  `json:"name,omitempty"`
	EntryType Kind    `json:"entryType"`
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration,omitempty"`

	// first-input
	ProcessingStart *float64 `json:"processingStart,omitempty"`

	// layout-shift
	Value          *float64 `json:"value,omitempty"`
	HadRecentInput *bool    `json:"hadRecentInput,omitempty"`

	// largest-contentful-paint
	RenderTime float64 `json:"renderTime,omitempty"`
	LoadTime   float64 `json:"loadTime,omitempty"`
	Size       float64 `json:"size,omitempty"`

	// navigation
	DomainLookupStart float64 `json:"domainLookupStart,omitempty"`
	DomainLookupEnd   float64 `json:"domainLookupEnd,omitempty"`
	ConnectStart      float64 `json:"connectStart,omitempty"`
	ConnectEnd        float64 `json:"connectEnd,omitempty"`
	RequestStart      float64 `json:"requestStart,omitempty"`
	ResponseStart     float64 `json:"responseStart,omitempty"`
	ResponseEnd       float64 `json:"responseEnd,omitempty"`
	DomInteractive    float64 `json:"domInteractive,omitempty"`
	DomComplete       float64 `json:"domComplete,omitempty"`
	LoadEventStart    float64 `json:"loadEventStart,omitempty"`
	LoadEventEnd      float64 `json:"loadEventEnd,omitempty"`
}

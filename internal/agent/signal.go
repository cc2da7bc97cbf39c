package agent

import (
	"errors"
	"fmt"

	"github.com/aspecsweb/nano-tags/internal/config"
	"github.com/aspecsweb/nano-tags/internal/platform"
)

var (
	// ErrPageNotFound is returned for signals addressed to an unknown page.
	ErrPageNotFound = errors.New("page not found")
	// ErrRateLimited is returned when a page sends signals faster than allowed.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrInvalidSignal is returned for malformed signals.
	ErrInvalidSignal = errors.New("invalid signal")
)

// SignalType selects the operation a Signal performs.
type SignalType string

const (
	SignalActivate   SignalType = "activate"
	SignalEntries    SignalType = "entries"
	SignalLifecycle  SignalType = "lifecycle"
	SignalEvent      SignalType = "event"
	SignalDeactivate SignalType = "deactivate"
)

// signalInvalid labels signals of unknown type in metrics.
const signalInvalid = "invalid"

// Known reports whether t is one of the signal types above.
func (t SignalType) Known() bool {
	switch t {
	case SignalActivate, SignalEntries, SignalLifecycle, SignalEvent, SignalDeactivate:
		return true
	}
	return false
}

// Event channels.
const (
	ChannelAnalytics = "analytics"
	ChannelCustom    = "custom"
)

// Signal is the envelope carried on the signals topic. Exactly the payload
// matching Type is read.
type Signal struct {
	Type       SignalType       `json:"type"`
	PageID     string           `json:"page_id,omitempty"`
	Activation *Activation      `json:"activation,omitempty"`
	Entries    []platform.Entry `json:"entries,omitempty"`
	Lifecycle  *LifecycleSignal `json:"lifecycle,omitempty"`
	Event      *EventSignal     `json:"event,omitempty"`
}

// Activation describes a tag element being mounted on a page.
type Activation struct {
	PageID string `json:"page_id,omitempty"`
	// Tags lists the hosted tags. Empty hosts all of them.
	Tags       []string `json:"tags,omitempty"`
	ProjectKey string   `json:"project_key"`
	// SessionIDs carries ids the browser already persisted, per tag.
	SessionIDs map[string]string `json:"session_ids,omitempty"`
	BrowserID  string            `json:"browser_id,omitempty"`

	UserAgent string `json:"user_agent"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Referrer  string `json:"referrer"`
	Path      string `json:"path"`

	ReadyState      platform.ReadyState `json:"ready_state,omitempty"`
	VisibilityState platform.Visibility `json:"visibility_state,omitempty"`
	// SupportedEntryTypes is PerformanceObserver.supportedEntryTypes. When
	// absent the agent derives capabilities from the user agent.
	SupportedEntryTypes []string `json:"supported_entry_types,omitempty"`
	// Entries is the timeline the page buffered before the tag was mounted.
	// They are recorded before any extractor starts.
	Entries []platform.Entry `json:"entries,omitempty"`
}

func (a *Activation) validate() error {
	for _, tag := range a.Tags {
		switch tag {
		case config.TagInsights, config.TagAnalytics, config.TagCustom:
		default:
			return fmt.Errorf("%w: unknown tag %q", ErrInvalidSignal, tag)
		}
	}
	return nil
}

func (a *Activation) hosts(tag string) bool {
	if len(a.Tags) == 0 {
		return true
	}
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// LifecycleSignal is a page lifecycle transition. URL, Title and Path are read
// for popstate, which is how in-page navigation reaches the agent.
type LifecycleSignal struct {
	Type            platform.EventType  `json:"type"`
	ReadyState      platform.ReadyState `json:"ready_state,omitempty"`
	VisibilityState platform.Visibility `json:"visibility_state,omitempty"`
	URL             string              `json:"url,omitempty"`
	Title           string              `json:"title,omitempty"`
	Path            string              `json:"path,omitempty"`
}

func (l *LifecycleSignal) validate() error {
	switch l.Type {
	case platform.EventReadyStateChange:
		if !l.ReadyState.Valid() {
			return fmt.Errorf("%w: ready state %q", ErrInvalidSignal, l.ReadyState)
		}
	case platform.EventVisibilityChange:
		if !l.VisibilityState.Valid() {
			return fmt.Errorf("%w: visibility state %q", ErrInvalidSignal, l.VisibilityState)
		}
	case platform.EventLoad, platform.EventBeforeUnload, platform.EventPopState:
	default:
		return fmt.Errorf("%w: lifecycle type %q", ErrInvalidSignal, l.Type)
	}
	return nil
}

// EventSignal is an application event published on one of the page's buses.
type EventSignal struct {
	Channel string      `json:"channel"`
	Name    string      `json:"name"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *EventSignal) validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: event name required", ErrInvalidSignal)
	}
	switch e.Channel {
	case ChannelAnalytics:
	case ChannelCustom:
		if e.Data == nil {
			return nil
		}
		if _, ok := e.Data.(map[string]interface{}); !ok {
			return fmt.Errorf("%w: custom event data must be an object", ErrInvalidSignal)
		}
	default:
		return fmt.Errorf("%w: event channel %q", ErrInvalidSignal, e.Channel)
	}
	return nil
}

package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/aspecsweb/nano-tags/internal/config"
	"github.com/aspecsweb/nano-tags/internal/metrics"
	"github.com/aspecsweb/nano-tags/internal/platform"
	"github.com/aspecsweb/nano-tags/internal/report"
	"github.com/aspecsweb/nano-tags/internal/session"
	"github.com/aspecsweb/nano-tags/internal/tracker"
	"github.com/aspecsweb/nano-tags/internal/vitals"
)

// Sender is the part of report.Reporter a page instance needs.
type Sender interface {
	Send(sc report.Context, data map[string]interface{})
}

// ProjectResolver finds a project key for a page.
type ProjectResolver interface {
	Resolve(ctx context.Context, projectKey, pageURL string) (string, error)
}

// Registry hosts page instances. Pages idle for longer than pages.idle_ttl, or
// pushed out by pages.max_pages, are deactivated.
type Registry struct {
	cfg      *config.Config
	sessions session.Store
	projects ProjectResolver
	senders  map[string]Sender

	// activations collapses concurrent activations of one page id. mu guards
	// the check-and-add and the check-and-remove of pages.
	activations singleflight.Group
	mu          sync.Mutex
	pages       *expirable.LRU[string, *Instance]
}

// NewRegistry creates a registry. senders maps each tag to its reporter; a
// tag without a sender cannot be hosted.
func NewRegistry(cfg *config.Config, sessions session.Store, projects ProjectResolver, senders map[string]Sender) *Registry {
	r := &Registry{
		cfg:      cfg,
		sessions: sessions,
		projects: projects,
		senders:  senders,
	}
	r.pages = expirable.NewLRU[string, *Instance](cfg.Pages.MaxPages, r.onEvict, cfg.Pages.IdleTTL)
	return r
}

func (r *Registry) onEvict(id string, in *Instance) {
	if in.Deactivate() {
		metrics.PagesExpired.Inc()
		log.Debug().Str("page_id", id).Msg("Page expired")
	}
}

// Activate mounts the tags named in a. Activating an id that is already
// hosted returns the existing instance.
func (r *Registry) Activate(ctx context.Context, a Activation) (*Instance, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}

	id := a.PageID
	if id == "" {
		id = uuid.New().String()
	}

	if in, ok := r.hosted(id); ok {
		return in, nil
	}

	v, err, _ := r.activations.Do(id, func() (interface{}, error) {
		if in, ok := r.hosted(id); ok {
			return in, nil
		}

		// project and session lookups may hit the network; no lock is held
		in, err := r.build(ctx, id, a)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if existing, ok := r.pages.Get(id); ok && !existing.deactivated.Load() {
			return existing, nil
		}
		metrics.ActivePages.Inc()
		in.record(a.Entries)
		in.start()
		r.pages.Add(id, in)

		log.Info().
			Str("page_id", id).
			Str("project_key", in.base.ProjectKey).
			Strs("tags", a.Tags).
			Int("entries", len(a.Entries)).
			Msg("Page activated")
		return in, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Instance), nil
}

func (r *Registry) hosted(id string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.pages.Get(id)
	if !ok || in.deactivated.Load() {
		return nil, false
	}
	return in, true
}

func (r *Registry) build(ctx context.Context, id string, a Activation) (*Instance, error) {
	projectKey, err := r.projects.Resolve(ctx, a.ProjectKey, a.URL)
	if err != nil {
		// reports without a key are dropped with a warning downstream
		log.Warn().Err(err).Str("page_id", id).Msg("Failed to resolve project key")
		projectKey = a.ProjectKey
	}

	supported := platform.CapabilitiesFor(a.UserAgent)
	if a.SupportedEntryTypes != nil {
		supported = platform.ParseKinds(a.SupportedEntryTypes)
	}

	in := &Instance{
		id: id,
		page: platform.NewPage(platform.PageOptions{
			Supported:  supported,
			ReadyState: a.ReadyState,
			Visibility: a.VisibilityState,
		}),
		limiter:      newLimiter(r.cfg.RateLimit),
		analyticsBus: tracker.NewBus[tracker.AnalyticsEvent](),
		customBus:    tracker.NewBus[tracker.CustomEvent](),
		base: report.Context{
			ProjectKey: projectKey,
			UserAgent:  a.UserAgent,
			Referrer:   a.Referrer,
			URL:        a.URL,
			Title:      a.Title,
			Path:       a.Path,
		},
		sessions: make(map[string]string),
	}

	for _, tag := range []string{config.TagInsights, config.TagAnalytics, config.TagCustom} {
		if !a.hosts(tag) {
			continue
		}
		sender, ok := r.senders[tag]
		if !ok {
			return nil, fmt.Errorf("%w: tag %q is not configured", ErrInvalidSignal, tag)
		}

		sid, err := r.sessions.Resolve(ctx, a.BrowserID, tag, a.SessionIDs[tag])
		if err != nil {
			log.Warn().Err(err).Str("page_id", id).Str("tag", tag).Msg("Session store unavailable, using a fresh session id")
			sid = uuid.New().String()
		}
		in.sessions[tag] = sid

		switch tag {
		case config.TagInsights:
			in.engine = vitals.NewEngine(in.page, sender, in.contextFunc(tag), r.cfg.Vitals)
		case config.TagAnalytics:
			in.pageViews = tracker.NewPageViewTracker(in.page, in.analyticsBus, sender, in.contextFunc(tag))
		case config.TagCustom:
			in.custom = tracker.NewCustomTracker(in.customBus, sender, in.contextFunc(tag))
		}
	}

	return in, nil
}

// Get returns a hosted page and marks it as used.
func (r *Registry) Get(id string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.pages.Get(id)
	if !ok || in.deactivated.Load() {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	// re-adding restarts the idle timer
	r.pages.Add(id, in)
	return in, nil
}

// Deactivate unmounts a page. Unknown ids return ErrPageNotFound.
func (r *Registry) Deactivate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.pages.Peek(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	in.Deactivate()
	r.pages.Remove(id)
	log.Debug().Str("page_id", id).Msg("Page deactivated")
	return nil
}

// Len returns the number of hosted pages.
func (r *Registry) Len() int {
	return r.pages.Len()
}

// Close deactivates every hosted page.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.pages.Keys() {
		if in, ok := r.pages.Peek(id); ok {
			in.Deactivate()
		}
	}
	r.pages.Purge()
}

// Apply performs one signal. source labels the ingress for metrics. It
// returns the id of the page the signal applied to.
func (r *Registry) Apply(ctx context.Context, sig Signal, source string) (string, error) {
	if !sig.Type.Known() {
		metrics.RecordSignal(signalInvalid, source)
		return sig.PageID, fmt.Errorf("%w: signal type %q", ErrInvalidSignal, sig.Type)
	}
	metrics.RecordSignal(string(sig.Type), source)

	if sig.Type == SignalActivate {
		if sig.Activation == nil {
			return "", fmt.Errorf("%w: activation payload required", ErrInvalidSignal)
		}
		a := *sig.Activation
		if a.PageID == "" {
			a.PageID = sig.PageID
		}
		in, err := r.Activate(ctx, a)
		if err != nil {
			return "", err
		}
		return in.ID(), nil
	}

	if sig.PageID == "" {
		return "", fmt.Errorf("%w: page_id required", ErrInvalidSignal)
	}

	if sig.Type == SignalDeactivate {
		return sig.PageID, r.Deactivate(sig.PageID)
	}

	in, err := r.Get(sig.PageID)
	if err != nil {
		return sig.PageID, err
	}
	if !in.limiter.Allow() {
		return sig.PageID, fmt.Errorf("%w: page %s", ErrRateLimited, sig.PageID)
	}

	switch sig.Type {
	case SignalEntries:
		in.record(sig.Entries)
	case SignalLifecycle:
		if sig.Lifecycle == nil {
			return sig.PageID, fmt.Errorf("%w: lifecycle payload required", ErrInvalidSignal)
		}
		if err := sig.Lifecycle.validate(); err != nil {
			return sig.PageID, err
		}
		in.lifecycle(sig.Lifecycle)
	case SignalEvent:
		if sig.Event == nil {
			return sig.PageID, fmt.Errorf("%w: event payload required", ErrInvalidSignal)
		}
		if err := sig.Event.validate(); err != nil {
			return sig.PageID, err
		}
		if in.publish(sig.Event) == 0 {
			log.Debug().
				Str("page_id", sig.PageID).
				Str("channel", sig.Event.Channel).
				Msg("No tracker subscribed to event channel")
		}
	default:
		return sig.PageID, fmt.Errorf("%w: signal type %q", ErrInvalidSignal, sig.Type)
	}
	return sig.PageID, nil
}

// Package engine keeps the local view model in sync with the taxi location
// feed and binds polling to a route once the route service accepts it.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"taxitrack/internal/location"
	"taxitrack/internal/metrics"
	"taxitrack/internal/route"
	"taxitrack/internal/scope"
	"taxitrack/internal/viewmodel"
)

var (
	// ErrFetchInFlight is returned by Refresh when a previous fetch is still outstanding.
	ErrFetchInFlight = errors.New("feed fetch already in flight")
	// ErrStaleScope means the scope changed while the fetch was outstanding.
	ErrStaleScope = errors.New("scope changed during fetch")
	// ErrStopped means the loop was stopped while the fetch was outstanding.
	ErrStopped = errors.New("sync loop stopped")
	// ErrSubmissionInFlight is returned when the same route is already being submitted.
	ErrSubmissionInFlight = errors.New("route submission already in flight")
)

// Feed is the location feed client.
type Feed interface {
	Fetch(ctx context.Context, s scope.Scope) ([]location.Position, error)
}

// Publisher receives every merged snapshot. Publish must not block; the
// snapshot is owned by the publisher.
type Publisher interface {
	Publish(vm viewmodel.ViewModel)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(vm viewmodel.ViewModel)

func (f PublisherFunc) Publish(vm viewmodel.ViewModel) { f(vm) }

// Options tune the sync loop. Zero values take defaults.
type Options struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

const (
	DefaultInterval     = 2 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// Engine owns the working copy of the view model and the route scope.
type Engine struct {
	feed         Feed
	submitter    route.Submitter
	policy       viewmodel.Policy
	publisher    Publisher
	scope        *scope.Machine
	log          *slog.Logger
	interval     time.Duration
	fetchTimeout time.Duration

	// mu guards working, latest and every scope transition, so a merge and
	// the scope it was computed for are always consistent.
	mu      sync.Mutex
	working viewmodel.ViewModel
	latest  viewmodel.ViewModel
	// anchors are the pickup and dropoff of the routed model, kept apart
	// from working.Places which a global refresh may replace.
	anchors []viewmodel.Place

	inFlight atomic.Bool
	stopped  atomic.Bool
	wg       sync.WaitGroup

	submitMu   sync.Mutex
	submitting map[string]struct{}
}

// New wires an engine. publisher may be nil.
func New(feed Feed, submitter route.Submitter, policy viewmodel.Policy, publisher Publisher, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if publisher == nil {
		publisher = PublisherFunc(func(viewmodel.ViewModel) {})
	}
	e := &Engine{
		feed:         feed,
		submitter:    submitter,
		policy:       policy,
		publisher:    publisher,
		log:          opts.Logger.With("component", "engine"),
		interval:     opts.Interval,
		fetchTimeout: opts.FetchTimeout,
		working:      viewmodel.New(),
		latest:       viewmodel.New(),
		submitting:   make(map[string]struct{}),
	}
	e.scope = scope.NewMachine(e.onScopeChange)
	return e
}

func (e *Engine) onScopeChange(from, to scope.Scope) {
	label := "unscoped"
	if to.IsScoped() {
		label = "scoped"
	}
	metrics.ScopeTransitions.WithLabelValues(label).Inc()
	e.log.Info("scope changed", "from", from.String(), "to", to.String())
}

// Scope returns the current route scope.
func (e *Engine) Scope() scope.Scope {
	return e.scope.Current()
}

// Snapshot returns a private copy of the last published view model.
func (e *Engine) Snapshot() viewmodel.ViewModel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest.Clone()
}

// ViewModelChanged replaces the working copy with a clone of vm. An empty
// route list, or an active route other than the bound one, drops the scope.
func (e *Engine) ViewModelChanged(vm viewmodel.ViewModel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.working = vm.Clone()
	key, ok := stampActiveRoute(&e.working)
	e.anchors = nil
	if ok && len(e.working.Places) >= 2 {
		e.anchors = []viewmodel.Place{e.working.Places[0], e.working.Places[len(e.working.Places)-1]}
	}
	cur := e.scope.Current()
	if !ok || (cur.IsScoped() && cur.Key() != key) {
		e.scope.Clear()
	}
}

// RouteBuilt is called when the router produced a new model. The active
// route is submitted once; on acceptance polling is scoped to it. A failed
// submission leaves the engine unscoped and returns the error; resubmitting
// the same model is safe because the idempotency key is the route timestamp.
func (e *Engine) RouteBuilt(ctx context.Context, vm viewmodel.ViewModel) error {
	e.ViewModelChanged(vm)

	d, err := route.FromViewModel(vm)
	if errors.Is(err, route.ErrNoRoute) {
		return nil
	}
	if err != nil {
		return err
	}
	key := d.IdempotencyKey()
	if e.scope.Current().Key() == key {
		return nil
	}
	if !e.beginSubmit(key) {
		return ErrSubmissionInFlight
	}
	defer e.endSubmit(key)

	if err := e.submitter.Submit(ctx, d); err != nil {
		metrics.RouteSubmissions.WithLabelValues("failed").Inc()
		e.log.Warn("route submission failed", "key", key, "err", err)
		return err
	}
	metrics.RouteSubmissions.WithLabelValues("accepted").Inc()

	e.mu.Lock()
	defer e.mu.Unlock()
	if active, ok := stampActiveRoute(&e.working); !ok || active != key {
		e.log.Info("route superseded before acceptance", "key", key)
		return nil
	}
	return e.scope.Bind(key)
}

func (e *Engine) beginSubmit(key string) bool {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()
	if _, busy := e.submitting[key]; busy {
		return false
	}
	e.submitting[key] = struct{}{}
	return true
}

func (e *Engine) endSubmit(key string) {
	e.submitMu.Lock()
	delete(e.submitting, key)
	e.submitMu.Unlock()
}

// stampActiveRoute gives the active route the model timestamp when the
// router left it unset, and returns its key.
func stampActiveRoute(vm *viewmodel.ViewModel) (string, bool) {
	if len(vm.Routes) == 0 {
		return "", false
	}
	if vm.Routes[0].Timestamp == 0 {
		vm.Routes[0].Timestamp = vm.Timestamp
	}
	if vm.Routes[0].Timestamp == 0 {
		return "", false
	}
	return vm.Routes[0].Key(), true
}

// publishLocked hands the renderer its own copy. e.mu must be held.
func (e *Engine) publishLocked() {
	e.latest = e.working.Clone()
	e.publisher.Publish(e.latest.Clone())
}

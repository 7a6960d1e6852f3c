package engine

import (
	"context"
	"errors"
	"time"

	"taxitrack/internal/metrics"
	"taxitrack/internal/viewmodel"
)

// Run polls the feed every interval until ctx is done. A tick that finds the
// previous fetch still outstanding is skipped. On return no fetch is in
// flight; a fetch that completes after cancellation is discarded.
func (e *Engine) Run(ctx context.Context) {
	e.stopped.Store(false)
	fetchCtx := context.WithoutCancel(ctx)

	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			e.stopped.Store(true)
			e.wg.Wait()
			return
		case <-t.C:
			e.tick(fetchCtx)
			t.Reset(e.interval)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if e.inFlight.Load() {
		metrics.PollTicksSkipped.Inc()
		e.log.Debug("tick skipped, fetch in flight")
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Refresh(ctx); err != nil && !errors.Is(err, ErrFetchInFlight) {
			e.log.Debug("poll dropped", "err", err)
		}
	}()
}

// Refresh performs one fetch-merge-publish cycle synchronously. Errors leave
// the view model untouched; nothing is published for them.
func (e *Engine) Refresh(ctx context.Context) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		metrics.PollTicksSkipped.Inc()
		return ErrFetchInFlight
	}
	defer e.inFlight.Store(false)
	metrics.PollTicks.Inc()

	s := e.scope.Current()
	cctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	start := time.Now()
	positions, err := e.feed.Fetch(cctx, s)
	metrics.ObserveFetchLatency(start)
	if err != nil {
		metrics.FeedFetchErrors.Inc()
		return err
	}
	if e.stopped.Load() {
		metrics.StaleResults.Inc()
		return ErrStopped
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scope.Current() != s {
		metrics.StaleResults.Inc()
		return ErrStaleScope
	}
	if s.IsScoped() && !anchored(e.working.Places, e.anchors) {
		e.working.Places = append([]viewmodel.Place(nil), e.anchors...)
	}
	out := e.policy.Merge(&e.working, s, positions)
	if out.Unscope {
		// the trip is over; dropping the route keeps scope and routes in step
		e.working.Routes = []viewmodel.Route{}
		e.anchors = nil
		e.scope.ClearIf(s.Key())
	}
	metrics.Merges.WithLabelValues(string(out.Mode)).Inc()
	e.log.Debug("merged feed refresh", "scope", s.String(), "records", len(positions), "places", len(e.working.Places))
	e.publishLocked()
	return nil
}

// anchored reports whether places still starts at the pickup and ends at the
// dropoff. No anchors means there is nothing to restore.
func anchored(places, anchors []viewmodel.Place) bool {
	if len(anchors) != 2 {
		return true
	}
	return len(places) >= 2 && places[0] == anchors[0] && places[len(places)-1] == anchors[1]
}

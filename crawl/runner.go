package crawl

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/memoracle/memoracle"
	"golang.org/x/sync/errgroup"
)

// claimRetryDelay is how long an idle worker waits before re-checking
// for pending pages while peers are still in flight.
const claimRetryDelay = 50 * time.Millisecond

// runner is the shared state of one docset's background crawl. inFlight
// and stop are touched from every worker; the rate limiter serialises
// its own check-and-update.
type runner struct {
	inFlight atomic.Int64
	stop     atomic.Bool
	done     chan struct{}
}

// StartBackgroundCrawl launches the worker pool for a docset. It is a
// no-op when a runner is already active.
func (e *Engine) StartBackgroundCrawl(docsetID string) {
	e.mu.Lock()
	if e.runners == nil {
		e.runners = make(map[string]*runner)
	}
	if _, active := e.runners[docsetID]; active {
		e.mu.Unlock()
		return
	}
	r := &runner{done: make(chan struct{})}
	e.runners[docsetID] = r
	e.mu.Unlock()

	go e.runCrawl(docsetID, r)
}

// StopBackgroundCrawl requests a stop: outstanding fetches complete but
// no new work is claimed.
func (e *Engine) StopBackgroundCrawl(docsetID string) {
	e.mu.Lock()
	r, active := e.runners[docsetID]
	e.mu.Unlock()
	if active {
		r.stop.Store(true)
	}
}

// IsCrawling reports whether a docset has an active runner.
func (e *Engine) IsCrawling(docsetID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, active := e.runners[docsetID]
	return active
}

// WaitForCrawl blocks until the docset's active runner (if any) drains.
func (e *Engine) WaitForCrawl(ctx context.Context, docsetID string) error {
	e.mu.Lock()
	r, active := e.runners[docsetID]
	e.mu.Unlock()
	if !active {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runCrawl owns one docset's crawl from start to drain.
func (e *Engine) runCrawl(docsetID string, r *runner) {
	ctx := context.Background()
	defer func() {
		e.mu.Lock()
		delete(e.runners, docsetID)
		e.mu.Unlock()
		close(r.done)
	}()

	docset, err := e.Docsets.FindDocsetByID(ctx, docsetID)
	if err != nil {
		e.logger().Error("crawl runner aborted", "docset", docsetID, "error", err)
		return
	}

	if _, err := e.frontier(docsetID).LoadPending(ctx, docsetID); err != nil {
		e.logger().Warn("frontier hydration failed", "docset", docsetID, "error", err)
	}

	concurrency := e.Options.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g := new(errgroup.Group)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			e.crawlWorker(ctx, docset, r)
			return nil
		})
	}
	_ = g.Wait()

	if !r.stop.Load() {
		ready := memoracle.DocsetReady
		if _, err := e.Docsets.UpdateDocset(ctx, docsetID, memoracle.DocsetUpdate{Status: &ready}); err != nil {
			e.logger().Warn("failed to mark docset ready", "docset", docsetID, "error", err)
		}
		e.logger().Info("crawl finished", "docset", docsetID)
	}
}

// crawlWorker claims and processes pending pages until the docset
// drains or a stop is requested. The pool spawns exactly concurrency
// workers, each processing one page at a time, so inFlight never
// exceeds the cap.
func (e *Engine) crawlWorker(ctx context.Context, docset *memoracle.Docset, r *runner) {
	for !r.stop.Load() {
		page, err := e.Pages.ClaimNextPending(ctx, docset.ID)
		if err != nil {
			if memoracle.ErrorCode(err) != memoracle.ENOTFOUND {
				e.logger().Error("page claim failed", "docset", docset.ID, "error", err)
				return
			}
			// Peers still in flight may discover new links; wait for
			// them rather than exiting early.
			if r.inFlight.Load() > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(claimRetryDelay):
				}
				continue
			}
			// Last look: hydrate in case pages were created outside
			// this runner (e.g. a refresh racing the drain).
			if n, err := e.frontier(docset.ID).LoadPending(ctx, docset.ID); err == nil && n > 0 {
				continue
			}
			return
		}

		r.inFlight.Add(1)

		if err := e.limiter().Wait(ctx, docset.ID); err != nil {
			r.inFlight.Add(-1)
			return
		}

		if err := e.IndexPage(ctx, docset, page); err != nil {
			e.logger().Error("page pipeline failed", "url", page.URL, "error", err)
		}
		r.inFlight.Add(-1)
	}
}

// RecoverFromCrash resets pages stuck mid-pipeline, requeues retryable
// error pages, and restarts crawls for docsets with pending work. Run
// once on process start.
func (e *Engine) RecoverFromCrash(ctx context.Context) error {
	docsets, err := e.Docsets.FindDocsets(ctx, memoracle.DocsetFilter{})
	if err != nil {
		return err
	}

	threshold := e.Options.StuckThreshold
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}
	maxRetries := e.Options.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	cutoff := time.Now().UTC().Add(-threshold)

	for _, docset := range docsets {
		reset, err := e.Pages.ResetStuckPages(ctx, docset.ID, cutoff)
		if err != nil {
			return err
		}
		requeued, err := e.Pages.RequeueErrorPages(ctx, docset.ID, maxRetries)
		if err != nil {
			return err
		}

		status, err := e.Docsets.IndexStatus(ctx, docset.ID)
		if err != nil {
			return err
		}
		if status.PendingPages == 0 {
			continue
		}

		indexing := memoracle.DocsetIndexing
		if _, err := e.Docsets.UpdateDocset(ctx, docset.ID, memoracle.DocsetUpdate{Status: &indexing}); err != nil {
			return err
		}
		if err := e.Vectors.Init(ctx, docset.ID); err != nil {
			return err
		}
		e.logger().Info("recovered docset", "docset", docset.ID,
			"reset", reset, "requeued", requeued, "pending", status.PendingPages)
		e.StartBackgroundCrawl(docset.ID)
	}
	return nil
}

// DeleteDocset stops the docset's crawl, waits for it to drain, and
// destroys its pages, chunks, vectors and runtime state.
func (e *Engine) DeleteDocset(ctx context.Context, docsetID string) error {
	e.StopBackgroundCrawl(docsetID)
	if err := e.WaitForCrawl(ctx, docsetID); err != nil {
		return err
	}

	if err := e.Vectors.Init(ctx, docsetID); err != nil {
		return err
	}
	if err := e.Vectors.Clear(ctx, docsetID); err != nil {
		return err
	}
	if err := e.Docsets.DeleteDocset(ctx, docsetID); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.frontiers, docsetID)
	e.mu.Unlock()
	e.limiter().Forget(docsetID)
	return nil
}

// RefreshOptions tunes a docset refresh.
type RefreshOptions struct {
	// Force refreshes pages regardless of age.
	Force bool
	// MaxAge requeues pages last indexed before now-MaxAge. Zero selects
	// the 24h default.
	MaxAge time.Duration
	// FullReindex discards content hashes and validators so the
	// incremental short-circuits cannot fire.
	FullReindex bool
}

// DefaultRefreshMaxAge is the default staleness threshold for refresh.
const DefaultRefreshMaxAge = 24 * time.Hour

// RefreshPlan describes what a refresh queued.
type RefreshPlan struct {
	DocsetID        string `json:"docsetId"`
	QueuedPages     int    `json:"queuedPages"`
	PreservedHashes int    `json:"preservedHashes"`
	ClearedHashes   int    `json:"clearedHashes"`
}

// RefreshDocset requeues a docset's terminal pages for re-fetching. In
// incremental mode content hashes are preserved so unchanged pages skip
// re-embedding; a full reindex clears them.
func (e *Engine) RefreshDocset(ctx context.Context, docsetID string, opts RefreshOptions) (*RefreshPlan, error) {
	docset, err := e.Docsets.FindDocsetByID(ctx, docsetID)
	if err != nil {
		return nil, err
	}

	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultRefreshMaxAge
	}
	cutoff := time.Now().UTC().Add(-maxAge)

	pages, err := e.Pages.FindPages(ctx, memoracle.PageFilter{DocsetID: &docset.ID})
	if err != nil {
		return nil, err
	}

	plan := &RefreshPlan{DocsetID: docset.ID}
	empty := ""
	pending := memoracle.PagePending

	for _, page := range pages {
		switch page.Status {
		case memoracle.PageIndexed, memoracle.PageError, memoracle.PageSkipped:
		default:
			continue
		}
		if !opts.Force && page.Status == memoracle.PageIndexed &&
			page.IndexedAt != nil && page.IndexedAt.After(cutoff) {
			continue
		}

		// The retry count is never reset here: it only ever moves up,
		// via failPage and ResetStuckPages.
		upd := memoracle.PageUpdate{Status: &pending}
		if opts.FullReindex {
			upd.ContentHash = &empty
			upd.ETag = &empty
			upd.LastModified = &empty
			plan.ClearedHashes++
		} else if page.ContentHash != "" {
			plan.PreservedHashes++
		}
		if _, err := e.Pages.UpdatePage(ctx, page.ID, upd); err != nil {
			return nil, err
		}
		plan.QueuedPages++
	}

	if plan.QueuedPages > 0 {
		indexing := memoracle.DocsetIndexing
		if _, err := e.Docsets.UpdateDocset(ctx, docset.ID, memoracle.DocsetUpdate{Status: &indexing}); err != nil {
			return nil, err
		}
		if err := e.Vectors.Init(ctx, docset.ID); err != nil {
			return nil, err
		}
		e.StartBackgroundCrawl(docset.ID)
	}
	return plan, nil
}

// RefreshAll refreshes every docset.
func (e *Engine) RefreshAll(ctx context.Context, opts RefreshOptions) ([]*RefreshPlan, error) {
	docsets, err := e.Docsets.FindDocsets(ctx, memoracle.DocsetFilter{})
	if err != nil {
		return nil, err
	}

	plans := make([]*RefreshPlan, 0, len(docsets))
	for _, docset := range docsets {
		plan, err := e.RefreshDocset(ctx, docset.ID, opts)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package reconcile brings the local scrobble cache up to date with the
// remote history and resolves the genre tags of every artist seen.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ademuri/scrobble-moods/internal/cache"
	"github.com/ademuri/scrobble-moods/internal/remote"
	"github.com/ademuri/scrobble-moods/internal/tags"
)

// Status summarizes how a reconciliation ended.
type Status string

const (
	// StatusComplete means every page was fetched.
	StatusComplete Status = "complete"
	// StatusPartial means some pages were merged before paging stopped.
	StatusPartial Status = "partial"
	// StatusCacheOnly means no page could be fetched; the cache is unchanged.
	StatusCacheOnly Status = "cache_only"
	// StatusFailed means a fatal remote error aborted the run.
	StatusFailed Status = "failed"
	// StatusFresh means the cache was recent enough that nothing was fetched.
	StatusFresh Status = "fresh"
)

type Config struct {
	// MaxAttempts is the number of tries per remote call, first included.
	MaxAttempts     uint
	RetryDelay      time.Duration
	MaxRetryDelay   time.Duration
	RequestsPerSec  float64
	CheckpointPages int
	// RefreshInterval is how long a complete cache counts as fresh.
	RefreshInterval time.Duration
	Now             func() time.Time
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		RetryDelay:      2 * time.Second,
		MaxRetryDelay:   30 * time.Second,
		RequestsPerSec:  4,
		CheckpointPages: 50,
		RefreshInterval: time.Hour,
		Now:             time.Now,
	}
}

type Request struct {
	User  string
	Since time.Time
	// Force ignores the cached boundary and the freshness check.
	Force bool
}

type Result struct {
	RunID           string
	Status          Status
	ResumeFrom      time.Time
	PagesFetched    int
	EventsAdded     int
	EntitiesFetched int
	// EntitiesFailed counts lookups that failed this run and were left
	// uncached.
	EntitiesFailed int
	// Err is the error that stopped paging, if any.
	Err error

	failed map[string]struct{}
}

// Reconciler owns the caches for the duration of a run.
type Reconciler struct {
	events  remote.PagedEventSource
	tags    remote.EntityTagSource
	store   cache.Persister
	caches  *cache.Caches
	config  Config
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func New(events remote.PagedEventSource, tagSource remote.EntityTagSource, store cache.Persister, caches *cache.Caches, config Config, logger zerolog.Logger) *Reconciler {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 1
	}
	limit := rate.Inf
	if config.RequestsPerSec > 0 {
		limit = rate.Limit(config.RequestsPerSec)
	}
	return &Reconciler{
		events:  events,
		tags:    tagSource,
		store:   store,
		caches:  caches,
		config:  config,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With().Str("component", "reconcile").Logger(),
	}
}

// Caches returns the caches the reconciler reads and writes.
func (r *Reconciler) Caches() *cache.Caches {
	return r.caches
}

// Save persists both caches.
func (r *Reconciler) Save() error {
	if err := r.caches.Save(r.store); err != nil {
		return fmt.Errorf("saving cache: %w", err)
	}
	return nil
}

// Reconcile fetches the events missing from the cache, merges them and
// resolves their artists' tags. Remote failures are reported through the
// result's Status and Err; the returned error is only for failures to
// persist the cache.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), failed: make(map[string]struct{})}
	logger := r.logger.With().Str("run_id", res.RunID).Str("user", req.User).Logger()
	events := r.caches.Events

	state := events.State()
	now := r.config.Now()
	if !req.Force && state.Complete && !state.LastFetchedAt.IsZero() && now.Sub(state.LastFetchedAt) < r.config.RefreshInterval {
		res.Status = StatusFresh
		logger.Info().Time("last_fetched_at", state.LastFetchedAt).Msg("Cache is fresh, not fetching")
		return res, nil
	}

	// Pages arrive newest first, so only the last complete run's boundary
	// marks history with no gaps below it.
	boundary, hasBoundary := events.FetchBoundary()
	res.ResumeFrom = req.Since
	if !req.Force && hasBoundary {
		if next := boundary.Add(time.Second); next.After(res.ResumeFrom) {
			res.ResumeFrom = next
		}
	}
	logger.Info().
		Time("resume_from", res.ResumeFrom).
		Bool("force", req.Force).
		Int("cached_events", events.Len()).
		Msg("Starting reconciliation")

	token := ""
	for {
		page, err := r.fetchPage(ctx, req.User, res.ResumeFrom, token)
		if err != nil {
			res.Err = err
			break
		}
		res.PagesFetched++

		if len(page.Events) == 0 {
			logger.Debug().Int("page", res.PagesFetched).Msg("Empty page, stopping")
			break
		}
		if !req.Force && hasBoundary && allAtOrBefore(page.Events, boundary) {
			logger.Warn().Int("page", res.PagesFetched).Msg("Page holds only cached events, stopping")
			break
		}

		added := events.Merge(page.Events)
		res.EventsAdded += added
		logger.Info().
			Int("page", res.PagesFetched).
			Int("total_pages", page.TotalPages).
			Int("added", added).
			Msg("Merged page")

		if err := r.resolvePage(ctx, page.Events, res); err != nil {
			res.Err = err
			break
		}

		if r.config.CheckpointPages > 0 && res.PagesFetched%r.config.CheckpointPages == 0 {
			if err := r.Save(); err != nil {
				return res, err
			}
			logger.Info().Int("page", res.PagesFetched).Msg("Checkpoint saved")
		}

		if page.Next == "" {
			break
		}
		token = page.Next
	}

	res.Status = status(res)
	if res.Status == StatusComplete || res.Status == StatusPartial {
		r.sweep(ctx, res, logger)
	}

	switch res.Status {
	case StatusComplete:
		logger.Info().Int("pages", res.PagesFetched).Int("added", res.EventsAdded).Msg("Reconciliation complete")
	case StatusPartial:
		logger.Warn().Err(res.Err).Int("pages", res.PagesFetched).Msg("Reconciliation stopped early, keeping partial results")
	case StatusCacheOnly:
		logger.Warn().Err(res.Err).Msg("Remote unavailable, using cached data only")
	case StatusFailed:
		logger.Error().Err(res.Err).Msg("Reconciliation aborted")
	}

	if res.PagesFetched == 0 && res.EntitiesFetched == 0 {
		return res, nil
	}
	if res.PagesFetched > 0 {
		events.MarkFetched(now, res.Status == StatusComplete)
	}
	if err := r.Save(); err != nil {
		return res, err
	}
	return res, nil
}

func status(res *Result) Status {
	switch {
	case res.Err == nil:
		return StatusComplete
	case errors.Is(res.Err, remote.ErrFatal):
		return StatusFailed
	case res.PagesFetched == 0:
		return StatusCacheOnly
	default:
		return StatusPartial
	}
}

// resolvePage looks up the tags of every artist on the page. Only fatal
// errors and cancellation stop it; other failures are counted and the
// artist is retried on a later run.
func (r *Reconciler) resolvePage(ctx context.Context, page []cache.Event, res *Result) error {
	for _, e := range page {
		if err := r.resolve(ctx, e.Artist, res); err != nil {
			return err
		}
	}
	return nil
}

// sweep resolves cached artists that still have no record, such as those
// whose lookup failed on an earlier run. Lookups that already failed in
// this run are left for the next one.
func (r *Reconciler) sweep(ctx context.Context, res *Result, logger zerolog.Logger) {
	for _, artist := range r.caches.Events.Artists() {
		key := tags.EntityKey(artist)
		if _, ok := r.caches.Entities.Lookup(key); ok {
			continue
		}
		if _, ok := res.failed[key]; ok {
			continue
		}
		if err := r.resolve(ctx, artist, res); err != nil {
			logger.Warn().Err(err).Msg("Stopping tag sweep")
			if errors.Is(err, remote.ErrFatal) {
				res.Err = err
				res.Status = StatusFailed
			}
			return
		}
	}
}

func (r *Reconciler) resolve(ctx context.Context, artist string, res *Result) error {
	key := tags.EntityKey(artist)
	if key == "" {
		return nil
	}
	_, err := r.caches.Entities.Resolve(ctx, key, func(ctx context.Context) ([]string, error) {
		res.EntitiesFetched++
		var result []string
		err := r.withRetry(ctx, func() error {
			var err error
			result, err = r.tags.FetchTags(ctx, artist)
			return err
		})
		if errors.Is(err, remote.ErrNotFound) {
			return nil, cache.ErrNoData
		}
		return result, err
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, remote.ErrFatal) || ctx.Err() != nil {
		return err
	}
	res.EntitiesFailed++
	res.failed[key] = struct{}{}
	r.logger.Warn().Err(err).Str("artist", artist).Msg("Tag lookup failed, will retry next run")
	return nil
}

func (r *Reconciler) fetchPage(ctx context.Context, user string, from time.Time, token string) (remote.Page, error) {
	var page remote.Page
	err := r.withRetry(ctx, func() error {
		var err error
		page, err = r.events.FetchPage(ctx, user, from, token)
		return err
	})
	if err != nil {
		return remote.Page{}, fmt.Errorf("fetching page %q: %w", token, err)
	}
	return page, nil
}

// withRetry paces fn with the rate limiter and retries transient failures
// with exponential backoff.
func (r *Reconciler) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		func() error {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
			return fn()
		},
		retry.Context(ctx),
		retry.Attempts(r.config.MaxAttempts),
		retry.Delay(r.config.RetryDelay),
		retry.MaxDelay(r.config.MaxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(remote.IsTransient),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Debug().Uint("attempt", n+1).Err(err).Msg("Retrying remote call")
		}),
	)
}

func allAtOrBefore(events []cache.Event, boundary time.Time) bool {
	b := boundary.Unix()
	for _, e := range events {
		if e.Timestamp > b {
			return false
		}
	}
	return true
}

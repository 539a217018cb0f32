package board

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fenwerk/dispatch-go/internal/api"
)

// refetchTimeout bounds a single background refetch round trip.
const refetchTimeout = 30 * time.Second

// maxConcurrentMonthFetches caps the per-month fan-out of one refetch.
const maxConcurrentMonthFetches = 4

// Snapshot is an immutable copy of one key's value, captured before an
// optimistic patch. Created at the start of an executor cycle, used to
// overwrite the store on failure, always discarded after settlement.
type Snapshot struct {
	key     Key
	value   *CalendarBatch // deep copy; nil when the bucket was absent
	present bool
}

// bucket holds one key's cached value. gen is bumped by every local write
// and by CancelInFlight; a refetch response whose starting gen no longer
// matches is dropped instead of installed, so a stale read can never clobber
// an optimistic patch. refetchQueued records an Invalidate that arrived while
// a fetch was already in flight, so the key gets a fresh round once that
// fetch settles instead of keeping a response read before the invalidation.
type bucket struct {
	value         *CalendarBatch
	gen           uint64
	stale         bool
	fetching      bool
	refetchQueued bool
}

// Store is the key-addressed cache of query results that the rest of the
// engine reads and mutates. All mutation goes through Patch/Restore so every
// write site is auditable; side effects are confined to the named key.
type Store struct {
	fetcher BatchFetcher
	logger  *slog.Logger
	metrics *Metrics

	// onRefetch is invoked after a refetched value is installed. The
	// warm-start cache file uses it to persist server-confirmed batches.
	onRefetch func(Key, *CalendarBatch)

	mu      stdsync.Mutex
	buckets map[Key]*bucket
}

// NewStore creates a cache store. fetcher may be nil, in which case
// Invalidate only marks values stale (used by tests and offline rendering).
func NewStore(fetcher BatchFetcher, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		fetcher: fetcher,
		logger:  logger,
		buckets: make(map[Key]*bucket),
	}
}

// SetMetrics attaches engine metrics. Optional; nil disables instrumentation.
func (s *Store) SetMetrics(m *Metrics) {
	s.metrics = m
}

// SetRefetchHook registers a callback invoked with every freshly installed
// server-confirmed value. Must be called before any refetch is triggered.
func (s *Store) SetRefetchHook(fn func(Key, *CalendarBatch)) {
	s.onRefetch = fn
}

// Read returns a deep copy of the key's current value. The second return is
// false when no value has been installed for the key.
func (s *Store) Read(key Key) (*CalendarBatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || b.value == nil {
		return nil, false
	}

	return b.value.Clone(), true
}

// TakeSnapshot captures the key's current value for later Restore.
func (s *Store) TakeSnapshot(key Key) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || b.value == nil {
		return Snapshot{key: key}
	}

	return Snapshot{key: key, value: b.value.Clone(), present: true}
}

// Patch replaces the stored value with updater(current). The updater is
// handed a private copy and must be pure. When no value is installed yet the
// updater receives nil and its result is ignored — patches applied before
// the first successful fetch are silently dropped rather than crashing.
func (s *Store) Patch(key Key, updater func(*CalendarBatch) *CalendarBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || b.value == nil {
		// No-op per contract; still call the updater with nil so pure
		// updaters keep a single code path.
		_ = updater(nil)
		return
	}

	next := updater(b.value.Clone())
	if next == nil {
		return
	}

	b.value = next
	b.gen++
}

// Restore overwrites the key's value with the snapshot. Used only on
// mutation failure.
func (s *Store) Restore(key Key, snap Snapshot) {
	if snap.key != key {
		s.logger.Warn("restore with mismatched snapshot key",
			slog.String("key", string(key)),
			slog.String("snapshot_key", string(snap.key)),
		)

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.ensureBucketLocked(key)

	if snap.present {
		b.value = snap.value.Clone()
	} else {
		b.value = nil
	}

	b.gen++
}

// CancelInFlight suppresses any refetch response currently in flight for the
// key. Called before applying an optimistic patch so a stale read cannot
// overwrite the patch after the fact.
func (s *Store) CancelInFlight(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.ensureBucketLocked(key)
	b.gen++
}

// Invalidate marks the key stale and triggers a background refetch from the
// authoritative source. It never blocks the caller.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()

	b := s.ensureBucketLocked(key)
	b.stale = true

	if s.fetcher == nil {
		s.mu.Unlock()
		return
	}

	if b.fetching {
		// A fetch is already in flight, but its response predates this
		// invalidation. Queue one follow-up round for when it settles.
		b.refetchQueued = true
		s.mu.Unlock()

		return
	}

	b.fetching = true
	gen := b.gen
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
		defer cancel()

		if err := s.refetch(ctx, key, gen); err != nil {
			s.logger.Warn("background refetch failed",
				slog.String("key", string(key)),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Refresh fetches the key synchronously and installs the result. Used by the
// CLI host when it needs authoritative data before rendering.
func (s *Store) Refresh(ctx context.Context, key Key) error {
	if s.fetcher == nil {
		return fmt.Errorf("board: no fetcher configured for refresh of %s", key)
	}

	s.mu.Lock()
	gen := s.ensureBucketLocked(key).gen
	s.mu.Unlock()

	return s.refetch(ctx, key, gen)
}

// Prime installs a value without a fetch, marking it stale so the next
// Invalidate reconciles it. Used for warm-start from the persisted cache.
func (s *Store) Prime(key Key, value *CalendarBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.ensureBucketLocked(key)
	b.value = value.Clone()
	b.stale = true
	b.gen++
}

// Stale reports whether the key is marked stale.
func (s *Store) Stale(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]

	return ok && b.stale
}

// refetch fetches all months of a calendar key, one request per month fanned
// out through an errgroup, merges the responses, and installs the result —
// unless the bucket's generation moved while the fetch was in flight, in
// which case the response is dropped (it lost the race to a local write) and
// a fresh round is scheduled so the key still converges on server truth.
func (s *Store) refetch(ctx context.Context, key Key, startGen uint64) error {
	months := MonthsOf(key)
	if len(months) == 0 {
		s.settleFetch(key)
		return fmt.Errorf("board: key %s has no months to refetch", key)
	}

	batches := make([]*api.CalendarBatch, len(months))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentMonthFetches)

	for i, m := range months {
		g.Go(func() error {
			batch, err := s.fetcher.FetchCalendarBatch(gctx, []string{string(m)})
			if err != nil {
				return fmt.Errorf("board: refetch month %s: %w", m, err)
			}

			batches[i] = batch

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.settleFetch(key)
		return err
	}

	merged := FromAPIBatch(mergeBatches(batches))

	s.mu.Lock()

	b := s.ensureBucketLocked(key)
	if b.gen != startGen {
		// Lost the race to a local write. Clear fetching before
		// rescheduling so the follow-up round can claim the bucket; the
		// key is still stale, so it reconciles on the next pass.
		b.fetching = false
		b.refetchQueued = false
		stillStale := b.stale
		s.mu.Unlock()

		s.logger.Debug("dropping stale refetch response", slog.String("key", string(key)))
		s.metrics.refetchDropped()

		if stillStale {
			s.Invalidate(key)
		}

		return nil
	}

	queued := b.refetchQueued
	b.refetchQueued = false
	b.value = merged
	b.stale = queued
	b.fetching = false
	s.mu.Unlock()

	s.metrics.refetchDone()

	if queued {
		s.Invalidate(key)
	}

	if s.onRefetch != nil {
		s.onRefetch(key, merged)
	}

	s.logger.Debug("refetch installed",
		slog.String("key", string(key)),
		slog.Int("deliveries", len(merged.Deliveries)),
		slog.Int("unassigned", len(merged.Unassigned)),
	)

	return nil
}

// settleFetch clears the key's in-flight marker after a failed round. When an
// Invalidate was queued during the flight, a fresh round is started so the
// request is not lost to the failure.
func (s *Store) settleFetch(key Key) {
	s.mu.Lock()

	b, ok := s.buckets[key]
	if !ok {
		s.mu.Unlock()
		return
	}

	b.fetching = false
	queued := b.refetchQueued
	b.refetchQueued = false
	s.mu.Unlock()

	if queued {
		s.Invalidate(key)
	}
}

// ensureBucketLocked returns the bucket for key, creating it if needed.
// Caller must hold s.mu.
func (s *Store) ensureBucketLocked(key Key) *bucket {
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{}
		s.buckets[key] = b
	}

	return b
}

// mergeBatches concatenates per-month batch responses into one.
func mergeBatches(batches []*api.CalendarBatch) *api.CalendarBatch {
	out := &api.CalendarBatch{
		WorkingDays: make(map[string]bool),
		Holidays:    make(map[string]string),
	}

	for _, b := range batches {
		if b == nil {
			continue
		}

		out.Deliveries = append(out.Deliveries, b.Deliveries...)
		out.Unassigned = append(out.Unassigned, b.Unassigned...)

		for k, v := range b.WorkingDays {
			out.WorkingDays[k] = v
		}

		for k, v := range b.Holidays {
			out.Holidays[k] = v
		}
	}

	return out
}

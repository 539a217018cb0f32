package board

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwerk/dispatch-go/internal/api"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// --- Mock fetcher (store-prefixed to avoid collision with executor mocks) ---

type storeMockFetcher struct {
	mu      stdsync.Mutex
	byMonth map[string]*api.CalendarBatch
	queue   []*api.CalendarBatch // per-call responses, consumed before byMonth
	calls   int
	err     error
	gate    chan struct{} // when non-nil, FetchCalendarBatch blocks until closed
}

func newStoreMockFetcher() *storeMockFetcher {
	return &storeMockFetcher{byMonth: make(map[string]*api.CalendarBatch)}
}

func (f *storeMockFetcher) FetchCalendarBatch(_ context.Context, months []string) (*api.CalendarBatch, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	err := f.err

	var batch *api.CalendarBatch
	if len(f.queue) > 0 {
		batch = f.queue[0]
		f.queue = f.queue[1:]
	} else {
		batch = f.byMonth[months[0]]
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	if err != nil {
		return nil, err
	}

	if batch == nil {
		batch = &api.CalendarBatch{}
	}

	return batch, nil
}

func (f *storeMockFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func testBatch() *CalendarBatch {
	return &CalendarBatch{
		Deliveries: []Delivery{
			{
				ID:   "d1",
				Date: "2025-03-10",
				Members: []Member{
					{ID: 7, Order: &Order{ID: 7, Number: "A-7", Windows: 2}},
				},
			},
		},
		Unassigned: []Order{
			{ID: 42, Number: "A-42", Windows: 3, Sashes: 1, Value: 120000},
		},
		WorkingDays: map[Date]bool{"2025-03-15": true},
		Holidays:    map[Date]string{"2025-03-17": "St. Patrick's Day"},
	}
}

func TestStoreReadAbsent(t *testing.T) {
	s := NewStore(nil, discardLogger())

	_, ok := s.Read(CalendarKey("2025-03"))
	assert.False(t, ok)
}

func TestStoreReadReturnsCopy(t *testing.T) {
	s := NewStore(nil, discardLogger())
	key := CalendarKey("2025-03")

	s.Prime(key, testBatch())

	got, ok := s.Read(key)
	require.True(t, ok)

	// Mutating the returned value must not leak into the store.
	got.Deliveries[0].Members = nil

	again, ok := s.Read(key)
	require.True(t, ok)
	assert.Len(t, again.Deliveries[0].Members, 1)
}

func TestStorePatchAbsentIsNoOp(t *testing.T) {
	s := NewStore(nil, discardLogger())
	key := CalendarKey("2025-03")

	var sawNil bool

	s.Patch(key, func(b *CalendarBatch) *CalendarBatch {
		sawNil = b == nil
		return b
	})

	assert.True(t, sawNil)

	_, ok := s.Read(key)
	assert.False(t, ok, "patch before first fetch must not create a value")
}

func TestStorePatchAppliesUpdater(t *testing.T) {
	s := NewStore(nil, discardLogger())
	key := CalendarKey("2025-03")
	s.Prime(key, testBatch())

	s.Patch(key, patchAddOrder("d1", 42))

	got, ok := s.Read(key)
	require.True(t, ok)
	assert.Empty(t, got.Unassigned)
	require.Len(t, got.Deliveries[0].Members, 2)
	assert.True(t, got.Deliveries[0].Members[1].Pending)
}

func TestStoreSnapshotRestoreExact(t *testing.T) {
	s := NewStore(nil, discardLogger())
	key := CalendarKey("2025-03")
	s.Prime(key, testBatch())

	before, ok := s.Read(key)
	require.True(t, ok)

	snap := s.TakeSnapshot(key)

	s.Patch(key, patchAddOrder("d1", 42))
	s.Patch(key, patchRemoveOrder("d1", 7))

	s.Restore(key, snap)

	after, ok := s.Read(key)
	require.True(t, ok)
	assert.Equal(t, before, after, "restore must reproduce the pre-patch value exactly")
}

func TestStoreRestoreAbsentSnapshot(t *testing.T) {
	s := NewStore(nil, discardLogger())
	key := CalendarKey("2025-03")

	snap := s.TakeSnapshot(key) // bucket absent

	s.Prime(key, testBatch())
	s.Restore(key, snap)

	_, ok := s.Read(key)
	assert.False(t, ok, "restoring an absent snapshot clears the value")
}

func TestStoreRestoreMismatchedKeyIgnored(t *testing.T) {
	s := NewStore(nil, discardLogger())
	key := CalendarKey("2025-03")
	other := CalendarKey("2025-04")

	s.Prime(key, testBatch())
	snap := s.TakeSnapshot(key)

	s.Prime(other, &CalendarBatch{})
	s.Restore(other, snap)

	got, ok := s.Read(other)
	require.True(t, ok)
	assert.Empty(t, got.Deliveries, "mismatched snapshot must not be installed")
}

func TestStoreInvalidateTriggersRefetch(t *testing.T) {
	fetcher := newStoreMockFetcher()
	fetcher.byMonth["2025-03"] = &api.CalendarBatch{
		Deliveries: []api.Delivery{{ID: "d9", Date: "2025-03-20"}},
	}

	s := NewStore(fetcher, discardLogger())
	key := CalendarKey("2025-03")
	s.Prime(key, testBatch())

	s.Invalidate(key)

	require.Eventually(t, func() bool {
		got, ok := s.Read(key)
		return ok && len(got.Deliveries) == 1 && got.Deliveries[0].ID == "d9"
	}, time.Second, 5*time.Millisecond)

	assert.False(t, s.Stale(key))
}

func TestStoreInvalidateWithoutFetcherOnlyMarksStale(t *testing.T) {
	s := NewStore(nil, discardLogger())
	key := CalendarKey("2025-03")
	s.Prime(key, testBatch())

	s.Invalidate(key)

	assert.True(t, s.Stale(key))

	got, ok := s.Read(key)
	require.True(t, ok)
	assert.Len(t, got.Unassigned, 1, "value untouched without a fetcher")
}

func TestStoreCancelInFlightDropsRefetchAndReconciles(t *testing.T) {
	fetcher := newStoreMockFetcher()
	fetcher.gate = make(chan struct{})
	fetcher.queue = []*api.CalendarBatch{
		{}, // read before the local write; must be dropped, not installed
		{Deliveries: []api.Delivery{{
			ID:   "d1",
			Date: "2025-03-10",
			Orders: []api.Order{
				{ID: 7, Number: "A-7"},
				{ID: 42, Number: "A-42"},
			},
		}}},
	}

	s := NewStore(fetcher, discardLogger())
	key := CalendarKey("2025-03")
	s.Prime(key, testBatch())

	// Refetch starts and blocks on the gate.
	s.Invalidate(key)

	require.Eventually(t, func() bool { return fetcher.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	// An optimistic write lands while the refetch is in flight.
	s.CancelInFlight(key)
	s.Patch(key, patchAddOrder("d1", 42))

	close(fetcher.gate)

	// The in-flight response lost the race and is dropped, but the key is
	// still stale: a follow-up round must fetch and install server truth.
	require.Eventually(t, func() bool { return fetcher.callCount() == 2 },
		time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		got, ok := s.Read(key)
		return ok && len(got.Deliveries) == 1 &&
			len(got.Deliveries[0].Members) == 2 && !s.Stale(key)
	}, time.Second, 5*time.Millisecond, "dropped refetch must reschedule until the key reconciles")
}

func TestStoreInvalidateDuringRefetchQueuesFollowUp(t *testing.T) {
	fetcher := newStoreMockFetcher()
	fetcher.gate = make(chan struct{})
	fetcher.queue = []*api.CalendarBatch{
		{Deliveries: []api.Delivery{{ID: "d1", Date: "2025-03-10"}}},
		{Deliveries: []api.Delivery{
			{ID: "d1", Date: "2025-03-10"},
			{ID: "d2", Date: "2025-03-12"},
		}},
	}

	s := NewStore(fetcher, discardLogger())
	key := CalendarKey("2025-03")
	s.Prime(key, testBatch())

	s.Invalidate(key)

	require.Eventually(t, func() bool { return fetcher.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	// This invalidation predates the in-flight response; it must not be
	// absorbed by the round already running.
	s.Invalidate(key)

	close(fetcher.gate)

	require.Eventually(t, func() bool { return fetcher.callCount() == 2 },
		time.Second, 5*time.Millisecond, "mid-flight invalidate must trigger a follow-up round")

	require.Eventually(t, func() bool {
		got, ok := s.Read(key)
		return ok && len(got.Deliveries) == 2 && !s.Stale(key)
	}, time.Second, 5*time.Millisecond)
}

func TestStoreFailedRefetchHonorsQueuedInvalidate(t *testing.T) {
	fetcher := newStoreMockFetcher()
	fetcher.gate = make(chan struct{})
	fetcher.err = errors.New("transient")
	fetcher.byMonth["2025-03"] = &api.CalendarBatch{
		Unassigned: []api.Order{{ID: 42, Number: "A-42"}},
	}

	s := NewStore(fetcher, discardLogger())
	key := CalendarKey("2025-03")
	s.Prime(key, testBatch())

	s.Invalidate(key)

	require.Eventually(t, func() bool { return fetcher.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	s.Invalidate(key) // queued behind the round that is about to fail

	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.mu.Unlock()

	close(fetcher.gate)

	require.Eventually(t, func() bool {
		got, ok := s.Read(key)
		return ok && len(got.Unassigned) == 1 && len(got.Deliveries) == 0 && !s.Stale(key)
	}, time.Second, 5*time.Millisecond, "queued invalidate must survive a failed round")

	assert.Equal(t, 2, fetcher.callCount())
}

func TestStoreRefreshSynchronous(t *testing.T) {
	fetcher := newStoreMockFetcher()
	fetcher.byMonth["2025-03"] = &api.CalendarBatch{
		Unassigned: []api.Order{{ID: 42, Number: "A-42"}},
	}

	s := NewStore(fetcher, discardLogger())
	key := CalendarKey("2025-03")

	require.NoError(t, s.Refresh(context.Background(), key))

	got, ok := s.Read(key)
	require.True(t, ok)
	assert.Len(t, got.Unassigned, 1)
}

func TestStoreRefetchHookReceivesInstalledValue(t *testing.T) {
	fetcher := newStoreMockFetcher()
	fetcher.byMonth["2025-03"] = &api.CalendarBatch{
		Deliveries: []api.Delivery{{ID: "d1", Date: "2025-03-10"}},
	}

	s := NewStore(fetcher, discardLogger())
	key := CalendarKey("2025-03")

	var (
		mu     stdsync.Mutex
		gotKey Key
	)

	s.SetRefetchHook(func(k Key, b *CalendarBatch) {
		mu.Lock()
		gotKey = k
		mu.Unlock()
	})

	require.NoError(t, s.Refresh(context.Background(), key))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, key, gotKey)
}

func TestCalendarKeyNormalizesMonthOrder(t *testing.T) {
	assert.Equal(t, CalendarKey("2025-03", "2025-04"), CalendarKey("2025-04", "2025-03"))
	assert.Equal(t, []Month{"2025-03", "2025-04"}, MonthsOf(CalendarKey("2025-04", "2025-03")))
	assert.Nil(t, MonthsOf(Key("orders:all")))
}

package board

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestObserver() (*Observer, *Store) {
	store := NewStore(nil, discardLogger())
	key := CalendarKey("2025-03", "2025-04")
	store.Prime(key, testBatch())

	obs := NewObserver("ws://localhost/events", "", store, key, discardLogger())

	return obs, store
}

func TestObserverHandleMatchingMonth(t *testing.T) {
	obs, store := newTestObserver()
	key := CalendarKey("2025-03", "2025-04")

	// Prime marks the key stale; an observer invalidation is counted
	// separately.
	obs.handle([]byte(`{"type":"delivery_changed","months":["2025-04"]}`))

	stats := obs.Stats()
	assert.Equal(t, int64(1), stats.Events)
	assert.Equal(t, int64(1), stats.Invalidations)
	assert.True(t, store.Stale(key))
}

func TestObserverHandleUnrelatedMonth(t *testing.T) {
	obs, _ := newTestObserver()

	obs.handle([]byte(`{"type":"order_changed","months":["2026-01"]}`))

	stats := obs.Stats()
	assert.Equal(t, int64(1), stats.Events)
	assert.Zero(t, stats.Invalidations)
}

func TestObserverHandleNoMonthsInvalidatesUnconditionally(t *testing.T) {
	obs, _ := newTestObserver()

	obs.handle([]byte(`{"type":"calendar_changed"}`))

	assert.Equal(t, int64(1), obs.Stats().Invalidations)
}

func TestObserverHandleUnknownEventType(t *testing.T) {
	obs, _ := newTestObserver()

	obs.handle([]byte(`{"type":"planner_joined","months":["2025-03"]}`))

	stats := obs.Stats()
	assert.Equal(t, int64(1), stats.Events)
	assert.Zero(t, stats.Invalidations)
}

func TestNextObserverBackoff(t *testing.T) {
	tests := []struct {
		name         string
		prev         time.Duration
		connectedFor time.Duration
		want         time.Duration
	}{
		{"first failure starts at initial", 0, time.Second, initialObserverBackoff},
		{"rapid failure doubles", initialObserverBackoff, time.Second, 2 * initialObserverBackoff},
		{"growth is capped", 4 * time.Minute, time.Second, maxObserverBackoff},
		{"stays at cap", maxObserverBackoff, time.Second, maxObserverBackoff},
		{"steady connection resets", maxObserverBackoff, 2 * time.Hour, initialObserverBackoff},
		{"exactly steady resets", 40 * time.Second, steadyConnDuration, initialObserverBackoff},
		{"almost steady still grows", 40 * time.Second, steadyConnDuration - time.Second, 80 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextObserverBackoff(tt.prev, tt.connectedFor))
		})
	}
}

func TestObserverHandleDecodeError(t *testing.T) {
	obs, _ := newTestObserver()

	obs.handle([]byte(`{not json`))

	stats := obs.Stats()
	assert.Equal(t, int64(1), stats.Events)
	assert.Equal(t, int64(1), stats.DecodeErrors)
	assert.Zero(t, stats.Invalidations)
}

package board

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwerk/dispatch-go/internal/api"
)

// TestAssignThenMoveScenario walks an order through the full gesture
// pipeline: drag from the pool onto one delivery, then onto another, with
// day statistics tracking every optimistic step.
func TestAssignThenMoveScenario(t *testing.T) {
	coord, store, _, tracker, _ := newTestCoordinator(t)

	store.Prime(testKey, &CalendarBatch{
		Deliveries: []Delivery{
			{ID: "d1", Date: "2025-03-10"},
			{ID: "d2", Date: "2025-03-11"},
		},
		Unassigned: []Order{{ID: 42, Number: "A-42", Windows: 3}},
	})

	ctx := context.Background()

	// Pool -> D1.
	tracker.BeginDrag(42, PoolRef())
	report := coord.PerformMove(ctx, testKey, tracker.ResolveDrop(DeliveryRef("d1")))
	require.False(t, report.Failure())

	b, ok := store.Read(testKey)
	require.True(t, ok)
	assert.Equal(t, []string{"d1"}, containersHolding(b, 42))
	assert.Empty(t, b.Unassigned)
	assert.Equal(t, 3, ComputeDayStats(b, "2025-03-10").Windows)

	// D1 -> D2.
	tracker.BeginDrag(42, DeliveryRef("d1"))
	report = coord.PerformMove(ctx, testKey, tracker.ResolveDrop(DeliveryRef("d2")))
	require.False(t, report.Failure())

	b, ok = store.Read(testKey)
	require.True(t, ok)
	assert.Equal(t, []string{"d2"}, containersHolding(b, 42))
	assert.Empty(t, b.FindDelivery("d1").Members)
	assert.Equal(t, 0, ComputeDayStats(b, "2025-03-10").Windows)
	assert.Equal(t, 3, ComputeDayStats(b, "2025-03-11").Windows)
}

// TestCreateDeliveryRejectedScenario verifies a rejected create leaves no
// trace: the provisional entry is gone and selection state is untouched.
func TestCreateDeliveryRejectedScenario(t *testing.T) {
	exec, store, client, _ := newTestExecutor(t)
	tracker := NewTracker()

	store.Prime(testKey, &CalendarBatch{
		Deliveries: []Delivery{{ID: "d1", Date: "2025-03-10"}},
	})

	tracker.ToggleSelect(7)
	tracker.BeginDrag(7, PoolRef())

	client.failOn["create 2025-03-12"] = &api.APIError{
		StatusCode: 422,
		Message:    "date is not a working day",
		Err:        api.ErrValidation,
	}

	m := &Mutation{Type: MutationCreateDelivery, Key: testKey, Date: "2025-03-12"}

	err := exec.Execute(context.Background(), m)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrValidation)

	b, ok := store.Read(testKey)
	require.True(t, ok)

	for _, d := range b.Deliveries {
		assert.NotEqual(t, Date("2025-03-12"), d.Date, "rejected create left a provisional delivery behind")
	}

	// Selection and drag state belong to the tracker and are unaffected by
	// an executor failure.
	assert.Equal(t, []OrderID{7}, tracker.Selected())

	_, _, dragging := tracker.Dragging()
	assert.True(t, dragging)

	// The date is released for a retry once the server accepts.
	client.mu.Lock()
	delete(client.failOn, "create 2025-03-12")
	client.mu.Unlock()

	require.NoError(t, exec.Execute(context.Background(), &Mutation{
		Type: MutationCreateDelivery, Key: testKey, Date: "2025-03-12",
	}))
}

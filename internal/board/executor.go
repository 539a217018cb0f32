package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"

	"github.com/fenwerk/dispatch-go/internal/api"
)

// MutationType identifies the kind of remote write a mutation performs.
type MutationType int

const (
	MutationCreateDelivery MutationType = iota
	MutationDeleteDelivery
	MutationAddOrder
	MutationRemoveOrder
	MutationMoveOrder
	MutationAddItem
	MutationDeleteItem
	MutationCompleteOrders
	MutationToggleWorkingDay
)

// String returns the mutation kind for logs and metrics labels.
func (t MutationType) String() string {
	switch t {
	case MutationCreateDelivery:
		return "create_delivery"
	case MutationDeleteDelivery:
		return "delete_delivery"
	case MutationAddOrder:
		return "add_order"
	case MutationRemoveOrder:
		return "remove_order"
	case MutationMoveOrder:
		return "move_order"
	case MutationAddItem:
		return "add_item"
	case MutationDeleteItem:
		return "delete_item"
	case MutationCompleteOrders:
		return "complete_orders"
	case MutationToggleWorkingDay:
		return "toggle_working_day"
	default:
		return "unknown"
	}
}

// ExecState tracks one mutation through the executor's state machine:
// Idle -> OptimisticApplied -> Settling -> Committed | RolledBack.
type ExecState int

const (
	StateIdle ExecState = iota
	StateOptimisticApplied
	StateSettling
	StateCommitted
	StateRolledBack
)

// Executor guard errors.
var (
	// ErrPendingCreate rejects a second create-delivery for a date whose
	// first optimistic create has not settled yet. Two provisional entries
	// for one logical action would both materialize server-side.
	ErrPendingCreate = errors.New("board: a delivery create for this date is still settling")

	// ErrProvisionalTarget rejects mutations addressed at a transient
	// delivery id. A provisional delivery must receive its real id before
	// it can be mutated again.
	ErrProvisionalTarget = errors.New("board: delivery is provisional, wait for the server to confirm it")

	errUnknownMutation = errors.New("board: unknown mutation type")
)

// Mutation describes a single remote write plus the cache key it touches.
// Field usage varies by Type; unused fields stay zero.
type Mutation struct {
	Type MutationType
	Key  Key

	Date           Date       // create delivery, toggle working day
	Notes          string     // create delivery
	OrderID        OrderID    // add/remove/move order
	Source         DeliveryID // remove/move order
	Target         DeliveryID // add/move order, items, complete, delete delivery
	Item           DeliveryItem
	ItemID         int64
	ProductionDate Date // complete orders
	Working        bool // toggle working day

	// TransientID is assigned by the executor for create-delivery mutations
	// before the optimistic patch is applied.
	TransientID DeliveryID

	// State records the executor's progress, for logs and tests.
	State ExecState
}

// Executor wraps a single remote write with the three-phase protocol:
// optimistic local apply, remote call, reconcile (commit or rollback).
type Executor struct {
	store   *Store
	client  DeliveryClient
	notify  Notifier
	logger  *slog.Logger
	metrics *Metrics

	// pendingCreates tracks dates with an unsettled optimistic
	// create-delivery entry, keyed by date. keyLocks serializes Execute per
	// cache key: two concurrent mutations on one key would otherwise
	// interleave their snapshot/patch/restore phases and a rollback could
	// resurrect the other mutation's pre-patch value.
	mu             stdsync.Mutex
	pendingCreates map[Date]DeliveryID
	keyLocks       map[Key]*stdsync.Mutex
}

// NewExecutor creates an Executor with the given dependencies. notify may be
// nil, in which case failures are only logged.
func NewExecutor(store *Store, client DeliveryClient, notify Notifier, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		store:          store,
		client:         client,
		notify:         notify,
		logger:         logger,
		pendingCreates: make(map[Date]DeliveryID),
		keyLocks:       make(map[Key]*stdsync.Mutex),
	}
}

// SetMetrics attaches engine metrics. Optional; nil disables instrumentation.
func (e *Executor) SetMetrics(m *Metrics) {
	e.metrics = m
}

// Execute runs one mutation through the full protocol:
//
//  1. cancel in-flight refetches for the touched key
//  2. snapshot the key
//  3. apply the optimistic patch (pending-marked)
//  4. issue the remote call
//  5. on success, discard the snapshot and invalidate
//  6. on failure, restore the snapshot, notify, and propagate the error
//  7. always invalidate the key once more so even an unexpected mid-flow
//     exit still converges to server truth
func (e *Executor) Execute(ctx context.Context, m *Mutation) error {
	if err := e.guard(m); err != nil {
		return err
	}

	// One mutation at a time per key. Interleaved snapshot/patch/restore
	// phases on a shared key would let a rollback resurrect another
	// mutation's pre-patch state.
	lock := e.keyLock(m.Key)
	lock.Lock()
	defer lock.Unlock()

	if m.Type == MutationCreateDelivery {
		defer e.releaseCreate(m.Date)
	}

	m.State = StateIdle

	// Final reconciliation runs regardless of outcome.
	defer e.store.Invalidate(m.Key)

	e.store.CancelInFlight(m.Key)

	snap := e.store.TakeSnapshot(m.Key)

	if patch := e.patchFor(m); patch != nil {
		e.store.Patch(m.Key, patch)
		m.State = StateOptimisticApplied

		e.logger.Debug("optimistic patch applied",
			slog.String("kind", m.Type.String()),
			slog.String("key", string(m.Key)),
		)
	}

	m.State = StateSettling

	if err := e.call(ctx, m); err != nil {
		e.store.Restore(m.Key, snap)
		m.State = StateRolledBack

		e.metrics.mutationDone(m.Type, "rolled_back")
		e.metrics.rollback()

		msg := e.failureMessage(m, err)
		e.logger.Warn("mutation failed, cache rolled back",
			slog.String("kind", m.Type.String()),
			slog.String("key", string(m.Key)),
			slog.String("error", err.Error()),
		)

		if e.notify != nil {
			e.notify.Failure(msg)
		}

		return fmt.Errorf("board: %s: %w", m.Type, err)
	}

	m.State = StateCommitted
	e.metrics.mutationDone(m.Type, "committed")

	// The optimistic patch is a bridge, not a source of truth: invalidate so
	// the next read reconciles with authoritative data (server-assigned ids,
	// delivery numbers, full order fields).
	e.store.Invalidate(m.Key)

	e.logger.Info("mutation committed",
		slog.String("kind", m.Type.String()),
		slog.String("key", string(m.Key)),
	)

	return nil
}

// guard enforces the provisional-delivery invariants before any cache state
// is touched, and registers create-delivery intents.
func (e *Executor) guard(m *Mutation) error {
	if m.Source.Transient() || m.Target.Transient() {
		return ErrProvisionalTarget
	}

	if m.Type != MutationCreateDelivery {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.pendingCreates[m.Date]; busy {
		return ErrPendingCreate
	}

	m.TransientID = NewTransientID()
	e.pendingCreates[m.Date] = m.TransientID

	return nil
}

// keyLock returns the serialization mutex for a cache key, creating it on
// first use.
func (e *Executor) keyLock(key Key) *stdsync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.keyLocks[key]
	if !ok {
		lock = &stdsync.Mutex{}
		e.keyLocks[key] = lock
	}

	return lock
}

// releaseCreate clears the unsettled-create marker for a date.
func (e *Executor) releaseCreate(date Date) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.pendingCreates, date)
}

// patchFor returns the optimistic updater for a mutation, or nil for
// mutation kinds that are never applied optimistically (destructive deletes,
// server-side batch transitions, cheap-refetch flags).
func (e *Executor) patchFor(m *Mutation) func(*CalendarBatch) *CalendarBatch {
	switch m.Type {
	case MutationCreateDelivery:
		return patchInsertDelivery(m.TransientID, m.Date, m.Notes)
	case MutationAddOrder:
		return patchAddOrder(m.Target, m.OrderID)
	case MutationRemoveOrder:
		return patchRemoveOrder(m.Source, m.OrderID)
	case MutationMoveOrder:
		return patchMoveOrder(m.Source, m.Target, m.OrderID)
	case MutationAddItem:
		return patchAddItem(m.Target, m.Item)
	case MutationDeleteItem:
		return patchDeleteItem(m.Target, m.ItemID)
	case MutationDeleteDelivery, MutationCompleteOrders, MutationToggleWorkingDay:
		return nil
	default:
		return nil
	}
}

// call dispatches the remote write for a mutation.
func (e *Executor) call(ctx context.Context, m *Mutation) error {
	switch m.Type {
	case MutationCreateDelivery:
		_, err := e.client.CreateDelivery(ctx, string(m.Date), m.Notes)
		return err
	case MutationDeleteDelivery:
		return e.client.DeleteDelivery(ctx, string(m.Target))
	case MutationAddOrder:
		_, err := e.client.AddOrderToDelivery(ctx, string(m.Target), int64(m.OrderID))
		return err
	case MutationRemoveOrder:
		return e.client.RemoveOrderFromDelivery(ctx, string(m.Source), int64(m.OrderID))
	case MutationMoveOrder:
		_, err := e.client.MoveOrder(ctx, string(m.Source), int64(m.OrderID), string(m.Target))
		return err
	case MutationAddItem:
		_, err := e.client.AddDeliveryItem(ctx, string(m.Target), m.Item.Type, m.Item.Description, m.Item.Quantity)
		return err
	case MutationDeleteItem:
		return e.client.DeleteDeliveryItem(ctx, string(m.Target), m.ItemID)
	case MutationCompleteOrders:
		return e.client.CompleteOrders(ctx, string(m.Target), string(m.ProductionDate))
	case MutationToggleWorkingDay:
		return e.client.SetWorkingDay(ctx, string(m.Date), m.Working)
	default:
		return errUnknownMutation
	}
}

// failureMessage builds the user-facing notification for a failed mutation,
// naming the affected order or delivery plus the server's error detail.
func (e *Executor) failureMessage(m *Mutation, err error) string {
	detail := api.Detail(err)

	switch m.Type {
	case MutationCreateDelivery:
		return fmt.Sprintf("could not create delivery for %s: %s", m.Date, detail)
	case MutationDeleteDelivery:
		return fmt.Sprintf("could not delete delivery %s: %s", m.Target, detail)
	case MutationAddOrder:
		return fmt.Sprintf("could not assign order %d to delivery %s: %s", m.OrderID, m.Target, detail)
	case MutationRemoveOrder:
		return fmt.Sprintf("could not remove order %d from delivery %s: %s", m.OrderID, m.Source, detail)
	case MutationMoveOrder:
		return fmt.Sprintf("could not move order %d to delivery %s: %s", m.OrderID, m.Target, detail)
	case MutationAddItem, MutationDeleteItem:
		return fmt.Sprintf("could not update items of delivery %s: %s", m.Target, detail)
	case MutationCompleteOrders:
		return fmt.Sprintf("could not complete orders of delivery %s: %s", m.Target, detail)
	case MutationToggleWorkingDay:
		return fmt.Sprintf("could not update working day %s: %s", m.Date, detail)
	default:
		return detail
	}
}

package board

import (
	stdsync "sync"
)

// MoveIntent classifies a drop gesture into the mutation it should perform.
type MoveIntent int

const (
	// IntentNone: target absent, unresolvable, or same as source. No
	// mutation is issued; drag state is still cleared.
	IntentNone MoveIntent = iota
	// IntentAssign: order(s) from the unassigned pool onto a delivery.
	IntentAssign
	// IntentUnassign: order(s) from a delivery back into the pool.
	IntentUnassign
	// IntentInterDelivery: order(s) from one delivery to a different one.
	IntentInterDelivery
)

// String returns the intent name for logs.
func (i MoveIntent) String() string {
	switch i {
	case IntentAssign:
		return "assign"
	case IntentUnassign:
		return "unassign"
	case IntentInterDelivery:
		return "move"
	default:
		return "none"
	}
}

// ContainerRef names a drag source or drop target: a concrete delivery or
// the unassigned pool.
type ContainerRef struct {
	Delivery DeliveryID
	Pool     bool
}

// PoolRef returns a reference to the unassigned pool.
func PoolRef() ContainerRef {
	return ContainerRef{Pool: true}
}

// DeliveryRef returns a reference to a concrete delivery.
func DeliveryRef(id DeliveryID) ContainerRef {
	return ContainerRef{Delivery: id}
}

// Known reports whether the reference resolves to an actual container.
func (c ContainerRef) Known() bool {
	return c.Pool || c.Delivery != ""
}

func (c ContainerRef) String() string {
	if c.Pool {
		return "unassigned"
	}

	return string(c.Delivery)
}

// DropResolution is the outcome of resolving a drop gesture: the intent,
// the orders that move, and the containers involved.
type DropResolution struct {
	Intent MoveIntent
	Orders []OrderID
	Source ContainerRef
	Target ContainerRef
}

// dragState records the single item currently being dragged.
type dragState struct {
	orderID OrderID
	source  ContainerRef
}

// Tracker tracks which orders are multi-selected and which single item is
// currently being dragged, and resolves drop events into move intents.
type Tracker struct {
	mu       stdsync.Mutex
	selected map[OrderID]struct{}
	ordered  []OrderID // selection in toggle order, for deterministic batches
	drag     *dragState
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{selected: make(map[OrderID]struct{})}
}

// ToggleSelect adds the order to the selection set, or removes it if already
// selected.
func (t *Tracker) ToggleSelect(orderID OrderID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.selected[orderID]; ok {
		delete(t.selected, orderID)

		for i, id := range t.ordered {
			if id == orderID {
				t.ordered = append(t.ordered[:i], t.ordered[i+1:]...)
				break
			}
		}

		return
	}

	t.selected[orderID] = struct{}{}
	t.ordered = append(t.ordered, orderID)
}

// ClearSelection empties the selection set. Called unconditionally at the
// end of every completed drag so stale selections never reference moved or
// removed orders.
func (t *Tracker) ClearSelection() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.selected = make(map[OrderID]struct{})
	t.ordered = nil
}

// Selected returns the selection in toggle order.
func (t *Tracker) Selected() []OrderID {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]OrderID(nil), t.ordered...)
}

// IsSelected reports whether the order is currently selected.
func (t *Tracker) IsSelected(orderID OrderID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.selected[orderID]

	return ok
}

// BeginDrag records the dragged order and its source container.
func (t *Tracker) BeginDrag(orderID OrderID, source ContainerRef) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.drag = &dragState{orderID: orderID, source: source}
}

// EndDrag discards the drag state without resolving a drop.
func (t *Tracker) EndDrag() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.drag = nil
}

// Dragging returns the current drag, if any.
func (t *Tracker) Dragging() (OrderID, ContainerRef, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.drag == nil {
		return 0, ContainerRef{}, false
	}

	return t.drag.orderID, t.drag.source, true
}

// ResolveDrop classifies a drop event into exactly one of the four intents
// and returns the order ids that move: the whole selection when the dragged
// order is itself selected, otherwise only the dragged order. Drag state is
// cleared regardless of the outcome; an unresolvable target yields
// IntentNone and no mutation.
func (t *Tracker) ResolveDrop(target ContainerRef) DropResolution {
	t.mu.Lock()
	defer t.mu.Unlock()

	drag := t.drag
	t.drag = nil

	if drag == nil || !target.Known() {
		return DropResolution{Intent: IntentNone}
	}

	res := DropResolution{Source: drag.source, Target: target}

	switch {
	case drag.source == target:
		res.Intent = IntentNone
	case drag.source.Pool && !target.Pool:
		res.Intent = IntentAssign
	case !drag.source.Pool && target.Pool:
		res.Intent = IntentUnassign
	case !drag.source.Pool && !target.Pool:
		res.Intent = IntentInterDelivery
	default:
		res.Intent = IntentNone
	}

	if res.Intent == IntentNone {
		return DropResolution{Intent: IntentNone}
	}

	if _, ok := t.selected[drag.orderID]; ok {
		res.Orders = append([]OrderID(nil), t.ordered...)
	} else {
		res.Orders = []OrderID{drag.orderID}
	}

	return res
}

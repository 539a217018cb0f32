package board

// Optimistic patch builders. Each returns a pure updater for Store.Patch:
// nil in, nil out (value-absent is a no-op per the cache contract), and the
// returned batch is the input mutated in place — Patch already hands the
// updater a private copy, so in-place edits never alias live cache state.
//
// The shapes produced here must match what a successful server response
// would eventually produce, modulo the Pending markers that let the view
// render a distinguishable in-flight state.

// patchInsertDelivery inserts a provisional delivery with a transient id,
// the given date and notes, and empty member/item sets. The real id and
// delivery number stay pending until the server assigns them.
func patchInsertDelivery(id DeliveryID, date Date, notes string) func(*CalendarBatch) *CalendarBatch {
	return func(b *CalendarBatch) *CalendarBatch {
		if b == nil {
			return nil
		}

		b.Deliveries = append(b.Deliveries, Delivery{
			ID:      id,
			Date:    date,
			Notes:   notes,
			Pending: true,
		})

		return b
	}
}

// patchAddOrder moves an order from the unassigned pool into the target
// delivery's member set as a pending stub. The stub carries the pool's copy
// of the order so day statistics reflect its quantities immediately.
func patchAddOrder(target DeliveryID, orderID OrderID) func(*CalendarBatch) *CalendarBatch {
	return func(b *CalendarBatch) *CalendarBatch {
		if b == nil {
			return nil
		}

		order := takeUnassigned(b, orderID)

		d := b.FindDelivery(target)
		if d == nil {
			// Target vanished from the cache (e.g. concurrent refetch of a
			// narrower range). The final invalidate reconciles; keep the
			// order out of the pool rather than showing it twice.
			return b
		}

		d.Members = append(d.Members, Member{ID: orderID, Pending: true, Order: order})

		return b
	}
}

// patchRemoveOrder removes an order from the source delivery's member set
// and returns it to the unassigned pool when its full fields are known.
func patchRemoveOrder(source DeliveryID, orderID OrderID) func(*CalendarBatch) *CalendarBatch {
	return func(b *CalendarBatch) *CalendarBatch {
		if b == nil {
			return nil
		}

		order := takeMember(b, source, orderID)
		if order != nil {
			b.Unassigned = append(b.Unassigned, *order)
		}

		return b
	}
}

// patchMoveOrder removes an order from the source delivery and inserts a
// pending stub into the target delivery in the same patch application. A
// two-patch sequence would expose an instant where the order belongs to
// neither container; the combined patch mirrors the atomicity of the
// server's single move operation.
func patchMoveOrder(source, target DeliveryID, orderID OrderID) func(*CalendarBatch) *CalendarBatch {
	return func(b *CalendarBatch) *CalendarBatch {
		if b == nil {
			return nil
		}

		order := takeMember(b, source, orderID)

		d := b.FindDelivery(target)
		if d == nil {
			// Put the order back where it came from; a half-applied move
			// must never be visible.
			if s := b.FindDelivery(source); s != nil && order != nil {
				s.Members = append(s.Members, Member{ID: orderID, Order: order})
			}

			return b
		}

		d.Members = append(d.Members, Member{ID: orderID, Pending: true, Order: order})

		return b
	}
}

// patchAddItem appends an ad-hoc item to a delivery. The item id stays zero
// until the refetch brings the server-assigned id.
func patchAddItem(deliveryID DeliveryID, item DeliveryItem) func(*CalendarBatch) *CalendarBatch {
	return func(b *CalendarBatch) *CalendarBatch {
		if b == nil {
			return nil
		}

		d := b.FindDelivery(deliveryID)
		if d == nil {
			return b
		}

		item.ID = 0
		d.Items = append(d.Items, item)

		return b
	}
}

// patchDeleteItem removes an ad-hoc item from a delivery.
func patchDeleteItem(deliveryID DeliveryID, itemID int64) func(*CalendarBatch) *CalendarBatch {
	return func(b *CalendarBatch) *CalendarBatch {
		if b == nil {
			return nil
		}

		d := b.FindDelivery(deliveryID)
		if d == nil {
			return b
		}

		for i := range d.Items {
			if d.Items[i].ID == itemID {
				d.Items = append(d.Items[:i], d.Items[i+1:]...)
				break
			}
		}

		return b
	}
}

// takeUnassigned removes and returns the order from the unassigned pool,
// or nil when it is not there.
func takeUnassigned(b *CalendarBatch, orderID OrderID) *Order {
	for i := range b.Unassigned {
		if b.Unassigned[i].ID == orderID {
			o := b.Unassigned[i]
			b.Unassigned = append(b.Unassigned[:i], b.Unassigned[i+1:]...)

			return &o
		}
	}

	return nil
}

// takeMember removes the order from a delivery's member set and returns its
// full order value when known.
func takeMember(b *CalendarBatch, deliveryID DeliveryID, orderID OrderID) *Order {
	d := b.FindDelivery(deliveryID)
	if d == nil {
		return nil
	}

	for i := range d.Members {
		if d.Members[i].ID == orderID {
			order := d.Members[i].Order
			d.Members = append(d.Members[:i], d.Members[i+1:]...)

			return order
		}
	}

	return nil
}

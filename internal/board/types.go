// Package board implements the optimistic delivery-assignment engine behind
// the plan board: a keyed cache of calendar state, a three-phase mutation
// executor with snapshot/rollback, sequential batch coordination for
// multi-select drag gestures, and pure derived statistics.
package board

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fenwerk/dispatch-go/internal/api"
)

// OrderID identifies a production order.
type OrderID int64

// DeliveryID identifies a delivery. Server-assigned ids are opaque strings;
// client-generated transient ids carry the "tmp-" prefix until the server
// acknowledges the create.
type DeliveryID string

// transientPrefix marks client-generated delivery ids.
const transientPrefix = "tmp-"

// NewTransientID returns a fresh client-generated delivery id.
func NewTransientID() DeliveryID {
	return DeliveryID(transientPrefix + uuid.NewString())
}

// Transient reports whether the id is a client-generated placeholder.
func (id DeliveryID) Transient() bool {
	return strings.HasPrefix(string(id), transientPrefix)
}

// Date is a civil calendar date in YYYY-MM-DD form. All calendar arithmetic
// converts at the boundary; internal comparisons are plain string equality.
type Date string

// Time returns the date at midnight UTC. Returns the zero time for
// unparseable values.
func (d Date) Time() time.Time {
	t, err := time.Parse(time.DateOnly, string(d))
	if err != nil {
		return time.Time{}
	}

	return t
}

// Valid reports whether the date parses as YYYY-MM-DD.
func (d Date) Valid() bool {
	_, err := time.Parse(time.DateOnly, string(d))
	return err == nil
}

// Month returns the date's month in YYYY-MM form.
func (d Date) Month() Month {
	if len(d) < 7 {
		return ""
	}

	return Month(d[:7])
}

// ISOWeek returns the ISO year and week number for the date.
func (d Date) ISOWeek() (year, week int) {
	return d.Time().ISOWeek()
}

// Month is a calendar month in YYYY-MM form.
type Month string

// Cents is a monetary amount in integer minor units.
type Cents int64

// Order is a production job. Orders are created and destroyed by the order
// management subsystem; this engine only reads and re-parents them.
type Order struct {
	ID      OrderID
	Number  string
	Windows int
	Sashes  int
	Glass   int
	Value   Cents
}

// Member is one entry in a delivery's member set: either a fully-known order
// or a pending stub awaiting reconciliation with the server. Pending members
// keep the last cache-known Order value (when the order was already visible
// in the pool or a source delivery) so derived statistics stay accurate
// before the refetch lands; Order is nil only when the engine has never seen
// the order's full fields.
type Member struct {
	ID      OrderID
	Pending bool
	Order   *Order
}

// DeliveryItem is an ad-hoc shipment item that travels with a delivery but
// is not an order.
type DeliveryItem struct {
	ID          int64
	Type        string
	Description string
	Quantity    int
}

// Delivery is a scheduled shipment for one calendar date. A delivery with a
// transient id is provisional: it must not be the target of further
// mutations until the server assigns a real id.
type Delivery struct {
	ID      DeliveryID
	Date    Date
	Number  string // assigned by the server, never by the client
	Notes   string
	Pending bool // true while an optimistic create awaits the server
	Members []Member
	Items   []DeliveryItem
}

// Provisional reports whether the delivery only exists as an optimistic
// cache entry.
func (d *Delivery) Provisional() bool {
	return d.ID.Transient()
}

// CalendarBatch is the cache value for one calendar key: every delivery and
// unassigned order in the key's month range, plus working-day overrides and
// holidays.
type CalendarBatch struct {
	Deliveries  []Delivery
	Unassigned  []Order
	WorkingDays map[Date]bool
	Holidays    map[Date]string
}

// Clone deep-copies the batch. Snapshots and patch inputs must never alias
// live cache state.
func (b *CalendarBatch) Clone() *CalendarBatch {
	if b == nil {
		return nil
	}

	out := &CalendarBatch{
		Deliveries:  make([]Delivery, len(b.Deliveries)),
		Unassigned:  append([]Order(nil), b.Unassigned...),
		WorkingDays: make(map[Date]bool, len(b.WorkingDays)),
		Holidays:    make(map[Date]string, len(b.Holidays)),
	}

	for i := range b.Deliveries {
		d := b.Deliveries[i]
		d.Members = make([]Member, len(b.Deliveries[i].Members))

		for j, m := range b.Deliveries[i].Members {
			if m.Order != nil {
				o := *m.Order
				m.Order = &o
			}

			d.Members[j] = m
		}

		d.Items = append([]DeliveryItem(nil), b.Deliveries[i].Items...)
		out.Deliveries[i] = d
	}

	for k, v := range b.WorkingDays {
		out.WorkingDays[k] = v
	}

	for k, v := range b.Holidays {
		out.Holidays[k] = v
	}

	return out
}

// FindDelivery returns a pointer into the batch's delivery slice, or nil.
func (b *CalendarBatch) FindDelivery(id DeliveryID) *Delivery {
	for i := range b.Deliveries {
		if b.Deliveries[i].ID == id {
			return &b.Deliveries[i]
		}
	}

	return nil
}

// Key addresses one bucket of the cache store.
type Key string

// CalendarKey builds the cache key for a batch of months. Months are sorted
// so the same set always yields the same key.
func CalendarKey(months ...Month) Key {
	sorted := make([]string, len(months))
	for i, m := range months {
		sorted[i] = string(m)
	}

	sort.Strings(sorted)

	return Key("calendar:" + strings.Join(sorted, ","))
}

// MonthsOf extracts the month list back out of a calendar key. Returns nil
// for keys in any other namespace.
func MonthsOf(key Key) []Month {
	s, ok := strings.CutPrefix(string(key), "calendar:")
	if !ok || s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	months := make([]Month, len(parts))

	for i, p := range parts {
		months[i] = Month(p)
	}

	return months
}

// --- Conversion from wire types ---

// FromAPIOrder converts a wire order into the domain shape.
func FromAPIOrder(o api.Order) Order {
	return Order{
		ID:      OrderID(o.ID),
		Number:  o.Number,
		Windows: o.Windows,
		Sashes:  o.Sashes,
		Glass:   o.Glass,
		Value:   Cents(o.Value),
	}
}

// FromAPIDelivery converts a wire delivery into the domain shape. All
// members are fully known (the server never returns stubs).
func FromAPIDelivery(d api.Delivery) Delivery {
	out := Delivery{
		ID:     DeliveryID(d.ID),
		Date:   Date(d.Date),
		Number: d.Number,
		Notes:  d.Notes,
	}

	for _, o := range d.Orders {
		order := FromAPIOrder(o)
		out.Members = append(out.Members, Member{ID: order.ID, Order: &order})
	}

	for _, it := range d.Items {
		out.Items = append(out.Items, DeliveryItem{
			ID:          it.ID,
			Type:        it.Type,
			Description: it.Description,
			Quantity:    it.Quantity,
		})
	}

	return out
}

// FromAPIBatch converts a wire calendar batch into the domain cache value.
func FromAPIBatch(b *api.CalendarBatch) *CalendarBatch {
	out := &CalendarBatch{
		WorkingDays: make(map[Date]bool, len(b.WorkingDays)),
		Holidays:    make(map[Date]string, len(b.Holidays)),
	}

	for _, d := range b.Deliveries {
		out.Deliveries = append(out.Deliveries, FromAPIDelivery(d))
	}

	for _, o := range b.Unassigned {
		out.Unassigned = append(out.Unassigned, FromAPIOrder(o))
	}

	for k, v := range b.WorkingDays {
		out.WorkingDays[Date(k)] = v
	}

	for k, v := range b.Holidays {
		out.Holidays[Date(k)] = v
	}

	return out
}

// --- Consumer-defined interfaces for the API client ---
// These decouple the board package from api's concrete client, following the
// "accept interfaces, return structs" Go convention.

// DeliveryClient performs the remote mutations the executor settles against.
// Satisfied by *api.Client.
type DeliveryClient interface {
	CreateDelivery(ctx context.Context, date, notes string) (*api.Delivery, error)
	DeleteDelivery(ctx context.Context, deliveryID string) error
	AddOrderToDelivery(ctx context.Context, deliveryID string, orderID int64) (*api.Delivery, error)
	RemoveOrderFromDelivery(ctx context.Context, deliveryID string, orderID int64) error
	MoveOrder(ctx context.Context, sourceDeliveryID string, orderID int64, targetDeliveryID string) (*api.Delivery, error)
	AddDeliveryItem(ctx context.Context, deliveryID string, itemType, description string, quantity int) (*api.Item, error)
	DeleteDeliveryItem(ctx context.Context, deliveryID string, itemID int64) error
	CompleteOrders(ctx context.Context, deliveryID, productionDate string) error
	SetWorkingDay(ctx context.Context, date string, working bool) error
}

// BatchFetcher retrieves authoritative calendar state. Satisfied by
// *api.Client.
type BatchFetcher interface {
	FetchCalendarBatch(ctx context.Context, months []string) (*api.CalendarBatch, error)
}

// Notifier surfaces user-facing failure notifications. The CLI host renders
// them as error toasts on stderr.
type Notifier interface {
	Failure(msg string)
}

// NowNano returns the current time as Unix nanoseconds.
func NowNano() int64 {
	return time.Now().UnixNano()
}

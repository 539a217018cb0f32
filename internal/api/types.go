package api

// Order is a production job as returned by the backend. Quantities are
// plain counts; Value is in integer minor units (cents), never floating point.
type Order struct {
	ID         int64  `json:"id"`
	Number     string `json:"number"`
	Windows    int    `json:"windows"`
	Sashes     int    `json:"sashes"`
	Glass      int    `json:"glass"`
	Value      int64  `json:"value_cents"`
	DeliveryID string `json:"delivery_id,omitempty"` // empty when unassigned
}

// Delivery is a scheduled shipment for one calendar date. Number is assigned
// by the server, never by the client.
type Delivery struct {
	ID     string  `json:"id"`
	Date   string  `json:"date"` // YYYY-MM-DD
	Number string  `json:"number,omitempty"`
	Notes  string  `json:"notes,omitempty"`
	Orders []Order `json:"orders"`
	Items  []Item  `json:"items"`
}

// Item is an ad-hoc shipment item (type, description, quantity) that travels
// with a delivery but is not an order.
type Item struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

// CalendarBatch is the response of the calendar batch endpoint: everything
// the plan board needs for a set of months in one round trip.
type CalendarBatch struct {
	Deliveries  []Delivery        `json:"deliveries"`
	Unassigned  []Order           `json:"unassigned_orders"`
	WorkingDays map[string]bool   `json:"working_days"` // date -> is working
	Holidays    map[string]string `json:"holidays"`     // date -> holiday name
}

// --- Request bodies ---

type createDeliveryRequest struct {
	Date  string `json:"date"`
	Notes string `json:"notes,omitempty"`
}

type moveOrderRequest struct {
	SourceDeliveryID string `json:"source_delivery_id"`
	TargetDeliveryID string `json:"target_delivery_id"`
}

type addItemRequest struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type completeOrdersRequest struct {
	ProductionDate string `json:"production_date"`
}

type setWorkingDayRequest struct {
	Working bool `json:"working"`
}

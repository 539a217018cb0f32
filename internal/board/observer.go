package board

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// Observer reconnect backoff bounds. A connection that stayed up for at least
// steadyConnDuration counts as healthy and resets the backoff, so a flaky
// stream that recovers for a while does not keep paying the accumulated delay
// on its next drop.
const (
	initialObserverBackoff = 5 * time.Second
	maxObserverBackoff     = 5 * time.Minute
	observerBackoffFactor  = 2
	steadyConnDuration     = time.Minute
)

// InvalidationEvent is one push message from the backend event stream.
// Months names the calendar months whose data changed.
type InvalidationEvent struct {
	Type   string  `json:"type"`
	Months []Month `json:"months"`
}

// Event types the observer reacts to. Anything else is ignored (forward
// compatibility with new server event kinds).
const (
	EventDeliveryChanged = "delivery_changed"
	EventOrderChanged    = "order_changed"
	EventCalendarChanged = "calendar_changed"
)

// ObserverStats is a snapshot of observer counters.
type ObserverStats struct {
	Events        int64
	Invalidations int64
	Reconnects    int64
	DecodeErrors  int64
}

// Observer subscribes to the backend's websocket event stream and
// invalidates cache keys when other planners change deliveries or calendar
// state, so concurrent edits converge without polling. Used by the watch
// daemon only; one-shot CLI commands rely on the mutation invalidates alone.
type Observer struct {
	url       string
	token     string
	store     *Store
	activeKey Key
	logger    *slog.Logger
	metrics   *Metrics

	events        atomic.Int64
	invalidations atomic.Int64
	reconnects    atomic.Int64
	decodeErrors  atomic.Int64
}

// NewObserver creates an Observer for the given event stream URL. activeKey
// is the calendar bucket the host currently displays; only events touching
// its months trigger an invalidate.
func NewObserver(url, token string, store *Store, activeKey Key, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Observer{
		url:       url,
		token:     token,
		store:     store,
		activeKey: activeKey,
		logger:    logger,
	}
}

// SetMetrics attaches engine metrics. Optional; nil disables instrumentation.
func (o *Observer) SetMetrics(m *Metrics) {
	o.metrics = m
}

// Stats returns a snapshot of the observer counters.
func (o *Observer) Stats() ObserverStats {
	return ObserverStats{
		Events:        o.events.Load(),
		Invalidations: o.invalidations.Load(),
		Reconnects:    o.reconnects.Load(),
		DecodeErrors:  o.decodeErrors.Load(),
	}
}

// Run connects to the event stream and processes events until ctx is
// canceled, reconnecting with exponential backoff on any connection failure.
func (o *Observer) Run(ctx context.Context) error {
	var backoff time.Duration

	for {
		started := time.Now()
		err := o.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		backoff = nextObserverBackoff(backoff, time.Since(started))

		o.reconnects.Add(1)
		o.logger.Warn("event stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// nextObserverBackoff returns the delay before the next reconnect attempt.
// The schedule doubles up to the cap across rapid failures and restarts from
// the initial delay once a connection stayed up for steadyConnDuration.
func nextObserverBackoff(prev, connectedFor time.Duration) time.Duration {
	if prev == 0 || connectedFor >= steadyConnDuration {
		return initialObserverBackoff
	}

	next := prev * observerBackoffFactor
	if next > maxObserverBackoff {
		next = maxObserverBackoff
	}

	return next
}

// runOnce dials the stream and reads events until the connection breaks.
func (o *Observer) runOnce(ctx context.Context) error {
	opts := &websocket.DialOptions{}
	if o.token != "" {
		opts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + o.token},
		}
	}

	conn, _, err := websocket.Dial(ctx, o.url, opts)
	if err != nil {
		return fmt.Errorf("board: dialing event stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	o.logger.Info("event stream connected", slog.String("url", o.url))

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("board: reading event stream: %w", err)
		}

		if typ != websocket.MessageText {
			continue
		}

		o.handle(data)
	}
}

// handle decodes one event and invalidates the active key when the event
// touches any of its months.
func (o *Observer) handle(data []byte) {
	o.events.Add(1)
	o.metrics.observerEvent()

	var ev InvalidationEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		o.decodeErrors.Add(1)
		o.logger.Warn("undecodable event", slog.String("error", err.Error()))

		return
	}

	switch ev.Type {
	case EventDeliveryChanged, EventOrderChanged, EventCalendarChanged:
	default:
		return
	}

	if !o.touchesActiveKey(ev.Months) {
		return
	}

	o.invalidations.Add(1)
	o.store.Invalidate(o.activeKey)

	o.logger.Debug("cache invalidated by remote event",
		slog.String("type", ev.Type),
		slog.String("key", string(o.activeKey)),
	)
}

// touchesActiveKey reports whether any event month is part of the active
// calendar key. An event with no month list invalidates unconditionally.
func (o *Observer) touchesActiveKey(months []Month) bool {
	if len(months) == 0 {
		return true
	}

	active := MonthsOf(o.activeKey)

	for _, m := range months {
		for _, a := range active {
			if m == a {
				return true
			}
		}
	}

	return false
}

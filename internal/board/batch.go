package board

import (
	"context"
	"fmt"
	"log/slog"
)

// BatchReport aggregates the outcome of one multi-order drop gesture.
type BatchReport struct {
	Intent    MoveIntent
	Committed []OrderID
	Failed    OrderID // zero when every task committed
	Skipped   []OrderID
	Err       error
}

// Failure reports whether any task in the batch failed.
func (r *BatchReport) Failure() bool {
	return r.Err != nil
}

// Coordinator turns a resolved drop gesture into a deterministic sequence of
// single-order executor calls: an explicit ordered task queue processed by a
// single worker, strictly sequentially. Sequential execution is a
// correctness requirement, not a simplification — concurrent mutations on
// the same cache key would race each other's snapshot/restore cycles, and a
// later snapshot could capture an earlier call's unsettled optimistic patch.
type Coordinator struct {
	exec    *Executor
	tracker *Tracker
	notify  Notifier
	logger  *slog.Logger
	metrics *Metrics

	// StopOnError aborts the remaining queue after the first failed task.
	// Already-committed tasks stay committed; their server-side writes are
	// durable and undoing them would require a second mutation.
	StopOnError bool
}

// NewCoordinator creates a Coordinator. notify may be nil.
func NewCoordinator(exec *Executor, tracker *Tracker, notify Notifier, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		exec:        exec,
		tracker:     tracker,
		notify:      notify,
		logger:      logger,
		StopOnError: true,
	}
}

// SetMetrics attaches engine metrics. Optional; nil disables instrumentation.
func (c *Coordinator) SetMetrics(m *Metrics) {
	c.metrics = m
}

// PerformMove drives the mutations for a resolved drop gesture against the
// given cache key. Tasks run strictly in order; task k+1 never starts before
// task k settles. The selection set is cleared unconditionally once the
// queue ends, success or partial failure.
func (c *Coordinator) PerformMove(ctx context.Context, key Key, res DropResolution) *BatchReport {
	defer c.tracker.ClearSelection()

	report := &BatchReport{Intent: res.Intent}

	queue := c.buildQueue(key, res)
	if len(queue) == 0 {
		return report
	}

	c.logger.Info("batch starting",
		slog.String("intent", res.Intent.String()),
		slog.Int("tasks", len(queue)),
		slog.String("source", res.Source.String()),
		slog.String("target", res.Target.String()),
	)

	for i, task := range queue {
		if err := c.exec.Execute(ctx, task); err != nil {
			report.Failed = task.OrderID
			report.Err = err

			if c.StopOnError {
				for _, rest := range queue[i+1:] {
					report.Skipped = append(report.Skipped, rest.OrderID)
				}

				c.metrics.batchAbort()

				break
			}

			continue
		}

		report.Committed = append(report.Committed, task.OrderID)
	}

	if report.Failure() && len(queue) > 1 && c.notify != nil {
		c.notify.Failure(fmt.Sprintf(
			"moved %d of %d orders; stopped at order %d, %d not attempted",
			len(report.Committed), len(queue), report.Failed, len(report.Skipped),
		))
	}

	c.logger.Info("batch finished",
		slog.String("intent", res.Intent.String()),
		slog.Int("committed", len(report.Committed)),
		slog.Int("skipped", len(report.Skipped)),
		slog.Bool("failed", report.Failure()),
	)

	return report
}

// buildQueue expands a drop resolution into one mutation per order id,
// preserving the resolution's order.
func (c *Coordinator) buildQueue(key Key, res DropResolution) []*Mutation {
	queue := make([]*Mutation, 0, len(res.Orders))

	for _, orderID := range res.Orders {
		switch res.Intent {
		case IntentAssign:
			queue = append(queue, &Mutation{
				Type:    MutationAddOrder,
				Key:     key,
				OrderID: orderID,
				Target:  res.Target.Delivery,
			})
		case IntentUnassign:
			queue = append(queue, &Mutation{
				Type:    MutationRemoveOrder,
				Key:     key,
				OrderID: orderID,
				Source:  res.Source.Delivery,
			})
		case IntentInterDelivery:
			queue = append(queue, &Mutation{
				Type:    MutationMoveOrder,
				Key:     key,
				OrderID: orderID,
				Source:  res.Source.Delivery,
				Target:  res.Target.Delivery,
			})
		case IntentNone:
			// No mutation; the gesture was discarded at resolution time.
		}
	}

	return queue
}

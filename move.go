package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fenwerk/dispatch-go/internal/board"
)

// newMoveCmd returns the "move" command: the CLI's drop handler. It runs the
// same gesture pipeline the web board drives: select the orders, begin a
// drag from the first order's container, resolve the drop target into an
// intent, and hand the resolution to the batch coordinator.
func newMoveCmd() *cobra.Command {
	var (
		flagTo   string
		flagPool bool
	)

	cmd := &cobra.Command{
		Use:   "move <order-id>...",
		Short: "Move orders between deliveries or the unassigned pool",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagPool == (flagTo != "") {
				return fmt.Errorf("exactly one of --to or --pool is required")
			}

			orderIDs := make([]board.OrderID, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid order id %q", arg)
				}

				orderIDs = append(orderIDs, board.OrderID(id))
			}

			a, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			batch, err := a.batch(cmd.Context())
			if err != nil {
				return err
			}

			source, err := containerOf(batch, orderIDs[0])
			if err != nil {
				return err
			}

			target := board.PoolRef()
			if !flagPool {
				target = board.DeliveryRef(board.DeliveryID(flagTo))

				if batch.FindDelivery(target.Delivery) == nil {
					return fmt.Errorf("delivery %s not found in the active range", flagTo)
				}
			}

			for _, id := range orderIDs {
				a.tracker.ToggleSelect(id)
			}

			a.tracker.BeginDrag(orderIDs[0], source)
			res := a.tracker.ResolveDrop(target)

			if res.Intent == board.IntentNone {
				statusf("nothing to do: source and target are the same container\n")
				return nil
			}

			report := a.coord.PerformMove(cmd.Context(), a.key, res)
			if report.Failure() {
				return fmt.Errorf("move aborted: %w", report.Err)
			}

			statusf("moved %d order(s) to %s\n", len(report.Committed), target)

			return nil
		},
	}

	cmd.Flags().StringVar(&flagTo, "to", "", "target delivery id")
	cmd.Flags().BoolVar(&flagPool, "pool", false, "move to the unassigned pool")

	return cmd
}

// containerOf locates the container currently holding an order: the delivery
// whose member set includes it, or the pool.
func containerOf(batch *board.CalendarBatch, orderID board.OrderID) (board.ContainerRef, error) {
	for i := range batch.Deliveries {
		for _, m := range batch.Deliveries[i].Members {
			if m.ID == orderID {
				return board.DeliveryRef(batch.Deliveries[i].ID), nil
			}
		}
	}

	for _, o := range batch.Unassigned {
		if o.ID == orderID {
			return board.PoolRef(), nil
		}
	}

	return board.ContainerRef{}, fmt.Errorf("order %d not found in the active range", orderID)
}

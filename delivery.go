package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fenwerk/dispatch-go/internal/board"
)

// newDeliveryCmd groups delivery lifecycle subcommands.
func newDeliveryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delivery",
		Short: "Create, delete, and amend deliveries",
	}

	cmd.AddCommand(
		newDeliveryCreateCmd(),
		newDeliveryDeleteCmd(),
		newDeliveryItemAddCmd(),
		newDeliveryItemDelCmd(),
		newDeliveryCompleteCmd(),
	)

	return cmd
}

func newDeliveryCreateCmd() *cobra.Command {
	var flagNotes string

	cmd := &cobra.Command{
		Use:   "create <date>",
		Short: "Create a delivery for a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := board.Date(args[0])
			if !date.Valid() {
				return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", args[0])
			}

			a, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.refresh(cmd.Context()); err != nil {
				return err
			}

			m := &board.Mutation{
				Type:  board.MutationCreateDelivery,
				Key:   a.key,
				Date:  date,
				Notes: flagNotes,
			}

			if err := a.exec.Execute(cmd.Context(), m); err != nil {
				return err
			}

			statusf("delivery created for %s\n", date)

			return nil
		},
	}

	cmd.Flags().StringVar(&flagNotes, "notes", "", "free-text delivery notes")

	return cmd
}

func newDeliveryDeleteCmd() *cobra.Command {
	var flagYes bool

	cmd := &cobra.Command{
		Use:   "delete <delivery-id>",
		Short: "Delete a delivery (its orders return to the pool)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := board.DeliveryID(args[0])

			a, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			batch, err := a.batch(cmd.Context())
			if err != nil {
				return err
			}

			d := batch.FindDelivery(id)
			if d == nil {
				return fmt.Errorf("delivery %s not found in the active range", id)
			}

			// Deletes are never optimistic: name the consequences and demand
			// explicit confirmation before any remote call is issued.
			if !confirmDelete(d, flagYes) {
				statusf("aborted\n")
				return nil
			}

			m := &board.Mutation{
				Type:   board.MutationDeleteDelivery,
				Key:    a.key,
				Target: id,
			}

			if err := a.exec.Execute(cmd.Context(), m); err != nil {
				return err
			}

			statusf("delivery %s deleted, %d order(s) returned to the pool\n", id, len(d.Members))

			return nil
		},
	}

	cmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

// confirmDelete prints the orders that will be detached and asks for
// confirmation. Non-interactive runs require --yes.
func confirmDelete(d *board.Delivery, yes bool) bool {
	fmt.Fprintf(os.Stderr, "deleting delivery %s (%s) will detach %d order(s):\n", d.ID, d.Date, len(d.Members))

	for _, m := range d.Members {
		if m.Order != nil {
			fmt.Fprintf(os.Stderr, "  %d %s\n", m.ID, m.Order.Number)
		} else {
			fmt.Fprintf(os.Stderr, "  %d\n", m.ID)
		}
	}

	if yes {
		return true
	}

	if !stderrIsTTY() {
		fmt.Fprintln(os.Stderr, "refusing to delete without --yes in non-interactive mode")
		return false
	}

	fmt.Fprint(os.Stderr, "proceed? [y/N] ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(line))

	return answer == "y" || answer == "yes"
}

func newDeliveryItemAddCmd() *cobra.Command {
	var (
		flagType string
		flagDesc string
		flagQty  int
	)

	cmd := &cobra.Command{
		Use:   "item-add <delivery-id>",
		Short: "Attach an ad-hoc item to a delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.refresh(cmd.Context()); err != nil {
				return err
			}

			m := &board.Mutation{
				Type:   board.MutationAddItem,
				Key:    a.key,
				Target: board.DeliveryID(args[0]),
				Item: board.DeliveryItem{
					Type:        flagType,
					Description: flagDesc,
					Quantity:    flagQty,
				},
			}

			return a.exec.Execute(cmd.Context(), m)
		},
	}

	cmd.Flags().StringVar(&flagType, "type", "", "item type")
	cmd.Flags().StringVar(&flagDesc, "desc", "", "item description")
	cmd.Flags().IntVar(&flagQty, "qty", 1, "quantity")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newDeliveryItemDelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item-del <delivery-id> <item-id>",
		Short: "Remove an ad-hoc item from a delivery",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[1])
			}

			a, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.refresh(cmd.Context()); err != nil {
				return err
			}

			m := &board.Mutation{
				Type:   board.MutationDeleteItem,
				Key:    a.key,
				Target: board.DeliveryID(args[0]),
				ItemID: itemID,
			}

			return a.exec.Execute(cmd.Context(), m)
		},
	}

	return cmd
}

func newDeliveryCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <delivery-id> <production-date>",
		Short: "Mark all orders of a delivery complete",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := board.Date(args[1])
			if !date.Valid() {
				return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", args[1])
			}

			a, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			m := &board.Mutation{
				Type:           board.MutationCompleteOrders,
				Key:            a.key,
				Target:         board.DeliveryID(args[0]),
				ProductionDate: date,
			}

			if err := a.exec.Execute(cmd.Context(), m); err != nil {
				return err
			}

			statusf("orders of delivery %s marked complete\n", args[0])

			return nil
		},
	}

	return cmd
}

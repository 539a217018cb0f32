package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenwerk/dispatch-go/internal/board"
)

// newBoardCmd returns the "board" command: render one day (or week) of the
// plan board with aggregate statistics.
func newBoardCmd() *cobra.Command {
	var flagWeek bool

	cmd := &cobra.Command{
		Use:   "board [date]",
		Short: "Show deliveries and statistics for a date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := board.Date(time.Now().Format(time.DateOnly))
			if len(args) == 1 {
				date = board.Date(args[0])
				if !date.Valid() {
					return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", args[0])
				}
			}

			a, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.refresh(cmd.Context()); err != nil {
				return err
			}

			batch, err := a.batch(cmd.Context())
			if err != nil {
				return err
			}

			if flagWeek {
				renderWeek(batch, date)
				return nil
			}

			renderDay(batch, date)

			return nil
		},
	}

	cmd.Flags().BoolVarP(&flagWeek, "week", "w", false, "show the whole ISO week")

	return cmd
}

// renderDay prints the deliveries of one date plus its aggregates and the
// unassigned pool summary.
func renderDay(batch *board.CalendarBatch, date board.Date) {
	stats := board.ComputeDayStats(batch, date)

	header := fmt.Sprintf("%s  windows=%d sashes=%d glass=%d value=%s",
		date, stats.Windows, stats.Sashes, stats.Glass, formatCents(int64(stats.Value)))

	if stats.Holiday != "" {
		header += "  [" + stats.Holiday + "]"
	} else if !stats.Working {
		header += "  [non-working]"
	}

	fmt.Println(header)

	for _, d := range board.DeliveriesOn(batch, date) {
		name := string(d.ID)
		if d.Number != "" {
			name = d.Number
		}

		if d.Pending {
			name = dimmed(name + " (pending)")
		}

		fmt.Printf("\ndelivery %s", name)

		if d.Notes != "" {
			fmt.Printf("  %s", d.Notes)
		}

		fmt.Println()
		renderMembers(d)

		for _, it := range d.Items {
			fmt.Printf("  + %s: %s x%d\n", it.Type, it.Description, it.Quantity)
		}
	}

	pool := board.ComputePoolStats(batch)
	fmt.Printf("\nunassigned: %d orders, windows=%d sashes=%d glass=%d\n",
		pool.Orders, pool.Windows, pool.Sashes, pool.Glass)
}

// renderMembers prints a delivery's member table, dimming pending stubs.
func renderMembers(d board.Delivery) {
	if len(d.Members) == 0 {
		fmt.Println("  (empty)")
		return
	}

	rows := make([][]string, 0, len(d.Members))

	for _, m := range d.Members {
		row := memberRow(m)
		if m.Pending {
			for i := range row {
				row[i] = dimmed(row[i])
			}
		}

		rows = append(rows, row)
	}

	printTable(os.Stdout, []string{"  order", "number", "win", "sash", "glass", "value"}, rows)
}

func memberRow(m board.Member) []string {
	if m.Order == nil {
		return []string{"  " + strconv.FormatInt(int64(m.ID), 10), "?", "?", "?", "?", "?"}
	}

	return []string{
		"  " + strconv.FormatInt(int64(m.ID), 10),
		m.Order.Number,
		strconv.Itoa(m.Order.Windows),
		strconv.Itoa(m.Order.Sashes),
		strconv.Itoa(m.Order.Glass),
		formatCents(int64(m.Order.Value)),
	}
}

// renderWeek prints per-day aggregates for the ISO week containing date.
func renderWeek(batch *board.CalendarBatch, date board.Date) {
	week := board.ComputeWeekStats(batch, date)

	fmt.Printf("week %d/%02d  deliveries=%d orders=%d windows=%d sashes=%d glass=%d value=%s\n",
		week.Year, week.Week, week.Deliveries, week.Orders,
		week.Windows, week.Sashes, week.Glass, formatCents(int64(week.Value)))

	monday := mondayOf(date)

	rows := make([][]string, 0, 7)
	for i := range 7 {
		d := board.Date(monday.AddDate(0, 0, i).Format(time.DateOnly))
		s := board.ComputeDayStats(batch, d)

		note := ""
		if s.Holiday != "" {
			note = s.Holiday
		} else if !s.Working {
			note = "non-working"
		}

		rows = append(rows, []string{
			string(d),
			strconv.Itoa(s.Deliveries),
			strconv.Itoa(s.Orders),
			strconv.Itoa(s.Windows),
			strconv.Itoa(s.Sashes),
			strconv.Itoa(s.Glass),
			formatCents(int64(s.Value)),
			note,
		})
	}

	printTable(os.Stdout, []string{"date", "dlv", "orders", "win", "sash", "glass", "value", ""}, rows)
}

func mondayOf(date board.Date) time.Time {
	t := date.Time()
	offset := (int(t.Weekday()) + 6) % 7

	return t.AddDate(0, 0, -offset)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fenwerk/dispatch-go/internal/board"
)

// newWorkdayCmd returns the "workday" command: toggle the working-day flag
// for a calendar date. The flag is a cheap-refetch binary, so the engine
// applies no optimistic patch and simply invalidates the calendar after the
// server confirms.
func newWorkdayCmd() *cobra.Command {
	var (
		flagOn  bool
		flagOff bool
	)

	cmd := &cobra.Command{
		Use:   "workday <date>",
		Short: "Mark a date as working or non-working",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagOn == flagOff {
				return fmt.Errorf("exactly one of --on or --off is required")
			}

			date := board.Date(args[0])
			if !date.Valid() {
				return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", args[0])
			}

			a, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			m := &board.Mutation{
				Type:    board.MutationToggleWorkingDay,
				Key:     a.key,
				Date:    date,
				Working: flagOn,
			}

			if err := a.exec.Execute(cmd.Context(), m); err != nil {
				return err
			}

			state := "non-working"
			if flagOn {
				state = "working"
			}

			statusf("%s is now %s\n", date, state)

			return nil
		},
	}

	cmd.Flags().BoolVar(&flagOn, "on", false, "mark as working day")
	cmd.Flags().BoolVar(&flagOff, "off", false, "mark as non-working day")

	return cmd
}

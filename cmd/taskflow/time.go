package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/abatilo/taskflow/internal/orchestrator"
	"github.com/abatilo/taskflow/internal/timetrack"
)

// timerCmd implements 'taskflow timer'.
func timerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Start, stop and summarize task timers",
	}
	cmd.AddCommand(timerStartCmd(), timerStopCmd(), timerSummaryCmd())
	return cmd
}

func timerStartCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start a timer on a task",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			tt, err := a.flow.StartTimer(context.Background(), args[0], a.actor, notes)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTimeTracking(args[0], tt))
		},
	}
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Session notes")
	return cmd
}

func timerStopCmd() *cobra.Command {
	var notes string
	var nonBillable bool
	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop the running timer on a task",
		Args:  cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			opts := timetrack.StopOptions{Notes: notes}
			if c.Flags().Changed("non-billable") {
				billable := !nonBillable
				opts.IsBillable = &billable
			}

			tt, err := a.flow.StopTimer(context.Background(), args[0], a.actor, opts)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTimeTracking(args[0], tt))
		},
	}
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Replace the session notes")
	cmd.Flags().BoolVar(&nonBillable, "non-billable", false, "Mark the session non-billable")
	return cmd
}

func timerSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <id>",
		Short: "Show time and budget figures of a task",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			s, err := a.flow.TimeSummary(context.Background(), args[0])
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatSummary(s))
		},
	}
}

// logCmd implements 'taskflow log'.
func logCmd() *cobra.Command {
	var date, notes, user string
	var nonBillable bool
	cmd := &cobra.Command{
		Use:   "log <id> <minutes>",
		Short: "Log time spent on a task after the fact",
		Args:  cobra.ExactArgs(2), //nolint:mnd // CLI takes 2 positional args
		Run: func(_ *cobra.Command, args []string) {
			minutes, err := strconv.Atoi(args[1])
			if err != nil {
				printError(InvalidArgumentError{Name: "minutes", Value: args[1], Want: "a whole number"})
			}
			on, err := parseDate("date", date)
			if err != nil {
				printError(err)
			}

			a := mustApp()
			defer a.Close()

			billable := !nonBillable
			entry := timetrack.ManualEntry{
				Minutes:    minutes,
				Date:       on,
				Notes:      notes,
				IsBillable: &billable,
				UserID:     user,
			}
			if entry.UserID == "" {
				entry.UserID = a.actor
			}

			tt, err := a.flow.AddManualTime(context.Background(), args[0], a.actor, entry)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTimeTracking(args[0], tt))
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day the work happened (default today)")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Session notes")
	cmd.Flags().StringVarP(&user, "user", "u", "", "Who did the work (default the signed-in user)")
	cmd.Flags().BoolVar(&nonBillable, "non-billable", false, "Mark the session non-billable")
	return cmd
}

// budgetCmd implements 'taskflow budget'.
func budgetCmd() *cobra.Command {
	var estimate int
	var rate float64
	cmd := &cobra.Command{
		Use:   "budget <id>",
		Short: "Set the time estimate and hourly rate of a task",
		Args:  cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			var u orchestrator.BudgetUpdate
			if c.Flags().Changed("estimate") {
				u.EstimatedMinutes = &estimate
			}
			if c.Flags().Changed("rate") {
				u.HourlyRate = &rate
			}
			if u.EstimatedMinutes == nil && u.HourlyRate == nil {
				printError(MissingFlagError{Flags: "--estimate, --rate"})
			}

			a := mustApp()
			defer a.Close()

			t, err := a.flow.UpdateBudget(context.Background(), args[0], a.actor, u)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
	cmd.Flags().IntVar(&estimate, "estimate", 0, "Estimated minutes")
	cmd.Flags().Float64Var(&rate, "rate", 0, "Hourly rate")
	return cmd
}

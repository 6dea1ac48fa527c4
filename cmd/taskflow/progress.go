package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/abatilo/taskflow/internal/orchestrator"
)

// progressCmd implements 'taskflow progress'.
func progressCmd() *cobra.Command {
	var auto bool
	cmd := &cobra.Command{
		Use:   "progress <id> [value]",
		Short: "Pin task progress, or hand it back to subtasks with --auto",
		Args:  cobra.RangeArgs(1, 2), //nolint:mnd // id and optional value
		Run: func(_ *cobra.Command, args []string) {
			var u orchestrator.ProgressUpdate
			switch {
			case auto && len(args) == 1:
				u.AutoCalculate = true
			case !auto && len(args) == 2: //nolint:mnd // id and value
				value, err := strconv.Atoi(args[1])
				if err != nil {
					printError(InvalidArgumentError{Name: "progress", Value: args[1], Want: "0-100"})
				}
				u.Value = &value
			default:
				printError(MissingFlagError{Flags: "a value, --auto"})
			}

			a := mustApp()
			defer a.Close()

			t, err := a.flow.SetProgress(context.Background(), args[0], a.actor, u)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
	cmd.Flags().BoolVar(&auto, "auto", false, "Derive progress from subtasks")
	return cmd
}

// subtaskCmd implements 'taskflow subtask'.
func subtaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtask",
		Short: "Add and check off subtasks",
	}
	cmd.AddCommand(subtaskAddCmd(), subtaskToggleCmd())
	return cmd
}

func subtaskAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <id> <title>",
		Short: "Append a subtask",
		Args:  cobra.ExactArgs(2), //nolint:mnd // CLI takes 2 positional args
		Run: func(_ *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			t, err := a.flow.AddSubtask(context.Background(), args[0], a.actor, args[1])
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
}

func subtaskToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id> <index>",
		Short: "Check or uncheck the subtask at index",
		Args:  cobra.ExactArgs(2), //nolint:mnd // CLI takes 2 positional args
		Run: func(_ *cobra.Command, args []string) {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				printError(InvalidArgumentError{Name: "index", Value: args[1], Want: "a subtask number"})
			}

			a := mustApp()
			defer a.Close()

			t, err := a.flow.ToggleSubtask(context.Background(), args[0], a.actor, index)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
}

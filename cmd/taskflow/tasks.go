package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abatilo/taskflow/internal/orchestrator"
	"github.com/abatilo/taskflow/internal/storage"
	"github.com/abatilo/taskflow/internal/task"
)

func parseDate(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := task.ParseTime(value)
	if err != nil {
		return nil, InvalidDateError{Flag: flag, Value: value}
	}
	return &t, nil
}

// addCmd implements 'taskflow add'.
func addCmd() *cobra.Command {
	var (
		d                            orchestrator.Draft
		priority, status, due, start string
		repeat, rotate, until        string
		interval, maxOccurrences     int
		pool                         []string
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a new task",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			var err error
			d.Title = args[0]
			d.Priority = task.Priority(priority)
			d.Status = task.Status(status)
			if d.TenantID == "" {
				d.TenantID = a.cfg.Tenant
			}
			if d.DueDate, err = parseDate("due", due); err != nil {
				printError(err)
			}
			if d.StartDate, err = parseDate("start", start); err != nil {
				printError(err)
			}
			if repeat != "" {
				d.Recurring = &task.Recurring{
					Enabled:          true,
					Frequency:        task.Frequency(repeat),
					Interval:         interval,
					AssigneeStrategy: task.AssigneeStrategy(rotate),
					AssigneePool:     pool,
				}
				if maxOccurrences > 0 {
					d.Recurring.MaxOccurrences = &maxOccurrences
				}
				if d.Recurring.EndDate, err = parseDate("until", until); err != nil {
					printError(err)
				}
			}

			t, err := a.flow.CreateTask(context.Background(), d, a.actor)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
	f := cmd.Flags()
	f.StringVarP(&d.Description, "description", "d", "", "Task description")
	f.StringVarP(&priority, "priority", "p", "medium", "Priority (urgent, high, medium, low)")
	f.StringVar(&status, "status", "todo", "Initial status (todo, pending, in_progress)")
	f.StringVar(&d.TenantID, "tenant", "", "Tenant (default from config)")
	f.StringVarP(&d.Label, "label", "l", "", "Label")
	f.StringSliceVarP(&d.Tags, "tag", "t", nil, "Tag (repeatable)")
	f.StringVar(&d.Notes, "notes", "", "Notes")
	f.IntVar(&d.Points, "points", 0, "Story points")
	f.StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")
	f.StringVar(&d.DueTime, "due-time", "", "Due time (HH:MM)")
	f.StringVar(&start, "start", "", "Start date (YYYY-MM-DD)")
	f.StringVarP(&d.AssignedTo, "assign", "a", "", "Assignee")
	f.StringVar(&d.ParentTaskID, "parent", "", "Parent task ID")
	f.StringVar(&d.CaseID, "case", "", "Case ID")
	f.StringVar(&d.ClientID, "client", "", "Client ID")
	f.StringArrayVarP(&d.Subtasks, "subtask", "s", nil, "Subtask title (repeatable)")
	f.IntVar(&d.EstimatedMinutes, "estimate", 0, "Estimated minutes")
	f.Float64Var(&d.HourlyRate, "rate", 0, "Hourly rate")
	f.StringSliceVar(&d.DependsOn, "depends-on", nil, "ID of a task this one waits on (repeatable)")
	f.StringVar(&repeat, "repeat", "", "Recurrence (daily, weekly, biweekly, monthly, quarterly, yearly)")
	f.IntVar(&interval, "interval", 1, "Recurrence interval")
	f.IntVar(&maxOccurrences, "max-occurrences", 0, "Stop recurring after this many completions")
	f.StringVar(&until, "until", "", "Stop recurring after this date")
	f.StringVar(&rotate, "rotate", "", "Assignee strategy (fixed, round_robin, random)")
	f.StringSliceVar(&pool, "pool", nil, "Assignee pool for rotation")
	return cmd
}

// listCmd implements 'taskflow list'.
func listCmd() *cobra.Command {
	var statuses []string
	var tenant, parent string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, ready ones first",
		Run: func(_ *cobra.Command, _ []string) {
			a := mustApp()
			defer a.Close()

			filter := storage.Filter{TenantID: tenant, ParentID: parent}
			for _, s := range statuses {
				filter.Statuses = append(filter.Statuses, task.Status(s))
			}

			tasks, err := a.flow.ListByReadiness(context.Background(), filter)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTaskList(tasks))
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only tasks with this status (repeatable)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Only tasks of this tenant")
	cmd.Flags().StringVar(&parent, "parent", "", "Only subtasks of this task")
	return cmd
}

// showCmd implements 'taskflow show'.
func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			t, err := a.flow.GetTask(context.Background(), args[0])
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
}

// readyCmd implements 'taskflow ready'.
func readyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "List tasks ready to be worked on",
		Run: func(_ *cobra.Command, _ []string) {
			a := mustApp()
			defer a.Close()

			graph, err := a.flow.Graph(context.Background(), storage.Filter{})
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTaskList(graph.Ready()))
		},
	}
}

// transitionCmd builds a command that moves a task to a fixed status.
func transitionCmd(use, short string, to task.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			t, err := a.flow.TransitionStatus(context.Background(), args[0], to, a.actor)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
}

// startCmd implements 'taskflow start'.
func startCmd() *cobra.Command {
	return transitionCmd("start", "Start a task (fails while blockers are open)", task.StatusInProgress)
}

// cancelCmd implements 'taskflow cancel'.
func cancelCmd() *cobra.Command {
	return transitionCmd("cancel", "Cancel a task", task.StatusCanceled)
}

// statusCmd implements 'taskflow status'.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a task to any status",
		Args:  cobra.ExactArgs(2), //nolint:mnd // CLI takes 2 positional args
		Run: func(_ *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			t, err := a.flow.TransitionStatus(context.Background(), args[0], task.Status(args[1]), a.actor)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
}

// doneCmd implements 'taskflow done'.
func doneCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Complete a task, spawning its next occurrence if it recurs",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			res, err := a.flow.CompleteTask(context.Background(), args[0], a.actor, note)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatCompletion(res.Task, res.NextTask))
		},
	}
	cmd.Flags().StringVarP(&note, "note", "n", "", "Completion note")
	return cmd
}

// blockersCmd implements 'taskflow blockers'.
func blockersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blockers <id>",
		Short: "Show what keeps a task from starting",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			blockers, err := a.flow.Blockers(context.Background(), args[0])
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatBlockers(args[0], blockers))
		},
	}
}

// depCmd implements 'taskflow dep'.
func depCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dep <id> <depends-on-id>",
		Short: "Add a dependency",
		Args:  cobra.ExactArgs(2), //nolint:mnd // CLI takes 2 positional args
		Run: func(_ *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			t, err := a.flow.AddDependency(context.Background(), args[0], args[1], a.actor)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
}

// undepCmd implements 'taskflow undep'.
func undepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undep <id> <depends-on-id>",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(2), //nolint:mnd // CLI takes 2 positional args
		Run: func(_ *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			t, err := a.flow.RemoveDependency(context.Background(), args[0], args[1], a.actor)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
}

// graphCmd implements 'taskflow graph'.
func graphCmd() *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Display dependency graph",
		Run: func(_ *cobra.Command, _ []string) {
			a := mustApp()
			defer a.Close()

			graph, err := a.flow.Graph(context.Background(), storage.Filter{TenantID: tenant})
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatGraph(graph.BuildTree()))
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Only tasks of this tenant")
	return cmd
}

// pruneCmd implements 'taskflow prune'.
func pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove all done and canceled tasks",
		Run: func(_ *cobra.Command, _ []string) {
			a := mustApp()
			defer a.Close()

			ctx := context.Background()
			tasks, err := a.flow.ListTasks(ctx, storage.Filter{
				Statuses: []task.Status{task.StatusDone, task.StatusCanceled},
			})
			if err != nil {
				printError(err)
			}

			if len(tasks) == 0 {
				printOutput(formatter.FormatMessage("No finished tasks to prune"))
				return
			}

			for _, t := range tasks {
				if err = a.flow.DeleteTask(ctx, t.ID, a.actor); err != nil {
					printError(err)
				}
			}
			printOutput(formatter.FormatMessage(fmt.Sprintf("Pruned %d finished task(s)", len(tasks))))
		},
	}
}

// rmCmd implements 'taskflow rm'.
func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a task",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			if err := a.flow.DeleteTask(context.Background(), args[0], a.actor); err != nil {
				printError(err)
			}
			printOutput(formatter.FormatMessage(fmt.Sprintf("Removed task %s", args[0])))
		},
	}
}

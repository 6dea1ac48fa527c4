package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/abatilo/taskflow/internal/task"
)

// ruleCmd implements 'taskflow rule'.
func ruleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Attach and detach workflow rules",
	}
	cmd.AddCommand(ruleAddCmd(), ruleRmCmd())
	return cmd
}

// readRule decodes a YAML rule document such as:
//
//	name: Serve after filing
//	trigger: {type: completion}
//	actions:
//	  - type: create_task
//	    payload: {title: "Serve defendant in ${caseNumber}", due_date_offset: 3}
func readRule(path string) (task.WorkflowRule, error) {
	var rule task.WorkflowRule
	data, err := os.ReadFile(path)
	if err != nil {
		return rule, err
	}
	err = yaml.Unmarshal(data, &rule)
	return rule, err
}

func ruleAddCmd() *cobra.Command {
	var file, name, trigger, assign, followUp string
	var followUpDays int
	var inactive bool
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Attach a workflow rule from --file or from flags",
		Args:  cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			var rule task.WorkflowRule
			if file != "" {
				var err error
				if rule, err = readRule(file); err != nil {
					printError(err)
				}
			} else {
				rule.Name = name
				rule.Trigger.Type = task.TriggerType(trigger)
				if assign != "" {
					rule.Actions = append(rule.Actions, task.AssignUserAction{UserID: assign})
				}
				if followUp != "" {
					action := task.CreateTaskAction{Title: followUp}
					if c.Flags().Changed("follow-up-days") {
						action.DueDateOffset = &followUpDays
					}
					rule.Actions = append(rule.Actions, action)
				}
			}
			rule.IsActive = !inactive

			a := mustApp()
			defer a.Close()

			t, err := a.flow.AddWorkflowRule(context.Background(), args[0], a.actor, rule)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "YAML rule document")
	f.StringVar(&name, "name", "", "Rule name")
	f.StringVar(&trigger, "trigger", string(task.TriggerCompletion), "Trigger (completion, status_change, created)")
	f.StringVar(&assign, "assign", "", "Reassign the task to this user when the rule fires")
	f.StringVar(&followUp, "follow-up", "", "Create a follow-up task with this title when the rule fires")
	f.IntVar(&followUpDays, "follow-up-days", 0, "Days from now the follow-up is due")
	f.BoolVar(&inactive, "inactive", false, "Store the rule switched off")
	return cmd
}

func ruleRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id> <rule-id>",
		Short: "Detach a workflow rule",
		Args:  cobra.ExactArgs(2), //nolint:mnd // CLI takes 2 positional args
		Run: func(_ *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()

			t, err := a.flow.RemoveWorkflowRule(context.Background(), args[0], a.actor, args[1])
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/taskformat"
)

func (c *cli) skipStepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skip-steps <task-id>",
		Short: "Mark every step of a task as skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.engine.SkipAllSteps(cmd.Context(), args[0])
		},
	}
	return cmd
}

func (c *cli) runTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-task <task-id>",
		Short: "Start a task, wait for it and archive it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := c.engine.ExecuteAndArchiveTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], state)
			return nil
		},
	}
	return cmd
}

func (c *cli) taskStatusCmd() *cobra.Command {
	var steps bool

	cmd := &cobra.Command{
		Use:   "task-status <task-id>",
		Short: "Print the state of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := c.client.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, taskformat.Summary(ts))
			if !steps {
				return nil
			}
			for i := 1; i <= ts.NrSteps; i++ {
				step, err := c.client.GetStep(cmd.Context(), args[0], i)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, taskformat.StepLine(args[0], i, step))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&steps, "steps", false, "also print every step")
	return cmd
}

package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/engine"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/report"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/taskformat"
)

func (c *cli) deployCmd() *cobra.Command {
	var (
		autoDeployeds bool
		skipAllSteps  bool
		cancelOnError bool
		reportFormat  string
	)

	cmd := &cobra.Command{
		Use:   "deploy <version-id> <environment-id>",
		Short: "Deploy an application version to an environment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.engine.Deploy(cmd.Context(), engine.DeployRequest{
				VersionID:         args[0],
				EnvironmentID:     args[1],
				AutoDeployeds:     autoDeployeds,
				SkipAllSteps:      skipAllSteps,
				CancelTaskOnError: cancelOnError,
				Report:            reportFormat != "",
			})
			if err != nil {
				var invalid *engine.DeploymentValidationError
				if errors.As(err, &invalid) {
					for _, m := range invalid.Messages {
						fmt.Fprintln(cmd.ErrOrStderr(), taskformat.ValidationLine(m))
					}
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s %s %s\n", res.DeployedApplicationID, res.DeploymentType, res.TaskID, res.State)
			if res.Report != nil {
				data, err := report.Marshal(res.Report, reportFormat)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoDeployeds, "auto-deployeds", true, "let the server generate deployeds")
	cmd.Flags().BoolVar(&skipAllSteps, "skip-all-steps", false, "skip every step of the task")
	cmd.Flags().BoolVar(&cancelOnError, "cancel-on-error", false, "cancel the task when it does not finish")
	cmd.Flags().StringVar(&reportFormat, "report", "", "print the execution report as json or yaml")
	return cmd
}

func (c *cli) isDeployedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "is-deployed <version-or-application-id> <environment-id>",
		Short: "Report whether an application is deployed to an environment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deployed, err := c.engine.IsApplicationDeployed(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), deployed)
			return nil
		},
	}
	return cmd
}

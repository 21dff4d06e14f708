package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

func (c *cli) createEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-env <environment-id> [member-id=type ...]",
		Short: "Create an environment and its members",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := parseMembers(args[1:])
			if err != nil {
				return err
			}
			env, err := c.engine.CreateEnvironment(cmd.Context(), args[0], members)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), env.ID)
			return nil
		},
	}
	return cmd
}

// parseMembers turns "Infrastructure/host=overthere.LocalHost" arguments
// into configuration items.
func parseMembers(args []string) ([]*xldeploy.ConfigurationItem, error) {
	members := make([]*xldeploy.ConfigurationItem, 0, len(args))
	for _, arg := range args {
		id, typ, ok := strings.Cut(arg, "=")
		if !ok || id == "" || typ == "" {
			return nil, fmt.Errorf("member %q must look like <id>=<type>", arg)
		}
		members = append(members, xldeploy.NewConfigurationItem(id, typ))
	}
	return members, nil
}

func (c *cli) showEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show-env <environment-id>",
		Short: "Print an environment and its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.engine.ReadCIOrNil(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if env == nil {
				return fmt.Errorf("environment %s not found", args[0])
			}
			c.engine.LogEnvironment(cmd.Context(), env)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", env.ID, env.Type)
			for _, m := range env.StringList("members") {
				fmt.Fprintf(out, "  %s\n", m)
			}
			return nil
		},
	}
	return cmd
}

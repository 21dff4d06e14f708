package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/darpackage"
)

func (c *cli) uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <dar|glob>",
		Short: "Import a deployment archive into the repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := darpackage.Resolve(args[0])
			if err != nil {
				return err
			}
			pkg, err := darpackage.Inspect(path)
			if err != nil {
				return err
			}
			version, err := c.engine.UploadPackage(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("import %s: %w", pkg.VersionID(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.ID, pkg.Hash)
			return nil
		},
	}
	return cmd
}

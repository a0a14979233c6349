package commands

import (
	"github.com/spf13/cobra"

	"github.com/mailyhq/maily-migrate/internal/ui"
)

func newSeedCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Run SQL seed files",
		Long:  "Execute every .sql file in the seeds directory in order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(flags)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}
			defer rt.Close()

			ran, err := rt.engine.Seed(cmd.Context())
			for _, name := range ran {
				ui.PrintSuccess("ran %s", name)
			}
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}

			if len(ran) == 0 {
				ui.PrintWarning("No seed files found in %s", rt.cfg.SeedsDir)
			}
			return nil
		},
	}
}

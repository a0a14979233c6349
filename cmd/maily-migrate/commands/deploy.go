package commands

import (
	"github.com/spf13/cobra"

	"github.com/mailyhq/maily-migrate/internal/ui"
)

func newDeployCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Apply all pending migrations",
		Long:  "Apply every pending migration in order. Non-interactive, safe for CI.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(flags)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}
			defer rt.Close()

			ui.PrintInfo("Deploying migrations to %s", rt.info.Redacted())

			spinner, _ := ui.Spinner("Applying pending migrations")
			applied, err := rt.engine.Deploy(cmd.Context())
			if spinner != nil {
				_ = spinner.Stop()
			}

			for i, name := range applied {
				ui.PrintStep(i+1, len(applied), "applied "+name)
			}
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}

			if len(applied) == 0 {
				ui.PrintSuccess("No pending migrations, database is up to date")
			} else {
				ui.PrintSuccess("Applied %d migration(s)", len(applied))
			}
			return nil
		},
	}
}

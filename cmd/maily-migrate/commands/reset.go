package commands

import (
	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/mailyhq/maily-migrate/internal/ui"
)

func newResetCommand(flags *globalFlags) *cobra.Command {
	var force bool
	var skipSeed bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Roll back every migration and reapply from scratch",
		Long: `Roll back all applied migrations in reverse order, then reapply everything.
This is a destructive operation: data created since the first migration is lost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				ok := false
				prompt := &survey.Confirm{
					Message: "This drops and recreates the schema. All data will be lost. Continue?",
				}
				if err := survey.AskOne(prompt, &ok); err != nil {
					return err
				}
				if !ok {
					ui.PrintWarning("Reset cancelled")
					return nil
				}
			}

			rt, err := openRuntime(flags)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}
			defer rt.Close()

			rolledBack, applied, err := rt.engine.Reset(cmd.Context())
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}
			ui.PrintSuccess("Rolled back %d and reapplied %d migration(s)", rolledBack, applied)

			if skipSeed {
				return nil
			}
			ran, err := rt.engine.Seed(cmd.Context())
			if err != nil {
				ui.PrintWarning("Seeding failed: %v", err)
				return nil
			}
			if len(ran) > 0 {
				ui.PrintSuccess("Ran %d seed file(s)", len(ran))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&skipSeed, "skip-seed", false, "Skip running seeds after reset")

	return cmd
}

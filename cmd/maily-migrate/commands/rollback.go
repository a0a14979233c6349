package commands

import (
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/mailyhq/maily-migrate/internal/ui"
	"github.com/mailyhq/maily-migrate/migrate"
)

func newRollbackCommand(flags *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rollback [name]",
		Short: "Roll back an applied migration",
		Long: `Run a migration's down.sql and delete its ledger row. Rolls back the most
recently applied migration unless a name is given.

If the named migration's directory no longer exists on disk, its ledger row
is orphaned and cannot be rolled back; pass --force to drop the row instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}

			if !force {
				target := name
				if target == "" {
					target = "the most recent migration"
				}
				ok := false
				prompt := &survey.Confirm{
					Message: fmt.Sprintf("Roll back %s?", target),
				}
				if err := survey.AskOne(prompt, &ok); err != nil {
					return err
				}
				if !ok {
					ui.PrintWarning("Rollback cancelled")
					return nil
				}
			}

			rt, err := openRuntime(flags)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}
			defer rt.Close()

			rolledBack, err := rt.engine.Rollback(cmd.Context(), name)
			if errors.Is(err, migrate.ErrOrphaned) && name != "" && force {
				if err := rt.engine.DropOrphan(cmd.Context(), name); err != nil {
					ui.PrintError("%v", err)
					return err
				}
				ui.PrintSuccess("Removed orphaned ledger row for %s", name)
				return nil
			}
			if err != nil {
				ui.PrintError("%v", err)
				if errors.Is(err, migrate.ErrOrphaned) {
					ui.PrintInfo("Rerun with --force to drop the orphaned ledger row")
				}
				return err
			}

			ui.PrintSuccess("Rolled back %s", rolledBack)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")

	return cmd
}

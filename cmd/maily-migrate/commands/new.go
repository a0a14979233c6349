package commands

import (
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mailyhq/maily-migrate/internal/ui"
	"github.com/mailyhq/maily-migrate/migrate/source"
)

func newNewCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "new <name>",
		Short: "Scaffold a new migration directory",
		Long:  "Create <timestamp>_<name>/migration.sql and down.sql under the migrations directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}

			fsys := afero.NewOsFs()
			name, err := source.Scaffold(fsys, cfg.MigrationsDir, args[0], time.Now())
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}

			ui.PrintSuccess("Created migration %s", name)
			ui.PrintInfo("Edit %s to add your SQL", filepath.Join(cfg.MigrationsDir, name, source.UpFile))
			return nil
		},
	}
}

package commands

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mailyhq/maily-migrate/internal/ui"
	"github.com/mailyhq/maily-migrate/migrate/source"
)

func newValidateCommand(flags *globalFlags) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the migrations directory",
		Long: `Check migration naming, missing or empty SQL files, duplicate version
prefixes, and (unless --offline) checksum drift against the ledger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var findings []source.Finding

			if offline {
				cfg, err := loadConfig(flags)
				if err != nil {
					ui.PrintError("%v", err)
					return err
				}
				findings, err = source.Validate(afero.NewOsFs(), cfg.MigrationsDir)
				if err != nil {
					ui.PrintError("%v", err)
					return err
				}
			} else {
				rt, err := openRuntime(flags)
				if err != nil {
					ui.PrintError("%v", err)
					return err
				}
				defer rt.Close()

				findings, err = rt.engine.Validate(cmd.Context())
				if err != nil {
					ui.PrintError("%v", err)
					return err
				}
			}

			errors := 0
			for _, f := range findings {
				switch f.Severity {
				case source.SeverityError:
					errors++
					ui.PrintError("%s: %s", f.Migration, f.Message)
				default:
					ui.PrintWarning("%s: %s", f.Migration, f.Message)
				}
			}

			if errors > 0 {
				return fmt.Errorf("validation failed with %d error(s)", errors)
			}
			if len(findings) > 0 {
				ui.PrintWarning("Validation passed with %d warning(s)", len(findings))
			} else {
				ui.PrintSuccess("All migrations are valid")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Validate files only, without a database connection")

	return cmd
}

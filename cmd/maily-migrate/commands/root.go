// Package commands implements the maily-migrate CLI commands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/mailyhq/maily-migrate/internal/logging"
	"github.com/mailyhq/maily-migrate/internal/ui"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	Environment string
	DatabaseURL string
	Dir         string
	LogLevel    string
	LogFile     string
	NoColor     bool
}

// NewRootCommand builds the root command with all subcommands attached.
func NewRootCommand(version string) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "maily-migrate",
		Short: "Database migration manager for the Maily platform",
		Long: `maily-migrate manages schema migrations for Maily databases.

It discovers migrations in a migrations directory, tracks applied ones in a
migration_history table, and applies pending migrations transactionally. It
replaces the manage-migrations / migrate-database / check-migrations shell
scripts with one consolidated tool.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.NoColor {
				ui.DisableColor()
			}
			// Flags-only setup so early failures are logged; loadConfig
			// re-runs it once config file values are known.
			logging.Setup(logging.Config{
				Level:  flags.LogLevel,
				Pretty: !flags.NoColor,
				File:   flags.LogFile,
			})
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.Environment, "env", "e", "", "Environment whose .env.<environment> file to load")
	pf.StringVar(&flags.DatabaseURL, "url", "", "Database URL (overrides DATABASE_URL)")
	pf.StringVar(&flags.Dir, "dir", "", "Migrations directory (overrides config)")
	pf.StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.LogFile, "log-file", "", "Write logs to a file instead of stderr")
	pf.BoolVar(&flags.NoColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newDeployCommand(flags))
	rootCmd.AddCommand(newStatusCommand(flags))
	rootCmd.AddCommand(newNewCommand(flags))
	rootCmd.AddCommand(newRollbackCommand(flags))
	rootCmd.AddCommand(newResetCommand(flags))
	rootCmd.AddCommand(newValidateCommand(flags))
	rootCmd.AddCommand(newReportCommand(flags))
	rootCmd.AddCommand(newSeedCommand(flags))
	rootCmd.AddCommand(newWatchCommand(flags))

	return rootCmd
}

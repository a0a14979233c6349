package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailyhq/maily-migrate/internal/ui"
)

func newStatusCommand(flags *globalFlags) *cobra.Command {
	var exitCode bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied, pending and drifted migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(flags)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}
			defer rt.Close()

			status, err := rt.engine.Status(cmd.Context())
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}

			ui.PrintInfo("Database: %s", status.Database)
			if status.Environment != "" {
				ui.PrintInfo("Environment: %s", status.Environment)
			}
			fmt.Println()

			printers := ui.GetColorPrinters()
			stateLabel := func(state string) string {
				switch state {
				case "applied":
					return printers["success"].Sprint(state)
				case "drifted":
					return printers["error"].Sprint(state)
				default:
					return printers["warning"].Sprint(state)
				}
			}

			rows := make([][]string, 0, len(status.Applied)+len(status.Pending))
			drifted := make(map[string]bool, len(status.Drifted))
			for _, d := range status.Drifted {
				drifted[d.Name] = true
			}
			orphaned := make(map[string]bool, len(status.Orphaned))
			for _, name := range status.Orphaned {
				orphaned[name] = true
			}

			for _, a := range status.Applied {
				state := "applied"
				if drifted[a.Name] {
					state = "drifted"
				} else if orphaned[a.Name] {
					state = "orphaned"
				}
				rows = append(rows, []string{
					a.Name,
					stateLabel(state),
					a.AppliedAt.UTC().Format(time.RFC3339),
					fmt.Sprintf("%dms", a.ExecutionTimeMs),
				})
			}
			for _, name := range status.Pending {
				rows = append(rows, []string{name, stateLabel("pending"), "", ""})
			}

			if len(rows) == 0 {
				ui.PrintWarning("No migrations found")
				return nil
			}

			ui.PrintTable([]string{"Migration", "State", "Applied At", "Duration"}, rows)
			fmt.Println()

			if status.Clean() {
				ui.PrintSuccess("Database schema is up to date")
				return nil
			}

			if len(status.Pending) > 0 {
				ui.PrintWarning("%d pending migration(s), run `maily-migrate deploy`", len(status.Pending))
			}
			if len(status.Drifted) > 0 {
				ui.PrintError("%d migration(s) were edited after being applied", len(status.Drifted))
			}
			if len(status.Orphaned) > 0 {
				ui.PrintWarning("%d ledger row(s) have no migration directory", len(status.Orphaned))
			}

			if exitCode {
				return fmt.Errorf("schema is not up to date")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit non-zero when migrations are pending or drifted")

	return cmd
}

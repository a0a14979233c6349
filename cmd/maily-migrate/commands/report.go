package commands

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mailyhq/maily-migrate/internal/ui"
)

func newReportCommand(flags *globalFlags) *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a migration status report",
		Long: `Build a status report and render it to the terminal, or write it to a file
with --output. Formats: markdown, json.`,
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

			if output != "" {
				if err := status.WriteFile(afero.NewOsFs(), output, format); err != nil {
					ui.PrintError("%v", err)
					return err
				}
				ui.PrintSuccess("Wrote %s report to %s", format, output)
				return nil
			}

			switch format {
			case "markdown", "md":
				return ui.PrintMarkdown(status.Markdown())
			case "json":
				data, err := status.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			default:
				return fmt.Errorf("unsupported report format %q", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Report format (markdown, json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file")

	return cmd
}

package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mailyhq/maily-migrate/internal/ui"
	"github.com/mailyhq/maily-migrate/internal/watch"
)

func newWatchCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the migrations directory and deploy on change",
		Long: `Development helper: watches the migrations directory and runs deploy
whenever a migration file changes. Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(flags)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}
			defer rt.Close()

			deploy := func() error {
				applied, err := rt.engine.Deploy(cmd.Context())
				for _, name := range applied {
					ui.PrintSuccess("applied %s", name)
				}
				return err
			}

			watcher, err := watch.New(rt.cfg.MigrationsDir, deploy)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				watcher.Stop()
			}()

			ui.PrintInfo("Watching %s for changes (Ctrl-C to stop)", rt.cfg.MigrationsDir)
			return watcher.Start()
		},
	}
}

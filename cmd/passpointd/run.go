package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vpbank/passpointd/pkg/passpointd/app"
	"github.com/vpbank/passpointd/pkg/passpointd/config"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon until SIGINT or SIGTERM",
		Long: `Run the daemon.

Watched access points are queried on their configured interval through
wpa_supplicant's D-Bus API. Responses are decoded and written as JSON
events to stdout or the configured output file. SIGHUP reloads the watch
list from the configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := loggerFrom(cmd, v)
			if err != nil {
				return err
			}

			path := v.GetString("config_path")
			if path == "" {
				path = config.PathFromEnv()
			}

			application := app.New(app.Config{ConfigPath: path}, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := application.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			logger.Info("passpointd: running", "config", path)

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			for {
				select {
				case <-ctx.Done():
					logger.Info("passpointd: received shutdown signal")
					application.Stop()
					return nil
				case <-hup:
					if err := application.Reload(); err != nil {
						logger.Error("passpointd: reload failed", "error", err.Error())
					}
				}
			}
		},
	}

	cmd.Flags().StringP("config", "c", "", "configuration file (default $PASSPOINTD_CONFIG_PATH or "+config.DefaultPath+")")
	_ = v.BindPFlag("config_path", cmd.Flags().Lookup("config"))
	return cmd
}

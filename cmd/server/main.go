// Command server runs the collaborative editing server: the websocket room
// sync endpoint, the REST rooms API and the persistence sweeper.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/manpreetbhatti/codetogether/internal/config"
)

var (
	flagPort     int
	flagLogLevel string
	flagDBDriver string
	flagDBPath   string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "server [options]",
		Short:         "Start the collaborative editing server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, conf)

			if err := conf.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}

			return run(cmd.Context(), conf)
		},
	}

	cmd.Flags().IntVar(&flagPort, "port", 8080, "port to listen on, overrides PORT")
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level, overrides LOG_LEVEL")
	cmd.Flags().StringVar(&flagDBDriver, "db-driver", config.DriverSQLite, "room store driver, overrides DB_DRIVER")
	cmd.Flags().StringVar(&flagDBPath, "db-path", "", "sqlite file path, overrides DB_PATH")

	return cmd
}

// applyFlags copies explicitly set flags over the loaded settings.
func applyFlags(cmd *cobra.Command, conf *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		conf.Port = flagPort
	}
	if flags.Changed("log-level") {
		conf.LogLevel = flagLogLevel
	}
	if flags.Changed("db-driver") {
		conf.DBDriver = flagDBDriver
	}
	if flags.Changed("db-path") {
		conf.DBPath = flagDBPath
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

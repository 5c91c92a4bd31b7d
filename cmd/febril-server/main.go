// Command febril-server runs the pediatric febrile severity dashboard server
// and its maintenance tasks.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/febril-severity-server/internal/config"
	"github.com/febril-severity-server/internal/logging"
)

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "febril-server",
		Short:        "Pediatric febrile severity dashboard server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default searches ./config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newScoreCmd(),
		newObservationsCmd(),
		newStatusCmd(),
	)
	return root
}

// loadConfig reads the configuration, applies the standalone overlay when
// lite is set, and builds the logger from the result.
func loadConfig(lite bool) (*config.Manager, *logrus.Logger, io.Closer, error) {
	manager, err := config.NewManager(configFile)
	if err != nil {
		return nil, nil, nil, err
	}

	if lite {
		liteCfg := config.LoadLiteConfig()
		if err := liteCfg.EnsureDataDir(); err != nil {
			return nil, nil, nil, fmt.Errorf("preparing data directory: %w", err)
		}
		liteCfg.Apply(manager.GetConfig())
	}

	if err := manager.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logger, closer, err := logging.New(manager.GetConfig().Logging)
	if err != nil {
		return nil, nil, nil, err
	}
	manager.LogWarnings(logger)
	return manager, logger, closer, nil
}

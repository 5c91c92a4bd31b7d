package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/febril-severity-server/internal/api"
	"github.com/febril-severity-server/internal/config"
	"github.com/febril-severity-server/internal/database"
	"github.com/febril-severity-server/internal/service"
	"github.com/febril-severity-server/internal/setup"
)

func newServeCmd() *cobra.Command {
	var (
		lite    bool
		migrate bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, logger, closer, err := loadConfig(lite)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := manager.GetConfig()
			if migrate && cfg.Store.Driver == "postgres" {
				if err := runMigrations(manager, logger, func(r *database.MigrationRunner) error { return r.Up(ctx) }); err != nil {
					return err
				}
			}

			a, err := build(ctx, manager, logger)
			if err != nil {
				logger.WithError(err).Error("Failed to wire components")
				return err
			}
			defer a.Close()

			logger.WithField("port", cfg.Server.Port).Info("Starting febrile severity server")
			server := api.NewServer(manager, a.deps)
			if err := server.Start(ctx); err != nil {
				return err
			}

			logger.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&lite, "lite", false, "standalone demo: in-memory store, heuristic predictions, SQLite observations")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runMigrations(manager *config.Manager, logger *logrus.Logger, fn func(*database.MigrationRunner) error) error {
	runner, err := database.NewMigrationRunner(manager.GetDatabaseURL(), manager.GetConfig().Database.MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	return fn(runner)
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the evaluation database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, logger, closer, err := loadConfig(false)
			if err != nil {
				return err
			}
			defer closer.Close()
			return runMigrations(manager, logger, func(r *database.MigrationRunner) error {
				return r.Up(cmd.Context())
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, logger, closer, err := loadConfig(false)
			if err != nil {
				return err
			}
			defer closer.Close()
			return runMigrations(manager, logger, func(r *database.MigrationRunner) error {
				return r.Down(cmd.Context(), steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, logger, closer, err := loadConfig(false)
			if err != nil {
				return err
			}
			defer closer.Close()
			return runMigrations(manager, logger, func(r *database.MigrationRunner) error {
				v, dirty, err := r.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func newScoreCmd() *cobra.Command {
	var in service.ScoreInput
	values := map[string]*service.FormValue{
		"triage":         &in.Triage,
		"glasgow":        &in.Glasgow,
		"so2":            &in.SO2,
		"procalcitonina": &in.Procalcitonina,
		"temperatura":    &in.Temperatura,
		"leucocitos":     &in.Leucocitos,
		"fc":             &in.FC,
		"edad":           &in.Edad,
	}
	raw := make(map[string]*string, len(values))

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Run the heuristic severity score on quick-assessment values",
		RunE: func(cmd *cobra.Command, args []string) error {
			for name, v := range raw {
				*values[name] = service.FormValue(*v)
			}
			result := service.NewSeverityScorer().Score(in)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	for name := range values {
		raw[name] = cmd.Flags().String(name, "", name+" (blank uses the default)")
	}
	return cmd
}

func newObservationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observations",
		Short: "Export or import clinical observations",
	}

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write every observation as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, _, closer, err := loadConfig(false)
			if err != nil {
				return err
			}
			defer closer.Close()

			store, err := openObservations(manager)
			if err != nil {
				return err
			}
			defer store.Close()

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return store.ExportJSON(cmd.Context(), w)
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "-", "output file")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load observations from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, logger, closer, err := loadConfig(false)
			if err != nil {
				return err
			}
			defer closer.Close()

			store, err := openObservations(manager)
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening import file: %w", err)
			}
			defer f.Close()

			imported, skipped, err := store.ImportJSON(cmd.Context(), f)
			if err != nil {
				return err
			}
			logger.WithField("imported", imported).WithField("skipped", skipped).Info("Observations imported")
			return nil
		},
	}

	cmd.AddCommand(export, importCmd)
	return cmd
}

func newStatusCmd() *cobra.Command {
	var lite bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the selected adapters and check the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager(configFile)
			if err != nil {
				return err
			}
			if lite {
				config.LoadLiteConfig().Apply(manager.GetConfig())
			}
			cfg := manager.GetConfig()

			setup.PrintStatus(cmd.OutOrStdout(), setup.GetStatus(cfg, manager.ConfigFileUsed()))

			valid, issues := setup.Validate(cfg)
			setup.PrintValidation(cmd.OutOrStdout(), valid, issues)
			if err := manager.Validate(); err != nil {
				return err
			}
			if !valid {
				return fmt.Errorf("configuration has %d issue(s)", len(issues))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&lite, "lite", false, "check the standalone demo deployment")
	return cmd
}

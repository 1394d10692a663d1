package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	coreboot "github.com/m3rciful/shopbot/core/bootstrap"
	corecmd "github.com/m3rciful/shopbot/core/cmd"
	coreconfig "github.com/m3rciful/shopbot/core/config"
	coredatabase "github.com/m3rciful/shopbot/core/database"
	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/migrations"
	"github.com/m3rciful/shopbot/shop/app"
	"github.com/m3rciful/shopbot/shop/config"
)

const (
	configEnvVar      = "CONFIG_PATH"
	defaultConfigPath = "config.yaml"
)

func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	if p := os.Getenv(configEnvVar); p != "" {
		return p
	}
	return defaultConfigPath
}

// loadWithLogger reads the config and starts the logger for one-shot commands.
func loadWithLogger(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	return cfg, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return corecmd.Run(corecmd.Options{
				ConfigPath: configPath(cmd),
				LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
					return config.Load(path)
				},
				Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
					shopCfg, ok := cfg.(*config.Config)
					if !ok {
						return nil, fmt.Errorf("unexpected config type %T", cfg)
					}
					return app.New(shopCfg, app.Options{})
				},
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the roster database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadWithLogger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()
			return coredatabase.RunMigrations(cfg.Database, migrations.FS)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadWithLogger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()
			return coredatabase.RollbackMigrations(cfg.Database, migrations.FS, steps)
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func rosterCmd() *cobra.Command {
	var countOnly bool
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "List the user ids that receive broadcasts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadWithLogger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()

			infra, err := coreboot.Run(coreboot.Options{
				Config:      cfg.CoreConfig(),
				UseDatabase: cfg.UsesPostgres(),
				Database:    cfg.Database,
				LoggerInit:  func(*coreconfig.Config) error { return nil },
			})
			if err != nil {
				return err
			}
			defer func() { _ = infra.Close() }()

			users, err := app.OpenRoster(context.Background(), cfg, infra.DB)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if countOnly {
				fmt.Fprintln(out, users.Len())
				return nil
			}
			for _, id := range users.IDs() {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&countOnly, "count", false, "print only the number of users")
	return cmd
}

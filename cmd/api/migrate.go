package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/infra"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		url, err := databaseURL()
		if err != nil {
			return err
		}
		if migrateSteps < 0 {
			return fmt.Errorf("--steps must not be negative")
		}
		if err := infra.Migrate(url, migrateSteps); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert migrations (all of them unless --steps is set)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		url, err := databaseURL()
		if err != nil {
			return err
		}
		if migrateSteps > 0 {
			err = infra.Migrate(url, -migrateSteps)
		} else {
			err = infra.MigrateDown(url)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations reverted")
		return nil
	},
}

func databaseURL() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL must be set")
	}
	return cfg.DatabaseURL, nil
}

func init() {
	migrateCmd.PersistentFlags().IntVar(&migrateSteps, "steps", 0, "number of migrations to apply or revert (0 means all)")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}

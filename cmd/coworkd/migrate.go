package main

import (
	"fmt"

	"coworking-alliance-backend/pkg/config"
	"coworking-alliance-backend/pkg/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back PostgreSQL schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			mg, closeDB, err := openMigrator()
			if err != nil {
				return err
			}
			defer closeDB()
			return mg.Up()
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			mg, closeDB, err := openMigrator()
			if err != nil {
				return err
			}
			defer closeDB()
			return mg.Down(steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

// openMigrator 迁移只对 PostgreSQL 有意义；SQLite 在打开时自建表
func openMigrator() (*database.Migrator, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseDriver != config.DriverPostgres {
		return nil, nil, fmt.Errorf("migrations require DATABASE_DRIVER=postgres, got %q", cfg.DatabaseDriver)
	}

	db, err := database.OpenPostgres(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	mg, err := database.NewMigrator(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init migrator: %w", err)
	}
	return mg, func() { db.Close() }, nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/certforge/backend/internal/config"
	"github.com/certforge/backend/internal/database"
	"github.com/certforge/backend/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|version]",
	Short: "Manage the database schema",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Server.Mode)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer log.Sync()

		db, err := database.Connect(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		action := "up"
		if len(args) == 1 {
			action = args[0]
		}
		switch action {
		case "up":
			err = database.Migrate(db)
		case "down":
			err = database.Rollback(db)
		case "version":
		default:
			return fmt.Errorf("unknown migrate action %q", action)
		}
		if err != nil {
			return err
		}

		v, dirty, err := database.Version(db)
		if err != nil {
			return err
		}
		log.Info("schema version", "action", action, "version", v, "dirty", dirty)
		return nil
	},
}

func runMigrations(a *app) error {
	if err := database.Migrate(a.db); err != nil {
		return err
	}
	a.log.Info("migrations applied")
	return nil
}

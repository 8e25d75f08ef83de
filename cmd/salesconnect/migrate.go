package main

import (
	"errors"
	"fmt"

	"github.com/soochol/salesconnect/internal/db"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is not configured")
			}
			database, err := db.New(cmd.Context(), cfg.Database.Driver, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer database.Close()
			if err := database.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

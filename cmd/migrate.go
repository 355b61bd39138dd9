package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leon6002/keybox-sub000/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return rootCmdLoadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := store.InitDB(cfg.DB.Type, cfg.DB.DSN); err != nil {
			return err
		}
		slog.Info("Schema migrated", "type", cfg.DB.Type)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

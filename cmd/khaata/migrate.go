package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khaata-app/khaata/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fmt.Printf("Database at %s is at schema version %d\n", cfg.DBPath, storage.ExpectedSchemaVersion)
			return nil
		},
	}
}

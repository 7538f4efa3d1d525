package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"refund-review-api/config"
	"refund-review-api/store"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the review tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := config.OpenDB()
			if err != nil {
				return err
			}
			if err := store.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Println("Migration complete")
			return nil
		},
	}
}

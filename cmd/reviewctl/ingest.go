package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"refund-review-api/services"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file.json]",
		Short: "Load scored refund transactions from a JSON array",
		Long: `Load scored refund transactions from a JSON array of records.

Each record is stored as a pending transaction. High and critical records
produce a HIGH_RISK notification for in-scope reviewers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var records []services.IngestRecord
			if err := json.Unmarshal(raw, &records); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			st, cleanup, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			fanout := services.NewNotificationFanout(st, nil)
			results := services.NewIngestService(st, fanout).Ingest(ctx, records)
			failed := 0
			for _, r := range results {
				switch {
				case r.Error != "":
					failed++
					fmt.Printf("FAIL %s: %s\n", r.TransactionRef, r.Error)
				case r.Notified:
					fmt.Printf("OK   %s (notified)\n", r.ID)
				default:
					fmt.Printf("OK   %s\n", r.ID)
				}
			}
			fmt.Printf("%d ingested, %d failed\n", len(results)-failed, failed)
			if failed > 0 {
				return fmt.Errorf("%d records failed", failed)
			}
			return nil
		},
	}
	return cmd
}

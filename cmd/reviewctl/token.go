package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"refund-review-api/config"
	"refund-review-api/services"
)

func tokenCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "token [email]",
		Short: "Issue a bearer token for a reviewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, cleanup, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			r, err := st.GetReviewerByEmail(ctx, strings.ToLower(strings.TrimSpace(args[0])))
			if err != nil {
				return fmt.Errorf("load reviewer: %w", err)
			}
			auth := services.NewAuthService(st, os.Getenv("JWT_SECRET"), time.Duration(hours)*time.Hour)
			token, err := auth.IssueToken(*r)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", config.EnvInt("JWT_EXPIRE_HOURS", 24), "token lifetime in hours")
	return cmd
}

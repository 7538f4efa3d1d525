package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"refund-review-api/models"
	"refund-review-api/services"
	"refund-review-api/store"
	"refund-review-api/utils"
)

func reviewerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviewer",
		Short: "Manage reviewers and their assignments",
	}
	cmd.AddCommand(reviewerCreateCmd())
	cmd.AddCommand(reviewerAssignCmd())
	return cmd
}

func reviewerCreateCmd() *cobra.Command {
	var (
		email, name, role, password string
		warehouse, region           string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a reviewer",
		Long: `Create a reviewer with a role and optional assignment.

Examples:
  reviewctl reviewer create --email wm@example.com --name "Dana" --role warehouse-manager --warehouse W-11 --password ...
  reviewctl reviewer create --email ops@example.com --name "Sam" --role operations-manager --password ...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.ToLower(strings.TrimSpace(email))
			if !utils.ValidateEmail(email) {
				return fmt.Errorf("invalid email %q", email)
			}
			if !models.Role(role).Valid() {
				return fmt.Errorf("unknown role %q (want one of %v)", role, models.Roles)
			}
			if ok, msg := utils.ValidatePassword(password); !ok {
				return errors.New(msg)
			}
			hash, err := services.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			ctx := cmd.Context()
			st, cleanup, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := st.GetReviewerByEmail(ctx, email); err == nil {
				return fmt.Errorf("reviewer %s already exists", email)
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			r := &models.Reviewer{
				Email:               email,
				DisplayName:         utils.SanitizeInput(name),
				Role:                models.Role(role),
				AssignedWarehouseID: optional(warehouse),
				AssignedRegionID:    optional(region),
				PasswordHash:        hash,
			}
			if err := st.SaveReviewer(ctx, r); err != nil {
				return err
			}
			fmt.Printf("Created reviewer %s (%s, scope %s)\n", r.ID, r.Role, services.ResolveScope(r.Principal()))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "warehouse-manager | regional-manager | operations-manager | executive")
	cmd.Flags().StringVar(&password, "password", "", "initial password (min 8 characters)")
	cmd.Flags().StringVar(&warehouse, "warehouse", "", "assigned warehouse id")
	cmd.Flags().StringVar(&region, "region", "", "assigned region id")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func reviewerAssignCmd() *cobra.Command {
	var (
		role, warehouse, region string
		clearAll                bool
	)
	cmd := &cobra.Command{
		Use:   "assign [email]",
		Short: "Change a reviewer's role or assignment",
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
			if role != "" {
				if !models.Role(role).Valid() {
					return fmt.Errorf("unknown role %q", role)
				}
				r.Role = models.Role(role)
			}
			if clearAll {
				r.AssignedWarehouseID = nil
				r.AssignedRegionID = nil
			}
			if cmd.Flags().Changed("warehouse") {
				r.AssignedWarehouseID = optional(warehouse)
			}
			if cmd.Flags().Changed("region") {
				r.AssignedRegionID = optional(region)
			}
			if err := st.SaveReviewer(ctx, r); err != nil {
				return err
			}
			fmt.Printf("Reviewer %s is now %s with scope %s\n", r.Email, r.Role, services.ResolveScope(r.Principal()))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "new role")
	cmd.Flags().StringVar(&warehouse, "warehouse", "", "assigned warehouse id (empty clears)")
	cmd.Flags().StringVar(&region, "region", "", "assigned region id (empty clears)")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "remove both assignments first")
	return cmd
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

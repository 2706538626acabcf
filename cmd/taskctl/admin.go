package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/internal/service/user"
	"taskflow/pkg/db"
	"taskflow/pkg/outbox"
	"taskflow/pkg/rbac"
)

func newCreateAdminCmd() *cobra.Command {
	var email, password, name, role string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a super admin (or admin) account",
		Long: `Create a privileged account directly in the database.

Used to bootstrap the first SA of a fresh deployment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, ok := rbac.ParseRole(strings.ToUpper(role))
			if !ok || !r.Privileged() {
				return fmt.Errorf("role must be ADMIN or SA, got %q", role)
			}
			if len(password) < 6 {
				return fmt.Errorf("password must be at least 6 characters")
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pool, err := db.NewConnection(ctx, cfg.DB, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			users := user.NewService(repository.NewUserRepository(pool, outbox.NewRepository(pool), log), log)
			operator := rbac.Actor{Role: rbac.RoleSA, Name: "taskctl"}
			u, err := users.Create(ctx, operator, user.CreateInput{
				Name:     name,
				Email:    email,
				Password: password,
				Role:     r,
				Status:   model.StatusActive,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (id=%d)\n", u.Role, u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (min 6 characters)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(rbac.RoleSA), "ADMIN or SA")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

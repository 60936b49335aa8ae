// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	authpg "github.com/authgate/authgate/internal/auth/postgres"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/store"
)

// newUsersCmd creates the users subcommand.
func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage registered users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered users",
		Long:  `List all registered users. Password hashes are never shown.`,
		RunE:  runUsersList,
	})

	return cmd
}

func runUsersList(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url (or DATABASE_URL) is required")
	}

	ctx := cmd.Context()
	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	users, err := authpg.NewUserRepository(pool).ListAll(ctx)
	if err != nil {
		return err
	}

	if len(users) == 0 {
		cmd.Println("No users registered")
		return nil
	}
	for _, u := range users {
		cmd.Printf("%d\t%s\t%s\n", u.ID, u.Username, u.Email)
	}
	return nil
}

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-authgate/internal/supabase"
)

// seedUsers are the demo accounts the token command signs in with
var seedUsers = []supabase.CreateUserParams{
	{Email: "user1@example.com", Password: "testpass123", EmailConfirm: true},
	{Email: "user2@example.com", Password: "testpass456", EmailConfirm: true},
}

func newSeedUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-users",
		Short: "Create the demo users in Supabase Auth",
		Long: `Create user1@example.com and user2@example.com with confirmed email.
Users that already exist are looked up and reported. Requires
SUPABASE_URL and SUPABASE_SERVICE_KEY.`,
		RunE: runSeedUsers,
	}
}

func runSeedUsers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Supabase.URL == "" || cfg.Supabase.ServiceKey == "" {
		return errors.New("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	logger := newLogger()
	logger.AddSecret(cfg.Supabase.ServiceKey)
	client := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.AnonKey, supabase.WithServiceKey(cfg.Supabase.ServiceKey))
	ctx := cmd.Context()

	var existing []supabase.User
	created := 0
	for _, params := range seedUsers {
		user, err := client.CreateUser(ctx, params)
		if err == nil {
			created++
			logger.Success("Created user: %s (ID: %s)", user.Email, user.ID)
			continue
		}

		var apiErr *supabase.APIError
		if !errors.As(err, &apiErr) || (apiErr.StatusCode != 422 && apiErr.StatusCode != 400) {
			return fmt.Errorf("failed to create user %s: %w", params.Email, err)
		}

		if existing == nil {
			if existing, err = client.ListUsers(ctx); err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}
		}
		found := false
		for _, u := range existing {
			if u.Email == params.Email {
				logger.Info("User already exists: %s (ID: %s)", u.Email, u.ID)
				found = true
				break
			}
		}
		if !found {
			logger.Warning("Could not create or find user %s: %v", params.Email, apiErr)
		}
	}

	logger.Info("Created %d of %d users", created, len(seedUsers))
	logger.Info("Next: store service tokens with 'mcp-authgate secrets put <user-id> github <token>'")
	return nil
}

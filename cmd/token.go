package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/giantswarm/mcp-authgate/internal/supabase"
)

const defaultTestEmail = "user1@example.com"

var tokenPassword string

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [email]",
		Short: "Sign in to Supabase and print a bearer token",
		Long: `Sign in with email and password against Supabase Auth and print the
access token together with the header to send and a curl example.

The password is read from --password, MCP_AUTHGATE_PASSWORD, or prompted
for when stdin is a terminal.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runToken,
	}
	cmd.Flags().StringVar(&tokenPassword, "password", "", "Password (visible in process listings, prefer the prompt)")
	return cmd
}

// readPassword prompts on a terminal and reads a plain line otherwise
func readPassword(email string) (string, error) {
	if tokenPassword != "" {
		return tokenPassword, nil
	}
	if p := os.Getenv("MCP_AUTHGATE_PASSWORD"); p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "Password for %s: ", email)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Supabase.URL == "" || cfg.Supabase.AnonKey == "" {
		return errors.New("SUPABASE_URL and SUPABASE_ANON_KEY are required")
	}

	email := defaultTestEmail
	if len(args) == 1 {
		email = args[0]
	}
	password, err := readPassword(email)
	if err != nil {
		return err
	}

	logger := newLogger()
	client := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.AnonKey)
	session, err := client.SignInWithPassword(cmd.Context(), email, password)
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Message), "invalid login credentials") {
			logger.Info("Run 'mcp-authgate seed-users' to create the test users")
		}
		return fmt.Errorf("sign-in failed: %w", err)
	}

	logger.Success("Signed in as %s (user ID %s)", session.User.Email, session.User.ID)
	if session.ExpiresAt > 0 {
		logger.Info("Token expires at unix time %d", session.ExpiresAt)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, session.AccessToken)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Header Name:  Authorization")
	fmt.Fprintf(out, "Header Value: Bearer %s\n", session.AccessToken)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Test with curl:")
	fmt.Fprintf(out, "curl -X POST http://localhost%s/v1/runs \\\n", cfg.ListenAddr)
	fmt.Fprintf(out, "  -H \"Authorization: Bearer %s\" \\\n", session.AccessToken)
	fmt.Fprintln(out, "  -H \"Content-Type: application/json\" \\")
	fmt.Fprintln(out, "  -d '{\"request\": \"List my GitHub repositories\"}'")
	return nil
}

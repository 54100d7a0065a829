package secrets

import (
	"context"
	"os"

	"github.com/giantswarm/mcp-authgate/internal/logging"
)

// DefaultEnvVars maps the built-in services to their shared token variables.
var DefaultEnvVars = map[string]string{
	"github":     "GITHUB_PAT",
	"jira":       "JIRA_TOKEN",
	"slack":      "SLACK_TOKEN",
	"confluence": "CONFLUENCE_TOKEN",
}

// EnvBackend is the last-resort fallback: one process-wide token per service,
// shared by every user. Each hit logs a warning.
type EnvBackend struct {
	vars   map[string]string
	lookup func(string) (string, bool)
	logger *logging.Logger
}

// NewEnvBackend creates an env backend for the given service -> variable map.
// A nil map uses DefaultEnvVars.
func NewEnvBackend(vars map[string]string, logger *logging.Logger) *EnvBackend {
	if vars == nil {
		vars = DefaultEnvVars
	}
	return &EnvBackend{vars: vars, lookup: os.LookupEnv, logger: logger}
}

func (e *EnvBackend) Name() string { return "env" }

func (e *EnvBackend) Available() bool { return true }

func (e *EnvBackend) Get(_ context.Context, userID, service string) (string, error) {
	name, ok := e.vars[service]
	if !ok {
		return "", ErrSecretNotFound
	}
	value, ok := e.lookup(name)
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}
	e.logger.Warning("Using shared %s token from $%s for user %s; store a per-user secret to avoid sharing credentials", service, name, userID)
	return value, nil
}

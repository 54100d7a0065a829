// Package secrets resolves per-user, per-service tokens from an ordered
// chain of secret stores.
//
// Lookups walk the chain in order and return the first non-empty value.
// A backend that fails is logged and skipped, never fatal, and a value
// that no backend holds is reported as absent rather than as an error.
package secrets

import (
	"context"
	"errors"
)

var (
	// ErrSecretNotFound is returned when a backend does not hold the requested secret.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrBackendUnavailable is returned when a backend cannot be used in the current environment.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrReadOnlyBackend is returned when attempting to modify a read-only backend.
	ErrReadOnlyBackend = errors.New("backend is read-only")
)

// Backend is one secret store in the resolution chain.
type Backend interface {
	// Name returns the backend identifier used in logs and metrics.
	Name() string

	// Available reports whether the backend is configured and reachable
	// enough to be worth querying.
	Available() bool

	// Get returns the stored value for (userID, service).
	// It returns ErrSecretNotFound when nothing is stored.
	Get(ctx context.Context, userID, service string) (string, error)
}

// Writer is implemented by backends that can store secrets.
type Writer interface {
	Backend

	// Set stores value for (userID, service), replacing any existing value.
	Set(ctx context.Context, userID, service, value string) error

	// Delete removes the value for (userID, service).
	// It returns ErrSecretNotFound when nothing is stored.
	Delete(ctx context.Context, userID, service string) error
}

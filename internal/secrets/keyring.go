package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "mcp-authgate"

// KeyringBackend stores tokens in the OS keychain. It is meant for local
// development where a developer runs the gateway against their own accounts.
type KeyringBackend struct {
	service string
}

// NewKeyringBackend creates a keyring backend under the default service name
func NewKeyringBackend() *KeyringBackend {
	return &KeyringBackend{service: keyringService}
}

func (k *KeyringBackend) Name() string { return "keyring" }

// Available probes the keyring. A missing entry means the keyring works;
// any other error means there is no usable keyring service.
func (k *KeyringBackend) Available() bool {
	_, err := keyring.Get(k.service, "__probe__")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

func keyringUser(userID, service string) string {
	return userID + "/" + service
}

func (k *KeyringBackend) Get(_ context.Context, userID, service string) (string, error) {
	value, err := keyring.Get(k.service, keyringUser(userID, service))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring get: %w", err)
	}
	return value, nil
}

func (k *KeyringBackend) Set(_ context.Context, userID, service, value string) error {
	if err := keyring.Set(k.service, keyringUser(userID, service), value); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

func (k *KeyringBackend) Delete(_ context.Context, userID, service string) error {
	err := keyring.Delete(k.service, keyringUser(userID, service))
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrSecretNotFound
	}
	if err != nil {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

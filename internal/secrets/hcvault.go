package secrets

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// HashiCorpVaultConfig configures the KV v2 backend
type HashiCorpVaultConfig struct {
	Address string
	Token   string
	// Mount is the KV v2 mount path, "secret" by default
	Mount string
	// Prefix is the path below the mount under which user documents live
	Prefix string
}

// HashiCorpVaultBackend stores one KV v2 document per user at
// <mount>/data/<prefix>/<userID> with a "<service>_token" field per service.
type HashiCorpVaultBackend struct {
	client *vault.Client
	mount  string
	prefix string
}

// NewHashiCorpVaultBackend creates a token-authenticated vault client
func NewHashiCorpVaultBackend(cfg HashiCorpVaultConfig) (*HashiCorpVaultBackend, error) {
	vc := vault.DefaultConfig()
	if vc.Error != nil {
		return nil, fmt.Errorf("failed to read vault environment: %w", vc.Error)
	}
	if cfg.Address != "" {
		vc.Address = cfg.Address
	}

	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mount := strings.Trim(cfg.Mount, "/")
	if mount == "" {
		mount = "secret"
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "mcp-authgate/users"
	}
	return &HashiCorpVaultBackend{client: client, mount: mount, prefix: prefix}, nil
}

func (h *HashiCorpVaultBackend) Name() string { return "hcvault" }

func (h *HashiCorpVaultBackend) Available() bool {
	return h != nil && h.client != nil && h.client.Token() != ""
}

func (h *HashiCorpVaultBackend) dataPath(userID string) string {
	return fmt.Sprintf("%s/data/%s/%s", h.mount, h.prefix, userID)
}

func (h *HashiCorpVaultBackend) metadataPath(userID string) string {
	return fmt.Sprintf("%s/metadata/%s/%s", h.mount, h.prefix, userID)
}

func fieldName(service string) string {
	return service + "_token"
}

// readDocument returns the current data map for userID, or nil when absent
func (h *HashiCorpVaultBackend) readDocument(ctx context.Context, userID string) (map[string]interface{}, error) {
	secret, err := h.client.Logical().ReadWithContext(ctx, h.dataPath(userID))
	if err != nil {
		return nil, fmt.Errorf("vault read %s: %w", h.dataPath(userID), err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		// KV v2 returns data: null for deleted versions
		return nil, nil
	}
	return data, nil
}

func (h *HashiCorpVaultBackend) Get(ctx context.Context, userID, service string) (string, error) {
	data, err := h.readDocument(ctx, userID)
	if err != nil {
		return "", err
	}
	value, _ := data[fieldName(service)].(string)
	if value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

func (h *HashiCorpVaultBackend) Set(ctx context.Context, userID, service, value string) error {
	data, err := h.readDocument(ctx, userID)
	if err != nil {
		return err
	}
	if data == nil {
		data = make(map[string]interface{})
	}
	data[fieldName(service)] = value

	if _, err := h.client.Logical().WriteWithContext(ctx, h.dataPath(userID), map[string]interface{}{
		"data": data,
	}); err != nil {
		return fmt.Errorf("vault write %s: %w", h.dataPath(userID), err)
	}
	return nil
}

func (h *HashiCorpVaultBackend) Delete(ctx context.Context, userID, service string) error {
	data, err := h.readDocument(ctx, userID)
	if err != nil {
		return err
	}
	if _, ok := data[fieldName(service)]; !ok {
		return ErrSecretNotFound
	}
	delete(data, fieldName(service))

	if len(data) == 0 {
		if _, err := h.client.Logical().DeleteWithContext(ctx, h.metadataPath(userID)); err != nil {
			return fmt.Errorf("vault delete %s: %w", h.metadataPath(userID), err)
		}
		return nil
	}
	if _, err := h.client.Logical().WriteWithContext(ctx, h.dataPath(userID), map[string]interface{}{
		"data": data,
	}); err != nil {
		return fmt.Errorf("vault write %s: %w", h.dataPath(userID), err)
	}
	return nil
}

// Package vault provides integration with HashiCorp Vault for secret
// management. It supports token and AppRole authentication and fetches
// secrets from Vault's KV v2 secrets engine.
package vault

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
)

// Config holds Vault configuration including address and authentication details.
type Config struct {
	// Address is the Vault server address (e.g., "http://127.0.0.1:8200")
	Address string

	// Auth holds authentication configuration
	Auth AuthConfig

	// TLSSkipVerify skips TLS certificate verification (not recommended for production)
	TLSSkipVerify bool
}

// AuthConfig specifies the authentication method and credentials.
type AuthConfig struct {
	// Method is the auth method: "token" or "approle"
	Method string

	// Token for token authentication
	Token string

	// RoleID for AppRole authentication
	RoleID string

	// SecretID for AppRole authentication
	SecretID string
}

// Client wraps the Vault API client and provides secret retrieval methods.
type Client struct {
	client *vault.Client
	config *Config
}

// NewClient creates a new Vault client with the given configuration.
// It initializes the client but does not authenticate yet.
//
// Example:
//
//	config := &vault.Config{
//	    Address: "http://127.0.0.1:8200",
//	    Auth: vault.AuthConfig{
//	        Method: "token",
//	        Token: "hvs.xxx",
//	    },
//	}
//	client, err := vault.NewClient(config)
func NewClient(config *Config) (*Client, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address

	if config.TLSSkipVerify {
		tlsConfig := &vault.TLSConfig{
			Insecure: true,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	return &Client{
		client: client,
		config: config,
	}, nil
}

// Authenticate authenticates to Vault using the configured auth method.
// This must be called before fetching secrets.
func (c *Client) Authenticate(ctx context.Context) error {
	switch c.config.Auth.Method {
	case "token":
		return c.authenticateWithToken()

	case "approle":
		return c.authenticateWithAppRole(ctx)

	default:
		return fmt.Errorf("unsupported auth method: %s", c.config.Auth.Method)
	}
}

// authenticateWithToken sets the token directly on the client.
func (c *Client) authenticateWithToken() error {
	if c.config.Auth.Token == "" {
		return fmt.Errorf("vault token is required for token authentication")
	}

	c.client.SetToken(c.config.Auth.Token)
	return nil
}

// authenticateWithAppRole authenticates using AppRole role_id and secret_id.
func (c *Client) authenticateWithAppRole(ctx context.Context) error {
	if c.config.Auth.RoleID == "" {
		return fmt.Errorf("role_id is required for approle authentication")
	}
	if c.config.Auth.SecretID == "" {
		return fmt.Errorf("secret_id is required for approle authentication")
	}

	data := map[string]interface{}{
		"role_id":   c.config.Auth.RoleID,
		"secret_id": c.config.Auth.SecretID,
	}

	resp, err := c.client.Logical().WriteWithContext(ctx, "auth/approle/login", data)
	if err != nil {
		return fmt.Errorf("approle login failed: %w", err)
	}

	if resp == nil || resp.Auth == nil {
		return fmt.Errorf("approle login returned no auth token")
	}

	c.client.SetToken(resp.Auth.ClientToken)
	return nil
}

// GetSecret fetches a secret from Vault's KV v2 secrets engine.
//
// Parameters:
//   - path: The full path to the secret (e.g., "secret/data/drydock/git")
//   - key: The key within the secret data (e.g., "token")
//
// Returns the secret value as a string.
func (c *Client) GetSecret(ctx context.Context, path, key string) (string, error) {
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret at %s: %w", path, err)
	}

	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no secret found at %s", path)
	}

	// KV v2 nests the payload under a "data" key
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		// KV v1 keeps the payload at the top level
		data = secret.Data
	}

	value, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret at %s", key, path)
	}

	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("secret value for %q at %s is not a string", key, path)
	}

	return str, nil
}

// Package credentials handles retrieval of the secrets a deployment needs:
// the Git access token and, when the SSH key is encrypted, its passphrase.
// Secrets are never written back to disk and are redacted by the logging
// package if they ever reach a log line.
package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/drydockdev/drydock/pkg/manifest"
	"github.com/drydockdev/drydock/pkg/vault"
)

// Manager handles credential retrieval from various sources
type Manager struct {
	Source string // "environment", "vault", "file", "prompt"

	manifest *manifest.Manifest
}

// NewManager creates a credentials manager for the given manifest. The
// source comes from the manifest's credentials section.
func NewManager(m *manifest.Manifest) *Manager {
	return &Manager{
		Source:   m.Credentials.Source,
		manifest: m,
	}
}

// GitToken retrieves the Git access token based on the configured source.
// An inline manifest token always wins so ad hoc runs stay possible.
func (m *Manager) GitToken(ctx context.Context) (string, error) {
	if m.manifest.Repository.Token != "" {
		return m.manifest.Repository.Token, nil
	}

	switch m.Source {
	case "environment":
		return m.getFromEnvironment()
	case "vault":
		return m.getFromVault(ctx)
	case "file":
		return m.getFromFile()
	case "prompt":
		return m.getFromPrompt()
	default:
		return "", fmt.Errorf("unknown credentials source: %s", m.Source)
	}
}

// getFromEnvironment retrieves the token from the configured environment
// variable. An empty value is not an error: public repositories clone
// without a token.
func (m *Manager) getFromEnvironment() (string, error) {
	return os.Getenv(m.manifest.Credentials.TokenEnv), nil
}

// getFromVault retrieves the token from HashiCorp Vault's KV engine.
func (m *Manager) getFromVault(ctx context.Context) (string, error) {
	vc := m.manifest.Vault
	if vc == nil {
		return "", fmt.Errorf("vault credentials source requires a vault section in the manifest")
	}
	if vc.TokenPath == "" {
		return "", fmt.Errorf("vault.token_path is required to fetch the git token")
	}

	client, err := vault.NewClient(&vault.Config{
		Address:       vc.Address,
		TLSSkipVerify: vc.TLSSkipVerify,
		Auth: vault.AuthConfig{
			Method:   vc.AuthMethod,
			Token:    vc.Token,
			RoleID:   vc.RoleID,
			SecretID: vc.SecretID,
		},
	})
	if err != nil {
		return "", err
	}

	if err := client.Authenticate(ctx); err != nil {
		return "", fmt.Errorf("vault authentication failed: %w", err)
	}

	return client.GetSecret(ctx, vc.TokenPath, vc.TokenKey)
}

// getFromFile reads the token from a file, trimming trailing whitespace.
func (m *Manager) getFromFile() (string, error) {
	path := m.manifest.Credentials.TokenFile
	if path == "" {
		return "", fmt.Errorf("credentials.token_file is required for the file source")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// getFromPrompt reads the token from the terminal without echo.
func (m *Manager) getFromPrompt() (string, error) {
	return PromptSecret("Git access token: ")
}

// PromptSecret reads a secret from the controlling terminal without echo.
// Fails when stdin is not a terminal so non-interactive runs abort with a
// clear message instead of hanging.
func PromptSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; use the environment, file, or vault credentials source")
	}

	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

// Package manifest provides types and functions for parsing and validating
// drydock manifest files. Manifests are YAML files that define the complete
// configuration for deploying a Dockerized application to a remote host.
package manifest

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"
)

// Manifest represents the complete deployment configuration.
// It defines all aspects of deploying an application to a target host,
// including the source repository, SSH connection details, application
// settings, and reverse proxy parameters.
//
// Example:
//
//	manifest := &Manifest{
//	  Repository: RepositoryConfig{URL: "https://github.com/acme/app.git"},
//	  Target: TargetConfig{Host: "203.0.113.10", User: "deploy"},
//	  Application: ApplicationConfig{Port: 3000},
//	}
type Manifest struct {
	// Version of the manifest schema (currently "1.0")
	Version string `yaml:"version"`

	// Repository configuration (clone URL, branch, token)
	Repository RepositoryConfig `yaml:"repository"`

	// Target configuration (host, SSH user, key)
	Target TargetConfig `yaml:"target"`

	// Application configuration (name, port, publish spec)
	Application ApplicationConfig `yaml:"application"`

	// Reverse proxy configuration - optional
	Proxy ProxyConfig `yaml:"proxy,omitempty"`

	// Health check configuration - optional
	HealthCheck HealthCheckConfig `yaml:"health_check,omitempty"`

	// Credentials configuration (where the git token comes from) - optional
	Credentials CredentialsConfig `yaml:"credentials,omitempty"`

	// Vault configuration for secret retrieval - optional
	Vault *VaultConfig `yaml:"vault,omitempty"`

	// Workspace configuration (local checkout root, log directory) - optional
	Workspace WorkspaceConfig `yaml:"workspace,omitempty"`
}

// RepositoryConfig specifies the Git repository to deploy.
type RepositoryConfig struct {
	// URL of the repository over HTTPS (e.g., https://github.com/acme/app.git)
	URL string `yaml:"url"`

	// Branch to deploy (default: main)
	Branch string `yaml:"branch,omitempty"`

	// Token for HTTPS authentication - optional, prefer the credentials
	// section over embedding tokens in the manifest
	Token string `yaml:"token,omitempty"`
}

// TargetConfig specifies the host to deploy to and how to reach it.
type TargetConfig struct {
	// Type of target (currently only "ssh")
	Type string `yaml:"type,omitempty"`

	// Host address (IP or DNS name)
	Host string `yaml:"host"`

	// SSH port (default: 22)
	Port int `yaml:"port,omitempty"`

	// User to connect as (must be sudo-capable for provisioning)
	User string `yaml:"user"`

	// KeyPath is the path to the SSH private key - optional
	KeyPath string `yaml:"key_path,omitempty"`

	// Password for SSH password authentication - optional fallback
	Password string `yaml:"password,omitempty"`

	// DialTimeoutSeconds bounds the SSH dial (default: 15)
	DialTimeoutSeconds int `yaml:"dial_timeout_seconds,omitempty"`
}

// ApplicationConfig defines the application being deployed.
type ApplicationConfig struct {
	// Name of the application - defaults to the repository name.
	// Used for the image tag, container name, and proxy site file.
	Name string `yaml:"name,omitempty"`

	// Port the application listens on inside the container
	Port int `yaml:"port"`

	// Publish is an optional "host:container" port spec. Defaults to
	// publishing Port on the same host port.
	Publish string `yaml:"publish,omitempty"`
}

// ProxyConfig defines the reverse proxy in front of the application.
type ProxyConfig struct {
	// ListenPort the proxy accepts traffic on (default: 80)
	ListenPort int `yaml:"listen_port,omitempty"`

	// ServerName for the site (default: "_", the catch-all)
	ServerName string `yaml:"server_name,omitempty"`
}

// HealthCheckConfig defines how the deployment is validated after the
// proxy is active.
type HealthCheckConfig struct {
	// Path to probe through the proxy (default: /)
	Path string `yaml:"path,omitempty"`

	// TimeoutSeconds bounds the whole validation poll (default: 60)
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	// IntervalSeconds between probes (default: 3)
	IntervalSeconds int `yaml:"interval_seconds,omitempty"`
}

// CredentialsConfig specifies where secrets are retrieved from.
// Note: it's recommended to use environment variables or Vault instead of
// storing the token in the manifest.
type CredentialsConfig struct {
	// Source of the git token: "environment", "vault", "file", "prompt"
	// (default: environment, falling back to the inline token)
	Source string `yaml:"source,omitempty"`

	// TokenEnv names the environment variable holding the git token
	// (default: DRYDOCK_GIT_TOKEN)
	TokenEnv string `yaml:"token_env,omitempty"`

	// TokenFile is a path to a file holding the git token
	TokenFile string `yaml:"token_file,omitempty"`
}

// VaultConfig holds HashiCorp Vault connection and lookup settings.
type VaultConfig struct {
	// Address of the Vault server (e.g., "http://127.0.0.1:8200")
	Address string `yaml:"address"`

	// AuthMethod is "token" or "approle"
	AuthMethod string `yaml:"auth_method"`

	// Token for token authentication
	Token string `yaml:"token,omitempty"`

	// RoleID for AppRole authentication
	RoleID string `yaml:"role_id,omitempty"`

	// SecretID for AppRole authentication
	SecretID string `yaml:"secret_id,omitempty"`

	// TokenPath is the KV v2 path holding the git token
	// (e.g., "secret/data/drydock/git")
	TokenPath string `yaml:"token_path,omitempty"`

	// TokenKey is the key within the secret data (default: "token")
	TokenKey string `yaml:"token_key,omitempty"`

	// TLSSkipVerify skips TLS certificate verification
	TLSSkipVerify bool `yaml:"tls_skip_verify,omitempty"`
}

// WorkspaceConfig controls local paths used during a run.
type WorkspaceConfig struct {
	// Root directory for local checkouts (default: ~/.drydock/repos)
	Root string `yaml:"root,omitempty"`

	// LogDir is where per-run log files are written (default: current dir)
	LogDir string `yaml:"log_dir,omitempty"`
}

// Load reads a manifest file from disk, parses it, applies defaults, and
// validates it. Returns an error if the file cannot be read, is invalid
// YAML, or fails validation.
//
// Example:
//
//	m, err := manifest.Load("drydock.yaml")
//	if err != nil {
//	  log.Fatal(err)
//	}
func Load(filename string) (*Manifest, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Repository.Branch == "" {
		m.Repository.Branch = "main"
	}
	if m.Target.Type == "" {
		m.Target.Type = "ssh"
	}
	if m.Target.Port == 0 {
		m.Target.Port = 22
	}
	if m.Target.DialTimeoutSeconds == 0 {
		m.Target.DialTimeoutSeconds = 15
	}
	if m.Application.Name == "" {
		m.Application.Name = RepoName(m.Repository.URL)
	}
	if m.Proxy.ListenPort == 0 {
		m.Proxy.ListenPort = 80
	}
	if m.Proxy.ServerName == "" {
		m.Proxy.ServerName = "_"
	}
	if m.HealthCheck.Path == "" {
		m.HealthCheck.Path = "/"
	}
	if m.HealthCheck.TimeoutSeconds == 0 {
		m.HealthCheck.TimeoutSeconds = 60
	}
	if m.HealthCheck.IntervalSeconds == 0 {
		m.HealthCheck.IntervalSeconds = 3
	}
	if m.Credentials.Source == "" {
		m.Credentials.Source = "environment"
	}
	if m.Credentials.TokenEnv == "" {
		m.Credentials.TokenEnv = "DRYDOCK_GIT_TOKEN"
	}
	if m.Vault != nil && m.Vault.TokenKey == "" {
		m.Vault.TokenKey = "token"
	}
}

// Validate checks if the manifest has all required fields and valid values.
// All missing required fields are reported in a single error so an operator
// can fix the manifest in one pass.
func (m *Manifest) Validate() error {
	var missing []string

	if m.Repository.URL == "" {
		missing = append(missing, "repository.url")
	}
	if m.Target.Host == "" {
		missing = append(missing, "target.host")
	}
	if m.Target.User == "" {
		missing = append(missing, "target.user")
	}
	if m.Application.Port == 0 {
		missing = append(missing, "application.port")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required fields missing: %s", strings.Join(missing, ", "))
	}

	if m.Repository.URL != "" && !strings.HasPrefix(m.Repository.URL, "https://") {
		return fmt.Errorf("repository.url must be an https:// URL")
	}
	if m.Application.Port < 1 || m.Application.Port > 65535 {
		return fmt.Errorf("application.port must be between 1 and 65535")
	}
	if m.Application.Publish != "" {
		if _, _, err := m.PortBinding(); err != nil {
			return err
		}
	}

	switch m.Credentials.Source {
	case "environment", "file", "prompt":
	case "vault":
		if m.Vault == nil {
			return fmt.Errorf("credentials.source is vault but no vault section is configured")
		}
	default:
		return fmt.Errorf("unknown credentials source: %s", m.Credentials.Source)
	}

	if m.Vault != nil {
		if m.Vault.Address == "" {
			return fmt.Errorf("vault.address is required when vault is configured")
		}
		switch m.Vault.AuthMethod {
		case "token", "approle":
		default:
			return fmt.Errorf("vault.auth_method must be token or approle")
		}
	}

	return nil
}

// PortBinding resolves the host and container ports to publish. The
// publish spec is parsed with the same syntax docker accepts; when absent
// the application port is published on the identical host port.
func (m *Manifest) PortBinding() (hostPort, containerPort int, err error) {
	if m.Application.Publish == "" {
		return m.Application.Port, m.Application.Port, nil
	}

	mappings, err := nat.ParsePortSpec(m.Application.Publish)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid application.publish spec %q: %w", m.Application.Publish, err)
	}
	if len(mappings) != 1 {
		return 0, 0, fmt.Errorf("application.publish must map exactly one port, got %d", len(mappings))
	}

	host, err := strconv.Atoi(mappings[0].Binding.HostPort)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid host port in application.publish: %w", err)
	}
	return host, mappings[0].Port.Int(), nil
}

// RepoName extracts the repository name from a clone URL
// ("https://github.com/acme/app.git" -> "app").
func RepoName(url string) string {
	name := strings.TrimSuffix(url, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".git")
}

// Package repo syncs the Git repository being deployed into a local
// workspace and detects which build descriptor it ships. All git work is
// local; nothing here touches the target host.
package repo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/drydockdev/drydock/pkg/logging"
	"github.com/drydockdev/drydock/pkg/manifest"
)

// ErrMissingBuildDescriptor is returned when the synced repository contains
// neither a compose file nor a Dockerfile. The pipeline checks this before
// any SSH connection is made.
var ErrMissingBuildDescriptor = errors.New("repository contains neither a compose file nor a Dockerfile")

// Mode identifies how the application will be built and run.
type Mode string

const (
	// ModeCompose deploys with docker compose (preferred when both
	// descriptors are present).
	ModeCompose Mode = "compose"

	// ModeDockerfile builds a single image and runs one container.
	ModeDockerfile Mode = "dockerfile"
)

// composeFiles are the descriptor names docker compose recognizes, in the
// order compose itself probes them.
var composeFiles = []string{
	"compose.yaml",
	"compose.yml",
	"docker-compose.yml",
	"docker-compose.yaml",
}

// Checkout describes a synced local copy of the repository.
type Checkout struct {
	// Name of the repository (derived from the clone URL)
	Name string

	// Dir is the absolute path of the local checkout
	Dir string

	// Mode selected from the descriptors present
	Mode Mode

	// DescriptorFile is the file that selected the mode
	DescriptorFile string
}

// DefaultRoot returns the default workspace root for local checkouts.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".drydock", "repos"), nil
}

// Sync clones the repository into root, or fast-forwards an existing
// checkout to the requested branch. After syncing it detects the build
// descriptor; a repository without one fails with
// ErrMissingBuildDescriptor before any remote work starts.
func Sync(ctx context.Context, root, cloneURL, branch, token string) (*Checkout, error) {
	if cloneURL == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}

	name := manifest.RepoName(cloneURL)
	dir := filepath.Join(root, name)

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		logging.Info("updating existing checkout", "repository", name, "branch", branch)
		if err := fastForward(ctx, dir, branch); err != nil {
			return nil, err
		}
	} else {
		logging.Info("cloning repository", "repository", name, "branch", branch)
		authURL, err := AuthURL(cloneURL, token)
		if err != nil {
			return nil, err
		}
		if err := runGit(ctx, root, "clone", "--branch", branch, authURL, dir); err != nil {
			return nil, err
		}
	}

	mode, file, err := Detect(dir)
	if err != nil {
		return nil, err
	}

	return &Checkout{
		Name:           name,
		Dir:            dir,
		Mode:           mode,
		DescriptorFile: file,
	}, nil
}

// fastForward updates an existing checkout: fetch, switch to the branch,
// fast-forward only. Local divergence is an error rather than something to
// silently overwrite.
func fastForward(ctx context.Context, dir, branch string) error {
	if err := runGit(ctx, dir, "fetch", "origin", branch); err != nil {
		return err
	}
	if err := runGit(ctx, dir, "checkout", branch); err != nil {
		return err
	}
	return runGit(ctx, dir, "pull", "--ff-only", "origin", branch)
}

// Detect inspects a checkout for build descriptors. Compose files win over
// a Dockerfile when both are present.
func Detect(dir string) (Mode, string, error) {
	for _, f := range composeFiles {
		if _, err := os.Stat(filepath.Join(dir, f)); err == nil {
			return ModeCompose, f, nil
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "Dockerfile")); err == nil {
		return ModeDockerfile, "Dockerfile", nil
	}
	return "", "", ErrMissingBuildDescriptor
}

// AuthURL embeds the access token into an HTTPS clone URL. An empty token
// returns the URL unchanged (public repository).
func AuthURL(cloneURL, token string) (string, error) {
	if token == "" {
		return cloneURL, nil
	}

	u, err := url.Parse(cloneURL)
	if err != nil {
		return "", fmt.Errorf("invalid repository URL: %w", err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("token authentication requires an https repository URL, got %s", u.Scheme)
	}

	u.User = url.User(token)
	return u.String(), nil
}

// Remove deletes a local checkout. The path is resolved under root and
// guarded so teardown can never escape the workspace.
func Remove(root, name string) error {
	if name == "" {
		return fmt.Errorf("checkout name cannot be empty")
	}

	dir := filepath.Join(root, name)
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove path outside workspace root")
	}
	return os.RemoveAll(dir)
}

// runGit executes a git command in dir, preventing interactive credential
// prompts and wrapping failures with sanitized output. Tokens embedded in
// clone URLs never reach the error message.
func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s failed: %w: %s", args[0], err, logging.SanitizeString(strings.TrimSpace(string(output))))
	}
	return nil
}

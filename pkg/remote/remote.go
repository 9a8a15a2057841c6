// Package remote provides a typed abstraction over SSH command execution.
// Every remote step takes a Runner and gets back a structured Result, so
// command construction is testable separately from execution and no step
// depends on fire-and-forget shell heredocs.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/pkg/archive"
	"golang.org/x/crypto/ssh"

	"github.com/drydockdev/drydock/pkg/logging"
)

// Result captures the outcome of one remote command.
type Result struct {
	// Command as sent to the remote shell
	Command string

	// ExitStatus of the command (0 on success)
	ExitStatus int

	// Stdout captured from the command
	Stdout string

	// Stderr captured from the command
	Stderr string
}

// Ok reports whether the command exited zero.
func (r *Result) Ok() bool {
	return r.ExitStatus == 0
}

// Err converts a non-zero result into an error carrying the command and
// its stderr. Returns nil for successful results.
func (r *Result) Err() error {
	if r.Ok() {
		return nil
	}
	stderr := strings.TrimSpace(r.Stderr)
	if stderr == "" {
		stderr = strings.TrimSpace(r.Stdout)
	}
	return fmt.Errorf("remote command %q exited %d: %s", r.Command, r.ExitStatus, logging.SanitizeString(stderr))
}

// Runner executes commands and uploads files on a target host.
type Runner interface {
	// Run executes a command on the host and returns its structured result.
	// A non-zero exit is reported through the Result, not the error; the
	// error covers transport failures only.
	Run(ctx context.Context, command string) (*Result, error)

	// Upload copies a local directory tree to remotePath on the host.
	// The copy is additive: files removed locally are not pruned remotely.
	Upload(ctx context.Context, localDir, remotePath string) error

	// Close releases the connection.
	Close() error
}

// Options configure an SSH connection.
type Options struct {
	Host        string
	Port        int
	User        string
	KeyPath     string
	Passphrase  string
	Password    string
	DialTimeout time.Duration
}

// Client is the SSH implementation of Runner.
type Client struct {
	client *ssh.Client
	host   string
}

// Dial opens an SSH connection to the target host. Public-key auth is
// preferred when a key path is configured; password auth is the fallback.
func Dial(opts Options) (*Client, error) {
	config, err := buildClientConfig(opts)
	if err != nil {
		return nil, err
	}

	port := opts.Port
	if port == 0 {
		port = 22
	}

	addr := fmt.Sprintf("%s:%d", opts.Host, port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	return &Client{client: client, host: opts.Host}, nil
}

func buildClientConfig(opts Options) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if opts.KeyPath != "" {
		keyAuth, err := readPrivateKey(opts.KeyPath, opts.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		auth = append(auth, keyAuth)
	}
	if opts.Password != "" {
		auth = append(auth, ssh.Password(opts.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no SSH authentication configured: set target.key_path or target.password")
	}

	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &ssh.ClientConfig{
		User:            opts.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

func readPrivateKey(path, passphrase string) (ssh.AuthMethod, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(data)
	}
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("private key is encrypted; configure a passphrase credentials source")
		}
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

// Run executes a command in a fresh session and captures its output. The
// context cancels the command by tearing the session down.
func (c *Client) Run(ctx context.Context, command string) (*Result, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session on %s: %w", c.host, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	logging.Debug("running remote command", "host", c.host, "command", logging.SanitizeString(command))

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return nil, ctx.Err()
	case err = <-done:
	}

	result := &Result{
		Command: command,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitStatus = exitErr.ExitStatus()
			return result, nil
		}
		return nil, fmt.Errorf("remote command failed on %s: %w", c.host, err)
	}
	return result, nil
}

// Upload streams localDir as a tar archive into an extracting tar on the
// host. The destination is created first; existing files with matching
// names are overwritten, nothing is pruned.
func (c *Client) Upload(ctx context.Context, localDir, remotePath string) error {
	tarStream, err := archive.TarWithOptions(localDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to tar %s: %w", localDir, err)
	}
	defer tarStream.Close()

	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session on %s: %w", c.host, err)
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	var stderr bytes.Buffer
	session.Stderr = &stderr

	cmd := fmt.Sprintf("mkdir -p %s && tar -xpf - -C %s", ShellQuote(remotePath), ShellQuote(remotePath))
	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("failed to start remote extract: %w", err)
	}

	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := io.Copy(stdin, tarStream)
		stdin.Close()
		copyDone <- copyErr
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return ctx.Err()
	case err = <-copyDone:
		if err != nil {
			session.Close()
			return fmt.Errorf("failed to stream archive to %s: %w", c.host, err)
		}
	}

	if err := session.Wait(); err != nil {
		return fmt.Errorf("remote extract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Close tears down the SSH connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// ShellQuote wraps s in single quotes, escaping embedded single quotes, so
// paths and names derived from user input are safe to interpolate into
// remote commands.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

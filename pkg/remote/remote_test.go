package remote

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain name",
			input: "widgets",
			want:  "'widgets'",
		},
		{
			name:  "path with spaces",
			input: "/etc/nginx/sites available",
			want:  "'/etc/nginx/sites available'",
		},
		{
			name:  "embedded single quote",
			input: "it's",
			want:  `'it'\''s'`,
		},
		{
			name:  "shell metacharacters neutralized",
			input: "app; rm -rf /",
			want:  "'app; rm -rf /'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShellQuote(tt.input); got != tt.want {
				t.Errorf("ShellQuote(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResultOk(t *testing.T) {
	ok := &Result{Command: "true", ExitStatus: 0}
	if !ok.Ok() {
		t.Error("expected zero exit to be ok")
	}
	if err := ok.Err(); err != nil {
		t.Errorf("expected nil error for ok result, got %v", err)
	}

	failed := &Result{Command: "false", ExitStatus: 1, Stderr: "boom"}
	if failed.Ok() {
		t.Error("expected non-zero exit to not be ok")
	}
	err := failed.Err()
	if err == nil {
		t.Fatal("expected error for failed result")
	}
	if !strings.Contains(err.Error(), "boom") || !strings.Contains(err.Error(), "exited 1") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestResultErrFallsBackToStdout(t *testing.T) {
	failed := &Result{Command: "x", ExitStatus: 2, Stdout: "detail on stdout"}
	err := failed.Err()
	if err == nil || !strings.Contains(err.Error(), "detail on stdout") {
		t.Errorf("expected stdout in error, got %v", err)
	}
}

func TestBuildClientConfigRequiresAuth(t *testing.T) {
	_, err := buildClientConfig(Options{Host: "203.0.113.10", User: "deploy"})
	if err == nil {
		t.Fatal("expected error when no auth method is configured")
	}
	if !strings.Contains(err.Error(), "authentication") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildClientConfigPasswordOnly(t *testing.T) {
	cfg, err := buildClientConfig(Options{
		Host:     "203.0.113.10",
		User:     "deploy",
		Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.User != "deploy" {
		t.Errorf("expected user deploy, got %q", cfg.User)
	}
	if len(cfg.Auth) != 1 {
		t.Errorf("expected one auth method, got %d", len(cfg.Auth))
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("expected default dial timeout, got %v", cfg.Timeout)
	}
}

func TestBuildClientConfigMissingKeyFile(t *testing.T) {
	_, err := buildClientConfig(Options{
		Host:    "203.0.113.10",
		User:    "deploy",
		KeyPath: filepath.Join(t.TempDir(), "missing_key"),
	})
	if err == nil {
		t.Fatal("expected error for missing key file")
	}
}

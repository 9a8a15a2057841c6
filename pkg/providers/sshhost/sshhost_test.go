package sshhost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/drydockdev/drydock/pkg/manifest"
	"github.com/drydockdev/drydock/pkg/nginx"
	"github.com/drydockdev/drydock/pkg/remote"
	"github.com/drydockdev/drydock/pkg/repo"
)

// fakeRunner records every command and upload and answers from a scripted
// respond function. The default answer is success with empty output.
type fakeRunner struct {
	commands []string
	uploads  []string
	closed   bool
	respond  func(cmd string) *remote.Result
}

func (f *fakeRunner) Run(ctx context.Context, command string) (*remote.Result, error) {
	f.commands = append(f.commands, command)
	if f.respond != nil {
		if res := f.respond(command); res != nil {
			res.Command = command
			return res, nil
		}
	}
	return &remote.Result{Command: command}, nil
}

func (f *fakeRunner) Upload(ctx context.Context, localDir, remotePath string) error {
	f.uploads = append(f.uploads, remotePath)
	return nil
}

func (f *fakeRunner) Close() error {
	f.closed = true
	return nil
}

// healthyRespond answers the probes a successful deployment needs.
func healthyRespond(cmd string) *remote.Result {
	switch {
	case strings.HasPrefix(cmd, "sudo docker ps"):
		return &remote.Result{Stdout: "widgets\tUp 5 seconds"}
	case strings.HasPrefix(cmd, "curl"):
		return &remote.Result{Stdout: "200"}
	}
	return nil
}

func testManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	return &manifest.Manifest{
		Version: "1.0",
		Repository: manifest.RepositoryConfig{
			URL:    "https://github.com/acme/widgets.git",
			Branch: "main",
		},
		Target: manifest.TargetConfig{
			Type: "ssh",
			Host: "203.0.113.10",
			Port: 22,
			User: "deploy",
		},
		Application: manifest.ApplicationConfig{
			Name: "widgets",
			Port: 3000,
		},
		Proxy: manifest.ProxyConfig{
			ListenPort: 80,
			ServerName: "_",
		},
		HealthCheck: manifest.HealthCheckConfig{
			Path:            "/",
			TimeoutSeconds:  60,
			IntervalSeconds: 3,
		},
		Credentials: manifest.CredentialsConfig{
			Source:   "environment",
			TokenEnv: "DRYDOCK_GIT_TOKEN",
		},
		Workspace: manifest.WorkspaceConfig{
			Root: t.TempDir(),
		},
	}
}

// testProvider wires a Provider to the fake runner and a canned checkout.
func testProvider(fake *fakeRunner, mode repo.Mode) *Provider {
	return &Provider{
		dial: func(ctx context.Context, m *manifest.Manifest) (remote.Runner, error) {
			return fake, nil
		},
		sync: func(ctx context.Context, root, cloneURL, branch, token string) (*repo.Checkout, error) {
			return &repo.Checkout{
				Name:           "widgets",
				Dir:            root,
				Mode:           mode,
				DescriptorFile: "compose.yaml",
			}, nil
		},
		sleep: func(time.Duration) {},
	}
}

func hasCommand(t *testing.T, commands []string, substr string) {
	t.Helper()
	for _, c := range commands {
		if strings.Contains(c, substr) {
			return
		}
	}
	t.Errorf("no command contains %q; commands:\n%s", substr, strings.Join(commands, "\n"))
}

func lacksCommand(t *testing.T, commands []string, substr string) {
	t.Helper()
	for _, c := range commands {
		if strings.Contains(c, substr) {
			t.Errorf("unexpected command containing %q: %s", substr, c)
		}
	}
}

func TestDeployCompose(t *testing.T) {
	fake := &fakeRunner{respond: healthyRespond}
	p := testProvider(fake, repo.ModeCompose)
	m := testManifest(t)

	result, err := p.Deploy(context.Background(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ID == "" {
		t.Error("expected a deployment ID")
	}
	if result.ApplicationName != "widgets" || result.Mode != "compose" || result.Status != "Ready" {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.URL != "http://203.0.113.10/" {
		t.Errorf("unexpected URL: %s", result.URL)
	}

	if len(fake.uploads) != 1 || fake.uploads[0] != "widgets" {
		t.Errorf("expected one upload to widgets, got %v", fake.uploads)
	}

	hasCommand(t, fake.commands, "cd 'widgets' && sudo docker compose down --remove-orphans")
	hasCommand(t, fake.commands, "cd 'widgets' && sudo docker compose up -d --build")
	hasCommand(t, fake.commands, "sudo systemctl reload nginx")
	lacksCommand(t, fake.commands, "docker build")
	lacksCommand(t, fake.commands, "apt-get")

	if !fake.closed {
		t.Error("expected the connection to be closed")
	}
}

func TestDeployDockerfile(t *testing.T) {
	fake := &fakeRunner{respond: healthyRespond}
	p := testProvider(fake, repo.ModeDockerfile)
	m := testManifest(t)
	m.Application.Publish = "8080:3000"

	result, err := p.Deploy(context.Background(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Mode != "dockerfile" {
		t.Errorf("expected dockerfile mode, got %s", result.Mode)
	}

	hasCommand(t, fake.commands, "cd 'widgets' && sudo docker build -t 'widgets' .")
	hasCommand(t, fake.commands, "sudo docker rm -f 'widgets'")
	hasCommand(t, fake.commands, "sudo docker run -d --name 'widgets' --restart unless-stopped -p 8080:3000 'widgets'")
	lacksCommand(t, fake.commands, "docker compose up")
}

func TestDeployMissingDescriptor(t *testing.T) {
	dialed := false
	p := &Provider{
		dial: func(ctx context.Context, m *manifest.Manifest) (remote.Runner, error) {
			dialed = true
			return &fakeRunner{}, nil
		},
		sync: func(ctx context.Context, root, cloneURL, branch, token string) (*repo.Checkout, error) {
			return nil, fmt.Errorf("descriptor check: %w", repo.ErrMissingBuildDescriptor)
		},
		sleep: func(time.Duration) {},
	}

	_, err := p.Deploy(context.Background(), testManifest(t))
	if !errors.Is(err, repo.ErrMissingBuildDescriptor) {
		t.Fatalf("expected ErrMissingBuildDescriptor, got %v", err)
	}
	if dialed {
		t.Error("expected no SSH connection when the build descriptor is missing")
	}
}

func TestDeployInstallsMissingDependencies(t *testing.T) {
	fake := &fakeRunner{respond: func(cmd string) *remote.Result {
		switch {
		case strings.HasPrefix(cmd, "command -v docker"),
			strings.HasPrefix(cmd, "sudo docker compose version"),
			strings.HasPrefix(cmd, "command -v nginx"):
			return &remote.Result{ExitStatus: 1}
		}
		return healthyRespond(cmd)
	}}
	p := testProvider(fake, repo.ModeCompose)

	if _, err := p.Deploy(context.Background(), testManifest(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hasCommand(t, fake.commands, "apt-get install -y docker.io")
	hasCommand(t, fake.commands, "apt-get install -y docker-compose-v2")
	hasCommand(t, fake.commands, "apt-get install -y nginx")
	hasCommand(t, fake.commands, "sudo systemctl enable --now docker")
	hasCommand(t, fake.commands, "sudo systemctl enable --now nginx")
}

func TestDeploySkipsInstallWhenPresent(t *testing.T) {
	fake := &fakeRunner{respond: healthyRespond}
	p := testProvider(fake, repo.ModeCompose)

	if _, err := p.Deploy(context.Background(), testManifest(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lacksCommand(t, fake.commands, "apt-get")
	// Services are still activated; enable --now is idempotent.
	hasCommand(t, fake.commands, "sudo systemctl enable --now docker")
}

func TestDeployToleratesComposeDownFailure(t *testing.T) {
	fake := &fakeRunner{respond: func(cmd string) *remote.Result {
		if strings.Contains(cmd, "docker compose down") {
			return &remote.Result{ExitStatus: 1, Stderr: "no such project"}
		}
		return healthyRespond(cmd)
	}}
	p := testProvider(fake, repo.ModeCompose)

	if _, err := p.Deploy(context.Background(), testManifest(t)); err != nil {
		t.Fatalf("expected tolerated down failure, got %v", err)
	}
}

func TestDeployHTTPGate(t *testing.T) {
	fake := &fakeRunner{respond: func(cmd string) *remote.Result {
		if strings.HasPrefix(cmd, "curl") {
			return &remote.Result{Stdout: "502"}
		}
		return healthyRespond(cmd)
	}}
	p := testProvider(fake, repo.ModeCompose)
	m := testManifest(t)
	// Deadline already passed: the gate must fail after the first probe.
	m.HealthCheck.TimeoutSeconds = -1

	_, err := p.Deploy(context.Background(), m)
	if err == nil {
		t.Fatal("expected validation to fail on 502")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("expected last status in error, got %v", err)
	}
}

func TestValidateRequiresRunningContainer(t *testing.T) {
	fake := &fakeRunner{respond: func(cmd string) *remote.Result {
		if strings.HasPrefix(cmd, "sudo docker ps") {
			return &remote.Result{Stdout: "  \n"}
		}
		return healthyRespond(cmd)
	}}
	p := testProvider(fake, repo.ModeCompose)

	err := p.validate(context.Background(), fake, testManifest(t), "widgets")
	if err == nil || !strings.Contains(err.Error(), "no running container") {
		t.Errorf("expected missing-container error, got %v", err)
	}
}

func TestConfigureProxyRollsBackOnInvalidConfig(t *testing.T) {
	fake := &fakeRunner{respond: func(cmd string) *remote.Result {
		switch {
		case strings.HasPrefix(cmd, "test -f"):
			return &remote.Result{ExitStatus: 1} // no previous site
		case cmd == "sudo nginx -t":
			return &remote.Result{ExitStatus: 1, Stderr: "[emerg] invalid parameter"}
		}
		return nil
	}}
	p := testProvider(fake, repo.ModeCompose)

	site := nginx.Site{AppName: "widgets", ServerName: "_", ListenPort: 80, UpstreamPort: 3000}
	err := p.configureProxy(context.Background(), fake, site)
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("expected rejection error, got %v", err)
	}

	hasCommand(t, fake.commands, "sudo rm -f '/etc/nginx/sites-enabled/widgets.conf'")
	hasCommand(t, fake.commands, "sudo rm -f '/etc/nginx/sites-available/widgets.conf.next'")
	lacksCommand(t, fake.commands, "sudo mv -f '/etc/nginx/sites-available/widgets.conf.next' '/etc/nginx/sites-available/widgets.conf'")
	lacksCommand(t, fake.commands, "systemctl reload nginx")
}

func TestConfigureProxyRestoresPreviousSite(t *testing.T) {
	fake := &fakeRunner{respond: func(cmd string) *remote.Result {
		if cmd == "sudo nginx -t" {
			return &remote.Result{ExitStatus: 1, Stderr: "[emerg] invalid parameter"}
		}
		return nil // test -f succeeds: a previous site exists
	}}
	p := testProvider(fake, repo.ModeCompose)

	site := nginx.Site{AppName: "widgets", ServerName: "_", ListenPort: 80, UpstreamPort: 3000}
	if err := p.configureProxy(context.Background(), fake, site); err == nil {
		t.Fatal("expected rejection error")
	}

	hasCommand(t, fake.commands, "sudo ln -sfn '/etc/nginx/sites-available/widgets.conf' '/etc/nginx/sites-enabled/widgets.conf'")
}

func TestTeardownScopedToApplication(t *testing.T) {
	fake := &fakeRunner{}
	p := testProvider(fake, repo.ModeCompose)
	m := testManifest(t)

	if err := p.Teardown(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hasCommand(t, fake.commands, "cd 'widgets' && sudo docker compose down --volumes --remove-orphans")
	hasCommand(t, fake.commands, "sudo docker rm -f 'widgets'")
	hasCommand(t, fake.commands, "rm -rf 'widgets'")
	hasCommand(t, fake.commands, "sudo rm -f '/etc/nginx/sites-enabled/widgets.conf' '/etc/nginx/sites-available/widgets.conf'")

	// Teardown never reaches beyond the application: no bulk container
	// removal of any shape.
	lacksCommand(t, fake.commands, "docker ps -aq")
	lacksCommand(t, fake.commands, "docker stop $(")
	for _, c := range fake.commands {
		if strings.Contains(c, "docker rm") && !strings.Contains(c, "'widgets'") {
			t.Errorf("container removal not scoped to the application: %s", c)
		}
	}
}

func TestTeardownSkipsReloadWhenConfigInvalid(t *testing.T) {
	fake := &fakeRunner{respond: func(cmd string) *remote.Result {
		if cmd == "sudo nginx -t" {
			return &remote.Result{ExitStatus: 1, Stderr: "[emerg] broken"}
		}
		return nil
	}}
	p := testProvider(fake, repo.ModeCompose)

	if err := p.Teardown(context.Background(), testManifest(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lacksCommand(t, fake.commands, "systemctl reload nginx")
}

func TestStatus(t *testing.T) {
	t.Run("running and reachable", func(t *testing.T) {
		fake := &fakeRunner{respond: healthyRespond}
		p := testProvider(fake, repo.ModeCompose)

		status, err := p.Status(context.Background(), testManifest(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if status.Status != "widgets\tUp 5 seconds" {
			t.Errorf("unexpected container status: %q", status.Status)
		}
		if status.Health != "Reachable" {
			t.Errorf("expected Reachable, got %q", status.Health)
		}
		if !status.ProxyActive {
			t.Error("expected proxy to be active")
		}
	})

	t.Run("nothing running", func(t *testing.T) {
		fake := &fakeRunner{respond: func(cmd string) *remote.Result {
			switch {
			case strings.HasPrefix(cmd, "sudo docker ps"):
				return &remote.Result{Stdout: ""}
			case strings.HasPrefix(cmd, "curl"):
				return &remote.Result{ExitStatus: 7}
			case cmd == "systemctl is-active nginx":
				return &remote.Result{ExitStatus: 3}
			}
			return nil
		}}
		p := testProvider(fake, repo.ModeCompose)

		status, err := p.Status(context.Background(), testManifest(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if status.Status != "not running" {
			t.Errorf("expected not running, got %q", status.Status)
		}
		if status.Health != "Unreachable" {
			t.Errorf("expected Unreachable, got %q", status.Health)
		}
		if status.ProxyActive {
			t.Error("expected proxy to be inactive")
		}
	})
}

func TestProbeCommand(t *testing.T) {
	m := testManifest(t)
	m.HealthCheck.Path = "healthz"
	m.Proxy.ListenPort = 8080

	cmd := probeCommand(m)
	if !strings.Contains(cmd, "http://localhost:8080/healthz") {
		t.Errorf("unexpected probe command: %s", cmd)
	}
	if !strings.Contains(cmd, "%{http_code}") {
		t.Errorf("expected status-code capture in probe: %s", cmd)
	}
}

func TestParseHTTPCode(t *testing.T) {
	if code, ok := parseHTTPCode(" 200\n"); !ok || code != 200 {
		t.Errorf("expected 200, got %d %t", code, ok)
	}
	if _, ok := parseHTTPCode("not-a-code"); ok {
		t.Error("expected parse failure")
	}
}

// Package sshhost deploys a Dockerized application to a single remote host
// over SSH. It implements the provider.Target interface as a fixed,
// fail-fast stage pipeline: sync, connect, provision, transfer, deploy,
// proxy, validate. A failing stage aborts the run; there is no rollback.
package sshhost

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drydockdev/drydock/pkg/credentials"
	"github.com/drydockdev/drydock/pkg/logging"
	"github.com/drydockdev/drydock/pkg/manifest"
	"github.com/drydockdev/drydock/pkg/nginx"
	"github.com/drydockdev/drydock/pkg/remote"
	"github.com/drydockdev/drydock/pkg/repo"
	"github.com/drydockdev/drydock/pkg/types"
)

// Provider implements provider.Target for SSH-reachable hosts.
type Provider struct {
	// dial opens the connection; swapped for a fake in tests
	dial func(ctx context.Context, m *manifest.Manifest) (remote.Runner, error)

	// sync brings the local checkout up to date; swapped in tests
	sync func(ctx context.Context, root, cloneURL, branch, token string) (*repo.Checkout, error)

	// sleep paces the validation poll; swapped for a no-op in tests
	sleep func(d time.Duration)
}

// New creates an SSH host target for the given manifest.
func New(m *manifest.Manifest) *Provider {
	return &Provider{
		dial:  dialSSH,
		sync:  repo.Sync,
		sleep: time.Sleep,
	}
}

// Name returns the target type name.
func (p *Provider) Name() string {
	return "ssh"
}

// dialSSH opens the SSH connection described by the manifest. When the
// private key is encrypted and the prompt credentials source is active,
// the passphrase is read from the terminal and the dial retried once.
func dialSSH(ctx context.Context, m *manifest.Manifest) (remote.Runner, error) {
	opts := remote.Options{
		Host:        m.Target.Host,
		Port:        m.Target.Port,
		User:        m.Target.User,
		KeyPath:     m.Target.KeyPath,
		Password:    m.Target.Password,
		DialTimeout: time.Duration(m.Target.DialTimeoutSeconds) * time.Second,
	}

	client, err := remote.Dial(opts)
	if err != nil && m.Credentials.Source == "prompt" && strings.Contains(err.Error(), "encrypted") {
		passphrase, perr := credentials.PromptSecret("SSH key passphrase: ")
		if perr != nil {
			return nil, perr
		}
		opts.Passphrase = passphrase
		client, err = remote.Dial(opts)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Deploy runs the full pipeline and returns the result of a successful
// deployment. The repository is synced and checked for a build descriptor
// before the host is dialed, so a broken repository never touches the host.
func (p *Provider) Deploy(ctx context.Context, m *manifest.Manifest) (*types.DeploymentResult, error) {
	deployID := uuid.NewString()
	app := m.Application.Name

	logging.Info("starting deployment",
		"deployment_id", deployID,
		"application", app,
		"host", m.Target.Host,
		"branch", m.Repository.Branch)

	// Step 1: resolve credentials
	creds := credentials.NewManager(m)
	token, err := creds.GitToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve git token: %w", err)
	}

	// Step 2: sync the repository locally
	root, err := workspaceRoot(m)
	if err != nil {
		return nil, err
	}
	co, err := p.sync(ctx, root, m.Repository.URL, m.Repository.Branch, token)
	if err != nil {
		return nil, fmt.Errorf("repository sync failed: %w", err)
	}
	logging.Info("repository synced", "checkout", co.Dir, "mode", string(co.Mode), "descriptor", co.DescriptorFile)

	// Step 3: connectivity check before any remote mutation
	runner, err := p.dial(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("connectivity check failed: %w", err)
	}
	defer runner.Close()

	if err := p.run(ctx, runner, "true"); err != nil {
		return nil, fmt.Errorf("connectivity check failed: %w", err)
	}
	logging.Info("host reachable", "host", m.Target.Host, "user", m.Target.User)

	// Step 4: provision runtime dependencies
	report, err := p.provision(ctx, runner)
	if err != nil {
		return nil, fmt.Errorf("provisioning failed: %w", err)
	}
	logging.Info("provisioning complete",
		"docker", string(report.Docker),
		"compose", string(report.Compose),
		"nginx", string(report.Nginx))

	// Step 5: transfer the checkout to the host
	if err := runner.Upload(ctx, co.Dir, app); err != nil {
		return nil, fmt.Errorf("file transfer failed: %w", err)
	}
	logging.Info("files transferred", "remote_dir", app)

	// Step 6: build and start the application
	hostPort, containerPort, err := m.PortBinding()
	if err != nil {
		return nil, err
	}
	switch co.Mode {
	case repo.ModeCompose:
		err = p.deployCompose(ctx, runner, app)
	case repo.ModeDockerfile:
		err = p.deployContainer(ctx, runner, app, hostPort, containerPort)
	default:
		err = fmt.Errorf("unsupported deployment mode: %s", co.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("application deployment failed: %w", err)
	}
	logging.Info("application started", "application", app, "mode", string(co.Mode))

	// Step 7: configure the reverse proxy
	site := nginx.Site{
		AppName:      app,
		ServerName:   m.Proxy.ServerName,
		ListenPort:   m.Proxy.ListenPort,
		UpstreamPort: hostPort,
	}
	if err := p.configureProxy(ctx, runner, site); err != nil {
		return nil, fmt.Errorf("proxy configuration failed: %w", err)
	}
	logging.Info("proxy configured", "site", nginx.AvailablePath(app), "listen_port", m.Proxy.ListenPort)

	// Step 8: validate containers and HTTP reachability
	if err := p.validate(ctx, runner, m, app); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	url := publicURL(m)
	logging.Info("deployment complete", "deployment_id", deployID, "url", url)

	return &types.DeploymentResult{
		ID:              deployID,
		ApplicationName: app,
		Host:            m.Target.Host,
		URL:             url,
		Mode:            string(co.Mode),
		Status:          "Ready",
		Message:         fmt.Sprintf("deployed %s from %s@%s", app, co.Name, m.Repository.Branch),
	}, nil
}

// deployCompose restarts a compose stack in the application directory.
// Stopping a stack that is not running is an expected steady state, so
// the down is tolerated; the up is not.
func (p *Provider) deployCompose(ctx context.Context, r remote.Runner, app string) error {
	dir := remote.ShellQuote(app)
	p.runTolerant(ctx, r, fmt.Sprintf("cd %s && sudo docker compose down --remove-orphans", dir))
	return p.run(ctx, r, fmt.Sprintf("cd %s && sudo docker compose up -d --build", dir))
}

// deployContainer builds the image and replaces the single container.
// Removing a container that does not exist is tolerated.
func (p *Provider) deployContainer(ctx context.Context, r remote.Runner, app string, hostPort, containerPort int) error {
	name := remote.ShellQuote(app)
	if err := p.run(ctx, r, fmt.Sprintf("cd %s && sudo docker build -t %s .", name, name)); err != nil {
		return err
	}
	p.runTolerant(ctx, r, fmt.Sprintf("sudo docker rm -f %s", name))
	return p.run(ctx, r, fmt.Sprintf(
		"sudo docker run -d --name %s --restart unless-stopped -p %d:%d %s",
		name, hostPort, containerPort, name))
}

// Teardown removes this application's containers, remote files, and proxy
// configuration, then the local checkout. It never touches containers that
// do not belong to the application.
func (p *Provider) Teardown(ctx context.Context, m *manifest.Manifest) error {
	app := m.Application.Name
	logging.Info("starting teardown", "application", app, "host", m.Target.Host)

	runner, err := p.dial(ctx, m)
	if err != nil {
		return fmt.Errorf("connectivity check failed: %w", err)
	}
	defer runner.Close()

	dir := remote.ShellQuote(app)

	// Stop whichever shape the deployment took; both are tolerated since
	// either may never have existed.
	p.runTolerant(ctx, runner, fmt.Sprintf("cd %s && sudo docker compose down --volumes --remove-orphans", dir))
	p.runTolerant(ctx, runner, fmt.Sprintf("sudo docker rm -f %s", dir))

	if err := p.run(ctx, runner, fmt.Sprintf("rm -rf %s", dir)); err != nil {
		return fmt.Errorf("failed to remove remote directory: %w", err)
	}

	if err := p.run(ctx, runner, fmt.Sprintf("sudo rm -f %s %s",
		remote.ShellQuote(nginx.EnabledPath(app)),
		remote.ShellQuote(nginx.AvailablePath(app)))); err != nil {
		return fmt.Errorf("failed to remove proxy site: %w", err)
	}

	res, err := runner.Run(ctx, "sudo nginx -t")
	if err != nil {
		return err
	}
	if res.Ok() {
		if err := p.run(ctx, runner, "sudo systemctl reload nginx"); err != nil {
			return err
		}
	} else {
		logging.Warn("skipping nginx reload, remaining configuration is invalid", "detail", strings.TrimSpace(res.Stderr))
	}

	root, err := workspaceRoot(m)
	if err != nil {
		return err
	}
	if err := repo.Remove(root, manifest.RepoName(m.Repository.URL)); err != nil {
		return fmt.Errorf("failed to remove local checkout: %w", err)
	}

	logging.Info("teardown complete", "application", app)
	return nil
}

// Status reports the container, proxy, and HTTP state of the application.
func (p *Provider) Status(ctx context.Context, m *manifest.Manifest) (*types.DeploymentStatus, error) {
	app := m.Application.Name

	runner, err := p.dial(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("connectivity check failed: %w", err)
	}
	defer runner.Close()

	status := &types.DeploymentStatus{
		ApplicationName: app,
		Host:            m.Target.Host,
		URL:             publicURL(m),
	}

	res, err := runner.Run(ctx, fmt.Sprintf(
		"sudo docker ps --filter name=%s --format '{{.Names}}\t{{.Status}}'", remote.ShellQuote(app)))
	if err != nil {
		return nil, err
	}
	if res.Ok() && strings.TrimSpace(res.Stdout) != "" {
		status.Status = strings.TrimSpace(res.Stdout)
	} else {
		status.Status = "not running"
	}

	res, err = runner.Run(ctx, "systemctl is-active nginx")
	if err != nil {
		return nil, err
	}
	status.ProxyActive = res.Ok()

	res, err = runner.Run(ctx, probeCommand(m))
	if err != nil {
		return nil, err
	}
	if code, ok := parseHTTPCode(res.Stdout); ok && res.Ok() && code < 500 {
		status.Health = "Reachable"
	} else {
		status.Health = "Unreachable"
	}

	return status, nil
}

// run executes a command and treats any non-zero exit as an error.
func (p *Provider) run(ctx context.Context, r remote.Runner, command string) error {
	res, err := r.Run(ctx, command)
	if err != nil {
		return err
	}
	return res.Err()
}

// runTolerant executes a command whose failure is an expected steady state
// (nothing to stop, nothing to remove). Transport errors still surface in
// the log; exit status is ignored.
func (p *Provider) runTolerant(ctx context.Context, r remote.Runner, command string) {
	res, err := r.Run(ctx, command)
	if err != nil {
		logging.Warn("best-effort command failed", "command", logging.SanitizeString(command), "error", err.Error())
		return
	}
	if !res.Ok() {
		logging.Debug("best-effort command exited non-zero", "command", logging.SanitizeString(command), "exit_status", res.ExitStatus)
	}
}

func workspaceRoot(m *manifest.Manifest) (string, error) {
	if m.Workspace.Root != "" {
		return m.Workspace.Root, nil
	}
	return repo.DefaultRoot()
}

func publicURL(m *manifest.Manifest) string {
	if m.Proxy.ListenPort == 80 {
		return fmt.Sprintf("http://%s/", m.Target.Host)
	}
	return fmt.Sprintf("http://%s:%d/", m.Target.Host, m.Proxy.ListenPort)
}

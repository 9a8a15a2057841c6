package sshhost

import (
	"context"
	"fmt"

	"github.com/drydockdev/drydock/pkg/logging"
	"github.com/drydockdev/drydock/pkg/remote"
	"github.com/drydockdev/drydock/pkg/types"
)

// provision idempotently installs and activates the runtime dependencies
// on the target host. Each dependency is probed first; installation only
// runs when the probe fails, and the outcome is reported as a value so
// repeated runs are cheap and observable.
func (p *Provider) provision(ctx context.Context, r remote.Runner) (*types.ProvisionReport, error) {
	report := &types.ProvisionReport{}

	docker, err := p.ensure(ctx, r, ensureSpec{
		name:    "docker",
		probe:   "command -v docker >/dev/null 2>&1",
		pkg:     "docker.io",
		service: "docker",
	})
	if err != nil {
		return nil, err
	}
	report.Docker = docker

	compose, err := p.ensure(ctx, r, ensureSpec{
		name:  "docker compose",
		probe: "sudo docker compose version >/dev/null 2>&1",
		pkg:   "docker-compose-v2",
	})
	if err != nil {
		return nil, err
	}
	report.Compose = compose

	ngx, err := p.ensure(ctx, r, ensureSpec{
		name:    "nginx",
		probe:   "command -v nginx >/dev/null 2>&1",
		pkg:     "nginx",
		service: "nginx",
	})
	if err != nil {
		return nil, err
	}
	report.Nginx = ngx

	return report, nil
}

// ensureSpec describes one idempotent provisioning operation.
type ensureSpec struct {
	name    string // human-readable dependency name
	probe   string // command that exits zero when already installed
	pkg     string // apt package to install when the probe fails
	service string // systemd unit to enable and start, if any
}

// ensure probes for a dependency, installs it when missing, and activates
// its service. The package manager treats "already installed" as success,
// so the operation is safe to repeat.
func (p *Provider) ensure(ctx context.Context, r remote.Runner, spec ensureSpec) (types.EnsureState, error) {
	state := types.StatePresent

	res, err := r.Run(ctx, spec.probe)
	if err != nil {
		return "", err
	}

	if !res.Ok() {
		logging.Info("installing dependency", "dependency", spec.name, "package", spec.pkg)
		install := fmt.Sprintf(
			"sudo DEBIAN_FRONTEND=noninteractive apt-get update -y && sudo DEBIAN_FRONTEND=noninteractive apt-get install -y %s",
			spec.pkg)
		if err := p.run(ctx, r, install); err != nil {
			return "", fmt.Errorf("failed to install %s: %w", spec.name, err)
		}
		state = types.StateInstalled
	}

	if spec.service != "" {
		if err := p.run(ctx, r, fmt.Sprintf("sudo systemctl enable --now %s", spec.service)); err != nil {
			return "", fmt.Errorf("failed to activate %s: %w", spec.service, err)
		}
	}

	return state, nil
}

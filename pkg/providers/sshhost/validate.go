package sshhost

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/drydockdev/drydock/pkg/logging"
	"github.com/drydockdev/drydock/pkg/manifest"
	"github.com/drydockdev/drydock/pkg/remote"
)

// validate checks that the application's containers are running and that
// the proxy answers HTTP on the target host. The HTTP gate polls until a
// response below 500 is observed or the health-check timeout elapses; a
// 4xx counts as reachable since the application answered through the
// proxy.
func (p *Provider) validate(ctx context.Context, r remote.Runner, m *manifest.Manifest, app string) error {
	res, err := r.Run(ctx, fmt.Sprintf(
		"sudo docker ps --filter name=%s --format '{{.Names}}\t{{.Status}}'", remote.ShellQuote(app)))
	if err != nil {
		return err
	}
	if !res.Ok() {
		return res.Err()
	}
	containers := strings.TrimSpace(res.Stdout)
	if containers == "" {
		return fmt.Errorf("no running container matches %q", app)
	}
	logging.Info("containers running", "application", app, "containers", containers)

	probe := probeCommand(m)
	timeout := time.Duration(m.HealthCheck.TimeoutSeconds) * time.Second
	interval := time.Duration(m.HealthCheck.IntervalSeconds) * time.Second
	deadline := time.Now().Add(timeout)

	lastCode := 0
	for {
		res, err := r.Run(ctx, probe)
		if err != nil {
			return err
		}
		if code, ok := parseHTTPCode(res.Stdout); ok && res.Ok() {
			lastCode = code
			if code >= 100 && code < 500 {
				logging.Info("endpoint reachable", "path", m.HealthCheck.Path, "status", code)
				return nil
			}
		}

		if time.Now().After(deadline) {
			if lastCode == 0 {
				return fmt.Errorf("endpoint %s not reachable within %s", m.HealthCheck.Path, timeout)
			}
			return fmt.Errorf("endpoint %s not healthy within %s: last status %d", m.HealthCheck.Path, timeout, lastCode)
		}

		p.sleep(interval)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// probeCommand builds the HTTP probe run on the host itself, against the
// proxy's listen port. Only the status code is captured.
func probeCommand(m *manifest.Manifest) string {
	path := m.HealthCheck.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("curl -s -o /dev/null -w '%%{http_code}' --max-time 5 http://localhost:%d%s",
		m.Proxy.ListenPort, path)
}

func parseHTTPCode(out string) (int, bool) {
	code, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, false
	}
	return code, true
}

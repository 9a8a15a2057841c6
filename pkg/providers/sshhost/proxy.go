package sshhost

import (
	"context"
	"fmt"
	"strings"

	"github.com/drydockdev/drydock/pkg/nginx"
	"github.com/drydockdev/drydock/pkg/remote"
)

// configureProxy installs the rendered site configuration. The new config
// is validated with nginx -t while staged under a .next name; only a
// config that passes validation replaces the active site file, so a
// rejected render never leaves a broken site behind.
func (p *Provider) configureProxy(ctx context.Context, r remote.Runner, site nginx.Site) error {
	content, err := site.Render()
	if err != nil {
		return err
	}

	staging := nginx.StagingPath(site.AppName)
	available := nginx.AvailablePath(site.AppName)
	next := available + ".next"
	enabled := nginx.EnabledPath(site.AppName)

	// Remember whether an active site exists so a failed validation can
	// restore it.
	res, err := r.Run(ctx, fmt.Sprintf("test -f %s", remote.ShellQuote(available)))
	if err != nil {
		return err
	}
	hadPrevious := res.Ok()

	// Write the rendered config to a user-writable staging path, then move
	// it into sites-available under the .next name.
	if err := p.run(ctx, r, fmt.Sprintf("printf '%%s' %s > %s",
		remote.ShellQuote(content), remote.ShellQuote(staging))); err != nil {
		return fmt.Errorf("failed to stage site config: %w", err)
	}
	if err := p.run(ctx, r, fmt.Sprintf("sudo mv -f %s %s",
		remote.ShellQuote(staging), remote.ShellQuote(next))); err != nil {
		return fmt.Errorf("failed to move staged config: %w", err)
	}

	// Point the enabled symlink at the candidate and ask nginx to validate
	// the full configuration with it in place.
	if err := p.run(ctx, r, fmt.Sprintf("sudo ln -sfn %s %s",
		remote.ShellQuote(next), remote.ShellQuote(enabled))); err != nil {
		return err
	}

	res, err = r.Run(ctx, "sudo nginx -t")
	if err != nil {
		return err
	}
	if !res.Ok() {
		// Roll the symlink back to the previous site (or remove it) and
		// drop the rejected candidate.
		if hadPrevious {
			p.runTolerant(ctx, r, fmt.Sprintf("sudo ln -sfn %s %s",
				remote.ShellQuote(available), remote.ShellQuote(enabled)))
		} else {
			p.runTolerant(ctx, r, fmt.Sprintf("sudo rm -f %s", remote.ShellQuote(enabled)))
		}
		p.runTolerant(ctx, r, fmt.Sprintf("sudo rm -f %s", remote.ShellQuote(next)))
		return fmt.Errorf("nginx rejected the generated config: %s", strings.TrimSpace(res.Stderr))
	}

	// Promote the candidate and settle the symlink on the canonical path.
	if err := p.run(ctx, r, fmt.Sprintf("sudo mv -f %s %s",
		remote.ShellQuote(next), remote.ShellQuote(available))); err != nil {
		return err
	}
	if err := p.run(ctx, r, fmt.Sprintf("sudo ln -sfn %s %s",
		remote.ShellQuote(available), remote.ShellQuote(enabled))); err != nil {
		return err
	}

	return p.run(ctx, r, "sudo systemctl reload nginx")
}

// Package provider defines the interface a deployment target must
// implement. The abstraction keeps the CLI independent of how a target is
// reached; today the only implementation deploys over SSH.
package provider

import (
	"context"
	"fmt"

	"github.com/drydockdev/drydock/pkg/manifest"
	"github.com/drydockdev/drydock/pkg/providers/sshhost"
	"github.com/drydockdev/drydock/pkg/types"
)

// Target defines the operations a deployment target must support.
type Target interface {
	// Name returns the target type name (e.g., "ssh")
	Name() string

	// Deploy runs the full pipeline against the target: sync the
	// repository, provision the host, transfer files, start the
	// application, configure the reverse proxy, and validate the result.
	// The pipeline is fail-fast: the first failing stage aborts the run
	// with no rollback.
	Deploy(ctx context.Context, m *manifest.Manifest) (*types.DeploymentResult, error)

	// Teardown removes this application's containers, files, and proxy
	// configuration from the target. It is scoped to the deployed
	// application; unrelated containers on the host are left alone.
	Teardown(ctx context.Context, m *manifest.Manifest) error

	// Status reports the current container, proxy, and HTTP state of the
	// deployed application.
	Status(ctx context.Context, m *manifest.Manifest) (*types.DeploymentStatus, error)
}

// Factory creates a target based on the manifest configuration.
//
// Example:
//
//	target, err := provider.Factory(ctx, m)
//	if err != nil {
//	  log.Fatal(err)
//	}
func Factory(ctx context.Context, m *manifest.Manifest) (Target, error) {
	switch m.Target.Type {
	case "ssh":
		return sshhost.New(m), nil
	default:
		return nil, fmt.Errorf("unknown target type: %s", m.Target.Type)
	}
}

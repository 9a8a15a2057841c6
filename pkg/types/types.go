// Package types provides shared types used across drydock packages.
package types

// DeploymentResult contains information about a successful deployment.
// This is returned by the Deploy method after the pipeline completes.
type DeploymentResult struct {
	// ID uniquely identifies this deployment run
	ID string

	// Name of the deployed application
	ApplicationName string

	// Host the application was deployed to
	Host string

	// Public URL where the application can be accessed
	URL string

	// Deployment mode used ("compose" or "dockerfile")
	Mode string

	// Current status (e.g., "Ready")
	Status string

	// Human-readable message with deployment details
	Message string
}

// DeploymentStatus contains the current status of a deployment.
// This is returned by the Status method.
type DeploymentStatus struct {
	// Name of the application
	ApplicationName string

	// Host the application is deployed to
	Host string

	// Container status as reported by the container runtime
	Status string

	// Health of the HTTP endpoint ("Reachable", "Unreachable")
	Health string

	// Whether the reverse proxy service is active
	ProxyActive bool

	// Public URL where the application can be accessed
	URL string
}

// EnsureState describes the outcome of an idempotent provisioning operation.
type EnsureState string

const (
	// StatePresent means the dependency was already installed and active.
	StatePresent EnsureState = "present"

	// StateInstalled means the dependency was installed during this run.
	StateInstalled EnsureState = "installed"
)

// ProvisionReport records what the provisioning stage found and changed on
// the target host. Remote state is modeled as values returned from ensure
// operations rather than untracked side effects.
type ProvisionReport struct {
	Docker  EnsureState
	Compose EnsureState
	Nginx   EnsureState
}

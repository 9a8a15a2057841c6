package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/drydockdev/drydock/pkg/logging"
	"github.com/drydockdev/drydock/pkg/manifest"
	"github.com/drydockdev/drydock/pkg/provider"
	"github.com/drydockdev/drydock/pkg/repo"
)

// Version information (set via ldflags during build)
var (
	version = "0.1.0"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		manifestFile = flag.String("manifest", "drydock.yaml", "Path to deployment manifest file")
		command      = flag.String("command", "deploy", "Command to execute: deploy, teardown, status, version")
		showVersion  = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion || *command == "version" {
		fmt.Printf("drydock version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built: %s\n", date)
		os.Exit(0)
	}

	// Load and parse manifest
	m, err := manifest.Load(*manifestFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}

	// Every invocation writes a timestamped run log alongside stdout
	runLog, err := logging.StartRunLog(m.Workspace.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating run log: %v\n", err)
		os.Exit(1)
	}
	defer runLog.Close()

	ctx := context.Background()

	// Create target
	t, err := provider.Factory(ctx, m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating target: %v\n", err)
		os.Exit(1)
	}

	// Execute command
	switch *command {
	case "deploy":
		result, err := t.Deploy(ctx, m)
		if err != nil {
			if errors.Is(err, repo.ErrMissingBuildDescriptor) {
				fmt.Fprintf(os.Stderr, "Deployment failed: %v\n", err)
				fmt.Fprintf(os.Stderr, "Add a Dockerfile or compose file to the repository and retry.\n")
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Deployment failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Deployment successful!\n")
		fmt.Printf("  Application: %s\n", result.ApplicationName)
		fmt.Printf("  Host: %s\n", result.Host)
		fmt.Printf("  URL: %s\n", result.URL)
		fmt.Printf("  Mode: %s\n", result.Mode)
		fmt.Printf("  Status: %s\n", result.Status)
		fmt.Printf("  Run log: %s\n", runLog.Path)

	case "teardown":
		fmt.Printf("Tearing down deployment...\n")
		if err := t.Teardown(ctx, m); err != nil {
			fmt.Fprintf(os.Stderr, "Teardown failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Teardown complete\n")

	case "status":
		status, err := t.Status(ctx, m)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to get status: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deployment Status:\n")
		fmt.Printf("  Application: %s\n", status.ApplicationName)
		fmt.Printf("  Host: %s\n", status.Host)
		fmt.Printf("  Containers: %s\n", status.Status)
		fmt.Printf("  Health: %s\n", status.Health)
		fmt.Printf("  Proxy active: %t\n", status.ProxyActive)
		fmt.Printf("  URL: %s\n", status.URL)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		fmt.Fprintf(os.Stderr, "Valid commands: deploy, teardown, status, version\n")
		os.Exit(1)
	}
}

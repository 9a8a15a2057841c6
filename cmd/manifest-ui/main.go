// manifest-ui is a small local helper that generates drydock manifest
// files from a browser form. It serves a static frontend and one API
// endpoint that turns the submitted form into a validated drydock.yaml.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drydockdev/drydock/pkg/manifest"
)

// ManifestRequest represents the data sent from the frontend. It mirrors
// the manifest schema with JSON tags for the form payload.
type ManifestRequest struct {
	Version     string              `json:"version"`
	Repository  RepositoryRequest   `json:"repository"`
	Target      TargetRequest       `json:"target"`
	Application ApplicationRequest  `json:"application"`
	Proxy       *ProxyRequest       `json:"proxy,omitempty"`
	HealthCheck *HealthCheckRequest `json:"health_check,omitempty"`
	Credentials *CredentialsRequest `json:"credentials,omitempty"`
}

type RepositoryRequest struct {
	URL    string `json:"url"`
	Branch string `json:"branch,omitempty"`
}

type TargetRequest struct {
	Host    string `json:"host"`
	Port    int    `json:"port,omitempty"`
	User    string `json:"user"`
	KeyPath string `json:"key_path,omitempty"`
}

type ApplicationRequest struct {
	Name    string `json:"name,omitempty"`
	Port    int    `json:"port"`
	Publish string `json:"publish,omitempty"`
}

type ProxyRequest struct {
	ListenPort int    `json:"listen_port,omitempty"`
	ServerName string `json:"server_name,omitempty"`
}

type HealthCheckRequest struct {
	Path            string `json:"path,omitempty"`
	TimeoutSeconds  int    `json:"timeout_seconds,omitempty"`
	IntervalSeconds int    `json:"interval_seconds,omitempty"`
}

type CredentialsRequest struct {
	Source    string `json:"source,omitempty"`
	TokenEnv  string `json:"token_env,omitempty"`
	TokenFile string `json:"token_file,omitempty"`
}

func main() {
	// Serve static files
	fs := http.FileServer(http.Dir("web/static"))
	http.Handle("/", fs)

	// API endpoint for generating manifest
	http.HandleFunc("/api/generate", generateManifestHandler)

	port := ":5001"
	fmt.Printf("Starting manifest-ui server on http://localhost%s\n", port)
	fmt.Println("Open your browser and navigate to http://localhost:5001")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal(err)
	}
}

func generateManifestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ManifestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	// Set default version if not provided
	if req.Version == "" {
		req.Version = "1.0"
	}

	m := toManifest(&req)

	// Reject manifests drydock itself would refuse to load
	if err := m.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid manifest: %v", err), http.StatusBadRequest)
		return
	}

	yamlData, err := yaml.Marshal(m)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate YAML: %v", err), http.StatusInternalServerError)
		return
	}

	// Create manifests directory if it doesn't exist
	manifestsDir := "generated-manifests"
	if err := os.MkdirAll(manifestsDir, 0755); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create manifests directory: %v", err), http.StatusInternalServerError)
		return
	}

	// Generate filename with timestamp
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("%s-drydock-%s.yaml", m.Application.Name, timestamp)
	path := filepath.Join(manifestsDir, filename)

	if err := os.WriteFile(path, yamlData, 0644); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write manifest file: %v", err), http.StatusInternalServerError)
		return
	}

	response := map[string]string{
		"message":  "Manifest generated successfully",
		"filename": filename,
		"path":     path,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// toManifest converts the form payload into a manifest with defaults
// applied, so the generated file round-trips through manifest.Load.
func toManifest(req *ManifestRequest) *manifest.Manifest {
	m := &manifest.Manifest{
		Version: req.Version,
		Repository: manifest.RepositoryConfig{
			URL:    req.Repository.URL,
			Branch: req.Repository.Branch,
		},
		Target: manifest.TargetConfig{
			Host:    req.Target.Host,
			Port:    req.Target.Port,
			User:    req.Target.User,
			KeyPath: req.Target.KeyPath,
		},
		Application: manifest.ApplicationConfig{
			Name:    req.Application.Name,
			Port:    req.Application.Port,
			Publish: req.Application.Publish,
		},
	}
	if req.Proxy != nil {
		m.Proxy = manifest.ProxyConfig{
			ListenPort: req.Proxy.ListenPort,
			ServerName: req.Proxy.ServerName,
		}
	}
	if req.HealthCheck != nil {
		m.HealthCheck = manifest.HealthCheckConfig{
			Path:            req.HealthCheck.Path,
			TimeoutSeconds:  req.HealthCheck.TimeoutSeconds,
			IntervalSeconds: req.HealthCheck.IntervalSeconds,
		}
	}
	if req.Credentials != nil {
		m.Credentials = manifest.CredentialsConfig{
			Source:    req.Credentials.Source,
			TokenEnv:  req.Credentials.TokenEnv,
			TokenFile: req.Credentials.TokenFile,
		}
	}

	applyDefaults(m)
	return m
}

// applyDefaults mirrors the defaulting manifest.Load performs, so the
// generated YAML is explicit about what a run will actually use.
func applyDefaults(m *manifest.Manifest) {
	if m.Repository.Branch == "" {
		m.Repository.Branch = "main"
	}
	if m.Target.Type == "" {
		m.Target.Type = "ssh"
	}
	if m.Target.Port == 0 {
		m.Target.Port = 22
	}
	if m.Application.Name == "" {
		m.Application.Name = manifest.RepoName(m.Repository.URL)
	}
	if m.Proxy.ListenPort == 0 {
		m.Proxy.ListenPort = 80
	}
	if m.Proxy.ServerName == "" {
		m.Proxy.ServerName = "_"
	}
	if m.Credentials.Source == "" {
		m.Credentials.Source = "environment"
	}
}

// Package nginx renders the reverse-proxy site configuration that fronts a
// deployed application and knows where site files live on the target host.
// Rendering is pure; installing and reloading happen through the remote
// runner in the deployment pipeline.
package nginx

import (
	"bytes"
	"fmt"
	"path"
	"text/template"
)

const (
	sitesAvailableDir = "/etc/nginx/sites-available"
	sitesEnabledDir   = "/etc/nginx/sites-enabled"
)

// siteTemplate forwards all traffic on the listen port to the application
// container. WebSocket upgrade headers are passed through so compose
// stacks with live-reload or socket endpoints work out of the box.
var siteTemplate = template.Must(template.New("site").Parse(`server {
    listen {{.ListenPort}};
    server_name {{.ServerName}};

    location / {
        proxy_pass http://127.0.0.1:{{.UpstreamPort}};
        proxy_http_version 1.1;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
    }
}
`))

// Site holds the parameters of one reverse-proxy site.
type Site struct {
	// AppName names the site file (derived from the repository name)
	AppName string

	// ServerName for the server block ("_" matches any host)
	ServerName string

	// ListenPort the proxy accepts traffic on
	ListenPort int

	// UpstreamPort is the published host port of the application
	UpstreamPort int
}

// Render produces the site configuration text.
func (s Site) Render() (string, error) {
	if s.AppName == "" {
		return "", fmt.Errorf("site app name cannot be empty")
	}
	if s.ListenPort == 0 || s.UpstreamPort == 0 {
		return "", fmt.Errorf("site ports must be set")
	}

	var buf bytes.Buffer
	if err := siteTemplate.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("failed to render site config: %w", err)
	}
	return buf.String(), nil
}

// AvailablePath returns the sites-available path for an application.
func AvailablePath(appName string) string {
	return path.Join(sitesAvailableDir, appName+".conf")
}

// EnabledPath returns the sites-enabled symlink path for an application.
func EnabledPath(appName string) string {
	return path.Join(sitesEnabledDir, appName+".conf")
}

// StagingPath returns the scratch path a rendered config is validated at
// before it is installed. Validating against the staged copy means a
// syntax error never replaces an active site file.
func StagingPath(appName string) string {
	return path.Join("/tmp", "drydock-"+appName+".conf.staged")
}

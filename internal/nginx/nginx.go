// Package nginx manages per-site virtual host configuration for the
// reverse proxy fronting the WordPress sites.
package nginx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/kumahost/portal/wordpress-service/internal/runner"
)

const vhostTemplate = `server {
    listen 80;
    server_name {{.Domain}};

    root /var/www/html/{{.SiteName}};
    index index.php index.html;

    access_log /var/log/nginx/{{.SiteName}}.access.log;
    error_log  /var/log/nginx/{{.SiteName}}.error.log;

    client_max_body_size 64m;

    location / {
        try_files $uri $uri/ /index.php?$args;
    }

    location ~ \.php$ {
        try_files $uri =404;
        fastcgi_pass php{{.PHPVersion}}-fpm:9000;
        fastcgi_index index.php;
        fastcgi_param SCRIPT_FILENAME $document_root$fastcgi_script_name;
        include fastcgi_params;
    }

    location ~* \.(js|css|png|jpg|jpeg|gif|ico|svg|woff2?)$ {
        expires 30d;
        access_log off;
    }

    location ~ /\.ht {
        deny all;
    }
}
`

// Options controls where vhost files are written and how the proxy is
// driven.
type Options struct {
	ConfDir        string
	Container      string
	CommandTimeout time.Duration
}

// Configurator writes vhost files and controls the nginx container.
type Configurator struct {
	runner runner.Runner
	tmpl   *template.Template
	opts   Options
	log    *zap.Logger
}

func New(r runner.Runner, opts Options, log *zap.Logger) *Configurator {
	return &Configurator{
		runner: r,
		tmpl:   template.Must(template.New("vhost").Parse(vhostTemplate)),
		opts:   opts,
		log:    log,
	}
}

// CreateConfig renders and writes the vhost file for a site, returning the
// written path.
func (c *Configurator) CreateConfig(siteName, domain, phpVersion string) (string, error) {
	model := map[string]string{
		"SiteName":   siteName,
		"Domain":     domain,
		"PHPVersion": phpVersion,
	}

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, model); err != nil {
		return "", fmt.Errorf("render vhost template: %w", err)
	}

	if err := os.MkdirAll(c.opts.ConfDir, 0o750); err != nil {
		return "", fmt.Errorf("create conf dir: %w", err)
	}

	configPath := filepath.Join(c.opts.ConfDir, siteName+".conf")
	if err := os.WriteFile(configPath, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write vhost config: %w", err)
	}

	c.log.Info("vhost config written",
		zap.String("path", configPath),
		zap.String("domain", domain),
		zap.String("php_version", phpVersion))
	return configPath, nil
}

// DeleteConfig removes a vhost file. Missing files are not an error; the
// caller treats removal as best effort.
func (c *Configurator) DeleteConfig(filename string) error {
	configPath := filepath.Join(c.opts.ConfDir, filepath.Base(filename))
	if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
		c.log.Warn("failed to remove vhost config", zap.String("path", configPath), zap.Error(err))
		return nil
	}
	return nil
}

// TestConfig runs "nginx -t" and reports whether the full configuration is
// valid.
func (c *Configurator) TestConfig(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	defer cancel()

	if _, err := c.runner.Run(ctx, "docker", "exec", c.opts.Container, "nginx", "-t"); err != nil {
		c.log.Warn("nginx config test failed", zap.Error(err))
		return false
	}
	return true
}

// Reload validates the configuration and signals nginx to reload it.
// Returns false when validation or the reload itself fails.
func (c *Configurator) Reload(ctx context.Context) bool {
	if !c.TestConfig(ctx) {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	defer cancel()

	if _, err := c.runner.Run(ctx, "docker", "exec", c.opts.Container, "nginx", "-s", "reload"); err != nil {
		c.log.Warn("nginx reload failed", zap.Error(err))
		return false
	}

	c.log.Info("nginx reloaded")
	return true
}

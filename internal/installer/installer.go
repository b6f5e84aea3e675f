// Package installer installs WordPress sites by running wp-cli inside the
// blog WordPress container, and configures the WP Mail SMTP plugin on them.
package installer

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/kumahost/portal/wordpress-service/internal/runner"
)

// Options configures the wp-cli execution environment.
type Options struct {
	Container      string
	DocRoot        string
	DBHost         string
	DBUser         string
	CommandTimeout time.Duration
	InstallTimeout time.Duration
}

// Installer runs wp-cli through docker exec.
type Installer struct {
	runner runner.Runner
	opts   Options
	log    *zap.Logger
}

// InstallParams carries the inputs for one WordPress installation.
type InstallParams struct {
	SitePath      string
	Domain        string
	DBName        string
	DBPassword    string
	AdminUser     string
	AdminPassword string
	AdminEmail    string
	Title         string
	Locale        string
}

// MailParams carries the WP Mail SMTP plugin configuration.
type MailParams struct {
	SitePath  string
	Domain    string
	FromEmail string
	SMTPHost  string
	SMTPPort  int
}

func New(r runner.Runner, opts Options, log *zap.Logger) *Installer {
	if opts.DocRoot == "" {
		opts.DocRoot = "/var/www/html"
	}
	return &Installer{runner: r, opts: opts, log: log}
}

func (i *Installer) sitePath(sitePath string) string {
	return path.Join(i.opts.DocRoot, sitePath)
}

func (i *Installer) runWPCLI(ctx context.Context, sitePath string, args ...string) (string, error) {
	cmd := append([]string{"exec", i.opts.Container, "wp"}, args...)
	cmd = append(cmd, "--path="+i.sitePath(sitePath), "--allow-root")
	return i.runner.Run(ctx, "docker", cmd...)
}

// Exists reports whether an installation directory already exists at the
// given site path.
func (i *Installer) Exists(ctx context.Context, sitePath string) bool {
	_, err := i.runner.Run(ctx, "docker", "exec", i.opts.Container, "test", "-d", i.sitePath(sitePath))
	return err == nil
}

// Install downloads WordPress core, writes wp-config.php and runs the
// installer with the supplied admin account.
func (i *Installer) Install(ctx context.Context, p InstallParams) error {
	siteURL := "https://" + p.Domain
	title := p.Title
	if title == "" {
		title = p.Domain
	}

	installCtx, cancel := context.WithTimeout(ctx, i.opts.InstallTimeout)
	defer cancel()

	i.log.Info("creating installation directory", zap.String("site_path", p.SitePath))
	if _, err := i.runner.Run(installCtx, "docker", "exec", i.opts.Container, "mkdir", "-p", i.sitePath(p.SitePath)); err != nil {
		return fmt.Errorf("create site directory: %w", err)
	}

	i.log.Info("downloading WordPress core", zap.String("locale", p.Locale))
	if _, err := i.runWPCLI(installCtx, p.SitePath, "core", "download", "--locale="+p.Locale); err != nil {
		return fmt.Errorf("download core: %w", err)
	}

	i.log.Info("writing wp-config.php", zap.String("database", p.DBName))
	_, err := i.runWPCLI(installCtx, p.SitePath,
		"config", "create",
		"--dbname="+p.DBName,
		"--dbuser="+i.opts.DBUser,
		"--dbpass="+p.DBPassword,
		"--dbhost="+i.opts.DBHost,
		"--dbprefix="+p.DBName+"_",
	)
	if err != nil {
		return fmt.Errorf("create wp-config: %w", err)
	}

	i.log.Info("running WordPress install", zap.String("url", siteURL))
	_, err = i.runWPCLI(installCtx, p.SitePath,
		"core", "install",
		"--url="+siteURL,
		"--title="+title,
		"--admin_user="+p.AdminUser,
		"--admin_password="+p.AdminPassword,
		"--admin_email="+p.AdminEmail,
	)
	if err != nil {
		return fmt.Errorf("install core: %w", err)
	}

	// Plugin updates through wp-admin need www-data ownership. Failure here
	// is not worth failing the install over.
	if _, err := i.runner.Run(installCtx, "docker", "exec", i.opts.Container, "chown", "-R", "www-data:www-data", i.sitePath(p.SitePath)); err != nil {
		i.log.Warn("failed to set file ownership", zap.String("site_path", p.SitePath), zap.Error(err))
	}

	i.log.Info("WordPress installation complete", zap.String("site_path", p.SitePath))
	return nil
}

// ConfigureMail installs and activates WP Mail SMTP and writes its SMTP
// settings as a serialized option.
func (i *Installer) ConfigureMail(ctx context.Context, p MailParams) error {
	siteURL := "https://" + p.Domain

	mailCtx, cancel := context.WithTimeout(ctx, i.opts.CommandTimeout)
	defer cancel()

	if _, err := i.runWPCLI(mailCtx, p.SitePath, "plugin", "install", "wp-mail-smtp", "--activate", "--url="+siteURL); err != nil {
		// Install fails when the plugin is already present; activation alone
		// may still succeed.
		i.log.Warn("plugin install failed, retrying activation", zap.Error(err))
		if _, err := i.runWPCLI(mailCtx, p.SitePath, "plugin", "activate", "wp-mail-smtp", "--url="+siteURL); err != nil {
			return fmt.Errorf("activate wp-mail-smtp: %w", err)
		}
	}

	smtpConfig := map[string]interface{}{
		"mail": map[string]interface{}{
			"from_email":  p.FromEmail,
			"from_name":   "WordPress Notification",
			"mailer":      "smtp",
			"return_path": true,
		},
		"smtp": map[string]interface{}{
			"host":       p.SMTPHost,
			"port":       p.SMTPPort,
			"encryption": "tls",
			"autotls":    true,
			"auth":       false,
		},
	}
	configJSON, err := json.Marshal(smtpConfig)
	if err != nil {
		return fmt.Errorf("marshal smtp config: %w", err)
	}

	_, err = i.runWPCLI(mailCtx, p.SitePath,
		"option", "update", "wp_mail_smtp", string(configJSON), "--format=json", "--url="+siteURL)
	if err != nil {
		return fmt.Errorf("write smtp option: %w", err)
	}

	if _, err := i.runner.Run(mailCtx, "docker", "exec", i.opts.Container, "chown", "-R", "www-data:www-data", i.sitePath(p.SitePath)); err != nil {
		i.log.Warn("failed to fix ownership after plugin install", zap.Error(err))
	}

	i.log.Info("WP Mail SMTP configured",
		zap.String("site_path", p.SitePath),
		zap.String("from_email", p.FromEmail))
	return nil
}

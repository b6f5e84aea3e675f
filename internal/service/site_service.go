package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kumahost/portal/wordpress-service/internal/config"
	"github.com/kumahost/portal/wordpress-service/internal/dbadmin"
	"github.com/kumahost/portal/wordpress-service/internal/installer"
	"github.com/kumahost/portal/wordpress-service/internal/models"
	"github.com/kumahost/portal/wordpress-service/internal/provision"
	"github.com/kumahost/portal/wordpress-service/internal/repository"
)

// RegistryTx is the open transaction of an in-flight site creation. The
// provisional record becomes visible only on Commit.
type RegistryTx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Registry persists site metadata. Lookups return repository.ErrNotFound
// when absent.
type Registry interface {
	BeginCreate(ctx context.Context, site *models.Site) (RegistryTx, error)
	GetByID(ctx context.Context, id string) (*models.Site, error)
	GetByName(ctx context.Context, siteName string) (*models.Site, error)
	GetByDomain(ctx context.Context, domain string) (*models.Site, error)
	GetByDatabaseName(ctx context.Context, databaseName string) (*models.Site, error)
	List(ctx context.Context, enabledOnly bool) ([]*models.Site, error)
	Update(ctx context.Context, site *models.Site) error
	Delete(ctx context.Context, id string) error
}

// DatabaseAdmin creates and drops databases on a target system.
type DatabaseAdmin interface {
	CreateDatabase(ctx context.Context, name, targetSystem, charset, collation string, createUser bool) error
	DropDatabase(ctx context.Context, name, targetSystem string) error
}

// SiteInstaller installs WordPress and configures its mail plugin.
type SiteInstaller interface {
	Exists(ctx context.Context, sitePath string) bool
	Install(ctx context.Context, p installer.InstallParams) error
	ConfigureMail(ctx context.Context, p installer.MailParams) error
}

// ProxyConfigurator manages per-site reverse proxy configuration.
type ProxyConfigurator interface {
	CreateConfig(siteName, domain, phpVersion string) (string, error)
	DeleteConfig(filename string) error
	TestConfig(ctx context.Context) bool
	Reload(ctx context.Context) bool
}

// RoutingConfigurator exposes a site hostname through the tunnel and DNS.
type RoutingConfigurator interface {
	SetupRouting(ctx context.Context, hostname, baseDomain, service string) error
	TeardownRouting(ctx context.Context, hostname, baseDomain string) error
}

// AuditLogger records lifecycle actions. Failures are logged, never
// propagated.
type AuditLogger interface {
	LogAction(ctx context.Context, siteID, action, status, message string) error
}

// SiteService orchestrates the site provisioning saga: database creation,
// WordPress installation, mail configuration, proxy configuration and
// public routing, with compensating cleanup on failure.
type SiteService struct {
	cfg      *config.Config
	log      *zap.Logger
	registry Registry
	audit    AuditLogger
	dbAdmin  DatabaseAdmin
	install  SiteInstaller
	proxy    ProxyConfigurator
	routing  RoutingConfigurator
}

func NewSiteService(
	cfg *config.Config,
	log *zap.Logger,
	registry Registry,
	audit AuditLogger,
	dbAdmin DatabaseAdmin,
	install SiteInstaller,
	proxy ProxyConfigurator,
	routing RoutingConfigurator,
) *SiteService {
	return &SiteService{
		cfg:      cfg,
		log:      log,
		registry: registry,
		audit:    audit,
		dbAdmin:  dbAdmin,
		install:  install,
		proxy:    proxy,
		routing:  routing,
	}
}

// BaseDomain returns the registrable two-label suffix of a hostname, used
// for DNS zone lookups and the noreply sender address.
func BaseDomain(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) < 2 {
		return domain
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// compensation is one best-effort cleanup action, run in reverse order when
// a create step fails. Outcomes are logged and never propagated so they
// cannot mask the original failure.
type compensation struct {
	name string
	run  func(ctx context.Context)
}

func (s *SiteService) runCompensations(ctx context.Context, comps []compensation) {
	for i := len(comps) - 1; i >= 0; i-- {
		s.log.Info("running cleanup", zap.String("step", comps[i].name))
		comps[i].run(ctx)
	}
}

// CreateSite provisions a new WordPress site. All external side effects
// either complete and the record is committed, or the saga rolls back:
// registry record discarded, vhost config removed, database dropped.
// Installed WordPress files are intentionally left behind on failure and
// need manual cleanup. Routing setup (tunnel + DNS) failing is non-fatal.
func (s *SiteService) CreateSite(ctx context.Context, sc models.SiteCreate) (*models.Site, error) {
	if !models.IsSupportedPHPVersion(sc.PHPVersion) {
		return nil, provision.Ef(provision.KindInvalidInput, "unsupported php version: %s", sc.PHPVersion)
	}

	if err := s.checkUnique(ctx, sc); err != nil {
		return nil, err
	}

	if s.install.Exists(ctx, sc.SiteName) {
		return nil, provision.Ef(provision.KindInstallationPathExists, "installation files already exist at %q", sc.SiteName)
	}

	site := &models.Site{
		ID:           uuid.New().String(),
		SiteName:     sc.SiteName,
		Domain:       sc.Domain,
		DatabaseName: sc.DatabaseName,
		PHPVersion:   sc.PHPVersion,
		Enabled:      true,
	}

	s.log.Info("starting site provisioning",
		zap.String("site_name", sc.SiteName),
		zap.String("domain", sc.Domain),
		zap.String("database", sc.DatabaseName))

	// Step 1: provisional registry record, invisible until commit.
	tx, err := s.registry.BeginCreate(ctx, site)
	if err != nil {
		return nil, s.translateRegistryErr(err, "create site record")
	}

	var comps []compensation
	fail := func(kind provision.Kind, msg string, cause error) error {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.log.Warn("registry rollback failed", zap.Error(rbErr))
		}
		s.runCompensations(ctx, comps)
		s.log.Warn("installed WordPress files are not removed automatically; manual cleanup may be needed",
			zap.String("site_path", sc.SiteName))
		provErr := provision.E(kind, msg, cause)
		s.logAudit(ctx, site.ID, "create", "failed", provErr.Error())
		return provErr
	}

	// Step 2: backing database on the blog target, shared application user.
	s.log.Info("step 1/6: creating database", zap.String("database", sc.DatabaseName))
	if err := s.dbAdmin.CreateDatabase(ctx, sc.DatabaseName, dbadmin.TargetBlog, "utf8mb4", "utf8mb4_unicode_ci", false); err != nil {
		return nil, fail(provision.KindDatabaseCreationFailed, "create database", err)
	}
	comps = append(comps, compensation{name: "drop database", run: func(ctx context.Context) {
		if err := s.dbAdmin.DropDatabase(ctx, sc.DatabaseName, dbadmin.TargetBlog); err != nil {
			s.log.Warn("failed to drop database during cleanup", zap.String("database", sc.DatabaseName), zap.Error(err))
		}
	}})

	// Step 3: WordPress core install.
	s.log.Info("step 2/6: installing WordPress", zap.String("site_path", sc.SiteName))
	installParams := installer.InstallParams{
		SitePath:      sc.SiteName,
		Domain:        sc.Domain,
		DBName:        sc.DatabaseName,
		DBPassword:    s.cfg.Blog.WPDBPassword,
		AdminUser:     sc.AdminUser,
		AdminPassword: sc.AdminPassword,
		AdminEmail:    sc.AdminEmail,
		Title:         sc.Title,
		Locale:        s.cfg.Blog.WPLocale,
	}
	if err := s.install.Install(ctx, installParams); err != nil {
		return nil, fail(provision.KindInstallationFailed, "install WordPress", err)
	}

	// Step 4: outbound mail through the shared SMTP relay.
	s.log.Info("step 3/6: configuring WP Mail SMTP")
	mailParams := installer.MailParams{
		SitePath:  sc.SiteName,
		Domain:    sc.Domain,
		FromEmail: "noreply@" + BaseDomain(sc.Domain),
		SMTPHost:  s.cfg.SMTP.Host,
		SMTPPort:  s.cfg.SMTP.Port,
	}
	if err := s.install.ConfigureMail(ctx, mailParams); err != nil {
		return nil, fail(provision.KindMailConfigurationFailed, "configure mail plugin", err)
	}

	// Step 5: vhost configuration.
	s.log.Info("step 4/6: generating proxy configuration")
	configPath, err := s.proxy.CreateConfig(sc.SiteName, sc.Domain, sc.PHPVersion)
	if err != nil {
		return nil, fail(provision.KindProxyConfigFailed, "generate proxy config", err)
	}
	comps = append(comps, compensation{name: "delete proxy config", run: func(ctx context.Context) {
		if err := s.proxy.DeleteConfig(sc.SiteName + ".conf"); err != nil {
			s.log.Warn("failed to delete proxy config during cleanup", zap.Error(err))
		}
	}})
	s.log.Info("proxy config created", zap.String("path", configPath))

	// Step 6: reload. The configurator validates before reloading, so a
	// false here means the new vhost is bad or the proxy refused it.
	s.log.Info("step 5/6: reloading proxy")
	if !s.proxy.Reload(ctx) {
		return nil, fail(provision.KindProxyReloadFailed, "proxy reload failed after config generation", nil)
	}

	// Step 7: public routing. Non-fatal: the site works behind the proxy
	// even when the tunnel or DNS setup fails, so log and move on.
	s.log.Info("step 6/6: setting up public routing", zap.String("hostname", sc.Domain))
	if err := s.routing.SetupRouting(ctx, sc.Domain, BaseDomain(sc.Domain), s.cfg.Nginx.ServiceTarget); err != nil {
		s.log.Warn("public routing setup failed; site is created but may not be publicly reachable",
			zap.String("hostname", sc.Domain),
			zap.Error(err))
		s.logAudit(ctx, site.ID, "create", string(provision.KindRoutingSetupFailed), err.Error())
	}

	// Step 8: commit — the site becomes visible. A unique violation here
	// means a concurrent create won the race; external effects are cleaned
	// up the same way as a step failure.
	if err := tx.Commit(ctx); err != nil {
		s.runCompensations(ctx, comps)
		commitErr := s.translateRegistryErr(err, "commit site record")
		s.logAudit(ctx, site.ID, "create", "failed", commitErr.Error())
		return nil, commitErr
	}

	s.log.Info("site created",
		zap.String("id", site.ID),
		zap.String("site_name", site.SiteName),
		zap.String("domain", site.Domain))
	s.logAudit(ctx, site.ID, "create", "success", "site provisioned: "+site.Domain)

	return site, nil
}

// checkUnique runs the advisory duplicate pre-checks. The registry's unique
// constraints remain the hard guarantee against races.
func (s *SiteService) checkUnique(ctx context.Context, sc models.SiteCreate) error {
	if _, err := s.registry.GetByName(ctx, sc.SiteName); err == nil {
		return provision.Ef(provision.KindDuplicateSiteName, "site name %q is already in use", sc.SiteName)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return provision.E(provision.KindRegistryFailed, "check site name", err)
	}

	if _, err := s.registry.GetByDomain(ctx, sc.Domain); err == nil {
		return provision.Ef(provision.KindDuplicateDomain, "domain %q is already in use", sc.Domain)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return provision.E(provision.KindRegistryFailed, "check domain", err)
	}

	if _, err := s.registry.GetByDatabaseName(ctx, sc.DatabaseName); err == nil {
		return provision.Ef(provision.KindDuplicateDatabaseName, "database name %q is already in use", sc.DatabaseName)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return provision.E(provision.KindRegistryFailed, "check database name", err)
	}

	return nil
}

// translateRegistryErr maps repository duplicate sentinels to their kinds;
// anything else becomes a registry failure.
func (s *SiteService) translateRegistryErr(err error, msg string) error {
	switch {
	case errors.Is(err, repository.ErrDuplicateSiteName):
		return provision.E(provision.KindDuplicateSiteName, "site name is already in use", err)
	case errors.Is(err, repository.ErrDuplicateDomain):
		return provision.E(provision.KindDuplicateDomain, "domain is already in use", err)
	case errors.Is(err, repository.ErrDuplicateDatabaseName):
		return provision.E(provision.KindDuplicateDatabaseName, "database name is already in use", err)
	}
	return provision.E(provision.KindRegistryFailed, msg, err)
}

// UpdateSite applies the mutable fields of a site. A PHP version change
// regenerates the vhost config; a reload failure there is logged but does
// not roll back the field change — unlike create, where reload failure is
// fatal.
func (s *SiteService) UpdateSite(ctx context.Context, id string, upd models.SiteUpdate) (*models.Site, error) {
	site, err := s.registry.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, provision.Ef(provision.KindSiteNotFound, "site %s not found", id)
		}
		return nil, provision.E(provision.KindRegistryFailed, "load site", err)
	}

	if upd.PHPVersion != nil && *upd.PHPVersion != site.PHPVersion {
		if !models.IsSupportedPHPVersion(*upd.PHPVersion) {
			return nil, provision.Ef(provision.KindInvalidInput, "unsupported php version: %s", *upd.PHPVersion)
		}

		oldVersion := site.PHPVersion
		site.PHPVersion = *upd.PHPVersion

		if err := s.proxy.DeleteConfig(site.SiteName + ".conf"); err != nil {
			s.log.Warn("failed to delete old proxy config", zap.Error(err))
		}
		if _, err := s.proxy.CreateConfig(site.SiteName, site.Domain, site.PHPVersion); err != nil {
			return nil, provision.E(provision.KindProxyConfigFailed, "regenerate proxy config", err)
		}
		if !s.proxy.Reload(ctx) {
			s.log.Warn("proxy reload failed after php version change",
				zap.String("site_name", site.SiteName))
		}

		s.log.Info("php version updated",
			zap.String("site_name", site.SiteName),
			zap.String("old", oldVersion),
			zap.String("new", site.PHPVersion))
	}

	if upd.Enabled != nil {
		site.Enabled = *upd.Enabled
	}

	if err := s.registry.Update(ctx, site); err != nil {
		return nil, provision.E(provision.KindRegistryFailed, "persist site update", err)
	}

	s.logAudit(ctx, site.ID, "update", "success", fmt.Sprintf("php_version=%s enabled=%t", site.PHPVersion, site.Enabled))
	return site, nil
}

// DeleteSite removes a site. Proxy config removal, routing teardown and
// the optional database drop are best effort; the proxy is reloaded only
// when the remaining configuration validates.
func (s *SiteService) DeleteSite(ctx context.Context, id string, deleteDatabase bool) error {
	site, err := s.registry.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return provision.Ef(provision.KindSiteNotFound, "site %s not found", id)
		}
		return provision.E(provision.KindRegistryFailed, "load site", err)
	}

	if err := s.proxy.DeleteConfig(site.SiteName + ".conf"); err != nil {
		s.log.Warn("failed to delete proxy config", zap.Error(err))
	}

	if s.proxy.TestConfig(ctx) {
		if !s.proxy.Reload(ctx) {
			s.log.Warn("proxy reload failed after site deletion", zap.String("site_name", site.SiteName))
		}
	} else {
		s.log.Warn("proxy configuration invalid after site deletion, skipping reload",
			zap.String("site_name", site.SiteName))
	}

	if err := s.routing.TeardownRouting(ctx, site.Domain, BaseDomain(site.Domain)); err != nil {
		s.log.Warn("failed to tear down public routing", zap.String("hostname", site.Domain), zap.Error(err))
	}

	if deleteDatabase {
		if err := s.dbAdmin.DropDatabase(ctx, site.DatabaseName, dbadmin.TargetBlog); err != nil {
			s.log.Warn("failed to drop site database",
				zap.String("database", site.DatabaseName),
				zap.Error(err))
		}
	}

	if err := s.registry.Delete(ctx, site.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return provision.Ef(provision.KindSiteNotFound, "site %s not found", id)
		}
		return provision.E(provision.KindRegistryFailed, "delete site record", err)
	}

	s.log.Info("site deleted",
		zap.String("site_name", site.SiteName),
		zap.Bool("database_dropped", deleteDatabase))
	s.logAudit(ctx, site.ID, "delete", "success", fmt.Sprintf("delete_database=%t", deleteDatabase))
	return nil
}

// GetSite returns a site by ID, or (nil, nil) when absent.
func (s *SiteService) GetSite(ctx context.Context, id string) (*models.Site, error) {
	site, err := s.registry.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, provision.E(provision.KindRegistryFailed, "load site", err)
	}
	return site, nil
}

// GetSiteByName returns a site by name, or (nil, nil) when absent.
func (s *SiteService) GetSiteByName(ctx context.Context, siteName string) (*models.Site, error) {
	site, err := s.registry.GetByName(ctx, siteName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, provision.E(provision.KindRegistryFailed, "load site", err)
	}
	return site, nil
}

// ListSites returns sites newest first, optionally only enabled ones.
func (s *SiteService) ListSites(ctx context.Context, enabledOnly bool) ([]*models.Site, error) {
	sites, err := s.registry.List(ctx, enabledOnly)
	if err != nil {
		return nil, provision.E(provision.KindRegistryFailed, "list sites", err)
	}
	return sites, nil
}

func (s *SiteService) logAudit(ctx context.Context, siteID, action, status, message string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogAction(ctx, siteID, action, status, message); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("site_id", siteID),
			zap.String("action", action),
			zap.Error(err))
	}
}

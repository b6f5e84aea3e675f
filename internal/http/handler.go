package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kumahost/portal/wordpress-service/internal/dbadmin"
	"github.com/kumahost/portal/wordpress-service/internal/models"
	"github.com/kumahost/portal/wordpress-service/internal/provision"
	"github.com/kumahost/portal/wordpress-service/internal/service"
)

// AuditReader reads site audit history.
type AuditReader interface {
	GetBySiteID(ctx context.Context, siteID string, limit int) ([]*models.SiteAuditLog, error)
}

// DatabaseLister lists databases of a managed target system.
type DatabaseLister interface {
	ListDatabases(ctx context.Context, targetSystem string) ([]models.DatabaseInfo, error)
}

type Handler struct {
	sites     *service.SiteService
	audit     AuditReader
	databases DatabaseLister
}

func NewHandler(sites *service.SiteService, audit AuditReader, databases DatabaseLister) *Handler {
	return &Handler{
		sites:     sites,
		audit:     audit,
		databases: databases,
	}
}

// statusForKind maps provisioning error kinds to HTTP status codes.
func statusForKind(kind provision.Kind) int {
	switch kind {
	case provision.KindDuplicateSiteName,
		provision.KindDuplicateDomain,
		provision.KindDuplicateDatabaseName,
		provision.KindInstallationPathExists:
		return http.StatusConflict
	case provision.KindSiteNotFound:
		return http.StatusNotFound
	case provision.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	kind := provision.KindOf(err)
	c.JSON(statusForKind(kind), gin.H{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

// ListSites returns all sites, optionally filtered to enabled ones.
func (h *Handler) ListSites(c *gin.Context) {
	enabledOnly, _ := strconv.ParseBool(c.Query("enabled_only"))

	sites, err := h.sites.ListSites(c.Request.Context(), enabledOnly)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]*models.SiteResponse, 0, len(sites))
	for _, s := range sites {
		resp = append(resp, models.NewSiteResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"sites": resp})
}

// GetSite returns one site by ID.
func (h *Handler) GetSite(c *gin.Context) {
	site, err := h.sites.GetSite(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if site == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "site not found"})
		return
	}
	c.JSON(http.StatusOK, models.NewSiteResponse(site))
}

// GetSiteByName returns one site by its unique name.
func (h *Handler) GetSiteByName(c *gin.Context) {
	site, err := h.sites.GetSiteByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	if site == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "site not found"})
		return
	}
	c.JSON(http.StatusOK, models.NewSiteResponse(site))
}

// CreateSite provisions a new site.
func (h *Handler) CreateSite(c *gin.Context) {
	var req models.CreateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	site, err := h.sites.CreateSite(c.Request.Context(), models.SiteCreate{
		SiteName:      req.SiteName,
		Domain:        req.Domain,
		DatabaseName:  req.DatabaseName,
		PHPVersion:    req.PHPVersion,
		AdminUser:     req.AdminUser,
		AdminPassword: req.AdminPassword,
		AdminEmail:    req.AdminEmail,
		Title:         req.Title,
	})
	recordProvisionOutcome("create", err)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.NewSiteResponse(site))
}

// UpdateSite applies mutable fields to a site.
func (h *Handler) UpdateSite(c *gin.Context) {
	var req models.UpdateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	site, err := h.sites.UpdateSite(c.Request.Context(), c.Param("id"), models.SiteUpdate{
		PHPVersion: req.PHPVersion,
		Enabled:    req.Enabled,
	})
	recordProvisionOutcome("update", err)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewSiteResponse(site))
}

// DeleteSite removes a site; ?delete_database=true also drops its backing
// database.
func (h *Handler) DeleteSite(c *gin.Context) {
	deleteDatabase, _ := strconv.ParseBool(c.Query("delete_database"))

	err := h.sites.DeleteSite(c.Request.Context(), c.Param("id"), deleteDatabase)
	recordProvisionOutcome("delete", err)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// GetSiteAuditLogs returns the audit history of a site, newest first.
func (h *Handler) GetSiteAuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	entries, err := h.audit.GetBySiteID(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]*models.AuditLogResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, &models.AuditLogResponse{
			ID:        e.ID,
			SiteID:    e.SiteID,
			Action:    e.Action,
			Status:    e.Status,
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": resp})
}

// ListPHPVersions returns the PHP runtimes available to sites.
func (h *Handler) ListPHPVersions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"php_versions": models.SupportedPHPVersions})
}

// ListDatabases lists the databases of the blog target system.
func (h *Handler) ListDatabases(c *gin.Context) {
	target := c.DefaultQuery("target", dbadmin.TargetBlog)

	dbs, err := h.databases.ListDatabases(c.Request.Context(), target)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"databases": dbs})
}

package models

import "time"

// CreateSiteRequest is the JSON body for site creation.
type CreateSiteRequest struct {
	SiteName      string `json:"site_name" binding:"required"`
	Domain        string `json:"domain" binding:"required"`
	DatabaseName  string `json:"database_name" binding:"required"`
	PHPVersion    string `json:"php_version" binding:"required"`
	AdminUser     string `json:"admin_user" binding:"required"`
	AdminPassword string `json:"admin_password" binding:"required"`
	AdminEmail    string `json:"admin_email" binding:"required,email"`
	Title         string `json:"title,omitempty"`
}

// UpdateSiteRequest is the JSON body for site updates. Only the fields
// present in the body are applied.
type UpdateSiteRequest struct {
	PHPVersion *string `json:"php_version,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty"`
}

// SiteResponse is the API representation of a site.
type SiteResponse struct {
	ID           string    `json:"id"`
	SiteName     string    `json:"site_name"`
	Domain       string    `json:"domain"`
	DatabaseName string    `json:"database_name"`
	PHPVersion   string    `json:"php_version"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewSiteResponse converts a Site to its API representation.
func NewSiteResponse(s *Site) *SiteResponse {
	return &SiteResponse{
		ID:           s.ID,
		SiteName:     s.SiteName,
		Domain:       s.Domain,
		DatabaseName: s.DatabaseName,
		PHPVersion:   s.PHPVersion,
		Enabled:      s.Enabled,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// AuditLogResponse is the API representation of an audit entry.
type AuditLogResponse struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// DatabaseInfo describes one database of a managed target system.
type DatabaseInfo struct {
	Name      string  `json:"name"`
	Charset   string  `json:"charset"`
	Collation string  `json:"collation"`
	SizeMB    float64 `json:"size_mb"`
}

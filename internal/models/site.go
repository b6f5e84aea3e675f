package models

import "time"

// SupportedPHPVersions lists the PHP runtimes available to sites.
var SupportedPHPVersions = []string{"7.4", "8.0", "8.1", "8.2"}

// IsSupportedPHPVersion reports whether v is an allowed PHP version.
func IsSupportedPHPVersion(v string) bool {
	for _, s := range SupportedPHPVersions {
		if s == v {
			return true
		}
	}
	return false
}

// Site is one managed WordPress installation.
// site_name, domain and database_name are immutable after creation and
// globally unique; the registry enforces uniqueness with DB constraints.
type Site struct {
	ID           string
	SiteName     string
	Domain       string
	DatabaseName string
	PHPVersion   string
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SiteCreate carries everything needed to provision a new site.
type SiteCreate struct {
	SiteName      string
	Domain        string
	DatabaseName  string
	PHPVersion    string
	AdminUser     string
	AdminPassword string
	AdminEmail    string
	Title         string // optional, defaults to Domain
}

// SiteUpdate is the explicit set of mutable fields. A nil field means
// "leave unchanged".
type SiteUpdate struct {
	PHPVersion *string
	Enabled    *bool
}

// SiteAuditLog records one lifecycle action against a site.
type SiteAuditLog struct {
	ID        string
	SiteID    string
	Action    string
	Status    string
	Message   string
	CreatedAt time.Time
}

// Package provision defines the error taxonomy of the site provisioning
// saga. Every failure a caller can observe carries exactly one Kind; the
// underlying collaborator error is preserved as the cause.
package provision

import (
	"errors"
	"fmt"
)

// Kind tags a provisioning failure with a machine-readable category.
type Kind string

const (
	KindDuplicateSiteName       Kind = "duplicate_site_name"
	KindDuplicateDomain         Kind = "duplicate_domain"
	KindDuplicateDatabaseName   Kind = "duplicate_database_name"
	KindInstallationPathExists  Kind = "installation_path_already_exists"
	KindDatabaseCreationFailed  Kind = "database_creation_failed"
	KindInstallationFailed      Kind = "installation_failed"
	KindMailConfigurationFailed Kind = "mail_configuration_failed"
	KindProxyConfigFailed       Kind = "proxy_config_generation_failed"
	KindProxyReloadFailed       Kind = "proxy_reload_failed"
	KindSiteNotFound            Kind = "site_not_found"
	KindInvalidInput            Kind = "invalid_input"
	KindRegistryFailed          Kind = "registry_failed"

	// KindRoutingSetupFailed is never returned from the saga; routing
	// failures are logged only. It exists for audit entries.
	KindRoutingSetupFailed Kind = "routing_setup_failed"
)

// Error is the single error type surfaced by the provisioner.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// E builds a provisioning error wrapping cause (cause may be nil).
func E(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Ef builds a provisioning error with a formatted message and no cause.
func Ef(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or "" if err is not a provisioning
// error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

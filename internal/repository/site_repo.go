package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kumahost/portal/wordpress-service/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// Unique-constraint violations, translated from Postgres 23505 errors.
	// These fire when two creates race past the advisory pre-checks.
	ErrDuplicateSiteName     = errors.New("duplicate site name")
	ErrDuplicateDomain       = errors.New("duplicate domain")
	ErrDuplicateDatabaseName = errors.New("duplicate database name")
)

const siteColumns = "id, site_name, domain, database_name, php_version, enabled, created_at, updated_at"

type SiteRepository struct {
	pool *pgxpool.Pool
}

func NewSiteRepository(pool *pgxpool.Pool) *SiteRepository {
	return &SiteRepository{pool: pool}
}

// CreateTx holds the open registry transaction of an in-flight create. The
// provisional site row is not visible to readers until Commit.
type CreateTx struct {
	tx pgx.Tx
}

func (t *CreateTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return translateSiteConstraint(err)
	}
	return nil
}

func (t *CreateTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// BeginCreate opens a transaction and inserts the provisional site row.
// The returned CreateTx must be committed or rolled back by the caller.
func (r *SiteRepository) BeginCreate(ctx context.Context, site *models.Site) (*CreateTx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	query := `
		INSERT INTO wordpress.sites (id, site_name, domain, database_name, php_version, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		site.ID, site.SiteName, site.Domain, site.DatabaseName, site.PHPVersion, site.Enabled,
	).Scan(&site.CreatedAt, &site.UpdatedAt)
	if err != nil {
		_ = tx.Rollback(ctx)
		if dup := translateSiteConstraint(err); dup != err {
			return nil, dup
		}
		return nil, fmt.Errorf("insert site: %w", err)
	}

	return &CreateTx{tx: tx}, nil
}

// GetByID retrieves a site by ID. Returns ErrNotFound when absent.
func (r *SiteRepository) GetByID(ctx context.Context, id string) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM wordpress.sites WHERE id = $1`
	return r.scanSite(r.pool.QueryRow(ctx, query, id))
}

// GetByName retrieves a site by its unique site name.
func (r *SiteRepository) GetByName(ctx context.Context, siteName string) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM wordpress.sites WHERE site_name = $1`
	return r.scanSite(r.pool.QueryRow(ctx, query, siteName))
}

// GetByDomain retrieves a site by its unique domain.
func (r *SiteRepository) GetByDomain(ctx context.Context, domain string) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM wordpress.sites WHERE domain = $1`
	return r.scanSite(r.pool.QueryRow(ctx, query, domain))
}

// GetByDatabaseName retrieves a site by its unique backing database name.
func (r *SiteRepository) GetByDatabaseName(ctx context.Context, databaseName string) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM wordpress.sites WHERE database_name = $1`
	return r.scanSite(r.pool.QueryRow(ctx, query, databaseName))
}

// List returns sites ordered by creation time descending, optionally
// filtered to enabled ones.
func (r *SiteRepository) List(ctx context.Context, enabledOnly bool) ([]*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM wordpress.sites`
	if enabledOnly {
		query += ` WHERE enabled = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		site := &models.Site{}
		err := rows.Scan(
			&site.ID, &site.SiteName, &site.Domain, &site.DatabaseName,
			&site.PHPVersion, &site.Enabled, &site.CreatedAt, &site.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan site row: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// Update persists the mutable fields of a site.
func (r *SiteRepository) Update(ctx context.Context, site *models.Site) error {
	query := `
		UPDATE wordpress.sites
		SET php_version = $1, enabled = $2, updated_at = now()
		WHERE id = $3
		RETURNING updated_at
	`
	err := r.pool.QueryRow(ctx, query, site.PHPVersion, site.Enabled, site.ID).Scan(&site.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update site: %w", err)
	}
	return nil
}

// Delete removes a site record.
func (r *SiteRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM wordpress.sites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SiteRepository) scanSite(row pgx.Row) (*models.Site, error) {
	site := &models.Site{}
	err := row.Scan(
		&site.ID, &site.SiteName, &site.Domain, &site.DatabaseName,
		&site.PHPVersion, &site.Enabled, &site.CreatedAt, &site.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan site: %w", err)
	}
	return site, nil
}

// translateSiteConstraint maps unique-violation errors on the sites table
// to the matching duplicate error. Any other error is returned unchanged.
func translateSiteConstraint(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case "sites_site_name_key":
		return ErrDuplicateSiteName
	case "sites_domain_key":
		return ErrDuplicateDomain
	case "sites_database_name_key":
		return ErrDuplicateDatabaseName
	}
	return err
}

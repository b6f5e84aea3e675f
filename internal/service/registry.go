package service

import (
	"context"

	"github.com/kumahost/portal/wordpress-service/internal/models"
	"github.com/kumahost/portal/wordpress-service/internal/repository"
)

// pgRegistry adapts the pgx-backed SiteRepository to the Registry
// interface (the concrete CreateTx return type needs lifting to
// RegistryTx).
type pgRegistry struct {
	repo *repository.SiteRepository
}

// NewRegistry wraps a SiteRepository as the saga's Registry.
func NewRegistry(repo *repository.SiteRepository) Registry {
	return &pgRegistry{repo: repo}
}

func (r *pgRegistry) BeginCreate(ctx context.Context, site *models.Site) (RegistryTx, error) {
	return r.repo.BeginCreate(ctx, site)
}

func (r *pgRegistry) GetByID(ctx context.Context, id string) (*models.Site, error) {
	return r.repo.GetByID(ctx, id)
}

func (r *pgRegistry) GetByName(ctx context.Context, siteName string) (*models.Site, error) {
	return r.repo.GetByName(ctx, siteName)
}

func (r *pgRegistry) GetByDomain(ctx context.Context, domain string) (*models.Site, error) {
	return r.repo.GetByDomain(ctx, domain)
}

func (r *pgRegistry) GetByDatabaseName(ctx context.Context, databaseName string) (*models.Site, error) {
	return r.repo.GetByDatabaseName(ctx, databaseName)
}

func (r *pgRegistry) List(ctx context.Context, enabledOnly bool) ([]*models.Site, error) {
	return r.repo.List(ctx, enabledOnly)
}

func (r *pgRegistry) Update(ctx context.Context, site *models.Site) error {
	return r.repo.Update(ctx, site)
}

func (r *pgRegistry) Delete(ctx context.Context, id string) error {
	return r.repo.Delete(ctx, id)
}

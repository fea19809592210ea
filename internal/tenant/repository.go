package tenant

import (
	"context"
	stderrors "errors"
	"sort"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/internal/store"
	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Repository defines the interface for tenant data access
type Repository interface {
	Create(ctx context.Context, tenant *model.Tenant) error
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
	Update(ctx context.Context, id string, mutate func(*model.Tenant) error) (*model.Tenant, error)
	List(ctx context.Context, filter ListTenantsFilter) ([]*model.Tenant, int, error)
	// FindByURL returns the tenant holding url, or nil when none does
	FindByURL(ctx context.Context, url string) (*model.Tenant, error)
}

type repository struct {
	tenants *store.Collection[model.Tenant]
}

// NewRepository creates a new tenant repository
func NewRepository(kv kvstore.Store) Repository {
	return &repository{
		tenants: store.NewCollection(kv, model.CollectionTenants, func(t *model.Tenant) string { return t.ID }),
	}
}

func (r *repository) Create(ctx context.Context, tenant *model.Tenant) error {
	return r.tenants.Create(ctx, tenant)
}

func (r *repository) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	tenant, err := r.tenants.Get(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, ErrTenantNotFound
	}
	return tenant, err
}

func (r *repository) Update(ctx context.Context, id string, mutate func(*model.Tenant) error) (*model.Tenant, error) {
	tenant, err := r.tenants.Update(ctx, id, mutate)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, ErrTenantNotFound
	}
	return tenant, err
}

// List returns one page of matching tenants, oldest first, and the total
// number of matches
func (r *repository) List(ctx context.Context, filter ListTenantsFilter) ([]*model.Tenant, int, error) {
	tenants, err := r.tenants.Scan(ctx, filter.Matches)
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(tenants, func(i, j int) bool {
		if tenants[i].CreatedAt.Equal(tenants[j].CreatedAt) {
			return tenants[i].ID < tenants[j].ID
		}
		return tenants[i].CreatedAt.Before(tenants[j].CreatedAt)
	})

	total := len(tenants)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*model.Tenant{}, total, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}
	return tenants[offset:end], total, nil
}

func (r *repository) FindByURL(ctx context.Context, url string) (*model.Tenant, error) {
	matches, err := r.tenants.Scan(ctx, func(t *model.Tenant) bool {
		return t.TenantURL == url
	})
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

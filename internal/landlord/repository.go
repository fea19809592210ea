package landlord

import (
	"context"
	stderrors "errors"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/internal/store"
	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
)

// Repository defines persistence for landlord projection rows
type Repository interface {
	Get(ctx context.Context, id string) (*model.Landlord, error)
	Put(ctx context.Context, landlord *model.Landlord) error
	ListByTenant(ctx context.Context, tenantID string) ([]*model.Landlord, error)
}

type repository struct {
	landlords *store.Collection[model.Landlord]
}

// NewRepository creates a landlord repository over kv
func NewRepository(kv kvstore.Store) Repository {
	return &repository{
		landlords: store.NewCollection(kv, model.CollectionLandlords, func(l *model.Landlord) string { return l.ID }),
	}
}

func (r *repository) Get(ctx context.Context, id string) (*model.Landlord, error) {
	l, err := r.landlords.Get(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, ErrLandlordNotFound
	}
	return l, err
}

func (r *repository) Put(ctx context.Context, landlord *model.Landlord) error {
	return r.landlords.Put(ctx, landlord)
}

func (r *repository) ListByTenant(ctx context.Context, tenantID string) ([]*model.Landlord, error) {
	return r.landlords.Scan(ctx, func(l *model.Landlord) bool {
		return l.TenantID == tenantID
	})
}

package subscription

import (
	"context"
	stderrors "errors"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/internal/store"
	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
)

// Repository defines the interface for subscription data access
type Repository interface {
	Create(ctx context.Context, sub *model.Subscription) error
	Get(ctx context.Context, id string) (*model.Subscription, error)
	GetByID(ctx context.Context, id string) (*model.Subscription, error)
	Update(ctx context.Context, id string, mutate func(*model.Subscription) error) (*model.Subscription, error)
	Scan(ctx context.Context, pred func(*model.Subscription) bool) ([]*model.Subscription, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*model.Subscription, error)
}

type repository struct {
	subs *store.Collection[model.Subscription]
}

// NewRepository creates a new subscription repository
func NewRepository(kv kvstore.Store) Repository {
	return &repository{
		subs: store.NewCollection(kv, model.CollectionSubscriptions, func(s *model.Subscription) string { return s.ID }),
	}
}

func (r *repository) Create(ctx context.Context, sub *model.Subscription) error {
	return r.subs.Create(ctx, sub)
}

// Get returns ErrSubscriptionNotFound for a missing record; the error also
// matches store.ErrNotFound
func (r *repository) Get(ctx context.Context, id string) (*model.Subscription, error) {
	sub, err := r.subs.Get(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, ErrSubscriptionNotFound.WithErr(err)
	}
	return sub, err
}

func (r *repository) GetByID(ctx context.Context, id string) (*model.Subscription, error) {
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, id string, mutate func(*model.Subscription) error) (*model.Subscription, error) {
	sub, err := r.subs.Update(ctx, id, mutate)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, ErrSubscriptionNotFound.WithErr(err)
	}
	return sub, err
}

func (r *repository) Scan(ctx context.Context, pred func(*model.Subscription) bool) ([]*model.Subscription, error) {
	return r.subs.Scan(ctx, pred)
}

func (r *repository) ListByTenant(ctx context.Context, tenantID string) ([]*model.Subscription, error) {
	subs, err := r.subs.Scan(ctx, func(s *model.Subscription) bool {
		return s.TenantID == tenantID
	})
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []*model.Subscription{}
	}
	return subs, nil
}

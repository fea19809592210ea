package cluster

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/internal/netrange"
	"github.com/victoralfred/kube_provisioner/internal/store"
	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
)

// Repository defines the interface for cluster data access
type Repository interface {
	Create(ctx context.Context, cluster *model.Cluster) error
	GetByID(ctx context.Context, id string) (*model.Cluster, error)
	Update(ctx context.Context, id string, mutate func(*model.Cluster) error) (*model.Cluster, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListClustersFilter) ([]*model.Cluster, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	// Allocations returns the cidr of every stored cluster regardless of status
	Allocations(ctx context.Context) ([]netrange.Allocation, error)
}

type repository struct {
	clusters *store.Collection[model.Cluster]
}

// NewRepository creates a new cluster repository
func NewRepository(kv kvstore.Store) Repository {
	return &repository{
		clusters: store.NewCollection(kv, model.CollectionClusters, func(c *model.Cluster) string { return c.ID }),
	}
}

func (r *repository) Create(ctx context.Context, cluster *model.Cluster) error {
	return r.clusters.Create(ctx, cluster)
}

func (r *repository) GetByID(ctx context.Context, id string) (*model.Cluster, error) {
	cluster, err := r.clusters.Get(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, ErrClusterNotFound
	}
	return cluster, err
}

func (r *repository) Update(ctx context.Context, id string, mutate func(*model.Cluster) error) (*model.Cluster, error) {
	cluster, err := r.clusters.Update(ctx, id, mutate)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, ErrClusterNotFound
	}
	return cluster, err
}

func (r *repository) Delete(ctx context.Context, id string) error {
	return r.clusters.Delete(ctx, id)
}

func (r *repository) List(ctx context.Context, filter ListClustersFilter) ([]*model.Cluster, error) {
	return r.clusters.Scan(ctx, filter.Matches)
}

func (r *repository) ExistsByName(ctx context.Context, name string) (bool, error) {
	matches, err := r.clusters.Scan(ctx, func(c *model.Cluster) bool {
		return strings.EqualFold(c.Name, name)
	})
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

func (r *repository) Allocations(ctx context.Context) ([]netrange.Allocation, error) {
	clusters, err := r.clusters.Scan(ctx, nil)
	if err != nil {
		return nil, err
	}

	allocations := make([]netrange.Allocation, 0, len(clusters))
	for _, c := range clusters {
		allocations = append(allocations, netrange.Allocation{Owner: c.Name, CIDR: c.CIDR})
	}
	return allocations, nil
}

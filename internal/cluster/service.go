package cluster

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/internal/netrange"
	"github.com/victoralfred/kube_provisioner/internal/store"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
	"github.com/victoralfred/kube_provisioner/pkg/metrics"
)

// Service defines the interface for cluster business logic
type Service interface {
	RegisterCluster(ctx context.Context, req RegisterClusterRequest) (*model.Cluster, error)
	GetCluster(ctx context.Context, id string) (*model.Cluster, error)
	ListClusters(ctx context.Context, filter ListClustersFilter) ([]*model.Cluster, error)
	UpdateClusterStatus(ctx context.Context, id string, status model.ClusterStatus) (*model.Cluster, error)
	DeleteCluster(ctx context.Context, id string) error
	// CheckCIDR validates cidr and checks it against every stored cluster
	// without writing anything. It returns the canonical form.
	CheckCIDR(ctx context.Context, cidr string) (string, error)
}

// service implements Service interface
type service struct {
	repo     Repository
	logger   *logger.Logger
	recorder metrics.Recorder
}

// NewService creates a new cluster service
func NewService(repo Repository, log *logger.Logger, recorder metrics.Recorder) Service {
	if recorder == nil {
		recorder = metrics.NopRecorder
	}
	return &service{
		repo:     repo,
		logger:   log,
		recorder: recorder,
	}
}

// RegisterCluster validates the request, allocates the cidr against every
// stored cluster and creates the cluster In-Active. Nothing is written when
// any check fails.
func (s *service) RegisterCluster(ctx context.Context, req RegisterClusterRequest) (cluster *model.Cluster, err error) {
	defer func() { s.recorder.RecordOperation("register_cluster", metrics.ResultOf(err)) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	block, err := s.checkCIDR(ctx, req.CIDR)
	if err != nil {
		return nil, err
	}

	taken, err := s.repo.ExistsByName(ctx, req.Name)
	if err != nil {
		s.logger.Error("failed to check cluster name", err)
		return nil, err
	}
	if taken {
		s.recorder.RecordConflict("cluster_name")
		s.logger.WithField("name", req.Name).Warn("cluster name already exists")
		return nil, ErrClusterNameTaken
	}

	now := time.Now().UTC()
	cluster = &model.Cluster{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Type:        req.Type,
		Environment: strings.TrimSpace(req.Environment),
		Region:      strings.TrimSpace(req.Region),
		CIDR:        block.String(),
		Status:      model.ClusterStatusInactive,
		Infra: model.InfraRefs{
			AccountID: strings.TrimSpace(req.AccountID),
			VPCID:     strings.TrimSpace(req.VPCID),
			StackName: strings.TrimSpace(req.StackName),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, cluster); err != nil {
		if stderrors.Is(err, store.ErrAlreadyExists) {
			return nil, errors.Internal("generated cluster id collided", err)
		}
		s.logger.Error("failed to create cluster", err)
		return nil, err
	}

	s.logger.WithEntity("cluster", cluster.ID).
		WithField("cidr", cluster.CIDR).
		Info("cluster registered")
	return cluster, nil
}

func (s *service) CheckCIDR(ctx context.Context, cidr string) (string, error) {
	block, err := s.checkCIDR(ctx, cidr)
	if err != nil {
		return "", err
	}
	return block.String(), nil
}

func (s *service) checkCIDR(ctx context.Context, cidr string) (netrange.Block, error) {
	block, err := netrange.Validate(cidr)
	if err != nil {
		return netrange.Block{}, err
	}

	existing, err := s.repo.Allocations(ctx)
	if err != nil {
		s.logger.Error("failed to load cluster allocations", err)
		return netrange.Block{}, err
	}

	if err := netrange.CheckAgainstExisting(block, existing); err != nil {
		if errors.IsConflict(err) {
			s.recorder.RecordConflict("cidr_overlap")
			s.logger.WithField("cidr", block.String()).
				WithField("conflicts", errors.From(err).Conflicts).
				Warn("cidr overlaps existing clusters")
		}
		return netrange.Block{}, err
	}
	return block, nil
}

// GetCluster retrieves a cluster by ID
func (s *service) GetCluster(ctx context.Context, id string) (*model.Cluster, error) {
	if id == "" {
		return nil, ErrInvalidClusterID
	}
	return s.repo.GetByID(ctx, id)
}

// ListClusters lists clusters matching filter
func (s *service) ListClusters(ctx context.Context, filter ListClustersFilter) ([]*model.Cluster, error) {
	clusters, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list clusters", err)
		return nil, err
	}
	if clusters == nil {
		clusters = []*model.Cluster{}
	}
	return clusters, nil
}

// UpdateClusterStatus records a deployment status change. The cidr and
// identity of a cluster never change after registration.
func (s *service) UpdateClusterStatus(ctx context.Context, id string, status model.ClusterStatus) (cluster *model.Cluster, err error) {
	defer func() { s.recorder.RecordOperation("update_cluster_status", metrics.ResultOf(err)) }()

	if id == "" {
		return nil, ErrInvalidClusterID
	}
	if !status.IsValid() {
		return nil, ErrInvalidClusterStatus
	}

	cluster, err = s.repo.Update(ctx, id, func(c *model.Cluster) error {
		c.Status = status
		c.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		if !errors.IsNotFound(err) {
			s.logger.Error("failed to update cluster status", err)
		}
		return nil, err
	}

	s.logger.WithEntity("cluster", id).Info(fmt.Sprintf("cluster status set to %s", status))
	return cluster, nil
}

// DeleteCluster removes a cluster that has not been deployed
func (s *service) DeleteCluster(ctx context.Context, id string) (err error) {
	defer func() { s.recorder.RecordOperation("delete_cluster", metrics.ResultOf(err)) }()

	cluster, err := s.GetCluster(ctx, id)
	if err != nil {
		return err
	}
	if cluster.Status != model.ClusterStatusInactive {
		return ErrClusterNotInactive
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete cluster", err)
		return err
	}

	s.logger.WithEntity("cluster", id).Info("cluster deleted")
	return nil
}

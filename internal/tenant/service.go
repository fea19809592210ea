package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/internal/propagation"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
	"github.com/victoralfred/kube_provisioner/pkg/metrics"
)

// ClusterReader resolves the cluster a tenant is placed on
type ClusterReader interface {
	GetByID(ctx context.Context, id string) (*model.Cluster, error)
}

// Propagator applies the dependent writes of a tenant change
type Propagator interface {
	CascadeTenantStatus(ctx context.Context, tenant *model.Tenant) (*propagation.CascadeResult, error)
	MirrorTenantName(ctx context.Context, tenant *model.Tenant) error
}

// Service defines the interface for tenant business logic
type Service interface {
	OnboardTenant(ctx context.Context, req OnboardTenantRequest) (*model.Tenant, error)
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)
	ListTenants(ctx context.Context, filter ListTenantsFilter) ([]*model.Tenant, int, error)
	UpdateTenant(ctx context.Context, id string, req UpdateTenantRequest) (*TenantResponse, error)
	UpdateTenantStatus(ctx context.Context, id string, status model.TenantStatus) (*TenantResponse, error)
}

// service implements Service interface
type service struct {
	repo       Repository
	clusters   ClusterReader
	propagator Propagator
	recorder   metrics.Recorder
	logger     *logger.Logger
}

// NewService creates a new tenant service
func NewService(repo Repository, clusters ClusterReader, propagator Propagator, recorder metrics.Recorder, log *logger.Logger) Service {
	if recorder == nil {
		recorder = metrics.NopRecorder
	}
	return &service{
		repo:       repo,
		clusters:   clusters,
		propagator: propagator,
		recorder:   recorder,
		logger:     log,
	}
}

// OnboardTenant creates a Pending tenant on an existing cluster
func (s *service) OnboardTenant(ctx context.Context, req OnboardTenantRequest) (tenant *model.Tenant, err error) {
	defer func() { s.recorder.RecordOperation("onboard_tenant", metrics.ResultOf(err)) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	holder, err := s.repo.FindByURL(ctx, req.TenantURL)
	if err != nil {
		s.logger.Error("failed to check tenant url", err)
		return nil, err
	}
	if holder != nil {
		s.recorder.RecordConflict("tenant_url")
		s.logger.Warn(fmt.Sprintf("tenant url %s already in use", req.TenantURL))
		return nil, errors.Conflict(
			fmt.Sprintf("tenant_url %q is already in use", req.TenantURL),
			fmt.Sprintf("tenant_url=%s (tenant %s)", req.TenantURL, holder.ID),
		)
	}

	cluster, err := s.clusters.GetByID(ctx, req.ClusterID)
	if err != nil {
		return nil, err
	}
	if req.DeploymentType == model.DeploymentDedicated && cluster.Type != model.ClusterTypeDedicated {
		return nil, ErrDedicatedClusterRequired
	}

	now := time.Now().UTC()
	tenant = &model.Tenant{
		ID:             uuid.New().String(),
		BusinessName:   req.BusinessName,
		ContactName:    req.ContactName,
		ContactEmail:   req.ContactEmail,
		Phone:          req.Phone,
		Status:         model.TenantStatusPending,
		DeploymentType: req.DeploymentType,
		Region:         req.Region,
		TenantURL:      req.TenantURL,
		ClusterID:      cluster.ID,
		ClusterName:    cluster.Name,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Create(ctx, tenant); err != nil {
		s.logger.Error("failed to create tenant", err)
		return nil, err
	}

	s.logger.WithTenantID(tenant.ID).Info("tenant onboarded")
	return tenant, nil
}

// GetTenant retrieves a tenant by ID
func (s *service) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	if id == "" {
		return nil, ErrInvalidTenantID
	}
	return s.repo.GetByID(ctx, id)
}

// ListTenants lists tenants with filters
func (s *service) ListTenants(ctx context.Context, filter ListTenantsFilter) ([]*model.Tenant, int, error) {
	tenants, total, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list tenants", err)
		return nil, 0, err
	}
	return tenants, total, nil
}

// UpdateTenant writes the tenant first, then runs its dependent writes. A
// Suspended or Terminated status in the request cascades even when the
// status did not change, so a retry finishes an interrupted cascade. A
// changed business name is re-projected onto the landlord rows.
//
// When a dependent write fails the response is still returned together
// with the error so callers can see what was applied.
func (s *service) UpdateTenant(ctx context.Context, id string, req UpdateTenantRequest) (resp *TenantResponse, err error) {
	defer func() { s.recorder.RecordOperation("update_tenant", metrics.ResultOf(err)) }()

	current, err := s.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Status != nil && current.Status == model.TenantStatusTerminated && *req.Status != model.TenantStatusTerminated {
		return nil, ErrTenantTerminated
	}

	previousName := current.BusinessName
	updated, err := s.repo.Update(ctx, id, func(t *model.Tenant) error {
		if req.Status != nil && t.Status == model.TenantStatusTerminated && *req.Status != model.TenantStatusTerminated {
			return ErrTenantTerminated
		}
		req.Apply(t)
		t.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		if !errors.IsNotFound(err) && !errors.IsValidation(err) {
			s.logger.Error("failed to update tenant", err)
		}
		return nil, err
	}

	log := s.logger.WithTenantID(id)
	log.Info("tenant updated")
	resp = &TenantResponse{Tenant: updated}

	var cascadeErr error
	if req.Status != nil && req.Status.Cascades() {
		resp.Cascade, cascadeErr = s.propagator.CascadeTenantStatus(ctx, updated)
		if cascadeErr != nil {
			log.Error("tenant status cascade incomplete", cascadeErr)
		}
	}

	var renameErr error
	if updated.BusinessName != previousName {
		if renameErr = s.propagator.MirrorTenantName(ctx, updated); renameErr != nil {
			log.Error("landlord rename incomplete", renameErr)
		}
	}

	if cascadeErr != nil {
		return resp, cascadeErr
	}
	return resp, renameErr
}

// UpdateTenantStatus is UpdateTenant with only the status set
func (s *service) UpdateTenantStatus(ctx context.Context, id string, status model.TenantStatus) (*TenantResponse, error) {
	return s.UpdateTenant(ctx, id, UpdateTenantRequest{Status: &status})
}

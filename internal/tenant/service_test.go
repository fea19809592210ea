package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/internal/propagation"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
)

// MockRepository is a mock implementation of Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, tenant *model.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tenant), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, id string, mutate func(*model.Tenant) error) (*model.Tenant, error) {
	args := m.Called(ctx, id, mutate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	tenant := *args.Get(0).(*model.Tenant)
	if err := mutate(&tenant); err != nil {
		return nil, err
	}
	return &tenant, args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, filter ListTenantsFilter) ([]*model.Tenant, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*model.Tenant), args.Int(1), args.Error(2)
}

func (m *MockRepository) FindByURL(ctx context.Context, url string) (*model.Tenant, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tenant), args.Error(1)
}

// MockPropagator is a mock implementation of Propagator
type MockPropagator struct {
	mock.Mock
}

func (m *MockPropagator) CascadeTenantStatus(ctx context.Context, tenant *model.Tenant) (*propagation.CascadeResult, error) {
	args := m.Called(ctx, tenant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*propagation.CascadeResult), args.Error(1)
}

func (m *MockPropagator) MirrorTenantName(ctx context.Context, tenant *model.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

type clusterMap map[string]*model.Cluster

func (c clusterMap) GetByID(ctx context.Context, id string) (*model.Cluster, error) {
	cluster, ok := c[id]
	if !ok {
		return nil, errors.NotFound("Cluster")
	}
	return cluster, nil
}

var testClusters = clusterMap{
	"shared-1":    {ID: "shared-1", Name: "shared-eu", Type: model.ClusterTypeShared},
	"dedicated-1": {ID: "dedicated-1", Name: "dedicated-eu", Type: model.ClusterTypeDedicated},
}

func onboardRequest() OnboardTenantRequest {
	return OnboardTenantRequest{
		BusinessName:   "Acme Ltd",
		ContactName:    "Jane Doe",
		ContactEmail:   "jane@acme.com",
		DeploymentType: model.DeploymentShared,
		Region:         "eu-west-1",
		TenantURL:      " Acme ",
		ClusterID:      "shared-1",
	}
}

func existingTenant(status model.TenantStatus) *model.Tenant {
	now := time.Now().UTC()
	return &model.Tenant{
		ID:             "t1",
		BusinessName:   "Acme Ltd",
		ContactName:    "Jane Doe",
		ContactEmail:   "jane@acme.com",
		Status:         status,
		DeploymentType: model.DeploymentShared,
		Region:         "eu-west-1",
		TenantURL:      "acme",
		ClusterID:      "shared-1",
		ClusterName:    "shared-eu",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestService_OnboardTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("successfully onboard tenant", func(t *testing.T) {
		mockRepo := new(MockRepository)
		svc := NewService(mockRepo, testClusters, new(MockPropagator), nil, logger.Nop())

		mockRepo.On("FindByURL", ctx, "acme").Return(nil, nil).Once()
		mockRepo.On("Create", ctx, mock.AnythingOfType("*model.Tenant")).Return(nil).Once()

		tenant, err := svc.OnboardTenant(ctx, onboardRequest())

		require.NoError(t, err)
		assert.NotEmpty(t, tenant.ID)
		assert.Equal(t, "acme", tenant.TenantURL)
		assert.Equal(t, model.TenantStatusPending, tenant.Status)
		assert.Equal(t, "shared-eu", tenant.ClusterName)
		mockRepo.AssertExpectations(t)
	})

	t.Run("fail when tenant url taken", func(t *testing.T) {
		mockRepo := new(MockRepository)
		svc := NewService(mockRepo, testClusters, new(MockPropagator), nil, logger.Nop())

		mockRepo.On("FindByURL", ctx, "acme").Return(existingTenant(model.TenantStatusActive), nil).Once()

		tenant, err := svc.OnboardTenant(ctx, onboardRequest())

		assert.Nil(t, tenant)
		assert.True(t, errors.IsConflict(err))
		assert.Equal(t, []string{"tenant_url=acme (tenant t1)"}, errors.From(err).Conflicts)
		mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("fail when cluster missing", func(t *testing.T) {
		mockRepo := new(MockRepository)
		svc := NewService(mockRepo, testClusters, new(MockPropagator), nil, logger.Nop())

		req := onboardRequest()
		req.ClusterID = "nope"
		mockRepo.On("FindByURL", ctx, "acme").Return(nil, nil).Once()

		_, err := svc.OnboardTenant(ctx, req)
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("dedicated tenant needs dedicated cluster", func(t *testing.T) {
		mockRepo := new(MockRepository)
		svc := NewService(mockRepo, testClusters, new(MockPropagator), nil, logger.Nop())

		req := onboardRequest()
		req.DeploymentType = model.DeploymentDedicated
		mockRepo.On("FindByURL", ctx, "acme").Return(nil, nil).Twice()
		mockRepo.On("Create", ctx, mock.AnythingOfType("*model.Tenant")).Return(nil).Once()

		_, err := svc.OnboardTenant(ctx, req)
		assert.Equal(t, ErrDedicatedClusterRequired, err)

		req.ClusterID = "dedicated-1"
		_, err = svc.OnboardTenant(ctx, req)
		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})

	t.Run("fail on invalid input", func(t *testing.T) {
		svc := NewService(new(MockRepository), testClusters, new(MockPropagator), nil, logger.Nop())

		req := onboardRequest()
		req.ContactEmail = "not-an-email"
		_, err := svc.OnboardTenant(ctx, req)
		assert.Equal(t, ErrInvalidContactEmail, err)

		req = onboardRequest()
		req.TenantURL = "acme corp"
		_, err = svc.OnboardTenant(ctx, req)
		assert.Equal(t, ErrInvalidTenantURL, err)

		req = onboardRequest()
		req.DeploymentType = "Hybrid"
		_, err = svc.OnboardTenant(ctx, req)
		assert.Equal(t, ErrInvalidDeploymentType, err)
	})
}

func TestService_UpdateTenantStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("suspend cascades", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockProp := new(MockPropagator)
		svc := NewService(mockRepo, testClusters, mockProp, nil, logger.Nop())

		current := existingTenant(model.TenantStatusActive)
		mockRepo.On("GetByID", ctx, "t1").Return(current, nil).Once()
		mockRepo.On("Update", ctx, "t1", mock.Anything).Return(current, nil).Once()
		summary := &propagation.CascadeResult{TenantID: "t1", Suspended: []string{"s1"}}
		mockProp.On("CascadeTenantStatus", ctx, mock.MatchedBy(func(t *model.Tenant) bool {
			return t.Status == model.TenantStatusSuspended
		})).Return(summary, nil).Once()

		resp, err := svc.UpdateTenantStatus(ctx, "t1", model.TenantStatusSuspended)

		require.NoError(t, err)
		assert.Equal(t, model.TenantStatusSuspended, resp.Tenant.Status)
		assert.Equal(t, summary, resp.Cascade)
		mockRepo.AssertExpectations(t)
		mockProp.AssertExpectations(t)
	})

	t.Run("unchanged suspended status still cascades", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockProp := new(MockPropagator)
		svc := NewService(mockRepo, testClusters, mockProp, nil, logger.Nop())

		current := existingTenant(model.TenantStatusSuspended)
		mockRepo.On("GetByID", ctx, "t1").Return(current, nil).Once()
		mockRepo.On("Update", ctx, "t1", mock.Anything).Return(current, nil).Once()
		mockProp.On("CascadeTenantStatus", ctx, mock.Anything).Return(&propagation.CascadeResult{TenantID: "t1"}, nil).Once()

		_, err := svc.UpdateTenantStatus(ctx, "t1", model.TenantStatusSuspended)

		require.NoError(t, err)
		mockProp.AssertExpectations(t)
	})

	t.Run("activate does not cascade", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockProp := new(MockPropagator)
		svc := NewService(mockRepo, testClusters, mockProp, nil, logger.Nop())

		current := existingTenant(model.TenantStatusSuspended)
		mockRepo.On("GetByID", ctx, "t1").Return(current, nil).Once()
		mockRepo.On("Update", ctx, "t1", mock.Anything).Return(current, nil).Once()

		resp, err := svc.UpdateTenantStatus(ctx, "t1", model.TenantStatusActive)

		require.NoError(t, err)
		assert.Nil(t, resp.Cascade)
		mockProp.AssertNotCalled(t, "CascadeTenantStatus", mock.Anything, mock.Anything)
	})

	t.Run("terminated is terminal", func(t *testing.T) {
		mockRepo := new(MockRepository)
		svc := NewService(mockRepo, testClusters, new(MockPropagator), nil, logger.Nop())

		mockRepo.On("GetByID", ctx, "t1").Return(existingTenant(model.TenantStatusTerminated), nil).Once()

		_, err := svc.UpdateTenantStatus(ctx, "t1", model.TenantStatusActive)

		assert.Equal(t, ErrTenantTerminated, err)
		mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cascade failure is returned with the summary", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockProp := new(MockPropagator)
		svc := NewService(mockRepo, testClusters, mockProp, nil, logger.Nop())

		current := existingTenant(model.TenantStatusActive)
		mockRepo.On("GetByID", ctx, "t1").Return(current, nil).Once()
		mockRepo.On("Update", ctx, "t1", mock.Anything).Return(current, nil).Once()
		summary := &propagation.CascadeResult{TenantID: "t1", Suspended: []string{"s1"}, Failed: []string{"s2"}}
		mockProp.On("CascadeTenantStatus", ctx, mock.Anything).
			Return(summary, errors.Internal("cascade failed for subscriptions: s2", nil)).Once()

		resp, err := svc.UpdateTenantStatus(ctx, "t1", model.TenantStatusTerminated)

		assert.True(t, errors.IsInternal(err))
		require.NotNil(t, resp)
		assert.Equal(t, []string{"s2"}, resp.Cascade.Failed)
		assert.Equal(t, model.TenantStatusTerminated, resp.Tenant.Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		mockRepo := new(MockRepository)
		svc := NewService(mockRepo, testClusters, new(MockPropagator), nil, logger.Nop())

		mockRepo.On("GetByID", ctx, "t1").Return(existingTenant(model.TenantStatusActive), nil).Once()

		_, err := svc.UpdateTenantStatus(ctx, "t1", "Archived")
		assert.Equal(t, ErrInvalidTenantStatus, err)
	})

	t.Run("not found", func(t *testing.T) {
		mockRepo := new(MockRepository)
		svc := NewService(mockRepo, testClusters, new(MockPropagator), nil, logger.Nop())

		mockRepo.On("GetByID", ctx, "missing").Return(nil, ErrTenantNotFound).Once()

		_, err := svc.UpdateTenantStatus(ctx, "missing", model.TenantStatusActive)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestService_UpdateTenant_RenameMirrorsLandlords(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockRepository)
	mockProp := new(MockPropagator)
	svc := NewService(mockRepo, testClusters, mockProp, nil, logger.Nop())

	current := existingTenant(model.TenantStatusActive)
	mockRepo.On("GetByID", ctx, "t1").Return(current, nil).Twice()
	mockRepo.On("Update", ctx, "t1", mock.Anything).Return(current, nil).Twice()
	mockProp.On("MirrorTenantName", ctx, mock.MatchedBy(func(t *model.Tenant) bool {
		return t.BusinessName == "Acme Holdings"
	})).Return(nil).Once()

	name := "  Acme Holdings "
	resp, err := svc.UpdateTenant(ctx, "t1", UpdateTenantRequest{BusinessName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Acme Holdings", resp.Tenant.BusinessName)

	contact := "John Roe"
	_, err = svc.UpdateTenant(ctx, "t1", UpdateTenantRequest{ContactName: &contact})
	require.NoError(t, err)

	mockProp.AssertNumberOfCalls(t, "MirrorTenantName", 1)
	mockProp.AssertExpectations(t)
}

func TestService_ListTenants(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockRepository)
	svc := NewService(mockRepo, testClusters, new(MockPropagator), nil, logger.Nop())

	filter := ListTenantsFilter{Status: model.TenantStatusActive, Limit: 10}
	mockRepo.On("List", ctx, filter).Return([]*model.Tenant{existingTenant(model.TenantStatusActive)}, 1, nil).Once()

	tenants, total, err := svc.ListTenants(ctx, filter)

	require.NoError(t, err)
	assert.Len(t, tenants, 1)
	assert.Equal(t, 1, total)
	mockRepo.AssertExpectations(t)
}

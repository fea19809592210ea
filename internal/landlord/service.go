package landlord

import (
	"context"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
)

// Service exposes read access to landlord rows. Rows are only written by
// the subscription lifecycle and the tenant cascade.
type Service interface {
	GetLandlord(ctx context.Context, id string) (*model.Landlord, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*model.Landlord, error)
}

type service struct {
	repo   Repository
	logger *logger.Logger
}

// NewService creates a new landlord service
func NewService(repo Repository, log *logger.Logger) Service {
	return &service{
		repo:   repo,
		logger: log,
	}
}

func (s *service) GetLandlord(ctx context.Context, id string) (*model.Landlord, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) ListByTenant(ctx context.Context, tenantID string) ([]*model.Landlord, error) {
	landlords, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		s.logger.WithTenantID(tenantID).Error("failed to list landlords", err)
		return nil, err
	}
	return landlords, nil
}

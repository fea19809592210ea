package subscription

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/internal/propagation"
	"github.com/victoralfred/kube_provisioner/internal/store"
	"github.com/victoralfred/kube_provisioner/internal/uniqueness"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
	"github.com/victoralfred/kube_provisioner/pkg/metrics"
)

// TenantReader resolves the tenant a subscription belongs to
type TenantReader interface {
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
}

// ClusterReader resolves the cluster a subscription is placed on
type ClusterReader interface {
	GetByID(ctx context.Context, id string) (*model.Cluster, error)
}

// LandlordReader reads landlord rows
type LandlordReader interface {
	Get(ctx context.Context, id string) (*model.Landlord, error)
}

// Service defines the interface for subscription business logic
type Service interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionResponse, error)
	UpdateSubscription(ctx context.Context, id string, req UpdateSubscriptionRequest) (*SubscriptionResponse, error)
	GetSubscription(ctx context.Context, id string) (*model.Subscription, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*model.Subscription, error)
	GetLandlord(ctx context.Context, subscriptionID string) (*model.Landlord, error)
}

// Dependencies are the collaborators of the subscription service
type Dependencies struct {
	Repository Repository
	Tenants    TenantReader
	Clusters   ClusterReader
	Landlords  LandlordReader
	Validator  *uniqueness.Validator
	Propagator *propagation.Propagator
	Recorder   metrics.Recorder
}

// service implements Service interface
type service struct {
	repo       Repository
	tenants    TenantReader
	clusters   ClusterReader
	landlords  LandlordReader
	validator  *uniqueness.Validator
	propagator *propagation.Propagator
	recorder   metrics.Recorder
	logger     *logger.Logger
}

// NewService creates a new subscription service
func NewService(deps Dependencies, log *logger.Logger) Service {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.NopRecorder
	}
	return &service{
		repo:       deps.Repository,
		tenants:    deps.Tenants,
		clusters:   deps.Clusters,
		landlords:  deps.Landlords,
		validator:  deps.Validator,
		propagator: deps.Propagator,
		recorder:   recorder,
		logger:     log,
	}
}

// CreateSubscription creates an Active subscription and derives its
// landlord row. When the landlord write fails the subscription stays
// committed and an internal error is returned. Repeating the request with
// the same client-supplied id, or updating the subscription, re-derives the
// row.
func (s *service) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (resp *SubscriptionResponse, err error) {
	defer func() { s.recorder.RecordOperation("create_subscription", metrics.ResultOf(err)) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	tenant, err := s.tenants.GetByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant.Status.Cascades() {
		return nil, ErrTenantNotProvisionable
	}
	if _, err := s.clusters.GetByID(ctx, req.ClusterID); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	} else {
		existing, err := s.repo.GetByID(ctx, id)
		switch {
		case err == nil:
			return s.resumeCreate(ctx, req, existing, tenant)
		case !errors.IsNotFound(err):
			return nil, err
		}
	}

	cand := req.Candidates()
	log := s.logger.WithTenantID(tenant.ID).WithEntity("subscription", id)

	reservation, err := s.validator.Reserve(ctx, cand, id)
	if err != nil {
		s.recordConflict(err)
		return nil, err
	}
	if err := s.validator.Check(ctx, cand, id); err != nil {
		s.release(ctx, reservation)
		s.recordConflict(err)
		return nil, err
	}

	now := time.Now().UTC()
	sub := &model.Subscription{
		ID:                 id,
		TenantID:           tenant.ID,
		ClusterID:          req.ClusterID,
		DomainName:         cand.DomainName,
		TenantURL:          cand.TenantURL,
		TenantAPIURL:       cand.TenantAPIURL,
		PackageID:          strings.TrimSpace(req.PackageID),
		SubscriptionTypeID: strings.TrimSpace(req.SubscriptionTypeID),
		NumberOfStores:     req.NumberOfStores,
		Status:             model.SubscriptionStatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		s.release(ctx, reservation)
		if stderrors.Is(err, store.ErrAlreadyExists) {
			if req.ID != "" {
				// a concurrent request with the same id won
				return nil, ErrSubscriptionIDTaken.WithErr(err)
			}
			return nil, errors.Internal("generated subscription id collided", err)
		}
		log.Error("failed to create subscription", err)
		return nil, err
	}

	landlord, err := s.propagator.DeriveLandlord(ctx, sub, tenant.BusinessName)
	if err != nil {
		log.Error("subscription created but landlord write failed", err)
		return nil, err
	}

	log.Info("subscription created")
	return &SubscriptionResponse{Subscription: sub, Landlord: landlord}, nil
}

// resumeCreate answers a create whose client-supplied id is already stored.
// An identical request derives the landlord row again and returns the
// stored subscription; any other request is a conflict.
func (s *service) resumeCreate(ctx context.Context, req CreateSubscriptionRequest, existing *model.Subscription, tenant *model.Tenant) (*SubscriptionResponse, error) {
	if !req.matches(existing, tenant.ID) {
		return nil, ErrSubscriptionIDTaken
	}

	landlord, err := s.propagator.DeriveLandlord(ctx, existing, tenant.BusinessName)
	if err != nil {
		s.logger.WithTenantID(tenant.ID).WithEntity("subscription", existing.ID).
			Error("landlord write failed on repeated create", err)
		return nil, err
	}
	return &SubscriptionResponse{Subscription: existing, Landlord: landlord}, nil
}

// UpdateSubscription applies the present fields and mirrors them onto the
// landlord row. Unique attributes are only checked when their value
// changes.
func (s *service) UpdateSubscription(ctx context.Context, id string, req UpdateSubscriptionRequest) (resp *SubscriptionResponse, err error) {
	defer func() { s.recorder.RecordOperation("update_subscription", metrics.ResultOf(err)) }()

	current, err := s.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	patch := req.Patch()
	if patch.Status != nil && *patch.Status != model.SubscriptionStatusSuspended && *patch.Status != model.SubscriptionStatusTerminated {
		tenant, err := s.tenants.GetByID(ctx, current.TenantID)
		if err != nil {
			return nil, err
		}
		if tenant.Status.Cascades() {
			return nil, ErrTenantNotProvisionable
		}
	}

	changed, previous := changedUniques(current, patch)
	log := s.logger.WithTenantID(current.TenantID).WithEntity("subscription", id)

	reservation, err := s.validator.Reserve(ctx, changed, id)
	if err != nil {
		s.recordConflict(err)
		return nil, err
	}
	if err := s.validator.Check(ctx, changed, id); err != nil {
		s.release(ctx, reservation)
		s.recordConflict(err)
		return nil, err
	}

	updated, err := s.repo.Update(ctx, id, func(sub *model.Subscription) error {
		patch.Apply(sub)
		sub.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		s.release(ctx, reservation)
		if !errors.IsNotFound(err) {
			log.Error("failed to update subscription", err)
		}
		return nil, err
	}

	if err := s.validator.Forget(ctx, previous, id); err != nil {
		log.Error("failed to drop reservations for replaced values", err)
	}

	landlord, err := s.propagator.MirrorSubscription(ctx, updated, patch)
	if err != nil {
		log.Error("subscription updated but landlord mirror failed", err)
		return nil, err
	}

	log.Info("subscription updated")
	return &SubscriptionResponse{Subscription: updated, Landlord: landlord}, nil
}

// GetSubscription retrieves a subscription by ID
func (s *service) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	if id == "" {
		return nil, ErrInvalidSubscriptionID
	}
	return s.repo.GetByID(ctx, id)
}

// ListByTenant lists the subscriptions of an existing tenant
func (s *service) ListByTenant(ctx context.Context, tenantID string) ([]*model.Subscription, error) {
	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}

	subs, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		s.logger.WithTenantID(tenantID).Error("failed to list subscriptions", err)
		return nil, err
	}
	return subs, nil
}

// GetLandlord returns the landlord row of a subscription
func (s *service) GetLandlord(ctx context.Context, subscriptionID string) (*model.Landlord, error) {
	if _, err := s.GetSubscription(ctx, subscriptionID); err != nil {
		return nil, err
	}
	return s.landlords.Get(ctx, subscriptionID)
}

func (s *service) recordConflict(err error) {
	if errors.IsConflict(err) {
		s.recorder.RecordConflict("subscription_unique")
	}
}

func (s *service) release(ctx context.Context, reservation *uniqueness.Reservation) {
	if err := reservation.Release(ctx); err != nil {
		s.logger.Error("failed to release reservation", err)
	}
}

// changedUniques returns the new values of the unique attributes the patch
// changes, and the values they replace
func changedUniques(current *model.Subscription, patch model.SubscriptionPatch) (uniqueness.Candidates, uniqueness.Candidates) {
	var changed, previous uniqueness.Candidates
	if patch.DomainName != nil && *patch.DomainName != uniqueness.Normalize(current.DomainName) {
		changed.DomainName = *patch.DomainName
		previous.DomainName = current.DomainName
	}
	if patch.TenantURL != nil && *patch.TenantURL != uniqueness.Normalize(current.TenantURL) {
		changed.TenantURL = *patch.TenantURL
		previous.TenantURL = current.TenantURL
	}
	if patch.TenantAPIURL != nil && *patch.TenantAPIURL != uniqueness.Normalize(current.TenantAPIURL) {
		changed.TenantAPIURL = *patch.TenantAPIURL
		previous.TenantAPIURL = current.TenantAPIURL
	}
	return changed, previous
}

package subscription

import (
	"strings"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/internal/store"
	"github.com/victoralfred/kube_provisioner/internal/uniqueness"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
)

// CreateSubscriptionRequest represents request to create a subscription. ID
// is optional; a client that supplies one can retry the same create safely.
type CreateSubscriptionRequest struct {
	ID                 string `json:"id,omitempty" validate:"omitempty,uuid"`
	TenantID           string `json:"tenant_id" binding:"required" validate:"required,max=255"`
	ClusterID          string `json:"cluster_id" binding:"required" validate:"required,max=255"`
	DomainName         string `json:"domain_name" binding:"required" validate:"required,max=255"`
	TenantURL          string `json:"tenant_url" binding:"required" validate:"required,max=255"`
	TenantAPIURL       string `json:"tenant_api_url" binding:"required" validate:"required,max=255"`
	PackageID          string `json:"package_id" binding:"required" validate:"required,max=255"`
	SubscriptionTypeID string `json:"subscription_type_id" binding:"required" validate:"required,max=255"`
	NumberOfStores     int    `json:"number_of_stores" binding:"min=0" validate:"min=0"`
}

// UpdateSubscriptionRequest represents a partial update; absent fields are
// left unchanged
type UpdateSubscriptionRequest struct {
	DomainName         *string                   `json:"domain_name,omitempty" validate:"omitnil,min=1,max=255"`
	TenantURL          *string                   `json:"tenant_url,omitempty" validate:"omitnil,min=1,max=255"`
	TenantAPIURL       *string                   `json:"tenant_api_url,omitempty" validate:"omitnil,min=1,max=255"`
	PackageID          *string                   `json:"package_id,omitempty" validate:"omitnil,min=1,max=255"`
	SubscriptionTypeID *string                   `json:"subscription_type_id,omitempty" validate:"omitnil,min=1,max=255"`
	NumberOfStores     *int                      `json:"number_of_stores,omitempty" validate:"omitnil,min=0"`
	Status             *model.SubscriptionStatus `json:"status,omitempty"`
}

// SubscriptionResponse pairs a subscription with its landlord row
type SubscriptionResponse struct {
	Subscription *model.Subscription `json:"subscription"`
	Landlord     *model.Landlord     `json:"landlord"`
}

// Validate validates create subscription request. Values are checked with
// surrounding space trimmed, so a blank value counts as missing.
func (r *CreateSubscriptionRequest) Validate() error {
	trimmedReq := CreateSubscriptionRequest{
		ID:                 strings.TrimSpace(r.ID),
		TenantID:           strings.TrimSpace(r.TenantID),
		ClusterID:          strings.TrimSpace(r.ClusterID),
		DomainName:         strings.TrimSpace(r.DomainName),
		TenantURL:          strings.TrimSpace(r.TenantURL),
		TenantAPIURL:       strings.TrimSpace(r.TenantAPIURL),
		PackageID:          strings.TrimSpace(r.PackageID),
		SubscriptionTypeID: strings.TrimSpace(r.SubscriptionTypeID),
		NumberOfStores:     r.NumberOfStores,
	}
	if err := store.Validator().Struct(&trimmedReq); err != nil {
		return errors.Validationf("invalid subscription request: %s", store.Describe(err))
	}
	return nil
}

// Candidates returns the normalized unique values of the request
func (r *CreateSubscriptionRequest) Candidates() uniqueness.Candidates {
	return uniqueness.Candidates{
		DomainName:   r.DomainName,
		TenantURL:    r.TenantURL,
		TenantAPIURL: r.TenantAPIURL,
	}.Normalized()
}

// matches reports whether sub holds exactly what this request would create
// for tenantID
func (r *CreateSubscriptionRequest) matches(sub *model.Subscription, tenantID string) bool {
	cand := r.Candidates()
	return sub.TenantID == tenantID &&
		sub.ClusterID == r.ClusterID &&
		sub.DomainName == cand.DomainName &&
		sub.TenantURL == cand.TenantURL &&
		sub.TenantAPIURL == cand.TenantAPIURL &&
		sub.PackageID == strings.TrimSpace(r.PackageID) &&
		sub.SubscriptionTypeID == strings.TrimSpace(r.SubscriptionTypeID) &&
		sub.NumberOfStores == r.NumberOfStores
}

// Validate validates update subscription request
func (r *UpdateSubscriptionRequest) Validate() error {
	if r.Patch().IsEmpty() {
		return ErrEmptyUpdate
	}

	trimmedReq := UpdateSubscriptionRequest{
		DomainName:         trimmed(r.DomainName),
		TenantURL:          trimmed(r.TenantURL),
		TenantAPIURL:       trimmed(r.TenantAPIURL),
		PackageID:          trimmed(r.PackageID),
		SubscriptionTypeID: trimmed(r.SubscriptionTypeID),
		NumberOfStores:     r.NumberOfStores,
	}
	if err := store.Validator().Struct(&trimmedReq); err != nil {
		return errors.Validationf("invalid subscription update: %s", store.Describe(err))
	}
	if r.Status != nil && !r.Status.IsValid() {
		return ErrInvalidSubscriptionStatus
	}
	return nil
}

// Patch converts the request into a subscription patch. Unique attributes
// are normalized, other strings trimmed.
func (r *UpdateSubscriptionRequest) Patch() model.SubscriptionPatch {
	return model.SubscriptionPatch{
		DomainName:         normalized(r.DomainName),
		TenantURL:          normalized(r.TenantURL),
		TenantAPIURL:       normalized(r.TenantAPIURL),
		PackageID:          trimmed(r.PackageID),
		SubscriptionTypeID: trimmed(r.SubscriptionTypeID),
		NumberOfStores:     r.NumberOfStores,
		Status:             r.Status,
	}
}

func normalized(s *string) *string {
	if s == nil {
		return nil
	}
	v := uniqueness.Normalize(*s)
	return &v
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

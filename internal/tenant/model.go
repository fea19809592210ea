package tenant

import (
	"regexp"
	"strings"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/internal/propagation"
	"github.com/victoralfred/kube_provisioner/internal/store"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// OnboardTenantRequest represents request to onboard a tenant
type OnboardTenantRequest struct {
	BusinessName   string               `json:"business_name" binding:"required,max=255"`
	ContactName    string               `json:"contact_name" binding:"required,max=255"`
	ContactEmail   string               `json:"contact_email" binding:"required,email"`
	Phone          string               `json:"phone,omitempty" binding:"omitempty,max=32"`
	DeploymentType model.DeploymentType `json:"deployment_type" binding:"required"`
	Region         string               `json:"region" binding:"required,max=64"`
	TenantURL      string               `json:"tenant_url" binding:"required"`
	ClusterID      string               `json:"cluster_id" binding:"required"`
}

// UpdateTenantRequest represents request to update a tenant
type UpdateTenantRequest struct {
	BusinessName *string             `json:"business_name,omitempty" binding:"omitempty,max=255"`
	ContactName  *string             `json:"contact_name,omitempty" binding:"omitempty,max=255"`
	ContactEmail *string             `json:"contact_email,omitempty" binding:"omitempty,email"`
	Phone        *string             `json:"phone,omitempty" binding:"omitempty,max=32"`
	Status       *model.TenantStatus `json:"status,omitempty"`
}

// UpdateTenantStatusRequest represents a status-only update
type UpdateTenantStatusRequest struct {
	Status model.TenantStatus `json:"status" binding:"required"`
}

// TenantResponse carries the tenant after an update and, when its status
// cascaded, a summary of the subscriptions that were suspended
type TenantResponse struct {
	Tenant  *model.Tenant              `json:"tenant"`
	Cascade *propagation.CascadeResult `json:"cascade,omitempty"`
}

// ListTenantsFilter represents filters for listing tenants
type ListTenantsFilter struct {
	Status         model.TenantStatus
	DeploymentType model.DeploymentType
	ClusterID      string
	Search         string
	Limit          int
	Offset         int
}

// Validate validates and normalizes the onboard request
func (r *OnboardTenantRequest) Validate() error {
	r.BusinessName = strings.TrimSpace(r.BusinessName)
	r.ContactName = strings.TrimSpace(r.ContactName)
	r.ContactEmail = strings.TrimSpace(r.ContactEmail)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Region = strings.TrimSpace(r.Region)
	r.TenantURL = strings.ToLower(strings.TrimSpace(r.TenantURL))

	if r.BusinessName == "" {
		return errors.Validation("business_name is required")
	}
	if r.ContactName == "" {
		return errors.Validation("contact_name is required")
	}
	if !validEmail(r.ContactEmail) {
		return ErrInvalidContactEmail
	}
	if r.DeploymentType != model.DeploymentShared && r.DeploymentType != model.DeploymentDedicated {
		return ErrInvalidDeploymentType
	}
	if r.Region == "" {
		return errors.Validation("region is required")
	}
	if !slugPattern.MatchString(r.TenantURL) {
		return ErrInvalidTenantURL
	}
	if strings.TrimSpace(r.ClusterID) == "" {
		return errors.Validation("cluster_id is required")
	}
	return nil
}

// Validate validates the update request
func (r *UpdateTenantRequest) Validate() error {
	if r.BusinessName == nil && r.ContactName == nil && r.ContactEmail == nil && r.Phone == nil && r.Status == nil {
		return ErrEmptyUpdate
	}
	if r.BusinessName != nil && strings.TrimSpace(*r.BusinessName) == "" {
		return errors.Validation("business_name cannot be empty")
	}
	if r.ContactName != nil && strings.TrimSpace(*r.ContactName) == "" {
		return errors.Validation("contact_name cannot be empty")
	}
	if r.ContactEmail != nil && !validEmail(strings.TrimSpace(*r.ContactEmail)) {
		return ErrInvalidContactEmail
	}
	if r.Status != nil && !r.Status.IsValid() {
		return ErrInvalidTenantStatus
	}
	return nil
}

// Apply copies the present fields onto t
func (r *UpdateTenantRequest) Apply(t *model.Tenant) {
	if r.BusinessName != nil {
		t.BusinessName = strings.TrimSpace(*r.BusinessName)
	}
	if r.ContactName != nil {
		t.ContactName = strings.TrimSpace(*r.ContactName)
	}
	if r.ContactEmail != nil {
		t.ContactEmail = strings.TrimSpace(*r.ContactEmail)
	}
	if r.Phone != nil {
		t.Phone = strings.TrimSpace(*r.Phone)
	}
	if r.Status != nil {
		t.Status = *r.Status
	}
}

// Matches reports whether t passes the filter, ignoring pagination
func (f ListTenantsFilter) Matches(t *model.Tenant) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.DeploymentType != "" && t.DeploymentType != f.DeploymentType {
		return false
	}
	if f.ClusterID != "" && t.ClusterID != f.ClusterID {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.BusinessName), q) && !strings.Contains(t.TenantURL, q) {
			return false
		}
	}
	return true
}

func validEmail(email string) bool {
	return store.Validator().Var(email, "required,email") == nil
}

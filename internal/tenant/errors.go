package tenant

import "github.com/victoralfred/kube_provisioner/pkg/errors"

var (
	// ErrTenantNotFound is returned when tenant is not found
	ErrTenantNotFound = errors.NotFound("Tenant")

	// ErrInvalidTenantID is returned when tenant ID is empty
	ErrInvalidTenantID = errors.Validation("invalid tenant ID")

	// ErrInvalidTenantURL is returned when tenant url is not a lowercase slug
	ErrInvalidTenantURL = errors.Validation("tenant_url must be a lowercase slug of letters, digits and hyphens")

	// ErrInvalidContactEmail is returned when contact email is invalid
	ErrInvalidContactEmail = errors.Validation("invalid contact email")

	// ErrInvalidTenantStatus is returned for an unknown tenant status
	ErrInvalidTenantStatus = errors.Validation("invalid tenant status")

	// ErrInvalidDeploymentType is returned for an unknown deployment type
	ErrInvalidDeploymentType = errors.Validation("deployment_type must be Shared or Dedicated")

	// ErrTenantTerminated is returned when a Terminated tenant is moved to another status
	ErrTenantTerminated = errors.Validation("tenant is terminated")

	// ErrDedicatedClusterRequired is returned when a Dedicated tenant is placed on a shared cluster
	ErrDedicatedClusterRequired = errors.Validation("dedicated tenants require a dedicated cluster")

	// ErrEmptyUpdate is returned when an update carries no fields
	ErrEmptyUpdate = errors.Validation("update contains no fields")
)

package subscription

import "github.com/victoralfred/kube_provisioner/pkg/errors"

var (
	// ErrSubscriptionNotFound is returned when subscription is not found
	ErrSubscriptionNotFound = errors.NotFound("Subscription")

	// ErrInvalidSubscriptionID is returned when subscription ID is empty
	ErrInvalidSubscriptionID = errors.Validation("invalid subscription ID")

	// ErrTenantNotProvisionable is returned when the tenant is Suspended or Terminated
	ErrTenantNotProvisionable = errors.Validation("tenant is suspended or terminated")

	// ErrEmptyUpdate is returned when an update carries no fields
	ErrEmptyUpdate = errors.Validation("update contains no fields")

	// ErrSubscriptionIDTaken is returned when a client-supplied id belongs to a
	// subscription created from a different request
	ErrSubscriptionIDTaken = errors.Conflict("subscription id is already in use")

	// ErrInvalidSubscriptionStatus is returned for an unknown subscription status
	ErrInvalidSubscriptionStatus = errors.Validation("invalid subscription status")
)

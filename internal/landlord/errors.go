package landlord

import "github.com/victoralfred/kube_provisioner/pkg/errors"

var (
	// ErrLandlordNotFound is returned when no projection row exists for a subscription
	ErrLandlordNotFound = errors.NotFound("Landlord")
)

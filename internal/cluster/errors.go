package cluster

import "github.com/victoralfred/kube_provisioner/pkg/errors"

var (
	// ErrClusterNotFound is returned when cluster is not found
	ErrClusterNotFound = errors.NotFound("Cluster")

	// ErrClusterNameTaken is returned when another cluster already uses the name
	ErrClusterNameTaken = errors.Conflict("cluster name already exists")

	// ErrClusterNotInactive is returned when deleting a cluster that is not In-Active
	ErrClusterNotInactive = errors.Validation("cluster can only be deleted while In-Active")

	// ErrInvalidClusterID is returned when cluster ID is empty
	ErrInvalidClusterID = errors.Validation("invalid cluster ID")

	// ErrInvalidClusterStatus is returned for an unknown cluster status
	ErrInvalidClusterStatus = errors.Validation("invalid cluster status")
)

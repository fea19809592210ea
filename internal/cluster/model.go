package cluster

import (
	"strings"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
)

// RegisterClusterRequest represents request to register a cluster
type RegisterClusterRequest struct {
	Name        string            `json:"name" binding:"required,min=3,max=128"`
	Type        model.ClusterType `json:"type" binding:"required"`
	Environment string            `json:"environment" binding:"required"`
	Region      string            `json:"region" binding:"required"`
	CIDR        string            `json:"cidr" binding:"required"`
	AccountID   string            `json:"account_id" binding:"required"`
	VPCID       string            `json:"vpc_id,omitempty"`
	StackName   string            `json:"stack_name,omitempty"`
}

// UpdateClusterStatusRequest represents a deployment status update
type UpdateClusterStatusRequest struct {
	Status model.ClusterStatus `json:"status" binding:"required"`
}

// ListClustersFilter represents filters for listing clusters
type ListClustersFilter struct {
	Status model.ClusterStatus
	Type   model.ClusterType
	Region string
}

// Validate checks the shape of the request. CIDR policy is checked separately.
func (r *RegisterClusterRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if len(r.Name) < 3 || len(r.Name) > 128 {
		return errors.Validation("cluster name must be 3 to 128 characters")
	}
	if r.Type != model.ClusterTypeDedicated && r.Type != model.ClusterTypeShared {
		return errors.Validationf("cluster type must be %q or %q", model.ClusterTypeDedicated, model.ClusterTypeShared)
	}
	if strings.TrimSpace(r.Environment) == "" {
		return errors.Validation("environment is required")
	}
	if strings.TrimSpace(r.Region) == "" {
		return errors.Validation("region is required")
	}
	if strings.TrimSpace(r.CIDR) == "" {
		return errors.Validation("cidr is required")
	}
	if strings.TrimSpace(r.AccountID) == "" {
		return errors.Validation("account_id is required")
	}
	return nil
}

// Matches reports whether c passes the filter
func (f ListClustersFilter) Matches(c *model.Cluster) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if f.Region != "" && c.Region != f.Region {
		return false
	}
	return true
}

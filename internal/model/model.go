// Package model holds the persisted record shapes shared by the provisioning
// modules. Each record carries its schema contract as validator tags; the
// entity store checks them on every write and every read.
package model

import "time"

// Collection names in the key-value store
const (
	CollectionTenants       = "tenants"
	CollectionClusters      = "clusters"
	CollectionSubscriptions = "subscriptions"
	CollectionLandlords     = "landlords"
	CollectionReservations  = "subscription_reservations"
)

// TenantStatus represents the lifecycle status of a tenant
type TenantStatus string

const (
	TenantStatusPending    TenantStatus = "Pending"
	TenantStatusActive     TenantStatus = "Active"
	TenantStatusSuspended  TenantStatus = "Suspended"
	TenantStatusTerminated TenantStatus = "Terminated"
)

// IsValid reports whether s is a known tenant status
func (s TenantStatus) IsValid() bool {
	switch s {
	case TenantStatusPending, TenantStatusActive, TenantStatusSuspended, TenantStatusTerminated:
		return true
	}
	return false
}

// Cascades reports whether moving a tenant to s forces its subscriptions
// into Suspended.
func (s TenantStatus) Cascades() bool {
	return s == TenantStatusSuspended || s == TenantStatusTerminated
}

// DeploymentType selects shared or dedicated infrastructure for a tenant
type DeploymentType string

const (
	DeploymentShared    DeploymentType = "Shared"
	DeploymentDedicated DeploymentType = "Dedicated"
)

// Tenant is a customer organization
type Tenant struct {
	ID             string         `json:"id" msgpack:"id" validate:"required"`
	BusinessName   string         `json:"business_name" msgpack:"business_name" validate:"required,max=255"`
	ContactName    string         `json:"contact_name" msgpack:"contact_name" validate:"required,max=255"`
	ContactEmail   string         `json:"contact_email" msgpack:"contact_email" validate:"required,email"`
	Phone          string         `json:"phone,omitempty" msgpack:"phone" validate:"omitempty,max=32"`
	Status         TenantStatus   `json:"status" msgpack:"status" validate:"required,oneof=Pending Active Suspended Terminated"`
	DeploymentType DeploymentType `json:"deployment_type" msgpack:"deployment_type" validate:"required,oneof=Shared Dedicated"`
	Region         string         `json:"region" msgpack:"region" validate:"required,max=64"`
	TenantURL      string         `json:"tenant_url" msgpack:"tenant_url" validate:"required,max=255"`
	ClusterID      string         `json:"cluster_id" msgpack:"cluster_id" validate:"required"`
	ClusterName    string         `json:"cluster_name" msgpack:"cluster_name" validate:"required"`
	CreatedAt      time.Time      `json:"created_at" msgpack:"created_at" validate:"required"`
	UpdatedAt      time.Time      `json:"updated_at" msgpack:"updated_at" validate:"required"`
}

// ClusterType is the tenancy model of a cluster
type ClusterType string

const (
	ClusterTypeDedicated ClusterType = "dedicated"
	ClusterTypeShared    ClusterType = "shared"
)

// ClusterStatus represents the deployment status of a cluster
type ClusterStatus string

const (
	ClusterStatusInactive  ClusterStatus = "In-Active"
	ClusterStatusDeploying ClusterStatus = "Deploying"
	ClusterStatusActive    ClusterStatus = "Active"
	ClusterStatusFailed    ClusterStatus = "Failed"
)

// IsValid reports whether s is a known cluster status
func (s ClusterStatus) IsValid() bool {
	switch s {
	case ClusterStatusInactive, ClusterStatusDeploying, ClusterStatusActive, ClusterStatusFailed:
		return true
	}
	return false
}

// InfraRefs points at the infrastructure a cluster is deployed into
type InfraRefs struct {
	AccountID string `json:"account_id" msgpack:"account_id" validate:"required,max=64"`
	VPCID     string `json:"vpc_id,omitempty" msgpack:"vpc_id" validate:"omitempty,max=64"`
	StackName string `json:"stack_name,omitempty" msgpack:"stack_name" validate:"omitempty,max=128"`
}

// Cluster is an infrastructure unit that hosts tenants
type Cluster struct {
	ID          string        `json:"id" msgpack:"id" validate:"required"`
	Name        string        `json:"name" msgpack:"name" validate:"required,max=128"`
	Type        ClusterType   `json:"type" msgpack:"type" validate:"required,oneof=dedicated shared"`
	Environment string        `json:"environment" msgpack:"environment" validate:"required,max=64"`
	Region      string        `json:"region" msgpack:"region" validate:"required,max=64"`
	CIDR        string        `json:"cidr" msgpack:"cidr" validate:"required,cidrv4"`
	Status      ClusterStatus `json:"status" msgpack:"status" validate:"required,oneof=In-Active Deploying Active Failed"`
	Infra       InfraRefs     `json:"infra" msgpack:"infra"`
	CreatedAt   time.Time     `json:"created_at" msgpack:"created_at" validate:"required"`
	UpdatedAt   time.Time     `json:"updated_at" msgpack:"updated_at" validate:"required"`
}

// SubscriptionStatus represents the lifecycle status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusPending    SubscriptionStatus = "Pending"
	SubscriptionStatusDeploying  SubscriptionStatus = "Deploying"
	SubscriptionStatusActive     SubscriptionStatus = "Active"
	SubscriptionStatusFailed     SubscriptionStatus = "Failed"
	SubscriptionStatusSuspended  SubscriptionStatus = "Suspended"
	SubscriptionStatusTerminated SubscriptionStatus = "Terminated"
)

// IsValid reports whether s is a known subscription status
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionStatusPending, SubscriptionStatusDeploying, SubscriptionStatusActive,
		SubscriptionStatusFailed, SubscriptionStatusSuspended, SubscriptionStatusTerminated:
		return true
	}
	return false
}

// Subscription is a tenant's purchased deployment of the platform
type Subscription struct {
	ID                 string             `json:"id" msgpack:"id" validate:"required"`
	TenantID           string             `json:"tenant_id" msgpack:"tenant_id" validate:"required"`
	ClusterID          string             `json:"cluster_id" msgpack:"cluster_id" validate:"required"`
	DomainName         string             `json:"domain_name" msgpack:"domain_name" validate:"required,max=255"`
	TenantURL          string             `json:"tenant_url" msgpack:"tenant_url" validate:"required,max=255"`
	TenantAPIURL       string             `json:"tenant_api_url" msgpack:"tenant_api_url" validate:"required,max=255"`
	PackageID          string             `json:"package_id" msgpack:"package_id" validate:"required"`
	SubscriptionTypeID string             `json:"subscription_type_id" msgpack:"subscription_type_id" validate:"required"`
	NumberOfStores     int                `json:"number_of_stores" msgpack:"number_of_stores" validate:"gte=0"`
	Status             SubscriptionStatus `json:"status" msgpack:"status" validate:"required,oneof=Pending Deploying Active Failed Suspended Terminated"`
	CreatedAt          time.Time          `json:"created_at" msgpack:"created_at" validate:"required"`
	UpdatedAt          time.Time          `json:"updated_at" msgpack:"updated_at" validate:"required"`
}

// LandlordStatus is the two-valued projection of a subscription status
type LandlordStatus string

const (
	LandlordStatusActive    LandlordStatus = "Active"
	LandlordStatusSuspended LandlordStatus = "Suspended"
)

// Project maps a subscription status onto the landlord status
func Project(s SubscriptionStatus) LandlordStatus {
	if s == SubscriptionStatusActive {
		return LandlordStatusActive
	}
	return LandlordStatusSuspended
}

// Landlord is the denormalized copy of a subscription consumed by the
// downstream platform. Its id is the subscription id.
type Landlord struct {
	ID        string         `json:"id" msgpack:"id" validate:"required"`
	TenantID  string         `json:"tenant_id" msgpack:"tenant_id" validate:"required"`
	Name      string         `json:"name" msgpack:"name" validate:"required"`
	PackageID string         `json:"package_id" msgpack:"package_id" validate:"required"`
	Domain    string         `json:"domain" msgpack:"domain" validate:"required"`
	APIURL    string         `json:"api_url" msgpack:"api_url" validate:"required"`
	URL       string         `json:"url" msgpack:"url" validate:"required"`
	Outlets   int            `json:"outlets" msgpack:"outlets" validate:"gte=0"`
	Status    LandlordStatus `json:"status" msgpack:"status" validate:"required,oneof=Active Suspended"`
	CreatedAt time.Time      `json:"created_at" msgpack:"created_at" validate:"required"`
	UpdatedAt time.Time      `json:"updated_at" msgpack:"updated_at" validate:"required"`
}

// DeriveLandlord builds the full landlord row for a subscription. createdAt
// is kept from an existing row when one is being rebuilt.
func DeriveLandlord(sub *Subscription, businessName string, createdAt, now time.Time) *Landlord {
	if createdAt.IsZero() {
		createdAt = now
	}
	return &Landlord{
		ID:        sub.ID,
		TenantID:  sub.TenantID,
		Name:      businessName,
		PackageID: sub.PackageID,
		Domain:    sub.TenantURL,
		APIURL:    sub.TenantAPIURL,
		URL:       sub.DomainName,
		Outlets:   sub.NumberOfStores,
		Status:    Project(sub.Status),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
}

// Package usage turns raw billing rows of the source clouds into normalized
// per-flavor usage records.
package usage

import (
	"slices"
	"time"

	"flavorwise/internal/core"
)

// Catalog resource types of compute resources.
const (
	CatalogInstance    = "Instance"
	CatalogRDSInstance = "RDS Instance"
)

// Scope restricts a billing query to one account, a time window and a set of
// resources. Rows match when their resource id is in ResourceIDs or their
// resource hash is in ResourceHashes. With both lists empty every row of the
// account matches.
type Scope struct {
	CloudAccountID string
	Since          time.Time
	ResourceIDs    []string
	ResourceHashes []string
}

func (s Scope) contains(resourceID, hash string) bool {
	if len(s.ResourceIDs) == 0 && len(s.ResourceHashes) == 0 {
		return true
	}
	if resourceID != "" && slices.Contains(s.ResourceIDs, resourceID) {
		return true
	}
	return hash != "" && slices.Contains(s.ResourceHashes, hash)
}

func (s Scope) matches(accountID string, start time.Time, resourceID, hash string) bool {
	if accountID != s.CloudAccountID {
		return false
	}
	if !s.Since.IsZero() && start.Before(s.Since) {
		return false
	}
	return s.contains(resourceID, hash)
}

// Resource is a compute resource known to the resource catalog.
type Resource struct {
	ID                string    `bson:"_id" json:"id"`
	CloudAccountID    string    `bson:"cloud_account_id" json:"cloud_account_id"`
	CloudResourceID   string    `bson:"cloud_resource_id" json:"cloud_resource_id"`
	CloudResourceHash string    `bson:"cloud_resource_hash,omitempty" json:"cloud_resource_hash,omitempty"`
	ResourceType      string    `bson:"resource_type" json:"resource_type"`
	Region            string    `bson:"region" json:"region"`
	Flavor            string    `bson:"flavor" json:"flavor"`
	LastSeen          time.Time `bson:"last_seen" json:"last_seen"`
}

// Kind maps the catalog resource type to the resolver's resource type.
func (r Resource) Kind() core.ResourceType {
	if r.ResourceType == CatalogRDSInstance {
		return core.ResourceRDSInstance
	}
	return core.ResourceInstance
}

// AWSBoxUsageRow is one on-demand compute line item of an AWS cost report.
type AWSBoxUsageRow struct {
	CloudAccountID string    `bson:"cloud_account_id"`
	ResourceID     string    `bson:"resource_id"`
	StartDate      time.Time `bson:"start_date"`
	ProductFamily  string    `bson:"product/productFamily"`
	Region         string    `bson:"product/region"`
	InstanceType   string    `bson:"product/instanceType"`
	UsageAmount    float64   `bson:"lineItem/UsageAmount"`
}

// AzureUsageRow is one metered usage row of an Azure consumption export. It
// carries no flavor; the flavor comes from the resource catalog.
type AzureUsageRow struct {
	CloudAccountID string    `bson:"cloud_account_id"`
	ResourceID     string    `bson:"resource_id"`
	StartDate      time.Time `bson:"start_date"`
	UsageQuantity  float64   `bson:"usage_quantity"`
}

// AlibabaUsageRow is one instance row of an Alibaba bill.
type AlibabaUsageRow struct {
	CloudAccountID string    `bson:"cloud_account_id"`
	ResourceID     string    `bson:"resource_id"`
	StartDate      time.Time `bson:"start_date"`
	Region         string    `bson:"Region"`
	InstanceSpec   string    `bson:"InstanceSpec"`
	Usage          float64   `bson:"Usage"`
}

// GCPUsageRow is one core-time row of a GCP billing export. Usage is reported
// per core.
type GCPUsageRow struct {
	CloudAccountID string    `bson:"cloud_account_id"`
	ResourceHash   string    `bson:"resource_hash"`
	StartDate      time.Time `bson:"start_date"`
	SKUDescription string    `bson:"sku_description"`
	Region         string    `bson:"region"`
	SystemTags     struct {
		MachineSpec string `bson:"machine_spec"`
	} `bson:"system_tags"`
	UsageAmount float64 `bson:"usage_amount_in_pricing_units"`
}

package core

import (
	"fmt"
	"strings"
	"time"
)

// CloudType identifies a supported cloud provider. The set is closed.
type CloudType string

const (
	CloudAWS     CloudType = "aws_cnr"
	CloudAzure   CloudType = "azure_cnr"
	CloudAlibaba CloudType = "alibaba_cnr"
	CloudNebius  CloudType = "nebius"
	CloudGCP     CloudType = "gcp_cnr"
)

// CloudTypes lists every supported cloud in a stable order.
var CloudTypes = []CloudType{CloudAWS, CloudAzure, CloudAlibaba, CloudNebius, CloudGCP}

// ParseCloudType validates s against the closed set of cloud types.
func ParseCloudType(s string) (CloudType, error) {
	ct := CloudType(strings.TrimSpace(s))
	for _, known := range CloudTypes {
		if ct == known {
			return ct, nil
		}
	}
	return "", NewInvalidArgumentError(fmt.Sprintf("unsupported cloud type %q", s), nil)
}

// ResourceType is the kind of compute resource being priced.
type ResourceType string

const (
	ResourceInstance    ResourceType = "instance"
	ResourceRDSInstance ResourceType = "rds_instance"
)

// Mode selects how the resolver answers a flavor request.
type Mode string

const (
	// ModeCurrent prices the exact flavor named in the request.
	ModeCurrent Mode = "current"
	// ModeSearchRelevant searches flavors of the same family as the source flavor.
	ModeSearchRelevant Mode = "search_relevant"
	// ModeSearchNoRelevant searches flavors of any family.
	ModeSearchNoRelevant Mode = "search_no_relevant"
)

// FlavorRecord is a priced flavor. RAM is always MiB, Price is per hour.
type FlavorRecord struct {
	Provider CloudType `json:"provider" bson:"provider"`
	Region   string    `json:"region" bson:"region"`
	FlavorID string    `json:"flavor" bson:"flavor"`
	Family   string    `json:"family,omitempty" bson:"family,omitempty"`
	CPU      int       `json:"cpu" bson:"cpu"`
	RAM      int64     `json:"ram" bson:"ram"`
	Price    float64   `json:"price" bson:"price"`
	Currency string    `json:"currency" bson:"currency"`
}

// RAMGiB returns the record's RAM in GiB.
func (f FlavorRecord) RAMGiB() float64 {
	return float64(f.RAM) / 1024
}

// FamilySpecs carries the source flavor and the search bounds of a request.
// RAM bounds are MiB.
type FamilySpecs struct {
	SourceFlavorID string `json:"source_flavor_id" yaml:"source_flavor_id"`
	CPUMin         int    `json:"cpu_min" yaml:"cpu_min" validate:"gte=0"`
	CPUMax         int    `json:"cpu_max" yaml:"cpu_max" validate:"gte=0"`
	RAMMin         int64  `json:"ram_min" yaml:"ram_min" validate:"gte=0"`
	RAMMax         int64  `json:"ram_max" yaml:"ram_max" validate:"gte=0"`
}

// FindRequest is the inbound flavor lookup.
type FindRequest struct {
	CloudType    CloudType    `json:"cloud_type" validate:"required"`
	ResourceType ResourceType `json:"resource_type" validate:"required,oneof=instance rds_instance"`
	Region       string       `json:"region"`
	FamilySpecs  FamilySpecs  `json:"family_specs"`
	Mode         Mode         `json:"mode" validate:"required,oneof=current search_relevant search_no_relevant"`
	OSType       string       `json:"os_type,omitempty"`
	Preinstalled string       `json:"preinstalled,omitempty"`
	MeterID      string       `json:"meter_id,omitempty"`
	Currency     string       `json:"currency,omitempty" validate:"omitempty,len=3"`
	CPU          int          `json:"cpu,omitempty" validate:"gte=0"`
}

// UsageRecord is the normalized usage of one flavor in one region of a cloud account.
type UsageRecord struct {
	CloudAccountID string       `json:"cloud_account_id"`
	ResourceType   ResourceType `json:"resource_type"`
	Region         string       `json:"region"`
	FlavorID       string       `json:"flavor"`
	Usage          float64      `json:"usage"`
}

// CloudAccount identifies an account whose billing data is analyzed.
type CloudAccount struct {
	ID   string    `json:"id" validate:"required"`
	Type CloudType `json:"type" validate:"required"`
	Name string    `json:"name,omitempty"`
}

// MigrationRecommendation is one source flavor that would be cheaper on Nebius.
type MigrationRecommendation struct {
	ID             string    `json:"id"`
	CloudAccountID string    `json:"cloud_account_id"`
	CloudType      CloudType `json:"cloud_type"`
	Region         string    `json:"region"`
	SourceFlavor   string    `json:"flavor"`
	CPU            int       `json:"cpu"`
	RAM            int64     `json:"ram"`
	MonthlyUsage   float64   `json:"usage"`
	CurrentCost    float64   `json:"current_cost"`
	TargetFlavor   string    `json:"recommended_flavor"`
	TargetCost     float64   `json:"recommended_flavor_cost"`
	Saving         float64   `json:"saving"`
	Currency       string    `json:"currency"`
	CreatedAt      time.Time `json:"created_at"`
}

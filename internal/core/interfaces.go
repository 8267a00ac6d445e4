package core

import "context"

// PriceQuery identifies a single flavor to price.
type PriceQuery struct {
	ResourceType ResourceType
	Region       string
	FlavorID     string
	OSType       string
	Preinstalled string
	MeterID      string
	Currency     string
}

// CandidateQuery bounds a flavor search. RAM bounds are MiB; zero max means unbounded.
type CandidateQuery struct {
	ResourceType ResourceType
	Region       string
	CPUMin       int
	CPUMax       int
	RAMMin       int64
	RAMMax       int64
	OSType       string
	Currency     string
}

// Matches reports whether f satisfies the CPU and RAM bounds of q.
func (q CandidateQuery) Matches(f FlavorRecord) bool {
	if q.CPUMin > 0 && f.CPU < q.CPUMin {
		return false
	}
	if q.CPUMax > 0 && f.CPU > q.CPUMax {
		return false
	}
	if q.RAMMin > 0 && f.RAM < q.RAMMin {
		return false
	}
	if q.RAMMax > 0 && f.RAM > q.RAMMax {
		return false
	}
	return true
}

// Adapter hides one cloud provider's pricing and flavor catalog behind a common contract.
// Implementations must be safe for concurrent use and must return RAM in MiB.
type Adapter interface {
	// Cloud returns the provider this adapter serves.
	Cloud() CloudType

	// Family returns the flavor family of flavorID, used for relevant-family searches.
	Family(flavorID string) string

	// ResolveFlavorPrice returns the flavor's CPU, RAM and hourly price.
	ResolveFlavorPrice(ctx context.Context, q PriceQuery) (*FlavorRecord, error)

	// ListCandidateFlavors returns priced flavors satisfying the query bounds.
	ListCandidateFlavors(ctx context.Context, q CandidateQuery) ([]FlavorRecord, error)
}

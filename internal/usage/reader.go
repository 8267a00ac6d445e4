package usage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// BillingReader provides read access to raw billing rows of the source clouds.
type BillingReader interface {
	// AWSBoxUsage returns on-demand compute line items within scope.
	AWSBoxUsage(ctx context.Context, scope Scope) ([]AWSBoxUsageRow, error)

	// AzureUsage returns metered usage rows within scope.
	AzureUsage(ctx context.Context, scope Scope) ([]AzureUsageRow, error)

	// AlibabaUsage returns instance rows within scope.
	AlibabaUsage(ctx context.Context, scope Scope) ([]AlibabaUsageRow, error)

	// GCPUsage returns core-time rows within scope.
	GCPUsage(ctx context.Context, scope Scope) ([]GCPUsageRow, error)
}

// ResourceCatalog lists compute resources seen in a cloud account.
type ResourceCatalog interface {
	// ActiveComputeResources returns the instances and database instances of
	// an account last seen at or after since.
	ActiveComputeResources(ctx context.Context, accountID string, since time.Time) ([]Resource, error)
}

// awsComputeFamilies are the product families of AWS box usage.
var awsComputeFamilies = []string{"Compute Instance", "Database Instance"}

func isGCPCoreSKU(description string) bool {
	return strings.Contains(description, "Core running in")
}

// MemoryBilling is an in-memory BillingReader, used for tests and the
// memory billing type.
type MemoryBilling struct {
	mu      sync.RWMutex
	aws     []AWSBoxUsageRow
	azure   []AzureUsageRow
	alibaba []AlibabaUsageRow
	gcp     []GCPUsageRow
}

// NewMemoryBilling creates an empty in-memory billing store.
func NewMemoryBilling() *MemoryBilling {
	return &MemoryBilling{}
}

// AddAWS appends AWS rows.
func (m *MemoryBilling) AddAWS(rows ...AWSBoxUsageRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aws = append(m.aws, rows...)
}

// AddAzure appends Azure rows.
func (m *MemoryBilling) AddAzure(rows ...AzureUsageRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.azure = append(m.azure, rows...)
}

// AddAlibaba appends Alibaba rows.
func (m *MemoryBilling) AddAlibaba(rows ...AlibabaUsageRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alibaba = append(m.alibaba, rows...)
}

// AddGCP appends GCP rows.
func (m *MemoryBilling) AddGCP(rows ...GCPUsageRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gcp = append(m.gcp, rows...)
}

func (m *MemoryBilling) AWSBoxUsage(_ context.Context, scope Scope) ([]AWSBoxUsageRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AWSBoxUsageRow
	for _, r := range m.aws {
		if slices.Contains(awsComputeFamilies, r.ProductFamily) && scope.matches(r.CloudAccountID, r.StartDate, r.ResourceID, "") {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryBilling) AzureUsage(_ context.Context, scope Scope) ([]AzureUsageRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AzureUsageRow
	for _, r := range m.azure {
		if scope.matches(r.CloudAccountID, r.StartDate, r.ResourceID, "") {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryBilling) AlibabaUsage(_ context.Context, scope Scope) ([]AlibabaUsageRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AlibabaUsageRow
	for _, r := range m.alibaba {
		if scope.matches(r.CloudAccountID, r.StartDate, r.ResourceID, "") {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryBilling) GCPUsage(_ context.Context, scope Scope) ([]GCPUsageRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []GCPUsageRow
	for _, r := range m.gcp {
		if isGCPCoreSKU(r.SKUDescription) && scope.matches(r.CloudAccountID, r.StartDate, "", r.ResourceHash) {
			out = append(out, r)
		}
	}
	return out, nil
}

// MemoryCatalog is an in-memory ResourceCatalog.
type MemoryCatalog struct {
	mu        sync.RWMutex
	resources []Resource
}

// NewMemoryCatalog creates a catalog holding resources.
func NewMemoryCatalog(resources ...Resource) *MemoryCatalog {
	return &MemoryCatalog{resources: resources}
}

// Add appends resources.
func (m *MemoryCatalog) Add(resources ...Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources = append(m.resources, resources...)
}

func (m *MemoryCatalog) ActiveComputeResources(_ context.Context, accountID string, since time.Time) ([]Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Resource
	for _, r := range m.resources {
		if r.CloudAccountID != accountID || r.LastSeen.Before(since) {
			continue
		}
		if r.ResourceType != CatalogInstance && r.ResourceType != CatalogRDSInstance {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

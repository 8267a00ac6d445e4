package usage

import (
	"context"
	"fmt"
	"time"

	"flavorwise/internal/core"
)

// Normalizer reads the billing rows of an account's active compute resources
// and groups them into usage records.
type Normalizer struct {
	billing BillingReader
	catalog ResourceCatalog
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(billing BillingReader, catalog ResourceCatalog) *Normalizer {
	return &Normalizer{billing: billing, catalog: catalog}
}

// Usage returns the usage of account's compute resources seen since the given
// time, sorted by region and flavor. An account without active resources
// yields no records.
func (n *Normalizer) Usage(ctx context.Context, account core.CloudAccount, since time.Time) ([]core.UsageRecord, error) {
	resources, err := n.catalog.ActiveComputeResources(ctx, account.ID, since)
	if err != nil {
		return nil, fmt.Errorf("list resources of %s: %w", account.ID, err)
	}
	if len(resources) == 0 {
		return nil, nil
	}

	scope := Scope{CloudAccountID: account.ID, Since: since}
	for _, r := range resources {
		if r.CloudResourceID != "" {
			scope.ResourceIDs = append(scope.ResourceIDs, r.CloudResourceID)
		}
		if r.CloudResourceHash != "" {
			scope.ResourceHashes = append(scope.ResourceHashes, r.CloudResourceHash)
		}
	}

	switch account.Type {
	case core.CloudAWS:
		rows, err := n.billing.AWSBoxUsage(ctx, scope)
		if err != nil {
			return nil, err
		}
		return ExtractAWS(scope, rows), nil

	case core.CloudAzure:
		rows, err := n.billing.AzureUsage(ctx, scope)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]Resource, len(resources))
		for _, r := range resources {
			byID[r.CloudResourceID] = r
		}
		return ExtractAzure(scope, rows, byID), nil

	case core.CloudAlibaba:
		rows, err := n.billing.AlibabaUsage(ctx, scope)
		if err != nil {
			return nil, err
		}
		return ExtractAlibaba(scope, rows), nil

	case core.CloudGCP:
		rows, err := n.billing.GCPUsage(ctx, scope)
		if err != nil {
			return nil, err
		}
		return ExtractGCP(scope, rows), nil

	default:
		return nil, core.NewInvalidArgumentError(fmt.Sprintf("no usage extractor for cloud type %q", account.Type), nil)
	}
}

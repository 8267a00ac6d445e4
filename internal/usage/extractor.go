package usage

import (
	"log/slog"
	"sort"

	"flavorwise/internal/core"
	"flavorwise/internal/providers/gcp"
)

type groupKey struct {
	resourceType core.ResourceType
	region       string
	flavor       string
}

// grouper sums usage per (resource type, region, flavor). Summation is
// commutative, so row order never changes the result.
type grouper struct {
	accountID string
	sums      map[groupKey]float64
}

func newGrouper(accountID string) *grouper {
	return &grouper{accountID: accountID, sums: make(map[groupKey]float64)}
}

func (g *grouper) add(rt core.ResourceType, region, flavor string, usage float64) {
	if region == "" || flavor == "" {
		return
	}
	g.sums[groupKey{resourceType: rt, region: region, flavor: flavor}] += usage
}

// records returns the grouped usage sorted by region, flavor and resource type.
func (g *grouper) records() []core.UsageRecord {
	out := make([]core.UsageRecord, 0, len(g.sums))
	for k, v := range g.sums {
		out = append(out, core.UsageRecord{
			CloudAccountID: g.accountID,
			ResourceType:   k.resourceType,
			Region:         k.region,
			FlavorID:       k.flavor,
			Usage:          v,
		})
	}
	sortRecords(out)
	return out
}

func sortRecords(records []core.UsageRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.FlavorID != b.FlavorID {
			return a.FlavorID < b.FlavorID
		}
		return a.ResourceType < b.ResourceType
	})
}

// ExtractAWS groups box usage by (region, instance type).
func ExtractAWS(scope Scope, rows []AWSBoxUsageRow) []core.UsageRecord {
	g := newGrouper(scope.CloudAccountID)
	for _, r := range rows {
		if !scope.matches(r.CloudAccountID, r.StartDate, r.ResourceID, "") {
			continue
		}
		rt := core.ResourceInstance
		if r.ProductFamily == "Database Instance" {
			rt = core.ResourceRDSInstance
		}
		g.add(rt, r.Region, r.InstanceType, r.UsageAmount)
	}
	return g.records()
}

// ExtractAzure groups usage by resource id and takes flavor and region from
// the resource metadata, keyed by cloud resource id. Rows of resources
// without metadata are dropped.
func ExtractAzure(scope Scope, rows []AzureUsageRow, resources map[string]Resource) []core.UsageRecord {
	perResource := make(map[string]float64)
	for _, r := range rows {
		if !scope.matches(r.CloudAccountID, r.StartDate, r.ResourceID, "") {
			continue
		}
		perResource[r.ResourceID] += r.UsageQuantity
	}

	g := newGrouper(scope.CloudAccountID)
	for id, usage := range perResource {
		res, ok := resources[id]
		if !ok {
			slog.Debug("azure usage without resource metadata", "resource_id", id)
			continue
		}
		g.add(res.Kind(), res.Region, res.Flavor, usage)
	}
	return g.records()
}

// ExtractAlibaba groups usage by (Region, InstanceSpec).
func ExtractAlibaba(scope Scope, rows []AlibabaUsageRow) []core.UsageRecord {
	g := newGrouper(scope.CloudAccountID)
	for _, r := range rows {
		if !scope.matches(r.CloudAccountID, r.StartDate, r.ResourceID, "") {
			continue
		}
		g.add(core.ResourceInstance, r.Region, r.InstanceSpec, r.Usage)
	}
	return g.records()
}

// ExtractGCP groups core time by (machine spec, region) and divides each sum
// by the machine type's core count, turning per-core hours into instance
// hours. Rows with an unknown machine type are dropped.
func ExtractGCP(scope Scope, rows []GCPUsageRow) []core.UsageRecord {
	g := newGrouper(scope.CloudAccountID)
	for _, r := range rows {
		if !scope.matches(r.CloudAccountID, r.StartDate, "", r.ResourceHash) {
			continue
		}
		g.add(core.ResourceInstance, r.Region, r.SystemTags.MachineSpec, r.UsageAmount)
	}

	for k, sum := range g.sums {
		cpu, err := gcp.CoreCount(k.flavor)
		if err != nil {
			slog.Warn("gcp usage with unknown machine type dropped", "machine_type", k.flavor, "error", err)
			delete(g.sums, k)
			continue
		}
		g.sums[k] = sum / float64(cpu)
	}
	return g.records()
}

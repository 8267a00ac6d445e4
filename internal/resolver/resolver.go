// Package resolver answers flavor lookups against one provider adapter at a
// time. Exact lookups go through the pricing caller, searches through the
// flavor caller; both memoize results in the cache store.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"flavorwise/internal/cache"
	"flavorwise/internal/core"
	"flavorwise/internal/observability"
	"flavorwise/internal/workerpool"
)

// Memoized function names used in cache keys.
const (
	fnResolveFlavorPrice   = "resolve_flavor_price"
	fnListCandidateFlavors = "list_candidate_flavors"
)

// Adapters looks up the adapter serving a cloud.
type Adapters interface {
	Adapter(cloud core.CloudType) (core.Adapter, error)
}

// FlavorQuery is one (region, flavor) pair of a batch lookup.
type FlavorQuery struct {
	Region       string `json:"region"`
	FlavorID     string `json:"flavor"`
	OSType       string `json:"os_type,omitempty"`
	Preinstalled string `json:"preinstalled,omitempty"`
	MeterID      string `json:"meter_id,omitempty"`
	Currency     string `json:"currency,omitempty"`
}

// Resolver dispatches FindRequests to provider adapters.
type Resolver struct {
	adapters Adapters
	pricing  *workerpool.Caller
	flavors  *workerpool.Caller
}

// New creates a Resolver. pricing serves exact price lookups and flavors
// serves candidate searches.
func New(adapters Adapters, pricing, flavors *workerpool.Caller) *Resolver {
	return &Resolver{adapters: adapters, pricing: pricing, flavors: flavors}
}

// FindFlavor resolves req to a single flavor. In current mode it is the
// requested flavor itself; in the search modes it is the cheapest candidate.
func (r *Resolver) FindFlavor(ctx context.Context, req core.FindRequest) (rec *core.FlavorRecord, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(core.KindOf(err))
		}
		observability.FindRequests.WithLabelValues(string(req.CloudType), string(req.Mode), outcome).Inc()
	}()

	if err := Validate(req); err != nil {
		return nil, err
	}
	if req.Mode == core.ModeCurrent {
		adapter, err := r.adapters.Adapter(req.CloudType)
		if err != nil {
			return nil, err
		}
		return r.resolvePrice(ctx, adapter, req.ResourceType, queryOf(req))
	}

	candidates, err := r.search(ctx, req)
	if err != nil {
		return nil, err
	}
	best := candidates[0]
	return &best, nil
}

// FindCandidates returns every candidate of a search request, cheapest first.
func (r *Resolver) FindCandidates(ctx context.Context, req core.FindRequest) ([]core.FlavorRecord, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if req.Mode == core.ModeCurrent {
		return nil, core.NewInvalidArgumentError("candidates require a search mode", nil)
	}
	return r.search(ctx, req)
}

// FindMany resolves every query in current mode concurrently and returns the
// results keyed by source flavor id. Failed lookups are logged and left out;
// a later query for the same flavor id overwrites an earlier one.
func (r *Resolver) FindMany(ctx context.Context, cloud core.CloudType, resourceType core.ResourceType, queries []FlavorQuery) map[string]core.FlavorRecord {
	out := make(map[string]core.FlavorRecord, len(queries))
	adapter, err := r.adapters.Adapter(cloud)
	if err != nil {
		slog.Warn("batch flavor lookup skipped", "cloud_type", cloud, "queries", len(queries), "error", err)
		return out
	}

	futures := make([]*workerpool.Future[core.FlavorRecord], len(queries))
	for i, q := range queries {
		futures[i] = r.submitPrice(ctx, adapter, resourceType, q)
	}
	for i, f := range futures {
		rec, err := f.Wait(ctx)
		if err != nil {
			slog.Warn("flavor lookup failed",
				"request_id", core.GetRequestID(ctx),
				"cloud_type", cloud,
				"region", queries[i].Region,
				"flavor", queries[i].FlavorID,
				"kind", core.KindOf(err),
				"error", err,
			)
			continue
		}
		out[queries[i].FlavorID] = rec
	}
	return out
}

func queryOf(req core.FindRequest) FlavorQuery {
	return FlavorQuery{
		Region:       req.Region,
		FlavorID:     req.FamilySpecs.SourceFlavorID,
		OSType:       req.OSType,
		Preinstalled: req.Preinstalled,
		MeterID:      req.MeterID,
		Currency:     req.Currency,
	}
}

func (r *Resolver) submitPrice(ctx context.Context, adapter core.Adapter, rt core.ResourceType, q FlavorQuery) *workerpool.Future[core.FlavorRecord] {
	cloud := adapter.Cloud()
	key := cache.NewCallKey(fnResolveFlavorPrice,
		[]any{string(cloud), string(rt), q.Region, q.FlavorID},
		map[string]any{
			"os_type":      q.OSType,
			"preinstalled": q.Preinstalled,
			"meter_id":     q.MeterID,
			"currency":     q.Currency,
		})
	return workerpool.Submit(ctx, r.pricing, key, func(ctx context.Context) (core.FlavorRecord, error) {
		rec, err := adapter.ResolveFlavorPrice(ctx, core.PriceQuery{
			ResourceType: rt,
			Region:       q.Region,
			FlavorID:     q.FlavorID,
			OSType:       q.OSType,
			Preinstalled: q.Preinstalled,
			MeterID:      q.MeterID,
			Currency:     q.Currency,
		})
		if err != nil {
			return core.FlavorRecord{}, err
		}
		return *rec, nil
	})
}

func (r *Resolver) resolvePrice(ctx context.Context, adapter core.Adapter, rt core.ResourceType, q FlavorQuery) (*core.FlavorRecord, error) {
	rec, err := r.submitPrice(ctx, adapter, rt, q).Wait(ctx)
	if err != nil {
		return nil, core.WrapTransportError(adapter.Cloud(), fnResolveFlavorPrice, err)
	}
	return &rec, nil
}

// search lists candidates within the request bounds, restricted to the
// source flavor's family in search_relevant mode, and sorts them by price.
func (r *Resolver) search(ctx context.Context, req core.FindRequest) ([]core.FlavorRecord, error) {
	adapter, err := r.adapters.Adapter(req.CloudType)
	if err != nil {
		return nil, err
	}

	specs := req.FamilySpecs
	q := core.CandidateQuery{
		ResourceType: req.ResourceType,
		Region:       req.Region,
		CPUMin:       specs.CPUMin,
		CPUMax:       specs.CPUMax,
		RAMMin:       specs.RAMMin,
		RAMMax:       specs.RAMMax,
		OSType:       req.OSType,
		Currency:     req.Currency,
	}
	// An exact vCPU count pins both bounds.
	if req.CPU > 0 && q.CPUMin == 0 && q.CPUMax == 0 {
		q.CPUMin, q.CPUMax = req.CPU, req.CPU
	}

	key := cache.NewCallKey(fnListCandidateFlavors,
		[]any{string(req.CloudType), string(q.ResourceType), q.Region},
		map[string]any{
			"cpu_min":  q.CPUMin,
			"cpu_max":  q.CPUMax,
			"ram_min":  q.RAMMin,
			"ram_max":  q.RAMMax,
			"os_type":  q.OSType,
			"currency": q.Currency,
		})
	candidates, err := workerpool.Call(ctx, r.flavors, key, func(ctx context.Context) ([]core.FlavorRecord, error) {
		return adapter.ListCandidateFlavors(ctx, q)
	})
	if err != nil {
		return nil, core.WrapTransportError(adapter.Cloud(), fnListCandidateFlavors, err)
	}

	if req.Mode == core.ModeSearchRelevant {
		family := adapter.Family(specs.SourceFlavorID)
		kept := candidates[:0:0]
		for _, c := range candidates {
			if adapter.Family(c.FlavorID) == family {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}
	if len(candidates) == 0 {
		return nil, core.NewNotFoundError(req.CloudType, fmt.Sprintf("no %s flavor in %s matches the requested bounds", req.ResourceType, req.Region))
	}

	SortByPrice(candidates)
	return candidates, nil
}

// SortByPrice orders flavors cheapest first; ties go to fewer vCPUs, then
// less RAM, then flavor id.
func SortByPrice(flavors []core.FlavorRecord) {
	sort.SliceStable(flavors, func(i, j int) bool {
		a, b := flavors[i], flavors[j]
		switch {
		case a.Price != b.Price:
			return a.Price < b.Price
		case a.CPU != b.CPU:
			return a.CPU < b.CPU
		case a.RAM != b.RAM:
			return a.RAM < b.RAM
		default:
			return a.FlavorID < b.FlavorID
		}
	})
}

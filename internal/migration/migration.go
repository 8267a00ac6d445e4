// Package migration estimates what the compute usage of source cloud
// accounts would cost on Nebius and ranks the cheaper options.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"flavorwise/internal/cache"
	"flavorwise/internal/core"
	"flavorwise/internal/observability"
	"flavorwise/internal/resolver"
	"flavorwise/internal/workerpool"
)

const fnEquivalentFlavor = "nebius_equivalent_flavor"

// UsageSource returns the normalized usage of an account since a point in time.
type UsageSource interface {
	Usage(ctx context.Context, account core.CloudAccount, since time.Time) ([]core.UsageRecord, error)
}

// FlavorFinder resolves source flavors in current mode.
type FlavorFinder interface {
	FindMany(ctx context.Context, cloud core.CloudType, resourceType core.ResourceType, queries []resolver.FlavorQuery) map[string]core.FlavorRecord
}

// Target sizes the target cloud flavor equivalent to a source flavor.
type Target interface {
	EquivalentFlavor(ctx context.Context, cpu int, ramGiB float64, currency string) (*core.FlavorRecord, error)
}

// Options tunes an Engine.
type Options struct {
	// DaysThreshold is the lookback window of usage, in days.
	DaysThreshold int
	// DaysInMonth scales the lookback window to a month.
	DaysInMonth int
	// AccountWorkers bounds how many accounts are analyzed at once.
	AccountWorkers int
	Currency       string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine computes migration recommendations.
type Engine struct {
	usage   UsageSource
	flavors FlavorFinder
	target  Target
	pricing *workerpool.Caller
	opts    Options
}

// New creates an Engine. Target lookups run on the pricing caller so they
// share its memoization and timeout.
func New(usage UsageSource, flavors FlavorFinder, target Target, pricing *workerpool.Caller, opts Options) *Engine {
	if opts.DaysThreshold <= 0 {
		opts.DaysThreshold = 30
	}
	if opts.DaysInMonth <= 0 {
		opts.DaysInMonth = 30
	}
	if opts.AccountWorkers <= 0 {
		opts.AccountWorkers = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{usage: usage, flavors: flavors, target: target, pricing: pricing, opts: opts}
}

// Recommend analyzes accounts concurrently and returns every recommendation
// with a positive saving, largest saving first. A failing account is logged
// and contributes nothing.
func (e *Engine) Recommend(ctx context.Context, accounts []core.CloudAccount) ([]core.MigrationRecommendation, error) {
	var (
		mu  sync.Mutex
		out []core.MigrationRecommendation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.AccountWorkers)
	for _, account := range accounts {
		g.Go(func() error {
			recs, err := e.account(gctx, account)
			if err != nil {
				slog.Error("migration analysis failed",
					"request_id", core.GetRequestID(ctx),
					"cloud_account_id", account.ID,
					"cloud_type", account.Type,
					"error", err,
				)
				return nil
			}
			mu.Lock()
			out = append(out, recs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	Rank(out)
	return out, nil
}

// Rank orders recommendations by saving, largest first. Ties are broken by
// account, region and source flavor.
func Rank(recs []core.MigrationRecommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		switch {
		case a.Saving != b.Saving:
			return a.Saving > b.Saving
		case a.CloudAccountID != b.CloudAccountID:
			return a.CloudAccountID < b.CloudAccountID
		case a.Region != b.Region:
			return a.Region < b.Region
		default:
			return a.SourceFlavor < b.SourceFlavor
		}
	})
}

type lookupGroup struct {
	resourceType core.ResourceType
	region       string
}

func (e *Engine) account(ctx context.Context, account core.CloudAccount) ([]core.MigrationRecommendation, error) {
	if account.Type == core.CloudNebius {
		slog.Debug("skipping target cloud account", "cloud_account_id", account.ID)
		return nil, nil
	}

	now := e.opts.Now().UTC()
	since := now.AddDate(0, 0, -e.opts.DaysThreshold)
	records, err := e.usage.Usage(ctx, account, since)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	// Flavor lookups are keyed by flavor id, so each region is resolved on its own.
	groups := make(map[lookupGroup][]core.UsageRecord)
	for _, r := range records {
		k := lookupGroup{resourceType: r.ResourceType, region: r.Region}
		groups[k] = append(groups[k], r)
	}

	var out []core.MigrationRecommendation
	for k, group := range groups {
		queries := make([]resolver.FlavorQuery, len(group))
		for i, r := range group {
			queries[i] = resolver.FlavorQuery{Region: r.Region, FlavorID: r.FlavorID, Currency: e.opts.Currency}
		}
		sources := e.flavors.FindMany(ctx, account.Type, k.resourceType, queries)

		for _, r := range group {
			source, ok := sources[r.FlavorID]
			if !ok {
				continue
			}
			rec, ok := e.recommend(ctx, account, r, source, now)
			if ok {
				observability.Recommendations.WithLabelValues(string(account.Type)).Inc()
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// recommend prices one usage record on the target cloud. It reports false
// when the target is unavailable or not cheaper.
func (e *Engine) recommend(ctx context.Context, account core.CloudAccount, usage core.UsageRecord, source core.FlavorRecord, now time.Time) (core.MigrationRecommendation, bool) {
	scaled := usage.Usage * float64(e.opts.DaysInMonth) / float64(e.opts.DaysThreshold)
	currentCost := core.Round3(scaled * source.Price)

	target, err := e.equivalent(ctx, source.CPU, source.RAMGiB())
	if err != nil {
		slog.Warn("no target flavor",
			"cloud_account_id", account.ID,
			"flavor", source.FlavorID,
			"cpu", source.CPU,
			"ram", source.RAM,
			"error", err,
		)
		return core.MigrationRecommendation{}, false
	}
	if source.Currency != "" && target.Currency != "" && source.Currency != target.Currency {
		slog.Warn("currency mismatch between source and target prices",
			"flavor", source.FlavorID, "source_currency", source.Currency, "target_currency", target.Currency)
		return core.MigrationRecommendation{}, false
	}

	targetCost := core.Round3(scaled * target.Price)
	saving := core.Round3(currentCost - targetCost)
	if saving <= 0 {
		return core.MigrationRecommendation{}, false
	}

	return core.MigrationRecommendation{
		ID:             uuid.NewString(),
		CloudAccountID: account.ID,
		CloudType:      account.Type,
		Region:         usage.Region,
		SourceFlavor:   usage.FlavorID,
		CPU:            source.CPU,
		RAM:            source.RAM,
		MonthlyUsage:   scaled,
		CurrentCost:    currentCost,
		TargetFlavor:   target.FlavorID,
		TargetCost:     targetCost,
		Saving:         saving,
		Currency:       target.Currency,
		CreatedAt:      now,
	}, true
}

func (e *Engine) equivalent(ctx context.Context, cpu int, ramGiB float64) (core.FlavorRecord, error) {
	key := cache.NewCallKey(fnEquivalentFlavor,
		[]any{cpu, ramGiB},
		map[string]any{"currency": e.opts.Currency})
	rec, err := workerpool.Call(ctx, e.pricing, key, func(ctx context.Context) (core.FlavorRecord, error) {
		rec, err := e.target.EquivalentFlavor(ctx, cpu, ramGiB, e.opts.Currency)
		if err != nil {
			return core.FlavorRecord{}, err
		}
		return *rec, nil
	})
	if err != nil {
		return core.FlavorRecord{}, fmt.Errorf("%s(%d, %g): %w", fnEquivalentFlavor, cpu, ramGiB, err)
	}
	return rec, nil
}

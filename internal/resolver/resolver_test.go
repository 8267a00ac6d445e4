package resolver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flavorwise/internal/cache"
	"flavorwise/internal/core"
	"flavorwise/internal/workerpool"
)

type fakeAdapter struct {
	cloud   core.CloudType
	flavors map[string]core.FlavorRecord
	// slow flavors block until their context ends.
	slow       map[string]bool
	candidates []core.FlavorRecord
	err        error

	priceCalls     atomic.Int32
	candidateCalls atomic.Int32
	mu             sync.Mutex
	lastQuery      core.CandidateQuery
}

func (f *fakeAdapter) Cloud() core.CloudType { return f.cloud }

func (f *fakeAdapter) Family(flavorID string) string {
	for i := len(flavorID) - 1; i >= 0; i-- {
		if flavorID[i] == '.' {
			return flavorID[:i]
		}
	}
	return flavorID
}

func (f *fakeAdapter) ResolveFlavorPrice(ctx context.Context, q core.PriceQuery) (*core.FlavorRecord, error) {
	f.priceCalls.Add(1)
	if f.slow[q.FlavorID] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.flavors[q.FlavorID]
	if !ok {
		return nil, core.NewNotFoundError(f.cloud, q.FlavorID)
	}
	rec.Region = q.Region
	return &rec, nil
}

func (f *fakeAdapter) ListCandidateFlavors(_ context.Context, q core.CandidateQuery) ([]core.FlavorRecord, error) {
	f.candidateCalls.Add(1)
	f.mu.Lock()
	f.lastQuery = q
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []core.FlavorRecord
	for _, c := range f.candidates {
		if q.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

type adapterMap map[core.CloudType]core.Adapter

func (m adapterMap) Adapter(cloud core.CloudType) (core.Adapter, error) {
	a, ok := m[cloud]
	if !ok {
		return nil, core.NewInvalidArgumentError(fmt.Sprintf("cloud type %q is not configured", cloud), nil)
	}
	return a, nil
}

func newTestResolver(t *testing.T, a *fakeAdapter, timeout time.Duration, c *cache.Cache) *Resolver {
	t.Helper()
	pricing := workerpool.New("pricing", 4)
	flavors := workerpool.New("flavors", 2)
	t.Cleanup(pricing.Close)
	t.Cleanup(flavors.Close)
	return New(adapterMap{a.cloud: a},
		workerpool.NewCaller(pricing, c, timeout),
		workerpool.NewCaller(flavors, c, timeout))
}

func awsAdapter() *fakeAdapter {
	return &fakeAdapter{
		cloud: core.CloudAWS,
		flavors: map[string]core.FlavorRecord{
			"t3.large":  {Provider: core.CloudAWS, FlavorID: "t3.large", CPU: 2, RAM: 8192, Price: 0.0832, Currency: "USD"},
			"m5.large":  {Provider: core.CloudAWS, FlavorID: "m5.large", CPU: 2, RAM: 8192, Price: 0.096, Currency: "USD"},
			"m5.xlarge": {Provider: core.CloudAWS, FlavorID: "m5.xlarge", CPU: 4, RAM: 16384, Price: 0.192, Currency: "USD"},
			"c5.xlarge": {Provider: core.CloudAWS, FlavorID: "c5.xlarge", CPU: 4, RAM: 8192, Price: 0.17, Currency: "USD"},
			"r5.large":  {Provider: core.CloudAWS, FlavorID: "r5.large", CPU: 2, RAM: 16384, Price: 0.126, Currency: "USD"},
		},
		candidates: []core.FlavorRecord{
			{FlavorID: "m5.xlarge", CPU: 4, RAM: 16384, Price: 0.192},
			{FlavorID: "m5.2xlarge", CPU: 8, RAM: 32768, Price: 0.384},
			{FlavorID: "c5.xlarge", CPU: 4, RAM: 8192, Price: 0.17},
			{FlavorID: "m6i.xlarge", CPU: 4, RAM: 16384, Price: 0.192},
			{FlavorID: "m5a.xlarge", CPU: 4, RAM: 16384, Price: 0.172},
			{FlavorID: "m5.large", CPU: 2, RAM: 8192, Price: 0.096},
		},
	}
}

func currentRequest(flavor string) core.FindRequest {
	return core.FindRequest{
		CloudType:    core.CloudAWS,
		ResourceType: core.ResourceInstance,
		Region:       "us-east-1",
		FamilySpecs:  core.FamilySpecs{SourceFlavorID: flavor},
		Mode:         core.ModeCurrent,
	}
}

func TestFindFlavor_Current(t *testing.T) {
	a := awsAdapter()
	r := newTestResolver(t, a, time.Second, cache.NewCache(cache.NewMemoryStore(), time.Hour))

	rec, err := r.FindFlavor(context.Background(), currentRequest("t3.large"))
	require.NoError(t, err)
	assert.Equal(t, "t3.large", rec.FlavorID)
	assert.Equal(t, "us-east-1", rec.Region)
	assert.Equal(t, int64(8192), rec.RAM)

	// Memoized: the adapter is not called again.
	_, err = r.FindFlavor(context.Background(), currentRequest("t3.large"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), a.priceCalls.Load())

	_, err = r.FindFlavor(context.Background(), currentRequest("x1.huge"))
	assert.True(t, core.IsNotFound(err))
}

func TestFindFlavor_Search(t *testing.T) {
	ctx := context.Background()
	req := core.FindRequest{
		CloudType:    core.CloudAWS,
		ResourceType: core.ResourceInstance,
		Region:       "us-east-1",
		FamilySpecs:  core.FamilySpecs{SourceFlavorID: "m5.large", CPUMin: 4, CPUMax: 4},
		Mode:         core.ModeSearchRelevant,
	}

	t.Run("Relevant", func(t *testing.T) {
		r := newTestResolver(t, awsAdapter(), time.Second, nil)
		rec, err := r.FindFlavor(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "m5.xlarge", rec.FlavorID)
	})

	t.Run("NoRelevant", func(t *testing.T) {
		r := newTestResolver(t, awsAdapter(), time.Second, nil)
		req := req
		req.Mode = core.ModeSearchNoRelevant
		rec, err := r.FindFlavor(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "c5.xlarge", rec.FlavorID)
	})

	t.Run("CandidatesSortedWithTies", func(t *testing.T) {
		r := newTestResolver(t, awsAdapter(), time.Second, nil)
		req := req
		req.Mode = core.ModeSearchNoRelevant
		got, err := r.FindCandidates(ctx, req)
		require.NoError(t, err)

		ids := make([]string, len(got))
		for i, c := range got {
			ids[i] = c.FlavorID
		}
		assert.Equal(t, []string{"c5.xlarge", "m5a.xlarge", "m5.xlarge", "m6i.xlarge"}, ids)
	})

	t.Run("ExactCPU", func(t *testing.T) {
		a := awsAdapter()
		r := newTestResolver(t, a, time.Second, nil)
		req := core.FindRequest{
			CloudType: core.CloudAWS, ResourceType: core.ResourceInstance, Region: "us-east-1",
			Mode: core.ModeSearchNoRelevant, CPU: 8,
		}
		rec, err := r.FindFlavor(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "m5.2xlarge", rec.FlavorID)
		assert.Equal(t, 8, a.lastQuery.CPUMin)
		assert.Equal(t, 8, a.lastQuery.CPUMax)
	})

	t.Run("NothingMatches", func(t *testing.T) {
		r := newTestResolver(t, awsAdapter(), time.Second, nil)
		req := req
		req.FamilySpecs.CPUMin, req.FamilySpecs.CPUMax = 64, 128
		_, err := r.FindFlavor(ctx, req)
		assert.True(t, core.IsNotFound(err))
	})
}

func TestFindFlavor_Validation(t *testing.T) {
	r := newTestResolver(t, awsAdapter(), time.Second, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*core.FindRequest)
	}{
		{"MissingCloud", func(req *core.FindRequest) { req.CloudType = "" }},
		{"UnknownCloud", func(req *core.FindRequest) { req.CloudType = "oracle_cnr" }},
		{"UnconfiguredCloud", func(req *core.FindRequest) { req.CloudType = core.CloudGCP }},
		{"BadMode", func(req *core.FindRequest) { req.Mode = "closest" }},
		{"BadResourceType", func(req *core.FindRequest) { req.ResourceType = "bucket" }},
		{"MissingSourceFlavor", func(req *core.FindRequest) { req.FamilySpecs.SourceFlavorID = "" }},
		{"MissingRegion", func(req *core.FindRequest) { req.Region = "" }},
		{"BadCurrency", func(req *core.FindRequest) { req.Currency = "dollars" }},
		{"NegativeCPU", func(req *core.FindRequest) { req.FamilySpecs.CPUMin = -1 }},
		{"InvertedBounds", func(req *core.FindRequest) {
			req.Mode = core.ModeSearchNoRelevant
			req.FamilySpecs.CPUMin, req.FamilySpecs.CPUMax = 8, 4
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := currentRequest("t3.large")
			tt.mutate(&req)
			_, err := r.FindFlavor(ctx, req)
			assert.True(t, core.IsInvalidArgument(err), "got %v", err)
		})
	}

	_, err := r.FindCandidates(ctx, currentRequest("t3.large"))
	assert.True(t, core.IsInvalidArgument(err))
}

func TestFindFlavor_TimeoutIsUpstream(t *testing.T) {
	a := awsAdapter()
	a.slow = map[string]bool{"t3.large": true}
	r := newTestResolver(t, a, 20*time.Millisecond, nil)

	_, err := r.FindFlavor(context.Background(), currentRequest("t3.large"))
	require.Error(t, err)
	assert.Equal(t, core.ErrorKindUpstreamUnavailable, core.KindOf(err))
	assert.ErrorIs(t, err, workerpool.ErrTimeout)
}

func TestFindMany(t *testing.T) {
	a := awsAdapter()
	a.slow = map[string]bool{"m5.xlarge": true, "c5.xlarge": true}
	r := newTestResolver(t, a, 50*time.Millisecond, nil)

	start := time.Now()
	got := r.FindMany(context.Background(), core.CloudAWS, core.ResourceInstance, []FlavorQuery{
		{Region: "us-east-1", FlavorID: "t3.large"},
		{Region: "us-east-1", FlavorID: "m5.xlarge"},
		{Region: "us-east-1", FlavorID: "m5.large"},
		{Region: "us-east-1", FlavorID: "c5.xlarge"},
		{Region: "us-east-1", FlavorID: "r5.large"},
	})
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, got, 3)
	assert.Contains(t, got, "t3.large")
	assert.Contains(t, got, "m5.large")
	assert.Contains(t, got, "r5.large")
}

func TestFindMany_DuplicatesAndFailures(t *testing.T) {
	a := awsAdapter()
	r := newTestResolver(t, a, time.Second, nil)

	got := r.FindMany(context.Background(), core.CloudAWS, core.ResourceInstance, []FlavorQuery{
		{Region: "us-east-1", FlavorID: "t3.large"},
		{Region: "eu-west-1", FlavorID: "t3.large"},
		{Region: "us-east-1", FlavorID: "nope.large"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "eu-west-1", got["t3.large"].Region, "last write wins")

	assert.Empty(t, r.FindMany(context.Background(), core.CloudGCP, core.ResourceInstance, []FlavorQuery{{FlavorID: "n2-standard-4"}}))
}

func TestSortByPrice(t *testing.T) {
	flavors := []core.FlavorRecord{
		{FlavorID: "b", CPU: 4, RAM: 8192, Price: 1},
		{FlavorID: "a", CPU: 4, RAM: 8192, Price: 1},
		{FlavorID: "c", CPU: 2, RAM: 16384, Price: 1},
		{FlavorID: "d", CPU: 2, RAM: 8192, Price: 1},
		{FlavorID: "e", CPU: 16, RAM: 65536, Price: 0.5},
	}
	SortByPrice(flavors)
	ids := make([]string, len(flavors))
	for i, f := range flavors {
		ids[i] = f.FlavorID
	}
	assert.Equal(t, []string{"e", "d", "c", "a", "b"}, ids)
}

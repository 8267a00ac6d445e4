package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flavorwise/internal/core"
	"flavorwise/internal/report"
	"flavorwise/internal/resolver"
)

type mockFinder struct {
	record     *core.FlavorRecord
	candidates []core.FlavorRecord
	many       map[string]core.FlavorRecord
	err        error

	lastRequest core.FindRequest
	lastQueries []resolver.FlavorQuery
}

func (m *mockFinder) FindFlavor(_ context.Context, req core.FindRequest) (*core.FlavorRecord, error) {
	m.lastRequest = req
	return m.record, m.err
}

func (m *mockFinder) FindCandidates(_ context.Context, req core.FindRequest) ([]core.FlavorRecord, error) {
	m.lastRequest = req
	return m.candidates, m.err
}

func (m *mockFinder) FindMany(_ context.Context, _ core.CloudType, _ core.ResourceType, queries []resolver.FlavorQuery) map[string]core.FlavorRecord {
	m.lastQueries = queries
	return m.many
}

type mockRecommender struct {
	recs     []core.MigrationRecommendation
	err      error
	accounts []core.CloudAccount
}

func (m *mockRecommender) Recommend(_ context.Context, accounts []core.CloudAccount) ([]core.MigrationRecommendation, error) {
	m.accounts = accounts
	return m.recs, m.err
}

type staticClouds []core.CloudType

func (s staticClouds) Clouds() []core.CloudType { return s }

func serve(t *testing.T, h echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	return rec
}

func TestFindFlavor(t *testing.T) {
	finder := &mockFinder{record: &core.FlavorRecord{Provider: core.CloudAWS, Region: "us-east-1", FlavorID: "t3.large", CPU: 2, RAM: 8192, Price: 0.0832, Currency: "USD"}}
	h := NewHandler(finder, nil, staticClouds{core.CloudAWS}, nil)

	rec := serve(t, h.FindFlavor, `{
		"cloud_type": "aws_cnr",
		"resource_type": "instance",
		"region": "us-east-1",
		"family_specs": {"source_flavor_id": "t3.large"},
		"mode": "current",
		"os_type": "Linux"
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"provider":"aws_cnr","region":"us-east-1","flavor":"t3.large","cpu":2,"ram":8192,"price":0.0832,"currency":"USD"}`, rec.Body.String())
	assert.Equal(t, core.ModeCurrent, finder.lastRequest.Mode)
	assert.Equal(t, "t3.large", finder.lastRequest.FamilySpecs.SourceFlavorID)
	assert.Equal(t, "Linux", finder.lastRequest.OSType)
}

func TestFindFlavor_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
		kind   string
	}{
		{"BadJSON", nil, `{"cloud_type":`, http.StatusBadRequest, "invalid_argument"},
		{"NotFound", core.NewNotFoundError(core.CloudAWS, "flavor t9.huge not found"), `{}`, http.StatusNotFound, "not_found"},
		{"Credentials", core.NewCredentialsInvalidError(core.CloudAzure, "token rejected", nil), `{}`, http.StatusFailedDependency, "credentials_invalid"},
		{"Upstream", core.NewUpstreamUnavailableError(core.CloudGCP, "timed out", nil), `{}`, http.StatusServiceUnavailable, "upstream_unavailable"},
		{"Untyped", errors.New("boom"), `{}`, http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&mockFinder{err: tt.err}, nil, staticClouds{}, nil)
			rec := serve(t, h.FindFlavor, tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var body struct {
				Error struct {
					Kind string `json:"kind"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body.Error.Kind)
		})
	}
}

func TestFindCandidates(t *testing.T) {
	finder := &mockFinder{candidates: []core.FlavorRecord{
		{FlavorID: "c5.xlarge", CPU: 4, RAM: 8192, Price: 0.17},
		{FlavorID: "m5.xlarge", CPU: 4, RAM: 16384, Price: 0.192},
	}}
	h := NewHandler(finder, nil, staticClouds{}, nil)

	rec := serve(t, h.FindCandidates, `{"cloud_type":"aws_cnr","resource_type":"instance","region":"us-east-1","mode":"search_no_relevant","family_specs":{"cpu_min":4,"cpu_max":4}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Candidates []core.FlavorRecord `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Candidates, 2)
	assert.Equal(t, "c5.xlarge", body.Candidates[0].FlavorID)
	assert.Equal(t, 4, finder.lastRequest.FamilySpecs.CPUMax)
}

func TestFindMany(t *testing.T) {
	finder := &mockFinder{many: map[string]core.FlavorRecord{"t3.large": {FlavorID: "t3.large", Price: 0.0832}}}
	h := NewHandler(finder, nil, staticClouds{}, nil)

	rec := serve(t, h.FindMany, `{"cloud_type":"aws_cnr","resource_type":"instance","queries":[{"region":"us-east-1","flavor":"t3.large"},{"region":"us-east-1","flavor":"t9.huge"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, finder.lastQueries, 2)
	assert.Contains(t, rec.Body.String(), `"t3.large"`)
	assert.NotContains(t, rec.Body.String(), "t9.huge")

	t.Run("Invalid", func(t *testing.T) {
		for _, body := range []string{
			`{"cloud_type":"aws_cnr","resource_type":"instance","queries":[]}`,
			`{"cloud_type":"aws_cnr","resource_type":"disk","queries":[{"flavor":"x"}]}`,
			`{"cloud_type":"oracle_cnr","resource_type":"instance","queries":[{"flavor":"x"}]}`,
		} {
			rec := serve(t, h.FindMany, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		}
	})
}

func TestSavings(t *testing.T) {
	recommender := &mockRecommender{recs: []core.MigrationRecommendation{
		{ID: "r1", CloudAccountID: "acc", CloudType: core.CloudAWS, Region: "us-east-1", SourceFlavor: "t3.large", Saving: 1.92},
	}}
	h := NewHandler(&mockFinder{}, recommender, staticClouds{}, nil)

	rec := serve(t, h.Savings, `{"accounts":[{"id":"acc","type":"aws_cnr"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Recommendations []core.MigrationRecommendation `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Recommendations, 1)
	assert.Equal(t, 1.92, body.Recommendations[0].Saving)
	assert.Equal(t, []core.CloudAccount{{ID: "acc", Type: core.CloudAWS}}, recommender.accounts)

	t.Run("Empty", func(t *testing.T) {
		h := NewHandler(&mockFinder{}, &mockRecommender{}, staticClouds{}, nil)
		rec := serve(t, h.Savings, `{"accounts":[{"id":"acc","type":"aws_cnr"}]}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"recommendations":[]}`, rec.Body.String())
	})

	t.Run("MissingAccountID", func(t *testing.T) {
		rec := serve(t, h.Savings, `{"accounts":[{"type":"aws_cnr"}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("NoTarget", func(t *testing.T) {
		h := NewHandler(&mockFinder{}, nil, staticClouds{}, nil)
		rec := serve(t, h.Savings, `{"accounts":[{"id":"acc","type":"aws_cnr"}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestReports(t *testing.T) {
	store := report.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &report.Report{ID: "old", CreatedAt: 1, TotalSaving: 0.5}))
	require.NoError(t, store.Create(ctx, &report.Report{ID: "new", CreatedAt: 2, TotalSaving: 1.92}))
	h := NewHandler(&mockFinder{}, nil, staticClouds{}, store)

	get := func(target string, params ...string) *httptest.ResponseRecorder {
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), rec)
		handler := h.ListReports
		if len(params) > 0 {
			c.SetParamNames("id")
			c.SetParamValues(params[0])
			handler = h.GetReport
		}
		require.NoError(t, handler(c))
		return rec
	}

	rec := get("/v1/migration/reports?limit=1")
	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Reports []report.Report `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Reports, 1)
	assert.Equal(t, "new", body.Reports[0].ID)

	rec = get("/v1/migration/reports?after=new")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Reports, 1)
	assert.Equal(t, "old", body.Reports[0].ID)

	assert.Equal(t, http.StatusNotFound, get("/v1/migration/reports?after=gone").Code)
	assert.Equal(t, http.StatusBadRequest, get("/v1/migration/reports?limit=-1").Code)

	rec = get("/v1/migration/reports/old", "old")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_saving":0.5`)
	assert.Equal(t, http.StatusNotFound, get("/v1/migration/reports/none", "none").Code)

	t.Run("Disabled", func(t *testing.T) {
		h := NewHandler(&mockFinder{}, nil, staticClouds{}, nil)
		e := echo.New()
		rec := httptest.NewRecorder()
		require.NoError(t, h.ListReports(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

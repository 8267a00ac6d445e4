package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flavorwise/internal/core"
	"flavorwise/internal/report"
)

func TestRoutes(t *testing.T) {
	h := NewHandler(
		&mockFinder{record: &core.FlavorRecord{FlavorID: "t3.large"}},
		&mockRecommender{},
		staticClouds{core.CloudAWS, core.CloudNebius},
		report.NewMemoryStore(),
	)
	srv := New(h, &Config{APIKey: "k", MetricsEnabled: true})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		auth   bool
		status int
	}{
		{"health is public", http.MethodGet, "/health", "", false, http.StatusOK},
		{"metrics is public", http.MethodGet, "/metrics", "", false, http.StatusOK},
		{"clouds needs auth", http.MethodGet, "/v1/clouds", "", false, http.StatusUnauthorized},
		{"clouds", http.MethodGet, "/v1/clouds", "", true, http.StatusOK},
		{"find", http.MethodPost, "/v1/flavors/find", `{"cloud_type":"aws_cnr"}`, true, http.StatusOK},
		{"candidates", http.MethodPost, "/v1/flavors/candidates", `{}`, true, http.StatusOK},
		{"batch", http.MethodPost, "/v1/flavors/batch", `{"cloud_type":"aws_cnr","resource_type":"instance","queries":[{"flavor":"t3.large"}]}`, true, http.StatusOK},
		{"savings", http.MethodPost, "/v1/migration/savings", `{"accounts":[{"id":"a","type":"gcp_cnr"}]}`, true, http.StatusOK},
		{"reports", http.MethodGet, "/v1/migration/reports", "", true, http.StatusOK},
		{"missing report", http.MethodGet, "/v1/migration/reports/nope", "", true, http.StatusNotFound},
		{"unknown route", http.MethodGet, "/v1/models", "", true, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.auth {
				req.Header.Set("Authorization", "Bearer k")
			}
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestClouds(t *testing.T) {
	srv := New(NewHandler(&mockFinder{}, nil, staticClouds{core.CloudAWS, core.CloudNebius}, nil), nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/clouds", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"clouds":["aws_cnr","nebius"]}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
		path   string
		status int
	}{
		{"disabled", &Config{MetricsEnabled: false}, "/metrics", http.StatusNotFound},
		{"default path", &Config{MetricsEnabled: true}, "/metrics", http.StatusOK},
		{"custom path", &Config{MetricsEnabled: true, MetricsEndpoint: "/internal/metrics"}, "/internal/metrics", http.StatusOK},
		{"cleaned path", &Config{MetricsEnabled: true, MetricsEndpoint: "/internal/../prom"}, "/prom", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(NewHandler(&mockFinder{}, nil, staticClouds{}, nil), tt.config)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestBodyLimit(t *testing.T) {
	srv := New(NewHandler(&mockFinder{}, nil, staticClouds{}, nil), &Config{BodySizeLimit: 16})

	req := httptest.NewRequest(http.MethodPost, "/v1/flavors/find", strings.NewReader(`{"cloud_type":"aws_cnr","region":"us-east-1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRequestContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Response().Header().Set(echo.HeaderXRequestID, "req-42")

	var got string
	h := requestContext(func(c echo.Context) error {
		got = core.GetRequestID(c.Request().Context())
		return nil
	})
	require.NoError(t, h(c))
	assert.Equal(t, "req-42", got)
}

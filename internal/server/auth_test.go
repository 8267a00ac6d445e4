package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		apiKey         string
		authHeader     string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "no api key configured - allows request",
			expectedStatus: http.StatusOK,
			expectedBody:   "ok",
		},
		{
			name:           "valid api key - allows request",
			apiKey:         "secret-key-123",
			authHeader:     "Bearer secret-key-123",
			expectedStatus: http.StatusOK,
			expectedBody:   "ok",
		},
		{
			name:           "missing authorization header - denies request",
			apiKey:         "secret-key-123",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":{"message":"missing authorization header","kind":"unauthorized"}}`,
		},
		{
			name:           "invalid authorization format - denies request",
			apiKey:         "secret-key-123",
			authHeader:     "secret-key-123",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":{"message":"invalid authorization header format, expected 'Bearer <token>'","kind":"unauthorized"}}`,
		},
		{
			name:           "wrong api key - denies request",
			apiKey:         "secret-key-123",
			authHeader:     "Bearer wrong-key",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":{"message":"invalid api key","kind":"unauthorized"}}`,
		},
		{
			name:           "empty bearer token - denies request",
			apiKey:         "secret-key-123",
			authHeader:     "Bearer ",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":{"message":"invalid api key","kind":"unauthorized"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			testHandler := func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			}
			handler := AuthMiddleware(tt.apiKey)(testHandler)

			req := httptest.NewRequest(http.MethodGet, "/v1/clouds", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			require.NoError(t, handler(e.NewContext(req, rec)))
			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, tt.expectedBody, rec.Body.String())
			} else {
				assert.JSONEq(t, tt.expectedBody, rec.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_SkipPaths(t *testing.T) {
	e := echo.New()
	e.Use(AuthMiddleware("my-secret-key", "/health"))
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "healthy") })
	e.GET("/v1/clouds", func(c echo.Context) error { return c.String(http.StatusOK, "clouds") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/clouds", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/clouds", nil)
	req.Header.Set("Authorization", "Bearer my-secret-key")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "clouds", rec.Body.String())
}

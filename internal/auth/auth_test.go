package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "taskflow.test"}

func TestIssueAndParseRoundTrip(t *testing.T) {
	token, err := IssueToken(testConfig, "user-1", "tenant-1", []string{ScopeProductivityWrite}, time.Hour)
	require.NoError(t, err)

	claims, err := ParseClaims(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "tenant-1", claims.TenantID)
	require.True(t, claims.HasScope(ScopeProductivityWrite))
	require.True(t, claims.Allows(ScopeProductivityRead), "write implies read")
	require.False(t, claims.HasScope(ScopeProductivityRead))
}

func TestParseRejectsBadTokens(t *testing.T) {
	_, err := ParseClaims("", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)

	expired, err := IssueToken(testConfig, "user-1", "tenant-1", nil, -time.Minute)
	require.NoError(t, err)
	_, err = ParseClaims(expired, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	otherIssuer, err := IssueToken(Config{Secret: testConfig.Secret, Issuer: "someone-else"}, "user-1", "tenant-1", nil, time.Hour)
	require.NoError(t, err)
	_, err = ParseClaims(otherIssuer, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	noTenant, err := IssueToken(testConfig, "user-1", "", nil, time.Hour)
	require.NoError(t, err)
	_, err = ParseClaims(noTenant, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig).Wrap(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"type":"missing_token","detail":"missing bearer token"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Nil(t, seen)

	token, err := IssueToken(testConfig, "user-1", "tenant-9", []string{ScopeProductivityRead}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, "tenant-9", seen.TenantID)
}

func TestStaticMiddlewareInjectsLocalClaims(t *testing.T) {
	var seen *Claims
	handler := NewStaticMiddleware(LocalClaims("local-tenant")).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/tasks", nil))

	require.NotNil(t, seen)
	require.Equal(t, "local-tenant", seen.TenantID)
	require.True(t, seen.Allows(ScopeProductivityWrite))
}

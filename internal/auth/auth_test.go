package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/leadops/internal/auth"
)

func newVerifier(t *testing.T, dev bool) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier(auth.Config{Secret: "test-secret", DevAllowLocal: dev})
	require.NoError(t, err)
	return v
}

func protected(v *auth.Verifier, role string) http.Handler {
	return v.RequireRole(role)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := auth.FromContext(r.Context())
		w.Header().Set("X-Subject", p.Subject)
		w.WriteHeader(http.StatusNoContent)
	}))
}

func serve(h http.Handler, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/overrides", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIssuedTokenGrantsRole(t *testing.T) {
	v := newVerifier(t, false)
	token, err := v.Issue("ops@example.com", []string{auth.RoleOperator}, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", p.Subject)
	assert.True(t, p.HasRole(auth.RoleOperator))
	assert.False(t, p.HasRole("billing"))

	rec := serve(protected(v, auth.RoleOperator), "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ops@example.com", rec.Header().Get("X-Subject"))
}

func TestAdminImpliesEveryRole(t *testing.T) {
	v := newVerifier(t, false)
	token, err := v.Issue("root", []string{auth.RoleAdmin}, time.Minute)
	require.NoError(t, err)
	rec := serve(protected(v, auth.RoleOperator), "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireRoleRejections(t *testing.T) {
	v := newVerifier(t, false)
	h := protected(v, auth.RoleOperator)

	assert.Equal(t, http.StatusUnauthorized, serve(h, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Authorization", "Bearer not-a-jwt").Code)

	viewer, err := v.Issue("viewer", []string{"viewer"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve(h, "Authorization", "Bearer "+viewer).Code)

	// Dev header is ignored unless enabled.
	assert.Equal(t, http.StatusUnauthorized, serve(h, auth.DevPrincipalHeader, "dev").Code)
}

func TestVerifyRejectsForeignAndExpiredTokens(t *testing.T) {
	v := newVerifier(t, false)

	other, err := auth.NewVerifier(auth.Config{Secret: "another-secret"})
	require.NoError(t, err)
	foreign, err := other.Issue("ops", []string{auth.RoleOperator}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(foreign)
	assert.Error(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Roles: []string{auth.RoleOperator},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.DefaultIssuer,
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = v.Verify(signed)
	assert.Error(t, err)

	wrongIssuer := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err = wrongIssuer.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = v.Verify(signed)
	assert.Error(t, err)
}

func TestDevPrincipalHeader(t *testing.T) {
	v := newVerifier(t, true)
	rec := serve(protected(v, auth.RoleOperator), auth.DevPrincipalHeader, "local-dev")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "local-dev", rec.Header().Get("X-Subject"))
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := auth.NewVerifier(auth.Config{})
	assert.Error(t, err)

	v, err := auth.NewVerifier(auth.Config{DevAllowLocal: true})
	require.NoError(t, err)
	_, err = v.Issue("ops", nil, time.Hour)
	assert.Error(t, err)
}

package policy

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func newTestEngine(secret string) *Engine {
	e := NewEngine(secret)
	e.LoadTenants([]TenantConfig{
		{
			TenantID:       "acme",
			APIKey:         "key-acme",
			AllowedRegions: []string{"us-east-1", "eu-west-1"},
			MaxTTLSeconds:  int64Ptr(3600),
		},
		{
			TenantID: "open",
			APIKey:   "key-open",
		},
	})
	return e
}

func TestValidateAPIKey(t *testing.T) {
	e := newTestEngine("")

	assert.NoError(t, e.ValidateAPIKey("acme", "key-acme"))

	err := e.ValidateAPIKey("acme", "wrong")
	require.Error(t, err)
	assert.EqualError(t, err, "Invalid API key")

	err = e.ValidateAPIKey("ghost", "key-acme")
	require.Error(t, err)
	assert.EqualError(t, err, "Unknown tenant")
}

func TestValidateTTL(t *testing.T) {
	e := newTestEngine("")

	assert.NoError(t, e.ValidateTTL("acme", nil))
	assert.NoError(t, e.ValidateTTL("acme", int64Ptr(3600)))
	assert.NoError(t, e.ValidateTTL("open", int64Ptr(999999)), "tenant without ceiling passes")
	assert.NoError(t, e.ValidateTTL("ghost", int64Ptr(999999)), "unknown tenant passes")

	err := e.ValidateTTL("acme", int64Ptr(7200))
	require.Error(t, err)
	assert.EqualError(t, err, "TTL 7200 exceeds maximum allowed 3600 for tenant acme")
}

func TestValidateRegion(t *testing.T) {
	e := newTestEngine("")

	assert.NoError(t, e.ValidateRegion("acme", "us-east-1"))
	assert.NoError(t, e.ValidateRegion("acme", ""), "requests without a region pass")
	assert.NoError(t, e.ValidateRegion("open", "mars-1"), "tenant without allow-list passes")
	assert.NoError(t, e.ValidateRegion("ghost", "mars-1"))

	err := e.ValidateRegion("acme", "ap-south-2")
	require.Error(t, err)
	assert.EqualError(t, err, "Region ap-south-2 not allowed for tenant acme")
}

func TestValidateCompliancePassesThrough(t *testing.T) {
	e := newTestEngine("")
	e.AddTenant(TenantConfig{
		TenantID:             "strict",
		APIKey:               "k",
		RequirePHICompliance: true,
		RequirePIICompliance: true,
	})

	assert.NoError(t, e.ValidateCompliance("strict", true, true))
	assert.NoError(t, e.ValidateCompliance("ghost", true, true))
}

func TestAddTenantAtRuntime(t *testing.T) {
	e := newTestEngine("")
	require.Error(t, e.ValidateAPIKey("late", "k"))

	e.AddTenant(TenantConfig{TenantID: "late", APIKey: "k"})
	assert.NoError(t, e.ValidateAPIKey("late", "k"))

	// Replacing rotates the key.
	e.AddTenant(TenantConfig{TenantID: "late", APIKey: "k2"})
	assert.Error(t, e.ValidateAPIKey("late", "k"))
	assert.NoError(t, e.ValidateAPIKey("late", "k2"))
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestValidateJWT(t *testing.T) {
	const secret = "test-secret"

	t.Run("not configured", func(t *testing.T) {
		_, err := newTestEngine("").ValidateJWT("whatever")
		require.Error(t, err)
		assert.EqualError(t, err, "JWT validation not configured")
	})

	t.Run("valid token", func(t *testing.T) {
		e := newTestEngine(secret)
		token := signToken(t, secret, jwt.SigningMethodHS256, Claims{
			Scopes: []string{"cache:read"},
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "acme",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})

		claims, err := e.ValidateJWT(token)
		require.NoError(t, err)
		assert.Equal(t, "acme", claims.Subject)
		assert.Equal(t, []string{"cache:read"}, claims.Scopes)
	})

	t.Run("expired token", func(t *testing.T) {
		e := newTestEngine(secret)
		token := signToken(t, secret, jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "acme",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		})

		_, err := e.ValidateJWT(token)
		assert.Error(t, err)
	})

	t.Run("missing expiration rejected", func(t *testing.T) {
		e := newTestEngine(secret)
		token := signToken(t, secret, jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject: "acme",
		})

		_, err := e.ValidateJWT(token)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		e := newTestEngine(secret)
		token := signToken(t, "other-secret", jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "acme",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})

		_, err := e.ValidateJWT(token)
		assert.Error(t, err)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		e := newTestEngine(secret)
		token := signToken(t, secret, jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject:   "acme",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})

		_, err := e.ValidateJWT(token)
		assert.Error(t, err)
	})
}

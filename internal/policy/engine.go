// Package policy enforces multi-tenant access control: API key and JWT
// authentication, TTL ceilings, regional restrictions, and compliance gates.
package policy

import (
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/memophor/scedge/internal/apperr"
)

// TenantConfig describes one tenant's credentials and limits.
type TenantConfig struct {
	TenantID             string   `json:"tenant_id" yaml:"tenant_id"`
	APIKey               string   `json:"api_key" yaml:"api_key"`
	AllowedRegions       []string `json:"allowed_regions,omitempty" yaml:"allowed_regions,omitempty"`
	MaxTTLSeconds        *int64   `json:"max_ttl_seconds,omitempty" yaml:"max_ttl_seconds,omitempty"`
	RequirePHICompliance bool     `json:"require_phi_compliance,omitempty" yaml:"require_phi_compliance,omitempty"`
	RequirePIICompliance bool     `json:"require_pii_compliance,omitempty" yaml:"require_pii_compliance,omitempty"`
}

// Claims is the JWT payload accepted by ValidateJWT. The subject is a
// tenant id.
type Claims struct {
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// Engine holds the tenant registry. Reads are frequent and concurrent;
// writes (AddTenant) are rare and may briefly block readers.
type Engine struct {
	mu        sync.RWMutex
	tenants   map[string]TenantConfig
	jwtSecret string
}

// NewEngine creates an empty registry. An empty jwtSecret disables JWT
// validation.
func NewEngine(jwtSecret string) *Engine {
	return &Engine{
		tenants:   make(map[string]TenantConfig),
		jwtSecret: jwtSecret,
	}
}

// LoadTenants merges a batch of tenant configurations, typically at boot.
func (e *Engine) LoadTenants(tenants []TenantConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, tenant := range tenants {
		e.tenants[tenant.TenantID] = tenant
	}
}

// AddTenant registers or replaces a single tenant at runtime.
func (e *Engine) AddTenant(tenant TenantConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tenants[tenant.TenantID] = tenant
}

// GetTenant returns the configuration for a tenant id.
func (e *Engine) GetTenant(tenantID string) (TenantConfig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tenant, ok := e.tenants[tenantID]
	return tenant, ok
}

// ValidateAPIKey rejects unknown tenants and key mismatches. Both surface
// as bad requests; the service does not distinguish 401 from 400.
func (e *Engine) ValidateAPIKey(tenantID, apiKey string) error {
	tenant, ok := e.GetTenant(tenantID)
	if !ok {
		return apperr.BadRequest("Unknown tenant")
	}
	if tenant.APIKey != apiKey {
		return apperr.BadRequest("Invalid API key")
	}
	return nil
}

// ValidateTTL rejects a requested TTL above the tenant's ceiling. An absent
// tenant, absent ceiling, or absent TTL passes.
func (e *Engine) ValidateTTL(tenantID string, ttlSeconds *int64) error {
	if ttlSeconds == nil {
		return nil
	}
	tenant, ok := e.GetTenant(tenantID)
	if !ok || tenant.MaxTTLSeconds == nil {
		return nil
	}
	if *ttlSeconds > *tenant.MaxTTLSeconds {
		return apperr.BadRequest("TTL %d exceeds maximum allowed %d for tenant %s",
			*ttlSeconds, *tenant.MaxTTLSeconds, tenantID)
	}
	return nil
}

// ValidateRegion rejects a region outside the tenant's allow-list. Tenants
// without an allow-list, and requests without a region, pass.
func (e *Engine) ValidateRegion(tenantID, region string) error {
	tenant, ok := e.GetTenant(tenantID)
	if !ok || len(tenant.AllowedRegions) == 0 || region == "" {
		return nil
	}
	for _, allowed := range tenant.AllowedRegions {
		if allowed == region {
			return nil
		}
	}
	return apperr.BadRequest("Region %s not allowed for tenant %s", region, tenantID)
}

// ValidateCompliance is a pass-through gate today: it logs but does not
// reject. It stays on the store path so tightening to enforcement is a
// one-line change.
func (e *Engine) ValidateCompliance(tenantID string, hasPHI, hasPII bool) error {
	tenant, ok := e.GetTenant(tenantID)
	if !ok {
		return nil
	}
	if tenant.RequirePHICompliance && hasPHI {
		log.Debug().Str("tenant_id", tenantID).Msg("PHI compliance check passed")
	}
	if tenant.RequirePIICompliance && hasPII {
		log.Debug().Str("tenant_id", tenantID).Msg("PII compliance check passed")
	}
	return nil
}

// ValidateJWT verifies an HMAC-SHA256 token and its expiration. Only usable
// when a secret has been configured.
func (e *Engine) ValidateJWT(token string) (*Claims, error) {
	if e.jwtSecret == "" {
		return nil, apperr.BadRequest("JWT validation not configured")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(e.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, apperr.BadRequest("Invalid JWT: %v", err)
	}
	return claims, nil
}

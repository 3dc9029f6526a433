// Package model defines the knowledge artifact data model and the request
// and response shapes of the cache API. The answer, metrics, and metadata
// fields are opaque to the cache and round-trip byte for byte.
package model

import (
	"encoding/json"
	"time"
)

// PolicyContext carries the access-control and compliance attributes of an
// artifact. Every artifact belongs to exactly one tenant.
type PolicyContext struct {
	Tenant         string   `json:"tenant"`
	PHI            bool     `json:"phi,omitempty"`
	PII            bool     `json:"pii,omitempty"`
	Region         string   `json:"region,omitempty"`
	ComplianceTags []string `json:"compliance_tags,omitempty"`
}

// ProvenanceInfo is one lineage entry linking an artifact to a source
// document or upstream record. Invalidation scans these.
type ProvenanceInfo struct {
	Source      string     `json:"source"`
	Hash        string     `json:"hash,omitempty"`
	Version     string     `json:"version,omitempty"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// ArtifactPayload is the opaque unit of caching.
type ArtifactPayload struct {
	// Answer is never inspected by the cache.
	Answer json.RawMessage `json:"answer"`

	Policy PolicyContext `json:"policy"`

	Provenance []ProvenanceInfo `json:"provenance,omitempty"`

	// Metrics is an optional quality/score envelope, passed through as-is.
	Metrics json.RawMessage `json:"metrics,omitempty"`

	// TTLSeconds of nil or 0 means "use the service default".
	TTLSeconds *int64 `json:"ttl_seconds,omitempty"`

	// Hash is the artifact identity used for provenance matching.
	Hash string `json:"hash"`

	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// CachedArtifact is the stored record. A nil ExpiresAt means the record does
// not expire at the cache layer.
type CachedArtifact struct {
	Key       string          `json:"key"`
	Artifact  ArtifactPayload `json:"artifact"`
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// TTLRemainingSeconds returns the whole seconds until expiry, clamped at
// zero, or nil for non-expiring records.
func (c *CachedArtifact) TTLRemainingSeconds(now time.Time) *int64 {
	if c.ExpiresAt == nil {
		return nil
	}
	remaining := int64(c.ExpiresAt.Sub(now) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// StoreRequest is the body of POST /store.
type StoreRequest struct {
	Key      string          `json:"key"`
	Artifact ArtifactPayload `json:"artifact"`
}

// StoreStatusCreated is the only status the store endpoint reports; the
// cache does not distinguish create from overwrite at this layer.
const StoreStatusCreated = "created"

// StoreResponse is the body returned by POST /store.
type StoreResponse struct {
	Key       string     `json:"key"`
	Status    string     `json:"status"`
	Hash      string     `json:"hash"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// LookupResponse is returned by GET /lookup and is also the wire shape of an
// upstream lookup response during hydration.
type LookupResponse struct {
	Key                 string          `json:"key"`
	Artifact            ArtifactPayload `json:"artifact"`
	ExpiresAt           *time.Time      `json:"expires_at,omitempty"`
	TTLRemainingSeconds *int64          `json:"ttl_remaining_seconds,omitempty"`
}

// PurgeRequest selects records by exactly one discriminator. When more than
// one is supplied, keys win, then tenant, then provenance hash.
type PurgeRequest struct {
	Keys           []string `json:"keys,omitempty"`
	Tenant         string   `json:"tenant,omitempty"`
	ProvenanceHash string   `json:"provenance_hash,omitempty"`
}

// PurgeResponse reports how many records were removed.
type PurgeResponse struct {
	Purged int `json:"purged"`
}

// Package api implements the HTTP surface of the cache: store, lookup with
// upstream hydration, purge, health, and metrics.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/memophor/scedge/internal/apperr"
	"github.com/memophor/scedge/internal/cache"
	"github.com/memophor/scedge/internal/metrics"
	"github.com/memophor/scedge/internal/model"
	"github.com/memophor/scedge/internal/policy"
	"github.com/memophor/scedge/internal/upstream"
)

const apiKeyHeader = "x-api-key"

// Handlers composes the cache facade, policy engine, metrics, and the
// optional upstream client into the request pipeline.
type Handlers struct {
	cache             *cache.Cache
	policy            *policy.Engine
	metrics           *metrics.Metrics
	upstream          *upstream.Client // nil when hydration is not configured
	defaultTTLSeconds int64
	version           string

	now func() time.Time
}

// NewHandlers wires the pipeline. upstreamClient may be nil.
func NewHandlers(c *cache.Cache, p *policy.Engine, m *metrics.Metrics, upstreamClient *upstream.Client, defaultTTLSeconds int64, version string) *Handlers {
	return &Handlers{
		cache:             c,
		policy:            p,
		metrics:           m,
		upstream:          upstreamClient,
		defaultTTLSeconds: defaultTTLSeconds,
		version:           version,
		now:               time.Now,
	}
}

// Health reports service liveness and backend reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	backend := "healthy"
	if err := h.cache.Ping(r.Context()); err != nil {
		backend = "unreachable"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "scedge",
		"version": h.version,
		"backend": backend,
	})
}

// Store validates the artifact against tenant policy, computes the final
// expiry, and writes the record. The response always reports "created"; the
// cache does not distinguish create from overwrite.
func (h *Handlers) Store(w http.ResponseWriter, r *http.Request) {
	var req model.StoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.BadRequest("invalid JSON body"))
		return
	}

	if strings.TrimSpace(req.Key) == "" {
		writeError(w, apperr.BadRequest("key is required"))
		return
	}
	if strings.TrimSpace(req.Artifact.Hash) == "" {
		writeError(w, apperr.BadRequest("artifact hash is required"))
		return
	}
	tenantID := req.Artifact.Policy.Tenant
	if strings.TrimSpace(tenantID) == "" {
		writeError(w, apperr.BadRequest("artifact tenant is required"))
		return
	}
	if req.Artifact.TTLSeconds != nil && *req.Artifact.TTLSeconds < 0 {
		writeError(w, apperr.BadRequest("ttl_seconds must be non-negative"))
		return
	}

	if apiKey := r.Header.Get(apiKeyHeader); apiKey != "" {
		if err := h.policy.ValidateAPIKey(tenantID, apiKey); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := h.policy.ValidateTTL(tenantID, req.Artifact.TTLSeconds); err != nil {
		writeError(w, err)
		return
	}
	if err := h.policy.ValidateRegion(tenantID, req.Artifact.Policy.Region); err != nil {
		writeError(w, err)
		return
	}
	if err := h.policy.ValidateCompliance(tenantID, req.Artifact.Policy.PHI, req.Artifact.Policy.PII); err != nil {
		writeError(w, err)
		return
	}

	// An explicit ttl_seconds of 0 means "use the default", same as absent.
	effectiveTTL := h.defaultTTLSeconds
	if req.Artifact.TTLSeconds != nil && *req.Artifact.TTLSeconds > 0 {
		effectiveTTL = *req.Artifact.TTLSeconds
	}

	artifact := req.Artifact
	var expiresAt *time.Time
	if effectiveTTL > 0 {
		deadline := h.now().UTC().Add(time.Duration(effectiveTTL) * time.Second)
		expiresAt = &deadline
	}
	if artifact.TTLSeconds != nil && *artifact.TTLSeconds == 0 {
		artifact.TTLSeconds = nil
	}

	cached, err := h.cache.Set(r.Context(), req.Key, artifact, expiresAt)
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.RecordCacheStore()
	writeJSON(w, http.StatusOK, model.StoreResponse{
		Key:       cached.Key,
		Status:    model.StoreStatusCreated,
		Hash:      cached.Artifact.Hash,
		ExpiresAt: cached.ExpiresAt,
	})
}

// Lookup serves a record from the cache, hydrating from upstream on miss
// when an upstream is configured. A tenant-mismatched hit is reported as a
// plain miss, never as a distinct error.
func (h *Handlers) Lookup(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if strings.TrimSpace(key) == "" {
		writeError(w, apperr.BadRequest("key query parameter is required"))
		return
	}
	tenantParam := r.URL.Query().Get("tenant")
	apiKey := r.Header.Get(apiKeyHeader)

	record, err := h.cache.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}

	if record != nil {
		if tenantParam != "" && tenantParam != record.Artifact.Policy.Tenant {
			h.metrics.RecordCacheMiss()
			writeError(w, apperr.NotFound("cache miss"))
			return
		}
		if apiKey != "" {
			if err := h.policy.ValidateAPIKey(record.Artifact.Policy.Tenant, apiKey); err != nil {
				writeError(w, err)
				return
			}
		}

		h.metrics.RecordCacheHit()
		writeJSON(w, http.StatusOK, model.LookupResponse{
			Key:                 record.Key,
			Artifact:            record.Artifact,
			ExpiresAt:           record.ExpiresAt,
			TTLRemainingSeconds: record.TTLRemainingSeconds(h.now()),
		})
		return
	}

	h.metrics.RecordCacheMiss()
	if h.upstream == nil {
		writeError(w, apperr.NotFound("cache miss"))
		return
	}
	h.hydrate(w, r, key, tenantParam, apiKey)
}

// hydrate performs the upstream fetch on a miss and populates the cache.
// Upstream failures never poison the cache: nothing is written unless a
// well-formed response was received.
func (h *Handlers) hydrate(w http.ResponseWriter, r *http.Request, key, tenantParam, apiKey string) {
	h.metrics.RecordUpstreamRequest()
	start := time.Now()

	upstreamRecord, err := h.upstream.Lookup(r.Context(), key, tenantParam)
	h.metrics.ObserveUpstreamLatency(time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordUpstreamFailure()
		writeError(w, err)
		return
	}
	if upstreamRecord == nil {
		writeError(w, apperr.NotFound("cache miss"))
		return
	}

	tenantID := upstreamRecord.Artifact.Policy.Tenant
	if tenantParam != "" && tenantParam != tenantID {
		// Tenant confusion from upstream is an operational anomaly, not
		// just a miss.
		log.Warn().
			Str("requested", tenantParam).
			Str("upstream", tenantID).
			Str("key", key).
			Msg("Tenant mismatch between request and upstream response")
		h.metrics.RecordUpstreamFailure()
		writeError(w, apperr.NotFound("cache miss"))
		return
	}
	if apiKey != "" {
		if err := h.policy.ValidateAPIKey(tenantID, apiKey); err != nil {
			writeError(w, err)
			return
		}
	}

	now := h.now().UTC()
	expiresAt := upstreamRecord.ExpiresAt
	if expiresAt == nil && upstreamRecord.TTLRemainingSeconds != nil && *upstreamRecord.TTLRemainingSeconds > 0 {
		deadline := now.Add(time.Duration(*upstreamRecord.TTLRemainingSeconds) * time.Second)
		expiresAt = &deadline
	}
	if expiresAt == nil && upstreamRecord.Artifact.TTLSeconds != nil && *upstreamRecord.Artifact.TTLSeconds > 0 {
		deadline := now.Add(time.Duration(*upstreamRecord.Artifact.TTLSeconds) * time.Second)
		expiresAt = &deadline
	}
	if expiresAt == nil && h.defaultTTLSeconds > 0 {
		deadline := now.Add(time.Duration(h.defaultTTLSeconds) * time.Second)
		expiresAt = &deadline
	}

	// Keep the stored ttl_seconds consistent with the expiry actually
	// applied.
	artifact := upstreamRecord.Artifact
	if expiresAt != nil {
		ttl := int64(expiresAt.Sub(now) / time.Second)
		artifact.TTLSeconds = &ttl
	} else {
		artifact.TTLSeconds = nil
	}

	cached, err := h.cache.Set(r.Context(), key, artifact, expiresAt)
	if err != nil {
		writeError(w, err)
		return
	}
	h.metrics.RecordCacheStore()
	log.Debug().Str("key", cached.Key).Msg("Cached artifact from upstream")

	writeJSON(w, http.StatusOK, model.LookupResponse{
		Key:                 cached.Key,
		Artifact:            cached.Artifact,
		ExpiresAt:           cached.ExpiresAt,
		TTLRemainingSeconds: cached.TTLRemainingSeconds(h.now()),
	})
}

// Purge removes records by explicit keys, by tenant, or by provenance hash.
// When more than one discriminator is supplied, keys win, then tenant, then
// provenance.
func (h *Handlers) Purge(w http.ResponseWriter, r *http.Request) {
	var req model.PurgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.BadRequest("invalid JSON body"))
		return
	}

	if req.Tenant != "" {
		if apiKey := r.Header.Get(apiKeyHeader); apiKey != "" {
			if err := h.policy.ValidateAPIKey(req.Tenant, apiKey); err != nil {
				writeError(w, err)
				return
			}
		}
	}

	var purged int
	var err error

	switch {
	case len(req.Keys) > 0:
		purged, err = h.cache.DeleteMany(r.Context(), req.Keys)

	case req.Tenant != "":
		var keys []string
		keys, err = h.cache.ScanByPattern(r.Context(), req.Tenant+":*")
		if err == nil {
			purged, err = h.cache.DeleteMany(r.Context(), keys)
		}

	case req.ProvenanceHash != "":
		purged, err = h.purgeByProvenance(r, req.ProvenanceHash)

	default:
		writeError(w, apperr.BadRequest("must specify keys, tenant, or provenance_hash"))
		return
	}

	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.RecordCachePurge(purged)
	writeJSON(w, http.StatusOK, model.PurgeResponse{Purged: purged})
}

// purgeByProvenance scans the whole keyspace and removes records whose
// artifact hash equals the supplied hash or whose provenance chain contains
// it.
func (h *Handlers) purgeByProvenance(r *http.Request, hash string) (int, error) {
	keys, err := h.cache.ScanByPattern(r.Context(), "*")
	if err != nil {
		return 0, err
	}

	var toPurge []string
	for _, key := range keys {
		record, err := h.cache.Get(r.Context(), key)
		if err != nil || record == nil {
			continue
		}
		if record.Artifact.Hash == hash {
			toPurge = append(toPurge, key)
			continue
		}
		for _, prov := range record.Artifact.Provenance {
			if prov.Hash != "" && prov.Hash == hash {
				toPurge = append(toPurge, key)
				break
			}
		}
	}
	return h.cache.DeleteMany(r.Context(), toPurge)
}

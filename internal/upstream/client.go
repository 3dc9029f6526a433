// Package upstream hydrates cache misses from the authoritative knowledge
// service. A single lookup call with a bounded timeout, wrapped in a circuit
// breaker so a failing upstream sheds load quickly.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/memophor/scedge/internal/apperr"
	"github.com/memophor/scedge/internal/model"
)

// Config selects the upstream endpoint and the per-request timeout.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client issues lookup calls against <base_url>/lookup.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// New builds a client. The breaker trips on three consecutive failures or a
// sustained failure rate above 5%.
func New(cfg Config) *Client {
	settings := gobreaker.Settings{Name: "upstream"}
	settings.Interval = 60 * time.Second
	settings.Timeout = 60 * time.Second
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Lookup fetches a record for key. A 404 from upstream is a plain miss
// (nil, nil); any other non-2xx status, transport error, parse error, or an
// open breaker is internal.
func (c *Client) Lookup(ctx context.Context, key, tenant string) (*model.LookupResponse, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.doLookup(ctx, key, tenant)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperr.Internalf("upstream circuit open: %w", err)
		}
		return nil, apperr.As(err)
	}
	return result.(*model.LookupResponse), nil
}

func (c *Client) doLookup(ctx context.Context, key, tenant string) (*model.LookupResponse, error) {
	query := url.Values{"key": {key}}
	if tenant != "" {
		query.Set("tenant", tenant)
	}
	endpoint := fmt.Sprintf("%s/lookup?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.Internalf("build upstream request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Internalf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		log.Debug().Str("key", key).Msg("Upstream returned miss")
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Internalf("upstream returned unexpected status %d", resp.StatusCode)
	}

	var payload model.LookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperr.Internalf("parse upstream response: %w", err)
	}
	return &payload, nil
}

package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"time"

	"github.com/FranksOps/prospector/internal/cache"
	"github.com/FranksOps/prospector/internal/provider"
)

// ProviderName labels authority errors and metrics.
const ProviderName = "ahrefs"

// Site explorer operations used by the pipeline.
const (
	OpDomainRating   = "domain-rating"
	OpBacklinksStats = "backlinks-stats"
	OpAllBacklinks   = "all-backlinks"
)

// DefaultBacklinkThreshold is the minimum source authority for backlinks.
const DefaultBacklinkThreshold = 90

// Client performs one live site explorer call and returns the raw body.
type Client interface {
	Fetch(ctx context.Context, operation string, params url.Values) ([]byte, error)
}

// RawBacklink is one row of an all-backlinks response.
type RawBacklink struct {
	DomainRatingSource float64 `json:"domain_rating_source"`
	URLFrom            string  `json:"url_from"`
	IsDofollow         *bool   `json:"is_dofollow,omitempty"`
}

// Explorer is the cache-backed authority provider used by the pipeline.
// Every response is cached under ahrefs/<operation>/<target>. The request
// date is not part of the key.
type Explorer struct {
	client    Client
	store     cache.Store
	threshold float64
	now       func() time.Time
	logger    *slog.Logger
}

// ExplorerConfig configures an Explorer.
type ExplorerConfig struct {
	// BacklinkThreshold is the minimum domain_rating_source requested from
	// all-backlinks. It is sent as given; 0 asks for every source.
	BacklinkThreshold float64
	// Now supplies the request date (defaults to time.Now).
	Now func() time.Time
}

// NewExplorer wraps client with store. A nil store disables caching.
func NewExplorer(client Client, store cache.Store, cfg ExplorerConfig, logger *slog.Logger) *Explorer {
	if store == nil {
		store = cache.Disabled{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Explorer{
		client:    client,
		store:     store,
		threshold: cfg.BacklinkThreshold,
		now:       cfg.Now,
		logger:    logger,
	}
}

// Threshold returns the configured backlink authority threshold.
func (e *Explorer) Threshold() float64 {
	return e.threshold
}

type domainRatingResponse struct {
	DomainRating *struct {
		DomainRating *float64 `json:"domain_rating"`
	} `json:"domain_rating"`
}

type backlinksStatsResponse struct {
	Metrics *struct {
		LiveRefdomains *float64 `json:"live_refdomains"`
	} `json:"metrics"`
}

type allBacklinksResponse struct {
	Backlinks *[]RawBacklink `json:"backlinks"`
}

// DomainRating returns domain_rating.domain_rating for target.
func (e *Explorer) DomainRating(ctx context.Context, target string) (float64, error) {
	var out float64
	err := e.fetch(ctx, OpDomainRating, target, e.datedParams(target), func(payload []byte) error {
		var r domainRatingResponse
		if err := json.Unmarshal(payload, &r); err != nil {
			return provider.Malformed(ProviderName, OpDomainRating, target, err.Error())
		}
		if r.DomainRating == nil || r.DomainRating.DomainRating == nil {
			return provider.Malformed(ProviderName, OpDomainRating, target, "missing domain_rating.domain_rating")
		}
		out = *r.DomainRating.DomainRating
		return nil
	})
	return out, err
}

// RefDomains returns metrics.live_refdomains for target.
func (e *Explorer) RefDomains(ctx context.Context, target string) (int, error) {
	var out int
	err := e.fetch(ctx, OpBacklinksStats, target, e.datedParams(target), func(payload []byte) error {
		var r backlinksStatsResponse
		if err := json.Unmarshal(payload, &r); err != nil {
			return provider.Malformed(ProviderName, OpBacklinksStats, target, err.Error())
		}
		if r.Metrics == nil || r.Metrics.LiveRefdomains == nil {
			return provider.Malformed(ProviderName, OpBacklinksStats, target, "missing metrics.live_refdomains")
		}
		v := *r.Metrics.LiveRefdomains
		if v < 0 || v != math.Trunc(v) {
			return provider.Malformed(ProviderName, OpBacklinksStats, target, fmt.Sprintf("live_refdomains %v is not a count", v))
		}
		out = int(v)
		return nil
	})
	return out, err
}

// Backlinks returns the live, followed backlinks of target from sources at or
// above the threshold, one per source domain as aggregated by the provider.
// The list is raw; use AggregateBacklinks to normalize and filter it.
func (e *Explorer) Backlinks(ctx context.Context, target string) ([]RawBacklink, error) {
	where, err := json.Marshal(map[string]any{
		"and": []any{
			map[string]any{"field": "is_dofollow", "is": []any{"eq", true}},
			map[string]any{"field": "domain_rating_source", "is": []any{"gte", e.threshold}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ahrefs: encode filter: %w", err)
	}

	params := url.Values{}
	params.Set("target", target)
	params.Set("where", string(where))
	params.Set("select", "domain_rating_source,url_from,is_dofollow")
	params.Set("aggregation", "1_per_domain")
	params.Set("history", "live")

	var out []RawBacklink
	err = e.fetch(ctx, OpAllBacklinks, target, params, func(payload []byte) error {
		var r allBacklinksResponse
		if err := json.Unmarshal(payload, &r); err != nil {
			return provider.Malformed(ProviderName, OpAllBacklinks, target, err.Error())
		}
		if r.Backlinks == nil {
			return provider.Malformed(ProviderName, OpAllBacklinks, target, "missing backlinks")
		}
		out = *r.Backlinks
		return nil
	})
	return out, err
}

func (e *Explorer) datedParams(target string) url.Values {
	params := url.Values{}
	params.Set("target", target)
	params.Set("date", e.now().Format("2006-01-02"))
	return params
}

// fetch runs one operation through the cache. decode validates the live
// payload before it is cached and decodes whichever payload is returned.
func (e *Explorer) fetch(ctx context.Context, op, target string, params url.Values, decode func([]byte) error) error {
	key := cache.Key{Namespace: ProviderName + "/" + op, Name: target}
	payload, err := cache.Through(ctx, e.store, key, func(ctx context.Context) ([]byte, error) {
		e.logger.Debug("querying authority provider", "operation", op, "target", target)
		raw, err := e.client.Fetch(ctx, op, params)
		if err != nil {
			return nil, err
		}
		if err := decode(raw); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return decode(payload)
}

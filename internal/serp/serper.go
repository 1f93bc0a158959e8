package serp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/FranksOps/prospector/internal/metrics"
	"github.com/FranksOps/prospector/internal/provider"
	"github.com/FranksOps/prospector/pkg/httpclient"
	"github.com/FranksOps/prospector/pkg/ratelimit"
)

// DefaultSerperEndpoint is the serper.dev search endpoint.
const DefaultSerperEndpoint = "https://google.serper.dev/search"

// SerperConfig configures the serper.dev client.
type SerperConfig struct {
	APIKey   string
	Endpoint string
	// Country is sent as "gl" (default "us").
	Country string
	Timeout time.Duration
	// RequestsPerSecond throttles live requests (0 = unlimited).
	RequestsPerSecond float64
}

// Serper queries the serper.dev Google search API.
type Serper struct {
	cfg     SerperConfig
	client  *httpclient.Client
	limiter *ratelimit.Limiter
}

// ensure Serper implements Client
var _ Client = (*Serper)(nil)

// NewSerper creates a serper.dev client.
func NewSerper(cfg SerperConfig) (*Serper, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("serper: API key is missing")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultSerperEndpoint
	}
	if cfg.Country == "" {
		cfg.Country = "us"
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout: cfg.Timeout,
		Header: http.Header{
			"X-Api-Key":    {cfg.APIKey},
			"Content-Type": {"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("serper: %w", err)
	}

	return &Serper{
		cfg:     cfg,
		client:  client,
		limiter: ratelimit.NewLimiter(cfg.RequestsPerSecond, 0),
	}, nil
}

type serperRequest struct {
	Q   string `json:"q"`
	GL  string `json:"gl"`
	Num int    `json:"num"`
}

// Query sends one search and returns the raw JSON body. Any non-2xx answer
// is a provider.Error.
func (s *Serper) Query(ctx context.Context, query string, maxResults int) ([]byte, error) {
	body, err := json.Marshal(serperRequest{Q: query, GL: s.cfg.Country, Num: maxResults})
	if err != nil {
		return nil, fmt.Errorf("serper: encode request: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("serper: build request: %w", err)
	}

	status, payload, err := s.client.Fetch(ctx, req)
	metrics.RecordProvider(ProviderName, "search", status)
	if err != nil {
		return nil, &provider.Error{Provider: ProviderName, Operation: "search", Target: query, Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &provider.Error{Provider: ProviderName, Operation: "search", Target: query, StatusCode: status}
	}
	return payload, nil
}

// Close releases the client's rate limiter.
func (s *Serper) Close() {
	s.limiter.Stop()
}

package authority

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/prospector/internal/metrics"
	"github.com/FranksOps/prospector/internal/provider"
	"github.com/FranksOps/prospector/pkg/httpclient"
	"github.com/FranksOps/prospector/pkg/ratelimit"
)

// DefaultAhrefsEndpoint is the base URL of the Ahrefs v3 site explorer API.
const DefaultAhrefsEndpoint = "https://api.ahrefs.com/v3/site-explorer/"

// AhrefsConfig configures the Ahrefs client.
type AhrefsConfig struct {
	APIKey            string
	Endpoint          string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Ahrefs calls the Ahrefs site explorer API.
type Ahrefs struct {
	endpoint string
	client   *httpclient.Client
	limiter  *ratelimit.Limiter
}

// ensure Ahrefs implements Client
var _ Client = (*Ahrefs)(nil)

// NewAhrefs creates an Ahrefs client.
func NewAhrefs(cfg AhrefsConfig) (*Ahrefs, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ahrefs: API key is missing")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultAhrefsEndpoint
	}
	if !strings.HasSuffix(cfg.Endpoint, "/") {
		cfg.Endpoint += "/"
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout: cfg.Timeout,
		Header: http.Header{
			"Accept":        {"application/json"},
			"Authorization": {"Bearer " + cfg.APIKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ahrefs: %w", err)
	}

	return &Ahrefs{
		endpoint: cfg.Endpoint,
		client:   client,
		limiter:  ratelimit.NewLimiter(cfg.RequestsPerSecond, 0),
	}, nil
}

// Fetch issues GET <endpoint><operation>?<params> and returns the raw body.
// Any non-2xx answer is a provider.Error.
func (a *Ahrefs) Fetch(ctx context.Context, operation string, params url.Values) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := params.Get("target")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+operation+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("ahrefs: build request: %w", err)
	}

	status, payload, err := a.client.Fetch(ctx, req)
	metrics.RecordProvider(ProviderName, operation, status)
	if err != nil {
		return nil, &provider.Error{Provider: ProviderName, Operation: operation, Target: target, Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &provider.Error{
			Provider:   ProviderName,
			Operation:  operation,
			Target:     target,
			StatusCode: status,
			Err:        errors.New(strings.TrimSpace(string(truncate(payload, 200)))),
		}
	}
	return payload, nil
}

// Close releases the client's rate limiter.
func (a *Ahrefs) Close() {
	a.limiter.Stop()
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/prospector/internal/bypass"
	"github.com/FranksOps/prospector/internal/fingerprint"
	"github.com/FranksOps/prospector/internal/metrics"
	"github.com/FranksOps/prospector/pkg/httpclient"
	"github.com/FranksOps/prospector/pkg/proxy"
	"github.com/FranksOps/prospector/pkg/ratelimit"
	"github.com/FranksOps/prospector/pkg/useragent"
	"github.com/google/uuid"
)

type proxyCtxKey struct{}

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	// MaxBody caps how much of each response is kept. Default 2 MiB.
	MaxBody     int64
	Proxies     *proxy.Pool
	UserAgents  *useragent.Rotator
	Fingerprint fingerprint.Profile
	Limiter     *ratelimit.Limiter
	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool
}

// Fetcher retrieves single pages with a browser-like TLS fingerprint,
// rotating User-Agents and proxies per request.
type Fetcher struct {
	cfg    FetchConfig
	client *httpclient.Client
}

// NewFetcher builds a Fetcher. One transport is shared by every request so
// connections and cookies are reused.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 2 << 20
	}
	if cfg.UserAgents == nil {
		cfg.UserAgents = useragent.NewRotator(useragent.Sequential, nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, fingerprint.Options{
		Proxy:              proxyFromContext,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
		Header: http.Header{
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
			"Accept-Language": {"en-US,en;q=0.5"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: %w", err)
	}
	return &Fetcher{cfg: cfg, client: client}, nil
}

// proxyFromContext uses the proxy chosen for the request, falling back to
// the environment.
func proxyFromContext(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(proxyCtxKey{}).(*url.URL); ok && u != nil {
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}

// Fetch GETs targetURL. The returned error is non-nil only when ctx is done;
// every other failure is reported through Page.Err.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	page := &Page{
		ID:        uuid.NewString(),
		URL:       targetURL,
		FetchedAt: time.Now().UTC(),
	}

	if err := f.cfg.Limiter.Wait(ctx); err != nil {
		return page, err
	}

	start := time.Now()
	defer func() {
		page.Duration = time.Since(start)
		f.record(page)
	}()

	active := f.cfg.Proxies.Next()
	if active != nil {
		ctx = context.WithValue(ctx, proxyCtxKey{}, active)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		page.Err = fmt.Errorf("scraper: %w", err)
		return page, nil
	}
	req.Header.Set("User-Agent", f.cfg.UserAgents.Next())

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		if active != nil {
			_ = f.cfg.Proxies.MarkFailure(active)
			metrics.ProxyFailures.WithLabelValues(active.Redacted()).Inc()
		}
		page.Err = err
		if ctx.Err() != nil {
			return page, ctx.Err()
		}
		return page, nil
	}
	defer resp.Body.Close()

	if active != nil {
		_ = f.cfg.Proxies.MarkSuccess(active)
	}

	page.StatusCode = resp.StatusCode
	page.Header = resp.Header
	page.Body, err = io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBody))
	if err != nil {
		page.Err = fmt.Errorf("scraper: reading %s: %w", targetURL, err)
	}

	page.Blocked, page.BlockedBy = bypass.Analyze(bypass.Response{
		StatusCode: page.StatusCode,
		Headers:    page.Header,
		Body:       page.Body,
	}, bypass.DefaultDetectors())
	return page, nil
}

func (f *Fetcher) record(p *Page) {
	domain := ""
	if u, err := url.Parse(p.URL); err == nil {
		domain = u.Hostname()
	}
	metrics.RecordFetch(domain, metrics.Fetch{
		StatusCode:   p.StatusCode,
		Failed:       p.Err != nil,
		DetectedBot:  p.Blocked,
		DetectionSrc: p.BlockedBy,
		Duration:     p.Duration,
		Bytes:        len(p.Body),
	})
}

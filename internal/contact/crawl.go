package contact

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/FranksOps/prospector/internal/analyzer"
	"github.com/FranksOps/prospector/internal/scraper"
)

// contactHints mark sitemap URLs worth seeding the crawl with.
var contactHints = []string{"contact", "about", "write-for-us", "advertis", "team", "impressum", "editorial"}

// CrawlConfig bounds the crawl performed for each domain.
type CrawlConfig struct {
	MaxDepth    int
	MaxPages    int
	Concurrency int
	// Schemes are tried in order until one yields a readable page.
	// Default https then http.
	Schemes           []string
	RespectRobots     bool
	UserAgent         string
	RequestsPerSecond float64
	Jitter            float64
	// UseSitemap seeds the crawl with contact-like pages from the site's
	// sitemaps.
	UseSitemap bool
	// MaxSitemapSeeds caps the extra seeds. Default 10.
	MaxSitemapSeeds int
}

// CrawlResolver finds contacts by crawling a site and extracting the email
// addresses on its pages.
type CrawlResolver struct {
	fetcher *scraper.Fetcher
	cfg     CrawlConfig
	logger  *slog.Logger
}

var _ Resolver = (*CrawlResolver)(nil)

// NewCrawlResolver returns a CrawlResolver that fetches through fetcher.
func NewCrawlResolver(fetcher *scraper.Fetcher, cfg CrawlConfig, logger *slog.Logger) *CrawlResolver {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 2
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 30
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if len(cfg.Schemes) == 0 {
		cfg.Schemes = []string{"https", "http"}
	}
	if cfg.MaxSitemapSeeds <= 0 {
		cfg.MaxSitemapSeeds = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CrawlResolver{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Resolve crawls domain and returns every address found. A site that cannot
// be reached at all yields an empty set; only cancellation is an error.
func (r *CrawlResolver) Resolve(ctx context.Context, domain string) ([]string, error) {
	host := domain
	if h, _, err := net.SplitHostPort(domain); err == nil {
		host = h
	}

	for _, scheme := range r.cfg.Schemes {
		origin := scheme + "://" + domain
		emails, reached, err := r.crawl(ctx, origin, host)
		if err != nil {
			return nil, err
		}
		if reached {
			return emails, nil
		}
		r.logger.Debug("site unreachable", "origin", origin)
	}
	return []string{}, nil
}

func (r *CrawlResolver) crawl(ctx context.Context, origin, host string) ([]string, bool, error) {
	collector := analyzer.NewCollector()
	var reached atomic.Bool
	crawler := scraper.NewCrawler(scraper.CrawlConfig{
		MaxDepth:          r.cfg.MaxDepth,
		MaxPages:          r.cfg.MaxPages,
		Concurrency:       r.cfg.Concurrency,
		Domains:           []string{host},
		RespectRobots:     r.cfg.RespectRobots,
		UserAgent:         r.cfg.UserAgent,
		RequestsPerSecond: r.cfg.RequestsPerSecond,
		Jitter:            r.cfg.Jitter,
		OnPage: func(p *scraper.Page) {
			if !p.OK() {
				return
			}
			reached.Store(true)
			collector.AddPage(p.Body)
		},
	}, r.fetcher, r.logger)

	seeds := append([]string{origin + "/"}, r.sitemapSeeds(ctx, origin)...)
	if err := crawler.Run(ctx, seeds); err != nil {
		return nil, false, err
	}
	return collector.Emails(), reached.Load(), nil
}

// sitemapSeeds picks contact-like pages out of the site's sitemaps.
func (r *CrawlResolver) sitemapSeeds(ctx context.Context, origin string) []string {
	if !r.cfg.UseSitemap {
		return nil
	}
	sitemaps := scraper.NewRobotsTxtAuditor(r.fetcher, r.logger).Sitemaps(ctx, origin)
	if len(sitemaps) == 0 {
		sitemaps = []string{origin + "/sitemap.xml"}
	}

	sf := scraper.NewSitemapFetcher(r.fetcher, r.logger)
	var seeds []string
	for _, sm := range sitemaps {
		urls, err := sf.FetchSitemap(ctx, sm)
		if err != nil {
			r.logger.Debug("sitemap skipped", "url", sm, "err", err)
			continue
		}
		for _, u := range urls {
			if looksLikeContactPage(u) {
				seeds = append(seeds, u)
				if len(seeds) >= r.cfg.MaxSitemapSeeds {
					return seeds
				}
			}
		}
	}
	return seeds
}

func looksLikeContactPage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, h := range contactHints {
		if strings.Contains(path, h) {
			return true
		}
	}
	return false
}

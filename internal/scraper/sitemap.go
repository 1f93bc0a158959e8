package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	sitemap "github.com/oxffaa/gopher-parse-sitemap"
)

// ErrNotSitemap is returned for a body that is neither a urlset nor a
// sitemap index.
var ErrNotSitemap = errors.New("scraper: not a sitemap or sitemap index")

const maxSitemapNesting = 3

// SitemapFetcher expands sitemaps into page URLs.
type SitemapFetcher struct {
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewSitemapFetcher returns a SitemapFetcher that fetches through fetcher.
func NewSitemapFetcher(fetcher *Fetcher, logger *slog.Logger) *SitemapFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SitemapFetcher{fetcher: fetcher, logger: logger}
}

// FetchSitemap returns the page URLs listed in the sitemap at sitemapURL,
// following sitemap indexes a few levels deep.
func (s *SitemapFetcher) FetchSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	return s.fetch(ctx, sitemapURL, 0)
}

func (s *SitemapFetcher) fetch(ctx context.Context, sitemapURL string, nesting int) ([]string, error) {
	page, err := s.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	if page.Err != nil {
		return nil, fmt.Errorf("scraper: sitemap %s: %w", sitemapURL, page.Err)
	}
	if page.StatusCode >= 400 {
		return nil, fmt.Errorf("scraper: sitemap %s: status %d", sitemapURL, page.StatusCode)
	}

	var urls []string
	parseErr := sitemap.Parse(bytes.NewReader(page.Body), func(e sitemap.Entry) error {
		urls = append(urls, e.GetLocation())
		return nil
	})
	if parseErr == nil && len(urls) > 0 {
		return urls, nil
	}

	var nested []string
	indexErr := sitemap.ParseIndex(bytes.NewReader(page.Body), func(e sitemap.IndexEntry) error {
		nested = append(nested, e.GetLocation())
		return nil
	})
	if indexErr != nil || len(nested) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotSitemap, sitemapURL)
	}
	if nesting >= maxSitemapNesting {
		s.logger.Warn("sitemap index nested too deep", "url", sitemapURL)
		return nil, nil
	}

	for _, n := range nested {
		more, err := s.fetch(ctx, n, nesting+1)
		if err != nil {
			if ctx.Err() != nil {
				return urls, ctx.Err()
			}
			s.logger.Warn("nested sitemap failed", "url", n, "err", err)
			continue
		}
		urls = append(urls, more...)
	}
	return urls, nil
}

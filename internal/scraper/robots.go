package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsTxtAuditor fetches and caches robots.txt per origin.
type RobotsTxtAuditor struct {
	fetcher *Fetcher
	logger  *slog.Logger

	mu    sync.Mutex
	rules map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor returns an auditor that fetches through fetcher.
func NewRobotsTxtAuditor(fetcher *Fetcher, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		fetcher: fetcher,
		logger:  logger,
		rules:   make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether userAgent may fetch targetURL. A robots.txt that
// is missing or unreadable allows everything.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("scraper: robots: %w", err)
	}
	data := r.load(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, nil
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, userAgent), nil
}

// Sitemaps returns the Sitemap entries listed in the robots.txt of origin.
// A bare host is treated as http.
func (r *RobotsTxtAuditor) Sitemaps(ctx context.Context, origin string) []string {
	if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		origin = "http://" + origin
	}
	data := r.load(ctx, strings.TrimSuffix(origin, "/"))
	if data == nil {
		return nil
	}
	return data.Sitemaps
}

// load returns the parsed rules for origin, fetching them on first use.
// Failures are cached as nil so each origin is fetched at most once.
func (r *RobotsTxtAuditor) load(ctx context.Context, origin string) *robotstxt.RobotsData {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.rules[origin]; ok {
		return data
	}

	var data *robotstxt.RobotsData
	page, err := r.fetcher.Fetch(ctx, origin+"/robots.txt")
	switch {
	case err != nil:
		// cancelled; do not remember
		return nil
	case page.Err != nil:
		r.logger.Debug("robots.txt unavailable", "origin", origin, "err", page.Err)
	case page.StatusCode >= 400:
	default:
		data, err = robotstxt.FromStatusAndBytes(page.StatusCode, page.Body)
		if err != nil {
			r.logger.Debug("robots.txt unparsable", "origin", origin, "err", err)
			data = nil
		}
	}
	r.rules[origin] = data
	return data
}

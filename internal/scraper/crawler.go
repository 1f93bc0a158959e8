package scraper

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/FranksOps/prospector/pkg/ratelimit"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// CrawlConfig bounds a breadth-first crawl.
type CrawlConfig struct {
	MaxDepth int
	// MaxPages stops the crawl after this many fetches (0 = unbounded).
	MaxPages    int
	Concurrency int
	// Domains limits the crawl to these hosts and their subdomains.
	Domains       []string
	RespectRobots bool
	// UserAgent selects the robots.txt group.
	UserAgent         string
	RequestsPerSecond float64
	Jitter            float64
	// QueueSize bounds the pending URL queue (0 = 10000).
	QueueSize int
	// OnPage receives every fetched page. It is called from several
	// goroutines at once.
	OnPage func(*Page)
}

// Crawler walks a site breadth first from a set of seed URLs.
type Crawler struct {
	cfg     CrawlConfig
	fetcher *Fetcher
	logger  *slog.Logger
	robots  *RobotsTxtAuditor
	limiter *ratelimit.Limiter

	fetched atomic.Int64

	mu      sync.Mutex
	visited map[string]struct{}
}

type job struct {
	url   string
	depth int
}

// NewCrawler returns a Crawler that fetches through fetcher.
func NewCrawler(cfg CrawlConfig, fetcher *Fetcher, logger *slog.Logger) *Crawler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "*"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		limiter: ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Jitter),
		visited: make(map[string]struct{}),
	}
	if cfg.RespectRobots {
		c.robots = NewRobotsTxtAuditor(fetcher, logger)
	}
	return c
}

// Run crawls from seeds until the frontier is exhausted, the page budget is
// spent, or ctx is done.
func (c *Crawler) Run(ctx context.Context, seeds []string) error {
	defer c.limiter.Stop()

	var initial []job
	for _, s := range seeds {
		if c.claim(s) {
			initial = append(initial, job{url: s})
		}
	}
	size := c.cfg.QueueSize
	if size < len(initial) {
		size = len(initial)
	}
	queue := make(chan job, size)

	// pending counts queued plus in-flight jobs; the crawl ends when it
	// drops to zero.
	var pending sync.WaitGroup
	pending.Add(len(initial))
	for _, j := range initial {
		queue <- j
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	for range c.cfg.Concurrency {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case j := <-queue:
					c.process(gctx, j, queue, &pending)
					pending.Done()
				}
			}
		})
	}
	go func() {
		pending.Wait()
		cancel()
	}()
	_ = g.Wait()

	// jobs still queued after a cancellation are released so the waiter exits
	for drained := false; !drained; {
		select {
		case <-queue:
			pending.Done()
		default:
			drained = true
		}
	}
	return ctx.Err()
}

// Visited returns every URL the crawl claimed, sorted.
func (c *Crawler) Visited() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.visited))
	for u := range c.visited {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (c *Crawler) process(ctx context.Context, j job, queue chan<- job, pending *sync.WaitGroup) {
	if c.cfg.MaxPages > 0 && c.fetched.Load() >= int64(c.cfg.MaxPages) {
		return
	}
	if c.robots != nil {
		allowed, err := c.robots.IsAllowed(ctx, j.url, c.cfg.UserAgent)
		if err != nil {
			c.logger.Warn("robots.txt check failed", "url", j.url, "err", err)
		} else if !allowed {
			c.logger.Debug("blocked by robots.txt", "url", j.url)
			return
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}
	if n := c.fetched.Add(1); c.cfg.MaxPages > 0 && n > int64(c.cfg.MaxPages) {
		return
	}

	c.logger.Debug("fetching", "url", j.url, "depth", j.depth)
	page, err := c.fetcher.Fetch(ctx, j.url)
	if err != nil {
		return
	}
	page.Depth = j.depth
	if page.Err != nil {
		c.logger.Debug("fetch failed", "url", j.url, "err", page.Err)
	}
	if c.cfg.OnPage != nil {
		c.cfg.OnPage(page)
	}

	if j.depth >= c.cfg.MaxDepth || !page.OK() || !page.IsHTML() {
		return
	}
	for _, link := range extractLinks(j.url, page.Body) {
		if !c.claim(link) {
			continue
		}
		pending.Add(1)
		select {
		case queue <- job{url: link, depth: j.depth + 1}:
		case <-ctx.Done():
			pending.Done()
			return
		}
	}
}

// claim marks rawURL visited and reports whether the caller should crawl it.
func (c *Crawler) claim(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if !c.inScope(u.Hostname()) {
		return false
	}
	u.Fragment = ""
	key := u.String()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.visited[key]; seen {
		return false
	}
	c.visited[key] = struct{}{}
	return true
}

func (c *Crawler) inScope(host string) bool {
	if len(c.cfg.Domains) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, d := range c.cfg.Domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func extractLinks(baseURL string, body []byte) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links
}

package scraper

import (
	"net/http"
	"strings"
	"time"
)

// Page is the outcome of fetching one URL. Transport failures are recorded
// in Err rather than returned, so a crawl keeps going past a bad link.
type Page struct {
	ID         string
	URL        string
	Depth      int
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	FetchedAt  time.Time

	// Blocked is set when a bot protection layer served a challenge instead
	// of the page; BlockedBy names the vendor.
	Blocked   bool
	BlockedBy string

	Err error
}

// OK reports whether the page holds real site content.
func (p *Page) OK() bool {
	return p.Err == nil && !p.Blocked && p.StatusCode >= 200 && p.StatusCode < 300
}

// IsHTML reports whether the response declared an HTML body.
func (p *Page) IsHTML() bool {
	return strings.Contains(strings.ToLower(p.Header.Get("Content-Type")), "text/html")
}

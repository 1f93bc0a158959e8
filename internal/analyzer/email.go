// Package analyzer pulls contact details out of crawled pages.
package analyzer

import (
	"bytes"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// assetSuffixes are "TLDs" that betray a retina asset name such as
// logo@2x.png rather than a mailbox.
var assetSuffixes = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "svg": {}, "webp": {},
	"avif": {}, "ico": {}, "css": {}, "js": {}, "woff": {}, "woff2": {},
}

// ExtractEmails returns the distinct addresses found in an HTML or text
// body, lowercased and sorted. Addresses are taken from mailto: links and
// from the raw text.
func ExtractEmails(body []byte) []string {
	set := make(map[string]struct{})
	for _, m := range emailRe.FindAll(body, -1) {
		if e, ok := clean(string(m)); ok {
			set[e] = struct{}{}
		}
	}
	for _, e := range mailtoAddresses(body) {
		set[e] = struct{}{}
	}
	return sortedKeys(set)
}

func mailtoAddresses(body []byte) []string {
	if !bytes.Contains(body, []byte("mailto:")) {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		addr, _, _ := strings.Cut(strings.TrimPrefix(href, "mailto:"), "?")
		if dec, err := url.PathUnescape(addr); err == nil {
			addr = dec
		}
		for _, a := range strings.Split(addr, ",") {
			if e, ok := clean(a); ok && emailRe.FindString(e) == e {
				out = append(out, e)
			}
		}
	})
	return out
}

func clean(raw string) (string, bool) {
	e := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "."))
	at := strings.LastIndexByte(e, '@')
	if at <= 0 || at == len(e)-1 {
		return "", false
	}
	domain := e[at+1:]
	if strings.Contains(domain, "..") {
		return "", false
	}
	tld := domain[strings.LastIndexByte(domain, '.')+1:]
	if _, asset := assetSuffixes[tld]; asset {
		return "", false
	}
	return e, true
}

// Collector accumulates addresses across the pages of one crawl. It is safe
// for concurrent use.
type Collector struct {
	mu  sync.Mutex
	set map[string]struct{}
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{set: make(map[string]struct{})}
}

// AddPage extracts addresses from body and records them.
func (c *Collector) AddPage(body []byte) {
	found := ExtractEmails(body)
	c.mu.Lock()
	for _, e := range found {
		c.set[e] = struct{}{}
	}
	c.mu.Unlock()
}

// Emails returns everything collected so far, sorted. It never returns nil.
func (c *Collector) Emails() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

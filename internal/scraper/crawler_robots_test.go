package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
)

func TestCrawler_RobotsTxt(t *testing.T) {
	for _, respect := range []bool{true, false} {
		var privateHits atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("User-agent: ProspectorBot\nDisallow: /private\n"))
		})
		mux.HandleFunc("/", htmlHandler(`<a href="/contact">Contact</a><a href="/private">Private</a>`))
		mux.HandleFunc("/contact", htmlHandler(`<p>hello</p>`))
		mux.HandleFunc("/private", func(w http.ResponseWriter, r *http.Request) {
			privateHits.Add(1)
		})
		ts := httptest.NewServer(mux)

		var fetched []string
		c := NewCrawler(CrawlConfig{
			MaxDepth:      1,
			Concurrency:   1,
			Domains:       []string{hostOf(t, ts.URL)},
			RespectRobots: respect,
			UserAgent:     "ProspectorBot",
			OnPage:        func(p *Page) { fetched = append(fetched, p.URL) },
		}, newTestFetcher(t), nil)

		if err := c.Run(context.Background(), []string{ts.URL + "/"}); err != nil {
			t.Fatalf("respect=%v: Run: %v", respect, err)
		}
		ts.Close()

		wantHits := int32(0)
		if !respect {
			wantHits = 1
		}
		if got := privateHits.Load(); got != wantHits {
			t.Errorf("respect=%v: /private requested %d times, want %d", respect, got, wantHits)
		}
		if !slices.Contains(fetched, ts.URL+"/contact") {
			t.Errorf("respect=%v: /contact not fetched: %v", respect, fetched)
		}
	}
}

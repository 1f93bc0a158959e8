package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestRobotsTxtAuditor_IsAllowed(t *testing.T) {
	var fetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_, _ = w.Write([]byte(`
User-agent: *
Disallow: /admin/
Allow: /admin/public/

User-agent: BadBot
Disallow: /
`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	auditor := NewRobotsTxtAuditor(newTestFetcher(t), nil)
	ctx := context.Background()

	tests := []struct {
		path, agent string
		want        bool
	}{
		{"/contact", "GoodBot", true},
		{"/admin/secret", "GoodBot", false},
		{"/admin/public/index.html", "GoodBot", true},
		{"/contact", "BadBot", false},
		{"", "GoodBot", true},
	}
	for _, tt := range tests {
		got, err := auditor.IsAllowed(ctx, ts.URL+tt.path, tt.agent)
		if err != nil {
			t.Fatalf("IsAllowed(%s): %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("IsAllowed(%q, %s) = %v, want %v", tt.path, tt.agent, got, tt.want)
		}
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", n)
	}
}

func TestRobotsTxtAuditor_MissingRobots(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	auditor := NewRobotsTxtAuditor(newTestFetcher(t), nil)
	allowed, err := auditor.IsAllowed(context.Background(), ts.URL+"/anything", "Bot")
	if err != nil || !allowed {
		t.Errorf("IsAllowed = %v, %v; want true, nil", allowed, err)
	}
}

func TestRobotsTxtAuditor_Sitemaps(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nSitemap: http://example.com/sitemap.xml\nSitemap: http://example.com/pages.xml\n"))
	}))
	defer ts.Close()

	auditor := NewRobotsTxtAuditor(newTestFetcher(t), nil)
	got := auditor.Sitemaps(context.Background(), strings.TrimPrefix(ts.URL, "http://"))
	want := "http://example.com/sitemap.xml http://example.com/pages.xml"
	if strings.Join(got, " ") != want {
		t.Errorf("Sitemaps = %v, want %s", got, want)
	}
}

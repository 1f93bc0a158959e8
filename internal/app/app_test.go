package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/prospector/internal/config"
	"github.com/FranksOps/prospector/internal/output"
	"github.com/FranksOps/prospector/internal/storage"
	"github.com/spf13/afero"
)

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	for _, tc := range []struct{ kind, location string }{
		{config.BackendCSV, "/sheets"},
		{config.BackendJSON, "/sheets.ndjson"},
		{config.BackendSQLite, "file::memory:"},
	} {
		t.Run(tc.kind, func(t *testing.T) {
			b, err := OpenBackend(ctx, fsys, tc.kind, tc.location)
			if err != nil {
				t.Fatalf("OpenBackend: %v", err)
			}
			defer b.Close()
			r := storage.MustParseRange("A2")
			if err := b.Append(ctx, r, [][]string{{"a.com"}}); err != nil {
				t.Fatalf("Append: %v", err)
			}
			got, err := b.Read(ctx, storage.MustParseRange("A2:A"))
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !reflect.DeepEqual(got, [][]string{{"a.com"}}) {
				t.Errorf("Read = %q", got)
			}
		})
	}

	if _, err := OpenBackend(ctx, fsys, "gsheets", "x"); !errors.Is(err, config.ErrUnknownBackend) {
		t.Errorf("err = %v, want ErrUnknownBackend", err)
	}
}

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(afero.NewMemMapFs(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Search.APIKey = "serper-key"
	cfg.Authority.APIKey = "ahrefs-key"
	cfg.Cache.Dir = "/cache"
	cfg.Sheets.Backend = config.BackendJSON
	cfg.Sheets.Results = "/results.ndjson"
	cfg.Contacts.Fingerprint = "go"
	cfg.Contacts.RespectRobots = false
	cfg.Contacts.UseSitemap = false
	cfg.Contacts.RequestsPerSecond = 0
	cfg.Contacts.Timeout = 5 * time.Second
	return cfg
}

func TestNew_RejectsBadContactSettings(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Contacts.Fingerprint = "netscape"
	if _, err := New(context.Background(), afero.NewMemMapFs(), cfg, Options{}, nil); err == nil {
		t.Error("expected error for unknown fingerprint")
	}

	cfg = baseConfig(t)
	cfg.Contacts.ProxiesFile = "/missing.txt"
	if _, err := New(context.Background(), afero.NewMemMapFs(), cfg, Options{}, nil); err == nil {
		t.Error("expected error for missing proxies file")
	}
}

// providers fakes serper.dev and Ahrefs and counts live calls.
type providers struct {
	search, authority *httptest.Server
	searchCalls       atomic.Int32
	authorityCalls    atomic.Int32
}

func newProviders(t *testing.T, siteURL string) *providers {
	t.Helper()
	siteHost := strings.TrimPrefix(siteURL, "http://")
	p := &providers{}

	p.search = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.searchCalls.Add(1)
		if r.Header.Get("X-Api-Key") != "serper-key" {
			http.Error(w, "bad key", http.StatusUnauthorized)
			return
		}
		var req struct {
			Q string `json:"q"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var links []string
		switch req.Q {
		case "widgets":
			links = []string{siteURL + "/post", "https://www.partner.example/"}
		case "site:" + siteHost:
			links = []string{siteURL + "/", siteURL + "/about", siteURL + "/contact"}
		}
		organic := make([]map[string]string, 0, len(links))
		for _, l := range links {
			organic = append(organic, map[string]string{"link": l})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"organic": organic})
	}))
	t.Cleanup(p.search.Close)

	p.authority = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.authorityCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer ahrefs-key" {
			http.Error(w, "bad key", http.StatusUnauthorized)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/domain-rating"):
			fmt.Fprint(w, `{"domain_rating":{"domain_rating":42,"ahrefs_rank":1000}}`)
		case strings.HasSuffix(r.URL.Path, "/backlinks-stats"):
			fmt.Fprint(w, `{"metrics":{"live":300,"live_refdomains":17}}`)
		case strings.HasSuffix(r.URL.Path, "/all-backlinks"):
			fmt.Fprint(w, `{"backlinks":[
				{"url_from":"https://www.news.example/story","domain_rating_source":91,"is_dofollow":true},
				{"url_from":"https://partner.example/links","domain_rating_source":93,"is_dofollow":true}
			]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(p.authority.Close)
	return p
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/contact">Contact</a></body></html>`)
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="mailto:Editor@Site.test">Email us</a></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	site := newSite(t)
	siteHost := strings.TrimPrefix(site.URL, "http://")
	prov := newProviders(t, site.URL)

	partners, err := OpenBackend(ctx, fsys, config.BackendJSON, "/partners.ndjson")
	if err != nil {
		t.Fatal(err)
	}
	if err := partners.Append(ctx, storage.MustParseRange("A2"), [][]string{{"partner.example"}}); err != nil {
		t.Fatal(err)
	}

	cfg := baseConfig(t)
	cfg.Search.Endpoint = prov.search.URL
	cfg.Authority.Endpoint = prov.authority.URL + "/v3/site-explorer/"
	cfg.Sheets.Partners = "/partners.ndjson"

	run := func(results string) [][]string {
		t.Helper()
		cfg.Sheets.Results = results
		a, err := New(ctx, fsys, cfg, Options{}, nil)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer a.Close()
		res, err := a.Pipeline.Run(ctx, []string{"widgets"})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return res.Rows
	}

	want := [][]string{{siteHost, "42", "17", "news.example", "91", "editor@site.test"}}
	if got := run("/results.ndjson"); !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %q, want %q", got, want)
	}
	searchCalls, authorityCalls := prov.searchCalls.Load(), prov.authorityCalls.Load()
	if searchCalls != 2 || authorityCalls != 3 {
		t.Errorf("live calls = %d search, %d authority; want 2, 3", searchCalls, authorityCalls)
	}

	sheet, err := OpenBackend(ctx, fsys, config.BackendJSON, "/results.ndjson")
	if err != nil {
		t.Fatal(err)
	}
	all, err := sheet.Read(ctx, storage.MustParseRange("A1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || !reflect.DeepEqual(all[0], output.Header) {
		t.Errorf("sheet = %q, want header and one row", all)
	}

	// previous results exclude the site
	if got := run("/results.ndjson"); len(got) != 0 {
		t.Errorf("second run rows = %q, want none", got)
	}

	// a fresh workbook is served entirely from the cache
	if got := run("/fresh.ndjson"); !reflect.DeepEqual(got, want) {
		t.Errorf("cached rows = %q, want %q", got, want)
	}
	if prov.searchCalls.Load() != searchCalls || prov.authorityCalls.Load() != authorityCalls {
		t.Errorf("cached run reached the providers: %d search, %d authority",
			prov.searchCalls.Load(), prov.authorityCalls.Load())
	}
}

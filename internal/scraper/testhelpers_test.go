package scraper

import (
	"net/url"
	"testing"
	"time"

	"github.com/FranksOps/prospector/internal/fingerprint"
	"github.com/FranksOps/prospector/pkg/useragent"
)

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	f, err := NewFetcher(FetchConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		UserAgents:  useragent.NewRotator(useragent.Sequential, []string{"ProspectorTest/1.0"}),
	})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return f
}

func hostOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u.Hostname()
}

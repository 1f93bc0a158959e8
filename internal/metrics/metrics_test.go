package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestServer_ExposesCollectors(t *testing.T) {
	srv, err := Start(0, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop(context.Background())

	RecordFetch("example.com", Fetch{StatusCode: 200, Duration: time.Second, Bytes: 11})
	RecordProvider("serper", "search", 200)
	CacheLookups.WithLabelValues("serper", "hit").Inc()
	StageSites.WithLabelValues("discover").Set(3)

	port := srv.Addr().(*net.TCPAddr).Port
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", port))
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	for _, want := range []string{
		"prospector_fetch_duration_seconds_bucket",
		`prospector_fetch_bytes_total{domain="example.com"} 11`,
		`prospector_provider_requests_total{operation="search",provider="serper",status="200"}`,
		`prospector_cache_lookups_total{namespace="serper",result="hit"}`,
		`prospector_stage_sites{stage="discover"} 3`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %s in metrics output", want)
		}
	}
}

func TestStart_PortInUse(t *testing.T) {
	first, err := Start(0, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop(context.Background())

	port := first.Addr().(*net.TCPAddr).Port
	if second, err := Start(port, nil); err == nil {
		second.Stop(context.Background())
		t.Fatal("expected bind error for a busy port")
	}
}

func TestRecordFetch_Error(t *testing.T) {
	RecordFetch("failed.example", Fetch{Failed: true, DetectedBot: true, DetectionSrc: "Cloudflare"})
	got := testutil.ToFloat64(FetchRequestsTotal.WithLabelValues("failed.example", "error", "true", "Cloudflare"))
	if got != 1 {
		t.Errorf("expected 1 error fetch, got %v", got)
	}
}

func TestRecordProvider_NoResponse(t *testing.T) {
	before := testutil.ToFloat64(ProviderRequests.WithLabelValues("ahrefs", "domain-rating", "error"))
	RecordProvider("ahrefs", "domain-rating", 0)
	after := testutil.ToFloat64(ProviderRequests.WithLabelValues("ahrefs", "domain-rating", "error"))
	if after-before != 1 {
		t.Errorf("error counter moved by %v, want 1", after-before)
	}
}

func TestServerStop_Nil(t *testing.T) {
	var s *Server
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("expected nil error stopping nil server, got %v", err)
	}
}

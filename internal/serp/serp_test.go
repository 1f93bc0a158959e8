package serp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/FranksOps/prospector/internal/cache"
	"github.com/FranksOps/prospector/internal/provider"
	"github.com/spf13/afero"
)

type countingClient struct {
	calls   int
	payload string
	err     error
}

func (c *countingClient) Query(ctx context.Context, query string, maxResults int) ([]byte, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []byte(c.payload), nil
}

func TestSerper_Query(t *testing.T) {
	var got serperRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("X-API-KEY") != "k" {
			t.Errorf("expected API key header, got %q", r.Header.Get("X-API-KEY"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"organic":[{"link":"https://www.a.com/x"},{"link":"https://b.com"}]}`))
	}))
	defer ts.Close()

	s, err := NewSerper(SerperConfig{APIKey: "k", Endpoint: ts.URL})
	if err != nil {
		t.Fatalf("NewSerper failed: %v", err)
	}
	defer s.Close()

	payload, err := s.Query(context.Background(), "hiking boots", 50)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got != (serperRequest{Q: "hiking boots", GL: "us", Num: 50}) {
		t.Errorf("unexpected request body %+v", got)
	}

	resp, err := Decode("hiking boots", payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(ExtractSites(resp), []string{"a.com", "b.com"}) {
		t.Errorf("unexpected sites %v", ExtractSites(resp))
	}
}

func TestSerper_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Unauthorized."}`))
	}))
	defer ts.Close()

	s, _ := NewSerper(SerperConfig{APIKey: "bad", Endpoint: ts.URL})
	defer s.Close()

	_, err := s.Query(context.Background(), "q", 10)
	var pe *provider.Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected provider.Error, got %v", err)
	}
	if pe.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", pe.StatusCode)
	}
}

func TestNewSerper_MissingKey(t *testing.T) {
	if _, err := NewSerper(SerperConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, payload := range []string{`not json`, `{"message":"quota exceeded"}`} {
		_, err := Decode("q", []byte(payload))
		if !errors.Is(err, provider.ErrMalformed) {
			t.Errorf("Decode(%s): expected ErrMalformed, got %v", payload, err)
		}
	}

	resp, err := Decode("q", []byte(`{"organic":[]}`))
	if err != nil || len(resp.Organic) != 0 {
		t.Errorf("empty organic list should decode, got %v %v", resp, err)
	}
}

func TestSearcher_Caches(t *testing.T) {
	client := &countingClient{payload: `{"organic":[{"link":"https://a.com"}]}`}
	store := cache.NewFileStore(afero.NewMemMapFs(), "cache", nil)
	s := NewSearcher(client, store, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		resp, err := s.Search(ctx, SiteQuery("a.com"), 51)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(resp.Organic) != 1 {
			t.Errorf("expected 1 result, got %d", len(resp.Organic))
		}
	}
	if client.calls != 1 {
		t.Errorf("expected 1 live call with caching, got %d", client.calls)
	}

	payload, ok, _ := store.Get(ctx, cache.Key{Namespace: Namespace, Name: "site:a.com"})
	if !ok || string(payload) != client.payload {
		t.Errorf("expected raw payload cached under serper/site:a.com, got %q", payload)
	}
}

func TestSearcher_CachingDisabled(t *testing.T) {
	client := &countingClient{payload: `{"organic":[]}`}
	s := NewSearcher(client, cache.Disabled{}, nil)

	for i := 0; i < 2; i++ {
		if _, err := s.Search(context.Background(), "q", 50); err != nil {
			t.Fatalf("Search failed: %v", err)
		}
	}
	if client.calls != 2 {
		t.Errorf("expected 2 live calls with caching disabled, got %d", client.calls)
	}
}

func TestSearcher_MalformedNotCached(t *testing.T) {
	client := &countingClient{payload: `{"error":"rate limited"}`}
	store := cache.NewFileStore(afero.NewMemMapFs(), "cache", nil)
	s := NewSearcher(client, store, nil)
	ctx := context.Background()

	if _, err := s.Search(ctx, "q", 50); !errors.Is(err, provider.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if _, ok, _ := store.Get(ctx, cache.Key{Namespace: Namespace, Name: "q"}); ok {
		t.Error("malformed payload must not be cached")
	}
}

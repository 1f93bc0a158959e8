package serp

import (
	"context"
	"encoding/json"

	"github.com/FranksOps/prospector/internal/provider"
	"github.com/FranksOps/prospector/internal/site"
)

// ProviderName labels search errors and metrics.
const ProviderName = "serper"

// Namespace is the cache namespace for search responses.
const Namespace = "serper"

// Organic is one organic search result. Only Link is required by the pipeline.
type Organic struct {
	Title    string `json:"title,omitempty"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet,omitempty"`
	Position int    `json:"position,omitempty"`
}

// Response is a decoded search response.
type Response struct {
	Organic []Organic `json:"organic"`
}

// Provider abstracts a search engine that returns organic results for a
// query. maxResults caps the number of results requested.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) (*Response, error)
}

// Client performs the live search request and returns the raw response body.
type Client interface {
	Query(ctx context.Context, query string, maxResults int) ([]byte, error)
}

// SiteQuery returns the site-restricted query for identity.
func SiteQuery(identity string) string {
	return "site:" + identity
}

// Decode parses a raw search payload. A payload without an "organic" list is
// treated as error-shaped.
func Decode(query string, payload []byte) (*Response, error) {
	var raw struct {
		Organic *[]Organic `json:"organic"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, provider.Malformed(ProviderName, "search", query, err.Error())
	}
	if raw.Organic == nil {
		return nil, provider.Malformed(ProviderName, "search", query, "missing organic results")
	}
	return &Response{Organic: *raw.Organic}, nil
}

// ExtractSites returns the normalized identity of every organic result, in
// result order. Results without a usable host are skipped.
func ExtractSites(resp *Response) []string {
	if resp == nil {
		return nil
	}
	sites := make([]string, 0, len(resp.Organic))
	for _, o := range resp.Organic {
		if id := site.Normalize(o.Link); id != "" {
			sites = append(sites, id)
		}
	}
	return sites
}

package serp

import (
	"context"
	"log/slog"

	"github.com/FranksOps/prospector/internal/cache"
)

// Searcher is the cache-backed Provider used by the pipeline. Responses are
// cached by query under the "serper" namespace, so a site-restricted query
// lands in serper/site/<host>.
type Searcher struct {
	client Client
	store  cache.Store
	logger *slog.Logger
}

// ensure Searcher implements Provider
var _ Provider = (*Searcher)(nil)

// NewSearcher wraps client with store. A nil store disables caching.
func NewSearcher(client Client, store cache.Store, logger *slog.Logger) *Searcher {
	if store == nil {
		store = cache.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{client: client, store: store, logger: logger}
}

// Search returns the organic results for query, from cache when present.
func (s *Searcher) Search(ctx context.Context, query string, maxResults int) (*Response, error) {
	key := cache.Key{Namespace: Namespace, Name: query}
	payload, err := cache.Through(ctx, s.store, key, func(ctx context.Context) ([]byte, error) {
		s.logger.Debug("searching", "query", query, "max_results", maxResults)
		raw, err := s.client.Query(ctx, query, maxResults)
		if err != nil {
			return nil, err
		}
		// validate before the payload becomes authoritative
		if _, err := Decode(query, raw); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return Decode(query, payload)
}

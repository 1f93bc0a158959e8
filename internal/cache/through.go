package cache

import (
	"context"

	"github.com/FranksOps/prospector/internal/metrics"
)

// FetchFunc performs the live request for a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Through is the read-through helper every provider call goes through. A
// present entry is returned as-is without contacting the live source. On a
// miss, fetch runs and its payload is stored before being returned. Errors
// from fetch are returned unchanged and nothing is cached.
func Through(ctx context.Context, store Store, key Key, fetch FetchFunc) ([]byte, error) {
	if store == nil {
		store = Disabled{}
	}
	_, bypass := store.(Disabled)

	if !bypass {
		payload, ok, err := store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			metrics.CacheLookups.WithLabelValues(key.Namespace, "hit").Inc()
			return payload, nil
		}
		metrics.CacheLookups.WithLabelValues(key.Namespace, "miss").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues(key.Namespace, "bypass").Inc()
	}

	payload, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if err := store.Put(ctx, key, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

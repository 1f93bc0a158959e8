// Package contact resolves the email addresses published by a site.
package contact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/FranksOps/prospector/internal/cache"
	"github.com/FranksOps/prospector/internal/provider"
)

// Namespace is the cache namespace for resolved contacts.
const Namespace = "emails"

// Resolver returns the set of email addresses found for a domain. The
// returned slice is sorted and never nil.
type Resolver interface {
	Resolve(ctx context.Context, domain string) ([]string, error)
}

// Cached is a read-through cache in front of another Resolver. An empty
// result is cached like any other.
type Cached struct {
	next   Resolver
	store  cache.Store
	logger *slog.Logger
}

var _ Resolver = (*Cached)(nil)

// NewCached wraps next with store. A nil store disables caching.
func NewCached(next Resolver, store cache.Store, logger *slog.Logger) *Cached {
	if store == nil {
		store = cache.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, store: store, logger: logger}
}

// Resolve returns the contacts for domain, from cache when present.
func (c *Cached) Resolve(ctx context.Context, domain string) ([]string, error) {
	key := cache.Key{Namespace: Namespace, Name: domain}
	payload, err := cache.Through(ctx, c.store, key, func(ctx context.Context) ([]byte, error) {
		emails, err := c.next.Resolve(ctx, domain)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("resolved contacts", "site", domain, "count", len(emails))
		return encode(emails)
	})
	if err != nil {
		return nil, err
	}
	return decode(domain, payload)
}

func encode(emails []string) ([]byte, error) {
	out := append([]string{}, emails...)
	sort.Strings(out)
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("contact: %w", err)
	}
	return b, nil
}

func decode(domain string, payload []byte) ([]string, error) {
	var emails []string
	if err := json.Unmarshal(payload, &emails); err != nil {
		return nil, provider.Malformed(Namespace, "resolve", domain, err.Error())
	}
	if emails == nil {
		emails = []string{}
	}
	sort.Strings(emails)
	return emails, nil
}

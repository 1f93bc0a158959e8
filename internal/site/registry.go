package site

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Registry maps normalized site identities to their records. Records are kept
// in insertion order so that every pass over the registry is deterministic.
//
// A Registry is not safe for concurrent mutation. EnrichParallel is the one
// concurrent entry point and only hands each worker its own record.
type Registry struct {
	order    []string
	records  map[string]*Record
	excluded map[string]struct{}
}

// NewRegistry creates a registry that ignores every identity appearing in any
// of the exclusion lists. Entries are normalized before use.
func NewRegistry(exclusions ...[]string) *Registry {
	r := &Registry{
		records:  make(map[string]*Record),
		excluded: make(map[string]struct{}),
	}
	for _, list := range exclusions {
		for _, id := range list {
			if n := Normalize(id); n != "" {
				r.excluded[n] = struct{}{}
			}
		}
	}
	return r
}

// MatchResult describes what RecordMatch did.
type MatchResult int

const (
	MatchCreated MatchResult = iota
	MatchMerged
	MatchExcluded
	MatchIgnored
)

// RecordMatch registers that keyword surfaced identity. A new record is
// created on first sight; later matches union the keyword into the existing
// record. Excluded identities never get a record.
func (r *Registry) RecordMatch(identity, keyword string) MatchResult {
	if identity == "" || keyword == "" {
		return MatchIgnored
	}
	if r.IsExcluded(identity) {
		return MatchExcluded
	}
	if rec, ok := r.records[identity]; ok {
		rec.keywords[keyword] = struct{}{}
		return MatchMerged
	}
	r.records[identity] = newRecord(identity, keyword)
	r.order = append(r.order, identity)
	return MatchCreated
}

// Excluded returns the number of distinct excluded identities.
func (r *Registry) Excluded() int {
	return len(r.excluded)
}

// IsExcluded reports whether identity is on an exclusion list.
func (r *Registry) IsExcluded(identity string) bool {
	_, ok := r.excluded[identity]
	return ok
}

// Get returns the record for identity.
func (r *Registry) Get(identity string) (*Record, bool) {
	rec, ok := r.records[identity]
	return rec, ok
}

// Len returns the number of surviving records.
func (r *Registry) Len() int {
	return len(r.order)
}

// Records returns the surviving records in insertion order.
func (r *Registry) Records() []*Record {
	out := make([]*Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out
}

// Filter removes every record for which keep returns false and returns how
// many were removed. Records are evaluated in insertion order.
func (r *Registry) Filter(keep func(*Record) bool) int {
	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		if keep(r.records[id]) {
			kept = append(kept, id)
			continue
		}
		delete(r.records, id)
		removed++
	}
	// clear the tail so dropped identities are not retained by the backing array
	for i := len(kept); i < len(r.order); i++ {
		r.order[i] = ""
	}
	r.order = kept
	return removed
}

// EnrichFunc populates fields of a single record.
type EnrichFunc func(ctx context.Context, rec *Record) error

// Enrich applies fn to every surviving record in insertion order. The first
// error aborts the pass and is returned wrapped with the failing identity.
func (r *Registry) Enrich(ctx context.Context, fn EnrichFunc) error {
	for _, rec := range r.Records() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, rec); err != nil {
			return fmt.Errorf("site %s: %w", rec.Identity, err)
		}
	}
	return nil
}

// EnrichParallel is Enrich with up to workers records processed at once.
// Each task owns exactly one record, so fn needs no locking for the record
// itself. Record order is unaffected. workers <= 1 falls back to Enrich.
func (r *Registry) EnrichParallel(ctx context.Context, workers int, fn EnrichFunc) error {
	if workers <= 1 {
		return r.Enrich(ctx, fn)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rec := range r.Records() {
		g.Go(func() error {
			if err := fn(gCtx, rec); err != nil {
				return fmt.Errorf("site %s: %w", rec.Identity, err)
			}
			return nil
		})
	}
	return g.Wait()
}

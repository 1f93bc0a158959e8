package authority

import "github.com/FranksOps/prospector/internal/site"

// AggregateBacklinks turns raw provider rows into the record's backlink list.
// Source URLs are reduced to normalized hosts; rows that are not followed,
// fall below threshold, come from an excluded host, or repeat an already seen
// host are dropped. Provider order is preserved.
func AggregateBacklinks(raw []RawBacklink, threshold float64, excluded func(string) bool) []site.Backlink {
	out := make([]site.Backlink, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, b := range raw {
		if b.IsDofollow != nil && !*b.IsDofollow {
			continue
		}
		if b.DomainRatingSource < threshold {
			continue
		}
		host := site.Normalize(b.URLFrom)
		if host == "" {
			continue
		}
		if excluded != nil && excluded(host) {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, site.Backlink{SourceDomain: host, SourceAuthority: b.DomainRatingSource})
	}
	return out
}

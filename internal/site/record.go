package site

import "sort"

// Stage marks how far a record has progressed through the pipeline. Optional
// fields on Record are populated exactly when the matching stage has run.
type Stage int

const (
	StageDiscovered Stage = iota
	StagePageCounted
	StageRated
	StageEnriched
)

func (s Stage) String() string {
	switch s {
	case StageDiscovered:
		return "discovered"
	case StagePageCounted:
		return "page_counted"
	case StageRated:
		return "rated"
	case StageEnriched:
		return "enriched"
	}
	return "unknown"
}

// Backlink is an inbound followed link from SourceDomain to the site.
type Backlink struct {
	SourceDomain    string  `json:"source_domain"`
	SourceAuthority float64 `json:"source_authority"`
}

// Record accumulates everything known about one site during a run.
type Record struct {
	// Identity is the normalized host. It is set at creation and never changes.
	Identity string

	keywords map[string]struct{}

	Stage Stage

	// IndexedPages is the number of results for a site-restricted search,
	// set after StagePageCounted.
	IndexedPages *int
	// AuthorityScore is set after StageRated.
	AuthorityScore *float64
	// ReferringDomains is set after StageEnriched.
	ReferringDomains *int
	// Backlinks and Contacts are only meaningful once Stage is StageEnriched.
	Backlinks []Backlink
	Contacts  []string
}

func newRecord(identity, keyword string) *Record {
	return &Record{
		Identity: identity,
		keywords: map[string]struct{}{keyword: {}},
		Stage:    StageDiscovered,
	}
}

// Keywords returns the keywords that surfaced this site, sorted.
func (r *Record) Keywords() []string {
	out := make([]string, 0, len(r.keywords))
	for k := range r.keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HasKeyword reports whether keyword surfaced this site.
func (r *Record) HasKeyword(keyword string) bool {
	_, ok := r.keywords[keyword]
	return ok
}

// Complete reports whether every stage has populated the record.
func (r *Record) Complete() bool {
	return r.Stage == StageEnriched &&
		r.IndexedPages != nil &&
		r.AuthorityScore != nil &&
		r.ReferringDomains != nil
}

// SetIndexedPages records the page-count stage result.
func (r *Record) SetIndexedPages(n int) {
	r.IndexedPages = &n
	r.Stage = StagePageCounted
}

// SetAuthority records the authority stage result.
func (r *Record) SetAuthority(score float64) {
	r.AuthorityScore = &score
	r.Stage = StageRated
}

// SetEnrichment records the referring-domain, backlink and contact results.
// Contacts are sorted so that output order is stable.
func (r *Record) SetEnrichment(refDomains int, backlinks []Backlink, contacts []string) {
	r.ReferringDomains = &refDomains
	if backlinks == nil {
		backlinks = []Backlink{}
	}
	r.Backlinks = backlinks

	sorted := make([]string, len(contacts))
	copy(sorted, contacts)
	sort.Strings(sorted)
	r.Contacts = sorted
	r.Stage = StageEnriched
}

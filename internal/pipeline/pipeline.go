// Package pipeline runs a lead-discovery pass: keywords are searched, the
// sites found are filtered by size and authority, the survivors are enriched
// with link and contact data, and the result is appended to the sheet.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/prospector/internal/authority"
	"github.com/FranksOps/prospector/internal/contact"
	"github.com/FranksOps/prospector/internal/metrics"
	"github.com/FranksOps/prospector/internal/output"
	"github.com/FranksOps/prospector/internal/serp"
	"github.com/FranksOps/prospector/internal/site"
	"github.com/FranksOps/prospector/internal/storage"
	"github.com/google/uuid"
)

// Stage names a step of the run.
type Stage string

const (
	StageExclusions Stage = "exclusions"
	StageDiscover   Stage = "discover"
	StagePageCount  Stage = "page_count"
	StageAuthority  Stage = "authority"
	StageEnrich     Stage = "enrich"
	StageSink       Stage = "sink"
)

// StageError reports which stage aborted a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Authority is the authority and backlink provider.
type Authority interface {
	DomainRating(ctx context.Context, target string) (float64, error)
	RefDomains(ctx context.Context, target string) (int, error)
	Backlinks(ctx context.Context, target string) ([]authority.RawBacklink, error)
}

// Config holds the run thresholds and sheet ranges.
type Config struct {
	MaxSearchResults    int
	SiteQueryMaxResults int
	// PageCountCeiling is the largest site-query result count a site may
	// have and still be kept.
	PageCountCeiling int
	// AuthorityMin and AuthorityMax bound the kept authority scores,
	// inclusive.
	AuthorityMin float64
	AuthorityMax float64
	// BacklinkAuthorityThreshold is the minimum source authority of a kept
	// backlink.
	BacklinkAuthorityThreshold float64
	// Workers > 1 runs the per-site stages on a bounded pool.
	Workers int

	// PartnerRanges are read from the partner workbook, ResultRanges from
	// the results workbook; together they form the exclusion set.
	PartnerRanges []storage.Range
	ResultRanges  []storage.Range
	// AppendRange is where result rows are appended.
	AppendRange storage.Range
	// WriteHeader puts output.Header in the row above AppendRange when the
	// results sheet is empty.
	WriteHeader bool
}

// DefaultConfig returns the standard thresholds and sheet layout.
func DefaultConfig() Config {
	return Config{
		MaxSearchResults:           50,
		SiteQueryMaxResults:        51,
		PageCountCeiling:           50,
		AuthorityMin:               35,
		AuthorityMax:               79,
		BacklinkAuthorityThreshold: authority.DefaultBacklinkThreshold,
		Workers:                    1,
		PartnerRanges:              []storage.Range{storage.MustParseRange("A2:A")},
		ResultRanges: []storage.Range{
			storage.MustParseRange("A2:A"),
			storage.MustParseRange("Black list!A2:A"),
		},
		AppendRange: storage.MustParseRange("A2"),
		WriteHeader: true,
	}
}

func (c Config) validate() error {
	switch {
	case c.MaxSearchResults <= 0 || c.SiteQueryMaxResults <= 0:
		return errors.New("search result limits must be positive")
	case c.PageCountCeiling < 0:
		return errors.New("page count ceiling must not be negative")
	case c.BacklinkAuthorityThreshold < 0:
		return errors.New("backlink authority threshold must not be negative")
	case c.AuthorityMin > c.AuthorityMax:
		return fmt.Errorf("authority range [%v, %v] is empty", c.AuthorityMin, c.AuthorityMax)
	case c.AppendRange.StartCol < 1 || c.AppendRange.StartRow < 1:
		return errors.New("append range is not set")
	}
	return nil
}

// Deps are the collaborators of a run. Partners may be nil when there is no
// partner workbook.
type Deps struct {
	Search    serp.Provider
	Authority Authority
	Contacts  contact.Resolver
	Results   storage.Backend
	Partners  storage.Backend
	Logger    *slog.Logger
}

// Pipeline runs discovery passes. It holds no per-run state.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// New checks cfg and deps and returns a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if deps.Search == nil || deps.Authority == nil || deps.Contacts == nil || deps.Results == nil {
		return nil, errors.New("pipeline: search, authority, contacts and results are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: logger, now: time.Now}, nil
}

// StageCount is the number of sites left after a stage.
type StageCount struct {
	Stage Stage `json:"stage"`
	Sites int   `json:"sites"`
}

// Result describes a completed run.
type Result struct {
	RunID    uuid.UUID    `json:"run_id"`
	Keywords int          `json:"keywords"`
	Excluded int          `json:"excluded"`
	Stages   []StageCount `json:"stages"`
	// Rows are the appended result rows, header excluded.
	Rows     [][]string `json:"rows"`
	Appended int        `json:"appended"`
	// Empty is set when no site survived; nothing was appended and the run
	// still succeeded.
	Empty    bool      `json:"empty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Survivors returns the count after stage, or -1 if the stage did not run.
func (r *Result) Survivors(stage Stage) int {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s.Sites
		}
	}
	return -1
}

// Run executes every stage in order. Any stage failure aborts the run
// before the sink, so the sheet is never partially updated.
func (p *Pipeline) Run(ctx context.Context, keywords []string) (*Result, error) {
	res := &Result{RunID: uuid.New(), Started: p.now().UTC()}
	logger := p.logger.With("run_id", res.RunID.String())
	defer func() { res.Finished = p.now().UTC() }()

	keywords = cleanKeywords(keywords)
	res.Keywords = len(keywords)

	partners, previous, err := p.loadExclusions(ctx)
	if err != nil {
		return res, &StageError{Stage: StageExclusions, Err: err}
	}
	reg := site.NewRegistry(partners, previous)
	res.Excluded = reg.Excluded()
	logger.Info("exclusions loaded", "partners", len(partners), "previous", len(previous), "distinct", res.Excluded)

	steps := []struct {
		stage Stage
		run   func(context.Context, *site.Registry) error
	}{
		{StageDiscover, func(ctx context.Context, reg *site.Registry) error { return p.discover(ctx, reg, keywords) }},
		{StagePageCount, p.pageCount},
		{StageAuthority, p.authority},
		{StageEnrich, p.enrich},
	}
	for _, step := range steps {
		if err := step.run(ctx, reg); err != nil {
			return res, &StageError{Stage: step.stage, Err: err}
		}
		res.Stages = append(res.Stages, StageCount{Stage: step.stage, Sites: reg.Len()})
		metrics.StageSites.WithLabelValues(string(step.stage)).Set(float64(reg.Len()))
		logger.Info("stage complete", "stage", step.stage, "sites", reg.Len())
	}

	if err := p.sink(ctx, reg, res); err != nil {
		return res, &StageError{Stage: StageSink, Err: err}
	}
	if res.Empty {
		logger.Info("no new sites to add")
	} else {
		logger.Info("sites added", "rows", res.Appended)
	}
	return res, nil
}

func cleanKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func (p *Pipeline) loadExclusions(ctx context.Context) (partners, previous []string, err error) {
	if p.deps.Partners != nil {
		if partners, err = readIdentities(ctx, p.deps.Partners, p.cfg.PartnerRanges); err != nil {
			return nil, nil, fmt.Errorf("partner list: %w", err)
		}
	}
	if previous, err = readIdentities(ctx, p.deps.Results, p.cfg.ResultRanges); err != nil {
		return nil, nil, fmt.Errorf("results sheet: %w", err)
	}
	return partners, previous, nil
}

// readIdentities flattens single-cell rows; any other row shape is skipped.
func readIdentities(ctx context.Context, b storage.Backend, ranges []storage.Range) ([]string, error) {
	var ids []string
	for _, r := range ranges {
		rows, err := b.Read(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", r, err)
		}
		for _, row := range rows {
			if len(row) == 1 {
				ids = append(ids, row[0])
			}
		}
	}
	return ids, nil
}

func (p *Pipeline) discover(ctx context.Context, reg *site.Registry, keywords []string) error {
	for _, kw := range keywords {
		resp, err := p.deps.Search.Search(ctx, kw, p.cfg.MaxSearchResults)
		if err != nil {
			return fmt.Errorf("keyword %q: %w", kw, err)
		}
		for _, id := range serp.ExtractSites(resp) {
			reg.RecordMatch(id, kw)
		}
	}
	return nil
}

func (p *Pipeline) pageCount(ctx context.Context, reg *site.Registry) error {
	err := reg.EnrichParallel(ctx, p.cfg.Workers, func(ctx context.Context, rec *site.Record) error {
		resp, err := p.deps.Search.Search(ctx, serp.SiteQuery(rec.Identity), p.cfg.SiteQueryMaxResults)
		if err != nil {
			return err
		}
		rec.SetIndexedPages(len(resp.Organic))
		return nil
	})
	if err != nil {
		return err
	}
	reg.Filter(func(rec *site.Record) bool { return *rec.IndexedPages <= p.cfg.PageCountCeiling })
	return nil
}

func (p *Pipeline) authority(ctx context.Context, reg *site.Registry) error {
	err := reg.EnrichParallel(ctx, p.cfg.Workers, func(ctx context.Context, rec *site.Record) error {
		dr, err := p.deps.Authority.DomainRating(ctx, rec.Identity)
		if err != nil {
			return err
		}
		rec.SetAuthority(dr)
		return nil
	})
	if err != nil {
		return err
	}
	reg.Filter(func(rec *site.Record) bool {
		dr := *rec.AuthorityScore
		return dr >= p.cfg.AuthorityMin && dr <= p.cfg.AuthorityMax
	})
	return nil
}

func (p *Pipeline) enrich(ctx context.Context, reg *site.Registry) error {
	return reg.EnrichParallel(ctx, p.cfg.Workers, func(ctx context.Context, rec *site.Record) error {
		refs, err := p.deps.Authority.RefDomains(ctx, rec.Identity)
		if err != nil {
			return err
		}
		raw, err := p.deps.Authority.Backlinks(ctx, rec.Identity)
		if err != nil {
			return err
		}
		contacts, err := p.deps.Contacts.Resolve(ctx, rec.Identity)
		if err != nil {
			return fmt.Errorf("contacts: %w", err)
		}
		backlinks := authority.AggregateBacklinks(raw, p.cfg.BacklinkAuthorityThreshold, reg.IsExcluded)
		rec.SetEnrichment(refs, backlinks, contacts)
		return nil
	})
}

func (p *Pipeline) sink(ctx context.Context, reg *site.Registry, res *Result) error {
	if reg.Len() == 0 {
		res.Empty = true
		res.Rows = [][]string{}
		return nil
	}
	rows, err := output.FormatAll(reg.Records())
	if err != nil {
		return err
	}

	target, batch := p.cfg.AppendRange, rows
	// the header takes the row above the append range, in the same write
	if p.cfg.WriteHeader && target.StartRow > 1 {
		whole := storage.Range{Sheet: target.Sheet, StartCol: 1, StartRow: 1}
		existing, err := p.deps.Results.Read(ctx, whole)
		if err != nil {
			return fmt.Errorf("read %s: %w", whole, err)
		}
		if len(existing) == 0 {
			target.StartRow--
			batch = append([][]string{output.Header}, rows...)
		}
	}
	if err := p.deps.Results.Append(ctx, target, batch); err != nil {
		return fmt.Errorf("append %d rows: %w", len(rows), err)
	}
	res.Rows = rows
	res.Appended = len(rows)
	return nil
}

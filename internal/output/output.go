// Package output renders enriched site records as spreadsheet rows.
package output

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/FranksOps/prospector/internal/site"
)

// ErrIncomplete is returned for a record that has not been through every
// enrichment stage.
var ErrIncomplete = errors.New("output: record is not fully enriched")

// Header names the columns produced by Format.
var Header = []string{"Site", "DR", "Ref domains", "Backlinks", "Backlink DR", "Contacts"}

// Format renders rec as a row matching Header. Multi-valued fields are
// newline-joined; backlinks keep provider order and contacts are sorted.
func Format(rec *site.Record) ([]string, error) {
	if rec == nil || !rec.Complete() {
		id := ""
		if rec != nil {
			id = rec.Identity
		}
		return nil, fmt.Errorf("%w: %q", ErrIncomplete, id)
	}

	sources := make([]string, 0, len(rec.Backlinks))
	ratings := make([]string, 0, len(rec.Backlinks))
	for _, b := range rec.Backlinks {
		sources = append(sources, b.SourceDomain)
		ratings = append(ratings, formatScore(b.SourceAuthority))
	}

	return []string{
		rec.Identity,
		formatScore(*rec.AuthorityScore),
		strconv.Itoa(*rec.ReferringDomains),
		join(sources),
		join(ratings),
		join(rec.Contacts),
	}, nil
}

// FormatAll renders every record, failing on the first incomplete one.
func FormatAll(recs []*site.Record) ([][]string, error) {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		row, err := Format(r)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func join(vals []string) string {
	return strings.TrimRight(strings.Join(vals, "\n"), "\n")
}

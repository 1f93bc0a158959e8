// Package report renders a summary of a discovery run.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/prospector/internal/pipeline"
)

// Summary is the printable view of a run.
type Summary struct {
	RunID     string                `json:"run_id"`
	Keywords  int                   `json:"keywords"`
	Excluded  int                   `json:"excluded"`
	Stages    []pipeline.StageCount `json:"stages"`
	Appended  int                   `json:"appended"`
	Cache     bool                  `json:"cache_enabled"`
	Sites     []string              `json:"sites"`
	Rows      [][]string            `json:"rows,omitempty"`
	StartTime time.Time             `json:"start_time"`
	EndTime   time.Time             `json:"end_time"`
	Duration  time.Duration         `json:"duration"`
	Err       string                `json:"error,omitempty"`
}

// GenerateSummary builds a Summary from a run result. runErr is the error
// returned alongside res, if any.
func GenerateSummary(res *pipeline.Result, runErr error) Summary {
	s := Summary{Sites: []string{}, Stages: []pipeline.StageCount{}}
	if runErr != nil {
		s.Err = runErr.Error()
	}
	if res == nil {
		return s
	}

	s.RunID = res.RunID.String()
	s.Keywords = res.Keywords
	s.Excluded = res.Excluded
	s.Stages = append(s.Stages, res.Stages...)
	s.Appended = res.Appended
	s.Rows = res.Rows
	for _, row := range res.Rows {
		if len(row) > 0 {
			s.Sites = append(s.Sites, row[0])
		}
	}
	s.StartTime = res.Started
	s.EndTime = res.Finished
	if !res.Finished.IsZero() {
		s.Duration = res.Duration()
	}
	return s
}

// Write renders summary in format: text, json or html.
func Write(w io.Writer, format string, summary Summary) error {
	switch format {
	case "", "text":
		return WriteText(w, summary)
	case "json":
		return WriteJSON(w, summary)
	case "html":
		return WriteHTML(w, summary)
	}
	return fmt.Errorf("report: unknown format %q", format)
}

// WriteJSON writes the summary as indented JSON.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

const textTmpl = `Prospector Run {{.RunID}}
------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Keywords:      {{.Keywords}}
Excluded:      {{.Excluded}}
Cache:         {{if .Cache}}on{{else}}off{{end}}

Stages:
{{- range .Stages}}
  {{printf "%-12s" .Stage}} {{.Sites}}
{{- else}}
  None
{{- end}}

Added: {{.Appended}}
{{- range .Sites}}
  {{.}}
{{- end}}
{{- if .Err}}

Error: {{.Err}}
{{- end}}
`

var (
	textReport = template.Must(template.New("textReport").Parse(textTmpl))
	htmlReport = htmltemplate.Must(htmltemplate.New("htmlReport").Parse(htmlTmpl))
)

// WriteText writes a human-readable summary.
func WriteText(w io.Writer, summary Summary) error {
	if err := textReport.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Prospector Run {{.RunID}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; vertical-align: top; white-space: pre-line; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Prospector Run</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>
  {{- if .Err}}
  <p style="color: red;"><strong>Error:</strong> {{.Err}}</p>
  {{- end}}

  <div class="stat-card">
    <div>Keywords</div>
    <div class="stat-val">{{.Keywords}}</div>
  </div>
  <div class="stat-card">
    <div>Excluded</div>
    <div class="stat-val">{{.Excluded}}</div>
  </div>
  <div class="stat-card">
    <div>Added</div>
    <div class="stat-val" style="color: {{if gt .Appended 0}}green{{else}}#999{{end}};">{{.Appended}}</div>
  </div>

  <h3>Stages</h3>
  <table>
    <tr><th>Stage</th><th>Sites</th></tr>
    {{- range .Stages}}
    <tr><td>{{.Stage}}</td><td>{{.Sites}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Sites</h3>
  <table>
    <tr><th>Site</th><th>DR</th><th>Ref domains</th><th>Backlinks</th><th>Backlink DR</th><th>Contacts</th></tr>
    {{- range .Rows}}
    <tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
    {{- else}}
    <tr><td colspan="6">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes the summary as a standalone HTML page.
func WriteHTML(w io.Writer, summary Summary) error {
	if err := htmlReport.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

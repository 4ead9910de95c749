package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/FranksOps/dorker/internal/serp"
)

// Outcome classifies one processed query.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// QueryResult is what the driver records for one query of a run.
type QueryResult struct {
	ID         string        `json:"id,omitempty"`
	Query      string        `json:"query"`
	Backend    serp.Backend  `json:"backend,omitempty"`
	Outcome    Outcome       `json:"outcome"`
	Records    int           `json:"records"`
	StatusCode int           `json:"status_code,omitempty"`
	Detector   string        `json:"detector,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Backoff    time.Duration `json:"backoff"`
}

// Summary contains aggregated figures about a run.
type Summary struct {
	TotalQueries    int            `json:"total_queries"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	Skipped         int            `json:"skipped"`
	TotalRecords    int            `json:"total_records"`
	TotalDetections int            `json:"total_detections"`
	DetectionsBySrc map[string]int `json:"detections_by_src"`
	StatusCodes     map[int]int    `json:"status_codes"`
	TotalBackoff    time.Duration  `json:"total_backoff"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	Duration        time.Duration  `json:"duration"`
	Interrupted     bool           `json:"interrupted"`
	Queries         []QueryResult  `json:"queries"`
}

// GenerateSummary aggregates per-query results in the order they ran.
func GenerateSummary(results []QueryResult) Summary {
	s := Summary{
		StatusCodes:     make(map[int]int),
		DetectionsBySrc: make(map[string]int),
		Queries:         results,
	}

	if len(results) == 0 {
		return s
	}

	s.StartTime = results[0].StartedAt
	s.EndTime = results[0].StartedAt

	for _, r := range results {
		s.TotalQueries++
		switch r.Outcome {
		case OutcomeSuccess:
			s.Succeeded++
		case OutcomeFailed:
			s.Failed++
		case OutcomeSkipped:
			s.Skipped++
		}
		s.TotalRecords += r.Records
		if r.Detector != "" {
			s.TotalDetections++
			s.DetectionsBySrc[r.Detector]++
		}
		if r.StatusCode > 0 {
			s.StatusCodes[r.StatusCode]++
		}
		s.TotalBackoff += r.Backoff

		if r.StartedAt.Before(s.StartTime) {
			s.StartTime = r.StartedAt
		}
		if end := r.StartedAt.Add(r.Duration + r.Backoff); end.After(s.EndTime) {
			s.EndTime = end
		}
	}

	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// Format selects a summary rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormat validates a summary format name. Empty means no summary.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText, FormatJSON, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("report: unknown summary format %q (want text, json or html)", s)
	}
}

// Write renders summary in format.
func Write(w io.Writer, format Format, summary Summary) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, summary)
	case FormatHTML:
		return WriteHTML(w, summary)
	case FormatText:
		return WriteText(w, summary)
	default:
		return fmt.Errorf("report: unknown summary format %q", format)
	}
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

const textTmpl = `Dorker Run Summary
------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Queries:       {{.TotalQueries}} ({{.Succeeded}} ok, {{.Failed}} failed, {{.Skipped}} skipped)
Records:       {{.TotalRecords}}
Backoff:       {{.TotalBackoff}}
{{- if .Interrupted}}
Interrupted:   yes
{{- end}}

Status Codes:
{{- range $code, $count := .StatusCodes}}
  {{$code}}: {{$count}}
{{- else}}
  None
{{- end}}

Blocks: {{.TotalDetections}}
{{- range $src, $count := .DetectionsBySrc}}
  {{$src}}: {{$count}}
{{- else}}
  None
{{- end}}
`

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	t, err := texttemplate.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: parse text template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render text: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Dorker Run Summary</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 6px 10px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
  .failed { color: #b00; }
  .skipped { color: #888; }
</style>
</head>
<body>
  <h1>Dorker Run Summary</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>
  <p>{{.TotalQueries}} queries, {{.Succeeded}} ok, {{.Failed}} failed, {{.Skipped}} skipped. {{.TotalRecords}} records, {{.TotalDetections}} blocks.{{if .Interrupted}} Run interrupted.{{end}}</p>

  <table>
    <tr><th>Query</th><th>Backend</th><th>Outcome</th><th>Records</th><th>Error</th></tr>
    {{- range .Queries}}
    <tr class="{{.Outcome}}"><td>{{.Query}}</td><td>{{.Backend}}</td><td>{{.Outcome}}</td><td>{{.Records}}</td><td>{{.Error}}</td></tr>
    {{- else}}
    <tr><td colspan="5">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes a basic HTML report; queries are escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := template.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: parse html template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}

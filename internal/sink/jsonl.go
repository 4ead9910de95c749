package sink

import (
	"encoding/json"
	"io"
	"time"

	"github.com/FranksOps/dorker/internal/serp"
)

type jsonlEncoder struct{}

type jsonlHeader struct {
	Type    string    `json:"type"`
	ID      string    `json:"id"`
	Query   string    `json:"query"`
	Backend string    `json:"backend,omitempty"`
	Time    time.Time `json:"time"`
}

type jsonlRecord struct {
	Type            string `json:"type"`
	QueryID         string `json:"query_id"`
	Rank            int    `json:"rank"`
	Shape           string `json:"shape"`
	URL             string `json:"url"`
	Title           string `json:"title,omitempty"`
	Description     string `json:"description,omitempty"`
	LongDescription string `json:"long_description,omitempty"`
	HTMLSnippet     string `json:"html_snippet,omitempty"`
}

func (jsonlEncoder) header(w io.Writer, h Header, _ bool) error {
	return writeJSONLine(w, jsonlHeader{
		Type:    "query",
		ID:      h.ID,
		Query:   h.Query,
		Backend: string(h.Backend),
		Time:    h.Time.UTC(),
	})
}

func (jsonlEncoder) record(w io.Writer, h Header, r serp.Record) error {
	return writeJSONLine(w, jsonlRecord{
		Type:            "result",
		QueryID:         h.ID,
		Rank:            r.Rank,
		Shape:           r.Shape.String(),
		URL:             r.URL,
		Title:           r.Title,
		Description:     r.Description,
		LongDescription: r.LongDescription,
		HTMLSnippet:     r.HTMLSnippet,
	})
}

func (jsonlEncoder) footer(io.Writer, Header) error { return nil }

// writeJSONLine writes v and its newline in a single Write.
func writeJSONLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

package sink

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/FranksOps/dorker/internal/serp"
)

// csvHeaders defines the column order.
var csvHeaders = []string{
	"kind",
	"query_id",
	"query",
	"backend",
	"time",
	"rank",
	"shape",
	"url",
	"title",
	"description",
	"long_description",
	"html_snippet",
}

type csvEncoder struct{}

func (csvEncoder) header(w io.Writer, h Header, empty bool) error {
	marker := []string{"query", h.ID, h.Query, string(h.Backend), h.Time.UTC().Format(time.RFC3339), "", "", "", "", "", "", ""}
	if empty {
		return writeCSV(w, csvHeaders, marker)
	}
	return writeCSV(w, marker)
}

func (csvEncoder) record(w io.Writer, h Header, r serp.Record) error {
	return writeCSV(w, []string{
		"result",
		h.ID,
		h.Query,
		string(h.Backend),
		h.Time.UTC().Format(time.RFC3339),
		strconv.Itoa(r.Rank),
		r.Shape.String(),
		r.URL,
		r.Title,
		r.Description,
		r.LongDescription,
		r.HTMLSnippet,
	})
}

func (csvEncoder) footer(io.Writer, Header) error { return nil }

func writeCSV(w io.Writer, rows ...[]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

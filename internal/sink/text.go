package sink

import (
	"fmt"
	"io"
	"strings"

	"github.com/FranksOps/dorker/internal/serp"
)

type textEncoder struct{}

func (textEncoder) header(w io.Writer, h Header, _ bool) error {
	_, err := fmt.Fprintf(w, "Results for query: %s\n\n", oneLine(h.Query))
	return err
}

func (textEncoder) record(w io.Writer, _ Header, r serp.Record) error {
	_, err := io.WriteString(w, TextLine(r)+"\n")
	return err
}

func (textEncoder) footer(w io.Writer, _ Header) error {
	_, err := io.WriteString(w, "\n")
	return err
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func oneLine(s string) string { return lineBreaks.Replace(s) }

// TextLine renders r the way the text format stores it. The result never
// contains a line break, so one record is always one line.
func TextLine(r serp.Record) string {
	switch r.Shape {
	case serp.ShapeAdvanced:
		return fmt.Sprintf("Source: Title: %s | Description: %s | URL: %s",
			oneLine(r.Title), oneLine(r.Description), oneLine(r.URL))
	case serp.ShapeExtended:
		return fmt.Sprintf("Source %d: Title: %s | Long Description: %s | Short Description: %s | HTML Snippet: %s | URL: %s",
			r.Rank, oneLine(r.Title), oneLine(r.LongDescription), oneLine(r.Description), oneLine(r.HTMLSnippet), oneLine(r.URL))
	default:
		return "Source: " + oneLine(r.URL)
	}
}

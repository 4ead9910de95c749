// Package sink appends query results to a flat output file.
package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/FranksOps/dorker/internal/serp"
)

// Format selects the on-disk layout.
type Format string

const (
	FormatText  Format = "text"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// ParseFormat maps a flag value to a Format. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSONL, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("sink: unknown format %q (want text, jsonl or csv)", s)
	}
}

// Header identifies the query a block of records belongs to. It is written
// even when there are no records.
type Header struct {
	ID      string
	Query   string
	Backend serp.Backend
	Time    time.Time
}

// Sink receives the records of one query at a time.
type Sink interface {
	Append(h Header, records []serp.Record) (int, error)
}

// Config configures a File sink.
type Config struct {
	Path   string
	Format Format
	// Echo, when set, receives every record in the text layout as it is
	// written.
	Echo io.Writer
}

// encoder renders one format. empty reports whether the file had no bytes
// before this call.
type encoder interface {
	header(w io.Writer, h Header, empty bool) error
	record(w io.Writer, h Header, r serp.Record) error
	footer(w io.Writer, h Header) error
}

// File is an append-only Sink. The file is opened and closed on every
// Append, so prior content is never truncated and concurrent invocations
// of the program interleave whole writes.
type File struct {
	path string
	enc  encoder
	echo io.Writer
}

var _ Sink = (*File)(nil)

// New builds a File sink.
func New(cfg Config) (*File, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sink: output path is empty")
	}
	format, err := ParseFormat(string(cfg.Format))
	if err != nil {
		return nil, err
	}

	var enc encoder
	switch format {
	case FormatJSONL:
		enc = jsonlEncoder{}
	case FormatCSV:
		enc = csvEncoder{}
	default:
		enc = textEncoder{}
	}

	return &File{path: cfg.Path, enc: enc, echo: cfg.Echo}, nil
}

// Path returns the output path.
func (f *File) Path() string { return f.path }

// Append writes the header for h followed by one entry per record and
// returns how many records reached the file.
func (f *File) Append(h Header, records []serp.Record) (n int, err error) {
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("sink: open %s: %w", f.path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("sink: close %s: %w", f.path, cerr)
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("sink: stat %s: %w", f.path, err)
	}

	if err := f.enc.header(file, h, info.Size() == 0); err != nil {
		return 0, fmt.Errorf("sink: write header: %w", err)
	}

	for _, r := range records {
		if err := f.enc.record(file, h, r); err != nil {
			return n, fmt.Errorf("sink: write record %d: %w", r.Rank, err)
		}
		n++
		if f.echo != nil {
			fmt.Fprintln(f.echo, TextLine(r))
		}
	}

	if err := f.enc.footer(file, h); err != nil {
		return n, fmt.Errorf("sink: write footer: %w", err)
	}
	return n, nil
}

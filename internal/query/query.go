// Package query validates dork queries and reads batch files.
package query

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrEmptyQuery is returned for a query that is empty after trimming.
var ErrEmptyQuery = errors.New("query: empty query")

// Validate rejects empty and whitespace-only queries. The query is otherwise
// passed to the upstream verbatim.
func Validate(q string) error {
	if strings.TrimSpace(q) == "" {
		return ErrEmptyQuery
	}
	return nil
}

// ReadBatch reads one query per line from path. Lines are trimmed and blank
// lines are dropped; nothing else is interpreted, so a line starting with '#'
// is a query like any other.
func ReadBatch(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("query: open batch file: %w", err)
	}
	defer f.Close()

	var queries []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		queries = append(queries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("query: read batch file: %w", err)
	}
	return queries, nil
}

package claim

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var droppedColumnPrefixes = []string{"Unnamed", "_c"}

// Load reads a claims file from disk.
func Load(path string) (*Table, error) {
	if path == "" {
		return nil, errors.New("claims file path required")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening claims file %s: %w", path, err)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("error reading claims file %s: %w", path, err)
	}

	slog.Debug("claims loaded", "path", path, "claims", t.Len(), "columns", len(t.columns))
	return t, nil
}

// Read parses comma-delimited claims with a header row. Header names and cells
// are trimmed; index columns left behind by spreadsheet exports are dropped.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoColumns
		}
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	keep := make([]int, 0, len(header))
	columns := make([]string, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if isDroppedColumn(h) {
			continue
		}
		keep = append(keep, i)
		columns = append(columns, h)
	}

	rows := make([][]string, 0)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading row %d: %w", len(rows)+1, err)
		}
		row := make([]string, len(keep))
		for j, i := range keep {
			row[j] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, row)
	}

	return NewTable(columns, rows)
}

func isDroppedColumn(name string) bool {
	if name == "" {
		return true
	}
	for _, p := range droppedColumnPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

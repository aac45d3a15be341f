package claim

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// TotalAmountColumn is the preferred claim amount column.
	TotalAmountColumn = "total_claim_amount"
	// AmountColumn is used when TotalAmountColumn is absent.
	AmountColumn = "claim_amount"
	// LabelColumn holds the Y/N fraud label of historical claims.
	LabelColumn = "fraud_reported"
)

var (
	ErrNoColumns       = errors.New("table has no columns")
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrRowWidth        = errors.New("row width does not match header")
)

// Record is a single claim keyed by column name.
type Record map[string]string

// Table is an ordered set of claim records sharing one header.
// Claims are identified by their row position.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// NewTable validates the header and rows and returns a table that owns copies of both.
func NewTable(columns []string, rows [][]string) (*Table, error) {
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}

	t := &Table{
		columns: make([]string, len(columns)),
		index:   make(map[string]int, len(columns)),
		rows:    make([][]string, 0, len(rows)),
	}
	copy(t.columns, columns)

	for i, c := range t.columns {
		if _, ok := t.index[c]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, c)
		}
		t.index[c] = i
	}

	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d fields, want %d", ErrRowWidth, i, len(r), len(columns))
		}
		row := make([]string, len(r))
		copy(row, r)
		t.rows = append(t.rows, row)
	}

	return t, nil
}

// Len returns the number of claims.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Columns returns a copy of the header.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Has reports whether the column exists.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Value returns the raw cell for row i. ok is false when the column does not exist.
func (t *Table) Value(i int, col string) (val string, ok bool) {
	j, ok := t.index[col]
	if !ok {
		return "", false
	}
	return t.rows[i][j], true
}

// Float returns the numeric value of a cell; missing or unparseable cells are 0.
func (t *Table) Float(i int, col string) float64 {
	v, ok := t.Value(i, col)
	if !ok {
		return 0
	}
	return ParseFloat(v)
}

// Decimal returns the cell as a decimal amount; missing or unparseable cells are zero.
func (t *Table) Decimal(i int, col string) decimal.Decimal {
	v, ok := t.Value(i, col)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Floats returns a whole column as numbers.
func (t *Table) Floats(col string) ([]float64, error) {
	if !t.Has(col) {
		return nil, fmt.Errorf("column not found: %s", col)
	}
	out := make([]float64, len(t.rows))
	for i := range t.rows {
		out[i] = t.Float(i, col)
	}
	return out, nil
}

// Row returns a copy of the raw values of row i in header order.
func (t *Table) Row(i int) []string {
	out := make([]string, len(t.rows[i]))
	copy(out, t.rows[i])
	return out
}

// Record returns row i keyed by column name.
func (t *Table) Record(i int) Record {
	r := make(Record, len(t.columns))
	for j, c := range t.columns {
		r[c] = t.rows[i][j]
	}
	return r
}

// Labels returns the 0/1 fraud labels of LabelColumn, or false when the column is absent.
func (t *Table) Labels() ([]int, bool) {
	if !t.Has(LabelColumn) {
		return nil, false
	}
	out := make([]int, len(t.rows))
	for i := range t.rows {
		v, _ := t.Value(i, LabelColumn)
		out[i] = ParseLabel(v)
	}
	return out, true
}

// ParseFloat parses a numeric cell, returning 0 for empty, invalid or
// non-finite input (NaN, Inf).
func ParseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ParseLabel maps Y to 1 and anything else to 0. Numeric 1 is accepted as well.
func ParseLabel(v string) int {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "Y", "YES", "1", "TRUE":
		return 1
	default:
		return 0
	}
}

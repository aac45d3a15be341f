package claim

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const (
	IncidentDateColumn = "incident_date"
	MonthColumn        = "claim_month"
	DayOfWeekColumn    = "claim_dayofweek"

	// UnknownValue replaces empty categorical cells.
	UnknownValue = "UNKNOWN"
)

var (
	// CategoricalColumns are filled with UnknownValue when empty. Zip and
	// city stay empty so the claim network does not link them.
	CategoricalColumns = []string{
		"policy_state", "incident_state", "policy_number",
		"collision_type", "incident_type", "incident_severity",
		"auto_make", "auto_model",
	}

	// IntegerColumns are truncated to whole numbers; invalid cells become 0.
	IntegerColumns = []string{
		"incident_hour_of_the_day", "number_of_vehicles_involved",
		"bodily_injuries", "witnesses",
	}

	dateLayouts = []string{
		time.DateOnly,
		time.RFC3339,
		time.DateTime,
		"2006/01/02",
		"01/02/2006",
		"1/2/2006",
	}
)

// Prepare returns a cleaned copy of t ready for feature extraction:
//   - the incident date column is incident_date, or else the first column
//     whose name contains "date"
//   - rows whose incident date is empty or unparseable are dropped
//   - claim_month (1-12) and claim_dayofweek (0 is Monday) are derived from it
//   - empty CategoricalColumns cells become UNKNOWN
//   - IntegerColumns are truncated to integers
//
// Tables without any date column keep all rows and get no derived columns.
// t itself is not modified.
func Prepare(t *Table) (*Table, error) {
	if t == nil {
		return nil, ErrNoColumns
	}

	dateCol := findDateColumn(t)

	columns := t.Columns()
	monthIdx, dowIdx := -1, -1
	if dateCol != "" {
		monthIdx = appendColumn(&columns, MonthColumn)
		dowIdx = appendColumn(&columns, DayOfWeekColumn)
	}

	rows := make([][]string, 0, len(t.rows))
	dropped := 0
	for i := range t.rows {
		row := make([]string, len(columns))
		copy(row, t.rows[i])

		if dateCol != "" {
			v, _ := t.Value(i, dateCol)
			d, ok := ParseDate(v)
			if !ok {
				dropped++
				continue
			}
			row[monthIdx] = strconv.Itoa(int(d.Month()))
			row[dowIdx] = strconv.Itoa(weekdayFromMonday(d.Weekday()))
		}

		for _, c := range CategoricalColumns {
			if j, ok := t.index[c]; ok && strings.TrimSpace(row[j]) == "" {
				row[j] = UnknownValue
			}
		}
		for _, c := range IntegerColumns {
			if j, ok := t.index[c]; ok {
				row[j] = strconv.FormatInt(int64(ParseFloat(row[j])), 10)
			}
		}

		rows = append(rows, row)
	}

	if dropped > 0 {
		slog.Info("dropped claims without a valid incident date", "column", dateCol, "dropped", dropped)
	}

	return NewTable(columns, rows)
}

// ParseDate parses the date formats seen in claim exports.
func ParseDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, v); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func findDateColumn(t *Table) string {
	if t.Has(IncidentDateColumn) {
		return IncidentDateColumn
	}
	for _, c := range t.columns {
		if strings.Contains(strings.ToLower(c), "date") {
			return c
		}
	}
	return ""
}

// appendColumn returns the index of name, adding it when missing.
func appendColumn(columns *[]string, name string) int {
	for j, c := range *columns {
		if c == name {
			return j
		}
	}
	*columns = append(*columns, name)
	return len(*columns) - 1
}

func weekdayFromMonday(d time.Weekday) int {
	return (int(d) + 6) % 7
}

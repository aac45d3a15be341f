package queue

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// WriteCSV writes the queue as the source columns in their original order
// followed by risk_score, confidence and priority_rank.
func WriteCSV(w io.Writer, q *Queue) error {
	if q == nil || q.source == nil {
		return errors.New("queue required")
	}

	cw := csv.NewWriter(w)

	header := append(q.source.Columns(), RiskScoreColumn, ConfidenceColumn, PriorityRankColumn)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	for _, e := range q.Entries {
		row := append(q.source.Row(e.Index),
			strconv.FormatFloat(e.RiskScore, 'f', -1, 64),
			strconv.FormatFloat(e.Confidence, 'f', -1, 64),
			strconv.Itoa(e.PriorityRank),
		)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("error writing rank %d: %w", e.PriorityRank, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the queue to path, replacing any existing file.
func SaveCSV(path string, q *Queue) error {
	if path == "" {
		return errors.New("output path required")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}

	if err := WriteCSV(f, q); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", path, err)
	}
	return nil
}

package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mchmarny/claimq/pkg/claim"
	"github.com/mchmarny/claimq/pkg/eval"
	"github.com/mchmarny/claimq/pkg/queue"
	"github.com/mchmarny/claimq/pkg/score"
)

const (
	insertRunSQL = `INSERT INTO run (
			id, created_at, source, claims, top_k, queued,
			weight_anomaly, weight_clf, weight_network,
			tie_break, model, evaluation
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	insertQueueEntrySQL = `INSERT INTO queue_entry (
			run_id, priority_rank, claim_index, risk_score, confidence, claim
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	selectRunColumns = `id, created_at, source, claims, top_k, queued,
			weight_anomaly, weight_clf, weight_network,
			COALESCE(tie_break, ''), COALESCE(model, ''), evaluation`

	selectRunsSQL = `SELECT ` + selectRunColumns + `
		FROM run
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	selectRunSQL = `SELECT ` + selectRunColumns + `
		FROM run
		WHERE id = ?
	`

	selectQueueSQL = `SELECT priority_rank, claim_index, risk_score, confidence, claim
		FROM queue_entry
		WHERE run_id = ?
		ORDER BY priority_rank
		LIMIT ?
	`

	deleteRunSQL = `DELETE FROM run WHERE id = ?`
)

// Run is one persisted scoring invocation.
type Run struct {
	ID         string        `json:"id" yaml:"id"`
	CreatedAt  time.Time     `json:"created_at" yaml:"createdAt"`
	Source     string        `json:"source" yaml:"source"`
	Claims     int           `json:"claims" yaml:"claims"`
	TopK       int           `json:"top_k" yaml:"topK"`
	Queued     int           `json:"queued" yaml:"queued"`
	Weights    score.Weights `json:"weights" yaml:"weights"`
	TieBreak   string        `json:"tie_break,omitempty" yaml:"tieBreak,omitempty"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`
	Evaluation *eval.Report  `json:"evaluation,omitempty" yaml:"evaluation,omitempty"`
}

// QueueEntry is a persisted queue position of a run.
type QueueEntry struct {
	PriorityRank int          `json:"priority_rank" yaml:"priorityRank"`
	ClaimIndex   int          `json:"claim_index" yaml:"claimIndex"`
	RiskScore    float64      `json:"risk_score" yaml:"riskScore"`
	Confidence   float64      `json:"confidence" yaml:"confidence"`
	Claim        claim.Record `json:"claim" yaml:"claim"`
}

// SaveRun stores the run and its queue in a single transaction.
func SaveRun(db *sql.DB, r *Run, q *queue.Queue) error {
	if db == nil {
		return errDBNotInitialized
	}
	if r == nil || r.ID == "" {
		return errors.New("run with id required")
	}
	if q == nil {
		return errors.New("queue required")
	}

	var evalJSON *string
	if r.Evaluation != nil {
		b, err := json.Marshal(r.Evaluation)
		if err != nil {
			return fmt.Errorf("failed to marshal evaluation for run %s: %w", r.ID, err)
		}
		s := string(b)
		evalJSON = &s
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error starting run tx: %w", err)
	}

	if _, err := tx.Exec(insertRunSQL,
		r.ID, r.CreatedAt.UTC().Format(timeFormat), r.Source, r.Claims, r.TopK, q.Len(),
		r.Weights.Anomaly, r.Weights.Classifier, r.Weights.Network,
		r.TieBreak, r.Model, evalJSON,
	); err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("error inserting run %s: %w", r.ID, err)
	}

	stmt, err := tx.Prepare(insertQueueEntrySQL)
	if err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("error preparing queue insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range q.Entries {
		b, err := json.Marshal(e.Claim)
		if err != nil {
			rollbackTransaction(tx)
			return fmt.Errorf("failed to marshal claim %d: %w", e.Index, err)
		}
		if _, err := stmt.Exec(r.ID, e.PriorityRank, e.Index, e.RiskScore, e.Confidence, string(b)); err != nil {
			rollbackTransaction(tx)
			return fmt.Errorf("error inserting rank %d of run %s: %w", e.PriorityRank, r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing run tx: %w", err)
	}

	r.Queued = q.Len()
	return nil
}

// ListRuns returns up to limit runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return list, nil
}

// GetRun returns a single run or ErrNotFound.
func GetRun(db *sql.DB, id string) (*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	r, err := scanRun(db.QueryRow(selectRunSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

// GetQueue returns up to limit queue entries of a run ordered by priority rank.
func GetQueue(db *sql.DB, runID string, limit int) ([]*QueueEntry, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectQueueSQL, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue of run %s: %w", runID, err)
	}
	defer rows.Close()

	list := make([]*QueueEntry, 0)
	for rows.Next() {
		e := &QueueEntry{}
		var claimJSON string
		if err := rows.Scan(&e.PriorityRank, &e.ClaimIndex, &e.RiskScore, &e.Confidence, &claimJSON); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		if err := json.Unmarshal([]byte(claimJSON), &e.Claim); err != nil {
			return nil, fmt.Errorf("failed to unmarshal claim at rank %d: %w", e.PriorityRank, err)
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue: %w", err)
	}

	return list, nil
}

// DeleteRun removes a run and its queue.
func DeleteRun(db *sql.DB, id string) error {
	if db == nil {
		return errDBNotInitialized
	}

	res, err := db.Exec(deleteRunSQL, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	r := &Run{}
	var created string
	var evalJSON sql.NullString
	if err := row.Scan(&r.ID, &created, &r.Source, &r.Claims, &r.TopK, &r.Queued,
		&r.Weights.Anomaly, &r.Weights.Classifier, &r.Weights.Network,
		&r.TieBreak, &r.Model, &evalJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run time %q: %w", created, err)
	}
	r.CreatedAt = t

	if evalJSON.Valid && evalJSON.String != "" {
		var rep eval.Report
		if err := json.Unmarshal([]byte(evalJSON.String), &rep); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evaluation of run %s: %w", r.ID, err)
		}
		r.Evaluation = &rep
	}

	return r, nil
}

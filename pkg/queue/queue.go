package queue

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/mchmarny/claimq/pkg/claim"
	"github.com/mchmarny/claimq/pkg/score"
	"github.com/shopspring/decimal"
)

const (
	// DefaultTopK is the queue size used when none is configured.
	DefaultTopK = 200

	RiskScoreColumn    = "risk_score"
	ConfidenceColumn   = "confidence"
	PriorityRankColumn = "priority_rank"
)

var (
	// ErrMissingField is returned when risk or confidence cannot be attached to
	// every claim. It always wraps score.ErrInputShape.
	ErrMissingField = errors.New("missing derived field")

	// ErrInvalidTopK is returned for a queue size below 1.
	ErrInvalidTopK = errors.New("top k must be a positive integer")
)

// TieBreak names the optional claim amount column used as the last sort key.
// The zero value disables the amount key.
type TieBreak struct {
	AmountColumn string `json:"amount_column,omitempty" yaml:"amountColumn,omitempty"`
}

// Active reports whether an amount column participates in ordering.
func (tb TieBreak) Active() bool {
	return tb.AmountColumn != ""
}

// ResolveTieBreak picks total_claim_amount, falling back to claim_amount, or
// no amount key when the table has neither.
func ResolveTieBreak(t *claim.Table) TieBreak {
	switch {
	case t.Has(claim.TotalAmountColumn):
		return TieBreak{AmountColumn: claim.TotalAmountColumn}
	case t.Has(claim.AmountColumn):
		return TieBreak{AmountColumn: claim.AmountColumn}
	default:
		return TieBreak{}
	}
}

// Entry is one ranked claim.
type Entry struct {
	Index        int             `json:"index" yaml:"index"`
	PriorityRank int             `json:"priority_rank" yaml:"priorityRank"`
	RiskScore    float64         `json:"risk_score" yaml:"riskScore"`
	Confidence   float64         `json:"confidence" yaml:"confidence"`
	Amount       decimal.Decimal `json:"amount" yaml:"amount"`
	Claim        claim.Record    `json:"claim" yaml:"claim"`
}

// Queue is the ranked, truncated output of Build. It keeps a reference to the
// source table for export in the original column order.
type Queue struct {
	Entries  []*Entry `json:"entries" yaml:"entries"`
	TieBreak TieBreak `json:"tie_break" yaml:"tieBreak"`
	Total    int      `json:"total" yaml:"total"`

	source *claim.Table
}

// Len returns the number of queued claims.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.Entries)
}

// Build ranks the claims of t with the tie-break resolved from its columns.
func Build(t *claim.Table, r *score.Risk, k int) (*Queue, error) {
	if t == nil {
		return nil, errors.New("claims table required")
	}
	return BuildWith(t, r, k, ResolveTieBreak(t))
}

// BuildWith attaches risk and confidence to each claim, orders them by risk,
// confidence and amount (all descending, input order on exact ties), assigns
// dense 1-based ranks and returns the first k entries.
func BuildWith(t *claim.Table, r *score.Risk, k int, tb TieBreak) (*Queue, error) {
	if t == nil {
		return nil, errors.New("claims table required")
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTopK, k)
	}
	if tb.Active() && !t.Has(tb.AmountColumn) {
		return nil, fmt.Errorf("tie-break column not found: %s", tb.AmountColumn)
	}

	n := t.Len()
	if r == nil {
		return nil, fmt.Errorf("%w: risk and confidence for %d claims: %w", ErrMissingField, n, score.ErrInputShape)
	}
	if len(r.Score) != n || len(r.Confidence) != n {
		return nil, fmt.Errorf("%w: %d claims, %d risk scores, %d confidence values: %w",
			ErrMissingField, n, len(r.Score), len(r.Confidence), score.ErrInputShape)
	}

	entries := make([]*Entry, n)
	for i := 0; i < n; i++ {
		e := &Entry{
			Index:      i,
			RiskScore:  r.Score[i],
			Confidence: r.Confidence[i],
		}
		if tb.Active() {
			e.Amount = t.Decimal(i, tb.AmountColumn)
		}
		entries[i] = e
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return less(entries[i], entries[j], tb)
	})

	if k > n {
		k = n
	}

	q := &Queue{
		Entries:  entries[:k:k],
		TieBreak: tb,
		Total:    n,
		source:   t,
	}
	for i, e := range q.Entries {
		e.PriorityRank = i + 1
		e.Claim = t.Record(e.Index)
	}

	return q, nil
}

// less orders a before b when a has the higher composite key.
func less(a, b *Entry, tb TieBreak) bool {
	if c := compareDesc(a.RiskScore, b.RiskScore); c != 0 {
		return c < 0
	}
	if c := compareDesc(a.Confidence, b.Confidence); c != 0 {
		return c < 0
	}
	if tb.Active() {
		return a.Amount.GreaterThan(b.Amount)
	}
	return false
}

// compareDesc returns -1 when a sorts first in descending order, 1 when b
// does and 0 on a tie. NaN sorts after every number.
func compareDesc(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

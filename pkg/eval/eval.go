// Package eval measures how well risk scores separate labelled fraud from
// legitimate claims.
package eval

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mchmarny/claimq/pkg/queue"
	"github.com/mchmarny/claimq/pkg/score"
)

// DefaultThreshold is the risk score at or above which a claim counts as flagged.
const DefaultThreshold = 0.5

// ErrUndefined is returned when a metric cannot be computed for the labels given.
var ErrUndefined = errors.New("metric undefined")

// Confusion is a binary confusion matrix with fraud as the positive class.
type Confusion struct {
	TruePositive  int `json:"tp" yaml:"tp"`
	FalsePositive int `json:"fp" yaml:"fp"`
	TrueNegative  int `json:"tn" yaml:"tn"`
	FalseNegative int `json:"fn" yaml:"fn"`
}

func (c Confusion) Total() int {
	return c.TruePositive + c.FalsePositive + c.TrueNegative + c.FalseNegative
}

func (c Confusion) Precision() float64 {
	return ratio(c.TruePositive, c.TruePositive+c.FalsePositive)
}

func (c Confusion) Recall() float64 {
	return ratio(c.TruePositive, c.TruePositive+c.FalseNegative)
}

func (c Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (c Confusion) Accuracy() float64 {
	return ratio(c.TruePositive+c.TrueNegative, c.Total())
}

// Report summarizes the separation quality of one scored batch.
type Report struct {
	Threshold      float64   `json:"threshold" yaml:"threshold"`
	Positives      int       `json:"positives" yaml:"positives"`
	Confusion      Confusion `json:"confusion" yaml:"confusion"`
	Precision      float64   `json:"precision" yaml:"precision"`
	Recall         float64   `json:"recall" yaml:"recall"`
	F1             float64   `json:"f1" yaml:"f1"`
	Accuracy       float64   `json:"accuracy" yaml:"accuracy"`
	ROCAUC         *float64  `json:"roc_auc,omitempty" yaml:"rocAuc,omitempty"`
	PrecisionAtK   float64   `json:"precision_at_k" yaml:"precisionAtK"`
	QueueSize      int       `json:"queue_size" yaml:"queueSize"`
	QueuePositives int       `json:"queue_positives" yaml:"queuePositives"`
}

// ConfusionAt flags every claim whose score is at or above threshold.
func ConfusionAt(labels []int, scores []float64, threshold float64) (Confusion, error) {
	var c Confusion
	if len(labels) != len(scores) {
		return c, fmt.Errorf("%w: %d labels, %d scores", score.ErrInputShape, len(labels), len(scores))
	}
	for i, y := range labels {
		flagged := scores[i] >= threshold
		switch {
		case y == 1 && flagged:
			c.TruePositive++
		case y == 1:
			c.FalseNegative++
		case flagged:
			c.FalsePositive++
		default:
			c.TrueNegative++
		}
	}
	return c, nil
}

// ROCAUC returns the probability that a random fraud claim outscores a random
// legitimate one. Tied scores share their average rank.
func ROCAUC(labels []int, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, fmt.Errorf("%w: %d labels, %d scores", score.ErrInputShape, len(labels), len(scores))
	}

	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	ranks := make([]float64, len(scores))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && scores[idx[j+1]] == scores[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	var pos, neg int
	var posRanks float64
	for i, y := range labels {
		if y == 1 {
			pos++
			posRanks += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0, fmt.Errorf("%w: roc auc needs both classes (positives=%d, negatives=%d)", ErrUndefined, pos, neg)
	}

	u := posRanks - float64(pos*(pos+1))/2
	return u / float64(pos*neg), nil
}

// PrecisionAtK returns the share of fraud among the queued claims and their count.
func PrecisionAtK(labels []int, q *queue.Queue) (float64, int, error) {
	if q.Len() == 0 {
		return 0, 0, nil
	}
	var hits int
	for _, e := range q.Entries {
		if e.Index < 0 || e.Index >= len(labels) {
			return 0, 0, fmt.Errorf("%w: queue index %d outside %d labels", score.ErrInputShape, e.Index, len(labels))
		}
		hits += labels[e.Index]
	}
	return ratio(hits, q.Len()), hits, nil
}

// Evaluate builds a Report for scored claims and their queue.
func Evaluate(labels []int, scores []float64, q *queue.Queue, threshold float64) (*Report, error) {
	c, err := ConfusionAt(labels, scores, threshold)
	if err != nil {
		return nil, err
	}

	r := &Report{
		Threshold: threshold,
		Positives: c.TruePositive + c.FalseNegative,
		Confusion: c,
		Precision: c.Precision(),
		Recall:    c.Recall(),
		F1:        c.F1(),
		Accuracy:  c.Accuracy(),
		QueueSize: q.Len(),
	}

	if auc, err := ROCAUC(labels, scores); err == nil {
		r.ROCAUC = &auc
	} else if !errors.Is(err, ErrUndefined) {
		return nil, err
	}

	r.PrecisionAtK, r.QueuePositives, err = PrecisionAtK(labels, q)
	if err != nil {
		return nil, err
	}

	return r, nil
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

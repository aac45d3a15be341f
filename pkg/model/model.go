// Package model turns claims into anomaly and classifier signals, either from
// an immutable trained-model snapshot or from scores precomputed upstream.
package model

import (
	"errors"
	"fmt"

	"github.com/mchmarny/claimq/pkg/claim"
)

const (
	DefaultAnomalyColumn    = "anomaly_score"
	DefaultClassifierColumn = "clf_proba"
)

var ErrMissingScoreColumn = errors.New("score column not found")

// Predictions are the per-claim model outputs, index-aligned with the claims.
type Predictions struct {
	Anomaly    []float64
	Classifier []float64
}

// Predictor produces predictions for every claim in a table.
type Predictor interface {
	Predict(t *claim.Table) (*Predictions, error)
}

// ColumnSource reads predictions that an upstream model already wrote into the claims.
type ColumnSource struct {
	AnomalyColumn    string
	ClassifierColumn string
}

// NewColumnSource returns a source over the given columns, using the default
// column names for empty arguments.
func NewColumnSource(anomalyCol, classifierCol string) *ColumnSource {
	if anomalyCol == "" {
		anomalyCol = DefaultAnomalyColumn
	}
	if classifierCol == "" {
		classifierCol = DefaultClassifierColumn
	}
	return &ColumnSource{
		AnomalyColumn:    anomalyCol,
		ClassifierColumn: classifierCol,
	}
}

// Predict returns both score columns; unparseable cells are 0.
func (s *ColumnSource) Predict(t *claim.Table) (*Predictions, error) {
	if t == nil {
		return nil, errors.New("claims table required")
	}

	for _, c := range []string{s.AnomalyColumn, s.ClassifierColumn} {
		if !t.Has(c) {
			return nil, fmt.Errorf("%w: %s", ErrMissingScoreColumn, c)
		}
	}

	a, err := t.Floats(s.AnomalyColumn)
	if err != nil {
		return nil, err
	}
	c, err := t.Floats(s.ClassifierColumn)
	if err != nil {
		return nil, err
	}

	return &Predictions{Anomaly: a, Classifier: c}, nil
}

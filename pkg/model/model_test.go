package model

import (
	"testing"

	"github.com/mchmarny/claimq/pkg/claim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnSource(t *testing.T) {
	tbl, err := claim.NewTable(
		[]string{"policy_number", DefaultAnomalyColumn, DefaultClassifierColumn},
		[][]string{{"P1", "0.2", "0.9"}, {"P2", "bad", "0.1"}},
	)
	require.NoError(t, err)

	p, err := NewColumnSource("", "").Predict(tbl)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0}, p.Anomaly)
	assert.Equal(t, []float64{0.9, 0.1}, p.Classifier)
}

func TestColumnSource_NonFiniteCells(t *testing.T) {
	tbl, err := claim.NewTable(
		[]string{DefaultAnomalyColumn, DefaultClassifierColumn},
		[][]string{{"NaN", "0.3"}, {"0.4", "Inf"}},
	)
	require.NoError(t, err)

	p, err := NewColumnSource("", "").Predict(tbl)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.4}, p.Anomaly)
	assert.Equal(t, []float64{0.3, 0}, p.Classifier)
}

func TestColumnSource_CustomColumns(t *testing.T) {
	tbl, err := claim.NewTable([]string{"iso", "rf"}, [][]string{{"1", "2"}})
	require.NoError(t, err)

	p, err := NewColumnSource("iso", "rf").Predict(tbl)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, p.Anomaly)
	assert.Equal(t, []float64{2}, p.Classifier)
}

func TestColumnSource_MissingColumn(t *testing.T) {
	tbl, err := claim.NewTable([]string{DefaultAnomalyColumn}, [][]string{{"1"}})
	require.NoError(t, err)

	_, err = NewColumnSource("", "").Predict(tbl)
	assert.ErrorIs(t, err, ErrMissingScoreColumn)

	_, err = NewColumnSource("", "").Predict(nil)
	assert.Error(t, err)
}

package queue

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/claimq/pkg/claim"
	"github.com/mchmarny/claimq/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	tbl, err := claim.NewTable([]string{"policy_number", "total_claim_amount"}, [][]string{
		{"P1", "100"},
		{"P2", "200"},
	})
	require.NoError(t, err)

	q, err := Build(tbl, &score.Risk{Score: []float64{0.25, 0.75}, Confidence: []float64{1, 0.5}}, 200)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, q))

	want := "policy_number,total_claim_amount,risk_score,confidence,priority_rank\n" +
		"P2,200,0.75,0.5,1\n" +
		"P1,100,0.25,1,2\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_NilQueue(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteCSV(&buf, nil))
	assert.Error(t, WriteCSV(&buf, &Queue{}))
}

func TestSaveCSV(t *testing.T) {
	tbl, err := claim.NewTable([]string{"id"}, [][]string{{"a"}})
	require.NoError(t, err)
	q, err := Build(tbl, &score.Risk{Score: []float64{0}, Confidence: []float64{1}}, 1)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "investigation_queue.csv")
	require.NoError(t, SaveCSV(path, q))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,risk_score,confidence,priority_rank\na,0,1,1\n", string(b))

	assert.Error(t, SaveCSV("", q))
}

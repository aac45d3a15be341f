package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mchmarny/claimq/pkg/data"
	"github.com/mchmarny/claimq/pkg/pipeline"
	"github.com/mchmarny/claimq/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testClaims = `policy,auto_make,insured_zip,incident_city,total_claim_amount,incident_severity,anomaly_score,clf_proba,fraud_reported
P1,Audi,1001,Columbus,5000,Major Damage,0.9,0.8,Y
P2,Audi,1002,Columbus,7000,Minor Damage,0.1,0.2,N
P3,BMW,1001,Arlington,3000,Major Damage,0.5,0.9,Y
P4,Ford,1003,Riverwood,1000,Trivial Damage,0.0,0.1,N
`

const testSnapshot = `name: fraud-model
version: "1"
anomaly:
  intercept: 1.0
  coefficients:
    total_claim_amount: -0.0001
classifier:
  intercept: -1.0
  coefficients:
    incident_severity=Major Damage: 2.0
`

type testEnv struct {
	t   *testing.T
	dir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{t: t, dir: t.TempDir()}
}

func (e *testEnv) file(name, content string) string {
	e.t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func (e *testEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)

	base := []string{appName,
		"--db", filepath.Join(e.dir, data.DataFileName),
		"--config", filepath.Join(e.dir, "config.yaml"),
	}
	err := app.Run(append(base, args...))
	return out.String(), err
}

func (e *testEnv) runs(args ...string) []*data.Run {
	e.t.Helper()
	out, err := e.run("", args...)
	require.NoError(e.t, err)
	var runs []*data.Run
	require.NoError(e.t, json.Unmarshal([]byte(out), &runs))
	return runs
}

func TestScore(t *testing.T) {
	env := newTestEnv(t)
	src := env.file("claims.csv", testClaims)

	runs := env.runs("score", "--csv", src, "--top", "2")
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, src, run.Source)
	assert.Equal(t, 4, run.Claims)
	assert.Equal(t, 2, run.Queued)
	assert.Equal(t, columnModelName, run.Model)
	require.NotNil(t, run.Evaluation)

	_, err := os.Stat(pipeline.QueuePath(src, ""))
	require.NoError(t, err)

	listed := env.runs("query", "runs")
	require.Len(t, listed, 1)
	assert.Equal(t, run.ID, listed[0].ID)

	out, err := env.run("", "query", "queue", "--run", run.ID, "--limit", "1")
	require.NoError(t, err)
	var entries []*data.QueueEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].PriorityRank)
	assert.Equal(t, "P1", entries[0].Claim["policy"])
}

func TestScore_NoSaveYAML(t *testing.T) {
	env := newTestEnv(t)
	src := env.file("claims.csv", testClaims)
	out := filepath.Join(env.dir, "queue.csv")
	metricsFile := filepath.Join(env.dir, "claimq.prom")

	res, err := env.run("", "--format", "yaml", "score", "--csv", src,
		"--out", out, "--no-save", "--metrics-file", metricsFile,
		"--weight", "network=0")
	require.NoError(t, err)

	var runs []*data.Run
	require.NoError(t, yaml.Unmarshal([]byte(res), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, score.Weights{Anomaly: 0.45, Classifier: 0.45}, runs[0].Weights)

	_, err = os.Stat(out)
	require.NoError(t, err)

	b, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "claimq_pipeline_runs_total")

	assert.Empty(t, env.runs("query", "runs"))
}

func TestScore_MultipleFiles(t *testing.T) {
	env := newTestEnv(t)
	a := env.file("a.csv", testClaims)
	b := env.file("b.csv", testClaims)
	outDir := filepath.Join(env.dir, "out")

	runs := env.runs("score", "--csv", a, "--csv", b, "--out", outDir)
	require.Len(t, runs, 2)
	assert.Equal(t, a, runs[0].Source)
	assert.Equal(t, b, runs[1].Source)

	for _, src := range []string{a, b} {
		_, err := os.Stat(pipeline.QueuePath(src, outDir))
		assert.NoError(t, err)
	}
}

func TestScore_Model(t *testing.T) {
	env := newTestEnv(t)
	src := env.file("claims.csv", testClaims)
	snap := env.file("model.yaml", testSnapshot)

	runs := env.runs("score", "--csv", src, "--model", snap, "--no-save")
	require.Len(t, runs, 1)
	assert.Equal(t, "fraud-model@1", runs[0].Model)
	assert.Equal(t, 4, runs[0].Queued)
}

func TestScore_Config(t *testing.T) {
	env := newTestEnv(t)
	src := env.file("claims.csv", testClaims)
	env.file("config.yaml", "queue:\n  top: 3\nweights:\n  clf: 0.9\n")

	runs := env.runs("score", "--csv", src, "--no-save")
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].TopK)
	assert.Equal(t, 0.9, runs[0].Weights.Classifier)
}

func TestScore_Errors(t *testing.T) {
	tests := []struct {
		name string
		args func(src string) []string
	}{
		{"missing csv flag", func(string) []string { return []string{"score"} }},
		{"missing file", func(string) []string { return []string{"score", "--csv", "nope.csv"} }},
		{"invalid top", func(src string) []string { return []string{"score", "--csv", src, "--top", "0"} }},
		{"unknown weight", func(src string) []string { return []string{"score", "--csv", src, "--weight", "graph=1"} }},
		{"malformed weight", func(src string) []string { return []string{"score", "--csv", src, "--weight", "clf"} }},
		{"bad format", func(src string) []string { return []string{"--format", "xml", "score", "--csv", src} }},
		{"missing model", func(src string) []string { return []string{"score", "--csv", src, "--model", "nope.yaml"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			src := env.file("claims.csv", testClaims)
			_, err := env.run("", tt.args(src)...)
			assert.Error(t, err)
		})
	}
}

func TestQueryQueue_UnknownRun(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("", "query", "queue", "--run", "missing")
	assert.ErrorIs(t, err, data.ErrNotFound)
}

func TestReset(t *testing.T) {
	env := newTestEnv(t)
	src := env.file("claims.csv", testClaims)
	env.runs("score", "--csv", src)

	out, err := env.run("n\n", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")
	assert.Len(t, env.runs("query", "runs"), 1)

	out, err = env.run("", "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset complete.")
	assert.Empty(t, env.runs("query", "runs"))
}

func TestParseWeights(t *testing.T) {
	base := score.DefaultWeights()

	w, err := parseWeights(base, nil)
	require.NoError(t, err)
	assert.Equal(t, base, w)

	w, err = parseWeights(base, []string{"anomaly=0.7", " network = 0.3 "})
	require.NoError(t, err)
	assert.Equal(t, score.Weights{Anomaly: 0.7, Classifier: 0.45, Network: 0.3}, w)

	w, err = parseWeights(base, []string{"Anomaly=0.2", "CLF=0.1"})
	require.NoError(t, err)
	assert.Equal(t, score.Weights{Anomaly: 0.2, Classifier: 0.1, Network: 0.10}, w)

	_, err = parseWeights(base, []string{"clf=-1"})
	assert.Error(t, err)

	_, err = parseWeights(base, []string{"other=1"})
	assert.ErrorIs(t, err, score.ErrUnknownWeight)
}

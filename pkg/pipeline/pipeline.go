// Package pipeline scores claim batches end to end: load, predict, combine,
// queue, evaluate, export and persist.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/claimq/pkg/claim"
	"github.com/mchmarny/claimq/pkg/data"
	"github.com/mchmarny/claimq/pkg/eval"
	"github.com/mchmarny/claimq/pkg/metrics"
	"github.com/mchmarny/claimq/pkg/model"
	"github.com/mchmarny/claimq/pkg/network"
	"github.com/mchmarny/claimq/pkg/queue"
	"github.com/mchmarny/claimq/pkg/score"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers bounds RunAll when the runner is created with fewer than one worker.
	DefaultWorkers = 4

	queueSuffix = "_queue.csv"
)

var errNoSource = errors.New("batch source required")

// Batch is one claims file and how to score it.
type Batch struct {
	// Source is the path of the claims CSV.
	Source string
	// Output is where the queue CSV is written; empty skips the export.
	Output string
	// Predictor supplies anomaly and classifier scores.
	// Nil reads the default precomputed score columns.
	Predictor model.Predictor
	// Model labels the run with the predictor that produced it.
	Model     string
	Weights   *score.Weights
	TopK      int
	Threshold float64
}

// Result is the outcome of one batch.
type Result struct {
	Run   *data.Run    `json:"run" yaml:"run"`
	Queue *queue.Queue `json:"-" yaml:"-"`
}

// Runner executes batches. It is safe for concurrent use.
type Runner struct {
	db      *sql.DB
	metrics *metrics.Metrics
	workers int

	// serializes writes to the single SQLite file
	mu sync.Mutex
}

// New returns a runner that persists to db and records to m.
// Either may be nil.
func New(db *sql.DB, m *metrics.Metrics, workers int) *Runner {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Runner{
		db:      db,
		metrics: m,
		workers: workers,
	}
}

// Run scores a single batch.
func (r *Runner) Run(ctx context.Context, b Batch) (*Result, error) {
	res, err := r.run(ctx, b)
	if err != nil {
		r.metrics.ObserveRun(metrics.StatusFailed, 0, 0)
		return nil, fmt.Errorf("scoring %s: %w", b.Source, err)
	}
	r.metrics.ObserveRun(metrics.StatusOK, res.Run.Claims, res.Queue.Len())
	return res, nil
}

func (r *Runner) run(ctx context.Context, b Batch) (*Result, error) {
	if b.Source == "" {
		return nil, errNoSource
	}
	if b.TopK < 1 {
		return nil, queue.ErrInvalidTopK
	}
	if b.Predictor == nil {
		b.Predictor = model.NewColumnSource("", "")
	}
	if b.Weights == nil {
		w := score.DefaultWeights()
		b.Weights = &w
	}

	start := time.Now()
	raw, err := claim.Load(b.Source)
	if err != nil {
		return nil, err
	}
	t, err := claim.Prepare(raw)
	if err != nil {
		return nil, fmt.Errorf("preparing claims: %w", err)
	}
	r.metrics.Since(metrics.StageLoad, start)
	slog.Debug("claims loaded", "source", b.Source, "claims", t.Len(), "dropped", raw.Len()-t.Len(), "columns", len(t.Columns()))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	p, err := b.Predictor.Predict(t)
	if err != nil {
		return nil, fmt.Errorf("predicting: %w", err)
	}
	r.metrics.Since(metrics.StagePredict, start)

	start = time.Now()
	idx := network.NewDegreeIndex(t)
	net := idx.Score(t)
	r.metrics.Since(metrics.StageNetwork, start)
	slog.Debug("network scored", "nodes", idx.Nodes())

	start = time.Now()
	risk, err := score.Combine(score.Signals{
		Anomaly:    p.Anomaly,
		Classifier: p.Classifier,
		Network:    net,
	}, b.Weights)
	if err != nil {
		return nil, fmt.Errorf("combining scores: %w", err)
	}
	r.metrics.Since(metrics.StageCombine, start)

	start = time.Now()
	q, err := queue.Build(t, risk, b.TopK)
	if err != nil {
		return nil, fmt.Errorf("building queue: %w", err)
	}
	r.metrics.Since(metrics.StageQueue, start)

	run := &data.Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Source:    b.Source,
		Claims:    t.Len(),
		TopK:      b.TopK,
		Queued:    q.Len(),
		Weights:   *b.Weights,
		TieBreak:  q.TieBreak.AmountColumn,
		Model:     b.Model,
	}

	if labels, ok := t.Labels(); ok {
		start = time.Now()
		rep, err := eval.Evaluate(labels, risk.Score, q, b.Threshold)
		if err != nil {
			return nil, fmt.Errorf("evaluating: %w", err)
		}
		run.Evaluation = rep
		r.metrics.Since(metrics.StageEvaluate, start)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if b.Output != "" {
		start = time.Now()
		if err := queue.SaveCSV(b.Output, q); err != nil {
			return nil, err
		}
		r.metrics.Since(metrics.StageExport, start)
		slog.Debug("queue exported", "path", b.Output, "entries", q.Len())
	}

	if r.db != nil {
		r.mu.Lock()
		err := data.SaveRun(r.db, run, q)
		r.mu.Unlock()
		if err != nil {
			return nil, err
		}
		slog.Debug("run saved", "id", run.ID)
	}

	return &Result{Run: run, Queue: q}, nil
}

// RunAll scores batches concurrently. Results keep the order of batches.
// The first failure cancels the batches that have not finished.
func (r *Runner) RunAll(ctx context.Context, batches []Batch) ([]*Result, error) {
	results := make([]*Result, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, b := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.Run(gctx, b)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// QueuePath derives the queue CSV path for source. An empty dir places
// the file next to the source.
func QueuePath(source, dir string) string {
	base := filepath.Base(source)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + queueSuffix
	if dir == "" {
		dir = filepath.Dir(source)
	}
	return filepath.Join(dir, name)
}

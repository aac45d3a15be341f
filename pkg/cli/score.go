package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mchmarny/claimq/pkg/data"
	"github.com/mchmarny/claimq/pkg/model"
	"github.com/mchmarny/claimq/pkg/pipeline"
	"github.com/mchmarny/claimq/pkg/score"
	urfave "github.com/urfave/cli/v2"
)

const (
	dirMode = 0700

	columnModelName = "columns"
)

var (
	csvFlag = &urfave.StringSliceFlag{
		Name:     "csv",
		Usage:    "Claims CSV file to score (repeat for multiple files)",
		Required: true,
	}

	modelFlag = &urfave.StringFlag{
		Name:  "model",
		Usage: "Model snapshot file or http(s) URL (default: read precomputed score columns)",
	}

	topFlag = &urfave.IntFlag{
		Name:  "top",
		Usage: "Number of claims to keep on the investigation queue (default: config queue.top)",
	}

	outFlag = &urfave.StringFlag{
		Name:  "out",
		Usage: "Queue CSV path, or output directory when scoring multiple files (default: next to each input)",
	}

	weightFlag = &urfave.StringSliceFlag{
		Name:  "weight",
		Usage: "Weight override as key=value, keys: anomaly, clf, network",
	}

	noSaveFlag = &urfave.BoolFlag{
		Name:  "no-save",
		Usage: "Do not persist the run to the database",
	}

	metricsFileFlag = &urfave.StringFlag{
		Name:  "metrics-file",
		Usage: "Write run metrics in Prometheus text format to this file",
	}

	scoreCmd = &urfave.Command{
		Name:    "score",
		Aliases: []string{"s"},
		Usage:   "Score claims and build the investigation queue",
		Action:  cmdScore,
		Flags: []urfave.Flag{
			csvFlag,
			modelFlag,
			topFlag,
			outFlag,
			weightFlag,
			noSaveFlag,
			metricsFileFlag,
		},
	}
)

func cmdScore(c *urfave.Context) error {
	cfg := getConfig(c)

	top := cfg.Config.Queue.Top
	if c.IsSet(topFlag.Name) {
		top = c.Int(topFlag.Name)
	}

	weights, err := parseWeights(cfg.Config.Weights, c.StringSlice(weightFlag.Name))
	if err != nil {
		return err
	}

	var predictor model.Predictor = model.NewColumnSource(
		cfg.Config.Columns.Anomaly, cfg.Config.Columns.Classifier)
	modelName := columnModelName
	if src := c.String(modelFlag.Name); src != "" {
		snap, err := model.Load(c.Context, src)
		if err != nil {
			return err
		}
		predictor = snap
		modelName = snap.Name() + "@" + snap.Version()
		if !snap.HasClassifier() {
			slog.Warn("model has no classifier, classifier scores will be 0", "model", modelName)
		}
		slog.Debug("model features", "model", modelName, "features", snap.Features())
	}

	sources := c.StringSlice(csvFlag.Name)
	out := c.String(outFlag.Name)
	if len(sources) > 1 && out != "" {
		if err := os.MkdirAll(out, dirMode); err != nil {
			return fmt.Errorf("creating output dir %s: %w", out, err)
		}
	}

	batches := make([]pipeline.Batch, len(sources))
	for i, src := range sources {
		output := pipeline.QueuePath(src, out)
		if len(sources) == 1 && out != "" {
			output = out
		}
		batches[i] = pipeline.Batch{
			Source:    src,
			Output:    output,
			Predictor: predictor,
			Model:     modelName,
			Weights:   &weights,
			TopK:      top,
			Threshold: cfg.Config.Eval.Threshold,
		}
	}

	db := cfg.DB
	if c.Bool(noSaveFlag.Name) {
		db = nil
	}

	results, runErr := pipeline.New(db, cfg.Metrics, cfg.Config.Workers).RunAll(c.Context, batches)

	if err := cfg.Metrics.WriteTextfile(c.String(metricsFileFlag.Name)); err != nil {
		slog.Error("failed to write metrics", "error", err)
	}

	if runErr != nil {
		return runErr
	}

	runs := make([]*data.Run, len(results))
	for i, res := range results {
		runs[i] = res.Run
		slog.Debug("scored", "source", res.Run.Source, "claims", res.Run.Claims,
			"queued", res.Run.Queued, "output", batches[i].Output)
	}

	return encode(c, runs)
}

// parseWeights applies key=value overrides on top of base.
func parseWeights(base score.Weights, overrides []string) (score.Weights, error) {
	if len(overrides) == 0 {
		return base, nil
	}

	m := map[string]float64{
		score.WeightAnomaly:    base.Anomaly,
		score.WeightClassifier: base.Classifier,
		score.WeightNetwork:    base.Network,
	}
	for _, o := range overrides {
		k, v, ok := strings.Cut(o, "=")
		if !ok {
			return score.Weights{}, fmt.Errorf("invalid weight %q, expected key=value", o)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 {
			return score.Weights{}, fmt.Errorf("invalid weight value %q for %s", v, k)
		}
		m[score.NormalizeWeightKey(k)] = f
	}

	return score.WeightsFromMap(m)
}

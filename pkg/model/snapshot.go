package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/mchmarny/claimq/pkg/claim"
	"github.com/mchmarny/claimq/pkg/http"
	"gopkg.in/yaml.v3"
)

const (
	// anomalyEpsilon keeps the anomaly rescaling defined for constant decisions.
	anomalyEpsilon = 1e-9

	logFeaturePrefix   = "log_"
	ratioFeatureSuffix = "_ratio"
	oneHotSeparator    = "="
)

var ErrInvalidSnapshot = errors.New("invalid model snapshot")

// Linear is a linear decision function over named features.
type Linear struct {
	Intercept    float64            `yaml:"intercept" json:"intercept"`
	Coefficients map[string]float64 `yaml:"coefficients" json:"coefficients"`

	// features fixes the summation order so decisions are reproducible.
	features []string
}

func (l *Linear) clone() *Linear {
	if l == nil {
		return nil
	}
	return &Linear{
		Intercept:    l.Intercept,
		Coefficients: maps.Clone(l.Coefficients),
		features:     slices.Sorted(maps.Keys(l.Coefficients)),
	}
}

func (l *Linear) decision(fs *FeatureSet, i int) float64 {
	v := l.Intercept
	for _, f := range l.features {
		v += l.Coefficients[f] * fs.Value(i, f)
	}
	return v
}

type snapshotFile struct {
	Name       string  `yaml:"name"`
	Version    string  `yaml:"version"`
	Anomaly    *Linear `yaml:"anomaly"`
	Classifier *Linear `yaml:"classifier"`
}

// Snapshot is an immutable trained model: an anomaly decision function where
// lower values are more anomalous, and an optional fraud classifier. Scoring
// the same claims with the same snapshot always yields the same predictions.
type Snapshot struct {
	name       string
	version    string
	anomaly    *Linear
	classifier *Linear
}

// New validates and copies the model parts. classifier may be nil when no
// labelled data was available at training time.
func New(name, version string, anomaly, classifier *Linear) (*Snapshot, error) {
	if anomaly == nil {
		return nil, fmt.Errorf("%w: anomaly model required", ErrInvalidSnapshot)
	}
	for _, l := range []*Linear{anomaly, classifier} {
		if l == nil {
			continue
		}
		for f, w := range l.Coefficients {
			if strings.TrimSpace(f) == "" {
				return nil, fmt.Errorf("%w: empty feature name", ErrInvalidSnapshot)
			}
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("%w: non-finite coefficient for %s", ErrInvalidSnapshot, f)
			}
		}
	}

	return &Snapshot{
		name:       name,
		version:    version,
		anomaly:    anomaly.clone(),
		classifier: classifier.clone(),
	}, nil
}

// Parse reads a YAML snapshot.
func Parse(b []byte) (*Snapshot, error) {
	var f snapshotFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return New(f.Name, f.Version, f.Anomaly, f.Classifier)
}

// Load reads a YAML snapshot from a local path or an http(s) URL.
func Load(ctx context.Context, src string) (*Snapshot, error) {
	if src == "" {
		return nil, errors.New("model snapshot source required")
	}

	var (
		b   []byte
		err error
	)
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		b, err = http.Get(ctx, src)
	} else {
		b, err = os.ReadFile(src)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading model snapshot %s: %w", src, err)
	}

	s, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("error parsing model snapshot %s: %w", src, err)
	}

	slog.Debug("model snapshot loaded", "source", src, "name", s.name, "version", s.version)
	return s, nil
}

func (s *Snapshot) Name() string    { return s.name }
func (s *Snapshot) Version() string { return s.version }

// HasClassifier reports whether the snapshot carries a trained classifier.
func (s *Snapshot) HasClassifier() bool { return s.classifier != nil }

// Features returns the sorted set of features referenced by the snapshot.
func (s *Snapshot) Features() []string {
	set := make(map[string]struct{})
	for _, l := range []*Linear{s.anomaly, s.classifier} {
		if l == nil {
			continue
		}
		for f := range l.Coefficients {
			set[f] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// Predict scores every claim. Anomaly decisions are flipped and rescaled so
// that 1 is the most anomalous claim of the batch. Without a classifier the
// classifier probabilities are all 0.
func (s *Snapshot) Predict(t *claim.Table) (*Predictions, error) {
	if t == nil {
		return nil, errors.New("claims table required")
	}

	n := t.Len()
	p := &Predictions{
		Anomaly:    make([]float64, n),
		Classifier: make([]float64, n),
	}
	if n == 0 {
		return p, nil
	}

	features := s.Features()
	fs := NewFeatureSet(t, features)
	if missing := fs.Missing(features); len(missing) > 0 {
		slog.Warn("model features not found in claims, using 0", "model", s.name, "features", missing)
	}

	raw := make([]float64, n)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		raw[i] = s.anomaly.decision(fs, i)
		lo = math.Min(lo, raw[i])
		hi = math.Max(hi, raw[i])
	}
	for i, v := range raw {
		p.Anomaly[i] = 1 - (v-lo)/(hi-lo+anomalyEpsilon)
	}

	if s.HasClassifier() {
		for i := 0; i < n; i++ {
			p.Classifier[i] = sigmoid(s.classifier.decision(fs, i))
		}
	}

	return p, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

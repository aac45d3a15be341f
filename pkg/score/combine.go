package score

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	WeightAnomaly    = "anomaly"
	WeightClassifier = "clf"
	WeightNetwork    = "network"

	defaultAnomalyWeight    = 0.45
	defaultClassifierWeight = 0.45
	defaultNetworkWeight    = 0.10
)

var (
	// ErrInputShape is returned when index-aligned arrays differ in length.
	ErrInputShape = errors.New("input shape mismatch")

	// ErrUnknownWeight is returned for weight keys other than anomaly, clf and network.
	ErrUnknownWeight = errors.New("unknown weight")

	// ErrDuplicateWeight is returned when two keys name the same weight, e.g. "clf" and "CLF".
	ErrDuplicateWeight = errors.New("duplicate weight")
)

// Weights holds the blend weight of each signal. Weights are used as given;
// they are not required to sum to 1.
type Weights struct {
	Anomaly    float64 `json:"anomaly" yaml:"anomaly" koanf:"anomaly" validate:"gte=0"`
	Classifier float64 `json:"clf" yaml:"clf" koanf:"clf" validate:"gte=0"`
	Network    float64 `json:"network" yaml:"network" koanf:"network" validate:"gte=0"`
}

// DefaultWeights returns the 0.45/0.45/0.10 anomaly/classifier/network blend.
func DefaultWeights() Weights {
	return Weights{
		Anomaly:    defaultAnomalyWeight,
		Classifier: defaultClassifierWeight,
		Network:    defaultNetworkWeight,
	}
}

// Sum returns the upper bound of the risk score under these weights.
func (w Weights) Sum() float64 {
	return w.Anomaly + w.Classifier + w.Network
}

// WeightsFromMap builds weights from named values. Missing keys keep their
// default value. Keys are case-insensitive; unrecognized keys and keys naming
// the same weight twice fail.
func WeightsFromMap(m map[string]float64) (Weights, error) {
	w := DefaultWeights()

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]string, len(keys))
	for _, k := range keys {
		v := m[k]
		name := NormalizeWeightKey(k)
		if prev, ok := seen[name]; ok {
			return Weights{}, fmt.Errorf("%w: %q and %q", ErrDuplicateWeight, prev, k)
		}
		seen[name] = k

		switch name {
		case WeightAnomaly:
			w.Anomaly = v
		case WeightClassifier:
			w.Classifier = v
		case WeightNetwork:
			w.Network = v
		default:
			return Weights{}, fmt.Errorf("%w: %q (valid: %s, %s, %s)",
				ErrUnknownWeight, k, WeightAnomaly, WeightClassifier, WeightNetwork)
		}
	}
	return w, nil
}

// NormalizeWeightKey returns the canonical form of a weight name.
func NormalizeWeightKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// Signals are the raw per-claim model outputs, index-aligned with the claims.
type Signals struct {
	Anomaly    []float64
	Classifier []float64
	Network    []float64
}

// Len returns the number of claims when all signals agree on it.
func (s Signals) Len() (int, error) {
	n := len(s.Anomaly)
	if len(s.Classifier) != n || len(s.Network) != n {
		return 0, fmt.Errorf("%w: anomaly=%d, classifier=%d, network=%d",
			ErrInputShape, len(s.Anomaly), len(s.Classifier), len(s.Network))
	}
	return n, nil
}

// Risk is the blended output of Combine.
type Risk struct {
	Score      []float64
	Confidence []float64
}

// Combine normalizes each signal independently and blends them into a risk
// score. Confidence measures agreement between the normalized anomaly and
// classifier signals: 1 means identical, 0 means one is 0 and the other 1.
// A nil w uses DefaultWeights.
func Combine(s Signals, w *Weights) (*Risk, error) {
	n, err := s.Len()
	if err != nil {
		return nil, err
	}

	weights := DefaultWeights()
	if w != nil {
		weights = *w
	}

	a := Normalize(s.Anomaly)
	c := Normalize(s.Classifier)
	net := Normalize(s.Network)

	r := &Risk{
		Score:      make([]float64, n),
		Confidence: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		r.Score[i] = weights.Anomaly*a[i] + weights.Classifier*c[i] + weights.Network*net[i]
		r.Confidence[i] = 1 - math.Abs(a[i]-c[i])
	}
	return r, nil
}

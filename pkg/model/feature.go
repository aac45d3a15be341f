package model

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/mchmarny/claimq/pkg/claim"
)

const (
	// TopCategories is how many values of a one-hot column keep their own indicator.
	TopCategories = 10
	// OtherCategory stands in for the less frequent values of a one-hot column.
	OtherCategory = "OTHER"
)

// FeatureSet evaluates named features over one batch of claims:
//   - "col" is the numeric value of the column
//   - "log_col" is log(1 + col)
//   - "col_ratio" is col divided by total_claim_amount (0 replaced by 1), or by
//     the batch maximum of col when total_claim_amount is absent
//   - "col=value" is 1 when the column equals value, else 0; values outside
//     the TopCategories most frequent of the batch read as OTHER
//
// Features whose column is missing evaluate to 0.
type FeatureSet struct {
	t *claim.Table

	// top holds the kept values of bucketed one-hot columns
	top map[string]map[string]struct{}
	// max holds batch maxima of ratio columns when there is no total amount
	max map[string]float64
}

// NewFeatureSet prepares the batch statistics needed by names.
func NewFeatureSet(t *claim.Table, names []string) *FeatureSet {
	fs := &FeatureSet{
		t:   t,
		top: make(map[string]map[string]struct{}),
		max: make(map[string]float64),
	}

	for _, name := range names {
		if col, _, ok := strings.Cut(name, oneHotSeparator); ok {
			if _, done := fs.top[col]; !done && t.Has(col) {
				if kept := topValues(t, col, TopCategories); kept != nil {
					fs.top[col] = kept
				}
			}
			continue
		}
		if t.Has(name) || t.Has(claim.TotalAmountColumn) {
			continue
		}
		if col, ok := strings.CutSuffix(name, ratioFeatureSuffix); ok && t.Has(col) {
			fs.max[col] = columnMax(t, col)
		}
	}

	return fs
}

// Value evaluates feature name for claim i.
func (fs *FeatureSet) Value(i int, name string) float64 {
	t := fs.t
	if col, val, ok := strings.Cut(name, oneHotSeparator); ok {
		v, exists := t.Value(i, col)
		if !exists {
			return 0
		}
		if kept, bucketed := fs.top[col]; bucketed {
			if _, ok := kept[v]; !ok {
				v = OtherCategory
			}
		}
		if v == val {
			return 1
		}
		return 0
	}

	if t.Has(name) {
		return t.Float(i, name)
	}

	if col, ok := strings.CutPrefix(name, logFeaturePrefix); ok && t.Has(col) {
		return math.Log1p(t.Float(i, col))
	}

	if col, ok := strings.CutSuffix(name, ratioFeatureSuffix); ok && t.Has(col) {
		denom, ok := fs.max[col]
		if !ok {
			denom = t.Float(i, claim.TotalAmountColumn)
		}
		if denom == 0 {
			denom = 1
		}
		return t.Float(i, col) / denom
	}

	return 0
}

// Missing returns the names that cannot be evaluated against the batch
// because their source column is absent.
func (fs *FeatureSet) Missing(names []string) []string {
	var out []string
	for _, name := range names {
		if _, ok := sourceColumn(fs.t, name); !ok {
			out = append(out, name)
		}
	}
	return out
}

func sourceColumn(t *claim.Table, name string) (string, bool) {
	if col, _, ok := strings.Cut(name, oneHotSeparator); ok {
		return col, t.Has(col)
	}
	if t.Has(name) {
		return name, true
	}
	if col, ok := strings.CutPrefix(name, logFeaturePrefix); ok && t.Has(col) {
		return col, true
	}
	if col, ok := strings.CutSuffix(name, ratioFeatureSuffix); ok && t.Has(col) {
		return col, true
	}
	return "", false
}

// topValues returns the k most frequent values of col, ties in order of first
// appearance, or nil when the column has no more than k distinct values.
func topValues(t *claim.Table, col string, k int) map[string]struct{} {
	counts := make(map[string]int)
	var order []string
	for i := 0; i < t.Len(); i++ {
		v, _ := t.Value(i, col)
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	if len(order) <= k {
		return nil
	}

	slices.SortStableFunc(order, func(a, b string) int {
		return cmp.Compare(counts[b], counts[a])
	})

	kept := make(map[string]struct{}, k)
	for _, v := range order[:k] {
		kept[v] = struct{}{}
	}
	return kept
}

func columnMax(t *claim.Table, col string) float64 {
	hi := math.Inf(-1)
	for i := 0; i < t.Len(); i++ {
		hi = math.Max(hi, t.Float(i, col))
	}
	if math.IsInf(hi, -1) {
		return 0
	}
	return hi
}

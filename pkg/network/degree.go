// Package network derives a relational fraud signal from how strongly a claim's
// location and vehicle make are connected across the whole batch.
package network

import (
	"log/slog"
	"strings"

	"github.com/mchmarny/claimq/pkg/claim"
)

const (
	ZipColumn  = "insured_zip"
	CityColumn = "incident_city"
	MakeColumn = "auto_make"

	unknownMake = "UNKNOWN"

	zipPrefix  = "ZIP_"
	cityPrefix = "CITY_"
	makePrefix = "MAKE_"
)

// DegreeIndex maps each graph node (zip, city or make) to its number of
// distinct neighbours in the zip/city to make bipartite graph.
type DegreeIndex struct {
	degrees map[string]int
}

// NewDegreeIndex builds the graph of t once and keeps only node degrees.
// Zip and city nodes are linked to the claim's make when present and non-empty;
// every claim contributes a make node, UNKNOWN when the make is missing.
func NewDegreeIndex(t *claim.Table) *DegreeIndex {
	adj := make(map[string]map[string]struct{})
	addNode := func(n string) {
		if _, ok := adj[n]; !ok {
			adj[n] = make(map[string]struct{})
		}
	}
	addEdge := func(a, b string) {
		addNode(a)
		addNode(b)
		adj[a][b] = struct{}{}
		adj[b][a] = struct{}{}
	}

	for i := 0; i < t.Len(); i++ {
		mk := makeNode(t, i)
		addNode(mk)

		if n, ok := zipNode(t, i); ok {
			addEdge(n, mk)
		}
		if n, ok := cityNode(t, i); ok {
			addEdge(n, mk)
		}
	}

	idx := &DegreeIndex{degrees: make(map[string]int, len(adj))}
	for n, nb := range adj {
		idx.degrees[n] = len(nb)
	}

	slog.Debug("degree index built", "claims", t.Len(), "nodes", len(idx.degrees))
	return idx
}

// Degree returns the degree of a node, 0 when the node is unknown.
func (d *DegreeIndex) Degree(node string) int {
	return d.degrees[node]
}

// Nodes returns the number of indexed nodes.
func (d *DegreeIndex) Nodes() int {
	return len(d.degrees)
}

// Score returns, per claim of t, the summed degree of its zip, city and make
// nodes. Values are raw counts; scaling is left to the risk combiner.
func (d *DegreeIndex) Score(t *claim.Table) []float64 {
	out := make([]float64, t.Len())
	for i := range out {
		var s int
		if v, ok := t.Value(i, ZipColumn); ok {
			s += d.Degree(zipPrefix + v)
		}
		if v, ok := t.Value(i, CityColumn); ok {
			s += d.Degree(cityPrefix + v)
		}
		s += d.Degree(makeNode(t, i))
		out[i] = float64(s)
	}
	return out
}

func makeNode(t *claim.Table, i int) string {
	v, ok := t.Value(i, MakeColumn)
	if !ok || strings.TrimSpace(v) == "" {
		v = unknownMake
	}
	return makePrefix + v
}

func zipNode(t *claim.Table, i int) (string, bool) {
	v, ok := t.Value(i, ZipColumn)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return zipPrefix + v, true
}

func cityNode(t *claim.Table, i int) (string, bool) {
	v, ok := t.Value(i, CityColumn)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return cityPrefix + v, true
}

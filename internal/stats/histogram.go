package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Bins is the fixed histogram resolution used by every distribution view.
const Bins = 30

// Histogram is an equal-width binning of a population.
// Edges has Bins+1 entries; bin i covers [Edges[i], Edges[i+1]).
// The final edge sits just above the maximum so the maximum lands in the last bin.
type Histogram struct {
	Edges  []float64 `json:"edges"`
	Counts []int     `json:"counts"`
}

// NewHistogram bins values over [min, max]. A constant population is
// centred in [v-0.5, v+0.5]. An empty population yields an empty histogram.
func NewHistogram(values []float64) Histogram {
	if len(values) == 0 {
		return Histogram{}
	}
	x := append([]float64(nil), values...)
	sort.Float64s(x)
	lo, hi := x[0], x[len(x)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	edges := make([]float64, Bins+1)
	if math.IsInf(hi-lo, 0) {
		// hi-lo overflows; interpolate each edge between the finite bounds.
		for i := range edges {
			t := float64(i) / Bins
			edges[i] = lo*(1-t) + hi*t
		}
	} else {
		floats.Span(edges, lo, hi)
	}
	edges[0] = lo
	edges[Bins] = math.Nextafter(hi, math.Inf(1))

	raw := stat.Histogram(nil, edges, x, nil)
	counts := make([]int, len(raw))
	for i, c := range raw {
		counts[i] = int(c)
	}
	return Histogram{Edges: edges, Counts: counts}
}

// BinOf returns the bin containing v, or -1 when v lies outside the histogram.
func (h Histogram) BinOf(v float64) int {
	n := len(h.Edges)
	if n < 2 || v < h.Edges[0] || v >= h.Edges[n-1] {
		return -1
	}
	return sort.Search(n, func(i int) bool { return h.Edges[i] > v }) - 1
}

// Total returns the number of binned values.
func (h Histogram) Total() int {
	t := 0
	for _, c := range h.Counts {
		t += c
	}
	return t
}

package stats

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/clientscope-cli/internal/dataset"
)

const populationCSV = `SK_ID_CURR,A,B,E,F,G,H,I,D,J
1,1,true,5,10,3,1,2,x,2
2,2,false,5,20,3,2,4,y,4
3,3,true,5,30,3,3,6,x,6
4,4,false,5,40,3,3,8,z,8
5,10,true,0,0,3,3,5,x,20
`

func loadPopulation(t *testing.T) *dataset.Dataset {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pop.csv")
	require.NoError(t, os.WriteFile(p, []byte(populationCSV), 0o644))
	ds, err := dataset.Load(p, dataset.DefaultOptions())
	require.NoError(t, err)
	return ds
}

func TestHistogramBounds(t *testing.T) {
	h := NewHistogram([]float64{30, 0})
	require.Len(t, h.Edges, Bins+1)
	require.Len(t, h.Counts, Bins)
	assert.Equal(t, 1, h.Counts[0])
	assert.Equal(t, 1, h.Counts[Bins-1])
	assert.Equal(t, 2, h.Total())

	assert.Equal(t, 0, h.BinOf(0))
	assert.Equal(t, Bins-1, h.BinOf(30))
	assert.Equal(t, 15, h.BinOf(15.5))
	assert.Equal(t, -1, h.BinOf(-1))
	assert.Equal(t, -1, h.BinOf(31))
}

func TestHistogramConstantColumn(t *testing.T) {
	h := NewHistogram([]float64{5, 5, 5})
	assert.InDelta(t, 4.5, h.Edges[0], 1e-12)
	assert.InDelta(t, 5.5, h.Edges[Bins], 1e-12)
	assert.Equal(t, 3, h.Total())
	assert.NotEqual(t, -1, h.BinOf(5))

	assert.Empty(t, NewHistogram(nil).Counts)
}

func TestHistogramRangeWiderThanFloat(t *testing.T) {
	vals := []float64{-1.7e308, 0, 1.7e308}
	var h Histogram
	require.NotPanics(t, func() { h = NewHistogram(vals) })
	require.Len(t, h.Edges, Bins+1)
	assert.IsNonDecreasing(t, h.Edges)
	assert.Equal(t, 3, h.Total())
	assert.Equal(t, 1, h.Counts[0])
	assert.Equal(t, 1, h.Counts[Bins/2])
	assert.Equal(t, 1, h.Counts[Bins-1])
	assert.Equal(t, Bins-1, h.BinOf(1.7e308))
	assert.Equal(t, Bins/2, h.BinOf(0))
}

func TestDescribeOverflowingColumn(t *testing.T) {
	p := filepath.Join(t.TempDir(), "wide.csv")
	body := "SK_ID_CURR,W,A\n1,-1.7e308,1\n2,0,2\n3,1.7e308,3\n4,1.7e308,4\n"
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	ds, err := dataset.Load(p, dataset.DefaultOptions())
	require.NoError(t, err)

	var s NumericSummary
	require.NotPanics(t, func() { s, err = DescribeNumeric(ds, "W") })
	require.NoError(t, err)
	assert.Equal(t, 4, s.Histogram.Total())
	_, err = s.ZScore(0)
	assert.ErrorIs(t, err, ErrUndefinedZScore)
	_, err = json.Marshal(s)
	assert.NoError(t, err)

	_, err = Compare(ds, 2, "W")
	assert.NoError(t, err)
	ex, err := TopExtremes(ds, 3, 3)
	require.NoError(t, err)
	for _, e := range append(ex.Low, ex.High...) {
		assert.NotEqual(t, "W", e.Column)
	}
}

func TestDescribeNumeric(t *testing.T) {
	ds := loadPopulation(t)
	s, err := DescribeNumeric(ds, "A")
	require.NoError(t, err)
	assert.Equal(t, 5, s.Count)
	assert.InDelta(t, 4.0, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(12.5), s.Std, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 10.0, s.Max)
	assert.Equal(t, 3.0, s.Median)
	assert.Equal(t, 5, s.Histogram.Total())

	_, err = DescribeNumeric(ds, "D")
	assert.True(t, errors.Is(err, ErrNotNumeric))
	_, err = DescribeNumeric(ds, "nope")
	assert.True(t, errors.Is(err, ErrUnknownColumn))
}

func TestSingleValueStdIsUndefined(t *testing.T) {
	s, err := describeValues("x", []float64{7})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(s.Std))
	_, err = s.ZScore(7)
	assert.ErrorIs(t, err, ErrUndefinedZScore)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"std":null`)
}

func TestZScore(t *testing.T) {
	ds := loadPopulation(t)
	z, err := ZScore(ds, "A", 10)
	require.NoError(t, err)
	assert.InDelta(t, 6/math.Sqrt(12.5), z, 1e-12)

	_, err = ZScore(ds, "G", 3)
	assert.ErrorIs(t, err, ErrUndefinedZScore)
}

func TestDescribeCategorical(t *testing.T) {
	ds := loadPopulation(t)
	s, err := DescribeCategorical(ds, "D")
	require.NoError(t, err)
	assert.Equal(t, []CategoryCount{{"x", 3}, {"y", 1}, {"z", 1}}, s.Counts)

	s, err = DescribeCategorical(ds, "E")
	require.NoError(t, err)
	assert.Equal(t, []CategoryCount{{"0", 1}, {"5", 4}}, s.Counts)
}

func TestIsCategorical(t *testing.T) {
	ds := loadPopulation(t)
	for name, want := range map[string]bool{"A": false, "B": true, "E": true, "D": true, "F": false} {
		c, ok := ds.Column(name)
		require.True(t, ok)
		assert.Equal(t, want, IsCategorical(c), name)
	}
}

func TestCompare(t *testing.T) {
	ds := loadPopulation(t)

	cmp, err := Compare(ds, 4, "A")
	require.NoError(t, err)
	assert.False(t, cmp.Categorical)
	require.NotNil(t, cmp.Numeric)
	require.NotNil(t, cmp.ZScore)
	assert.Equal(t, Bins-1, cmp.ClientBin)
	assert.Equal(t, 10.0, cmp.ClientValue)

	cmp, err = Compare(ds, 1, "B")
	require.NoError(t, err)
	assert.True(t, cmp.Categorical)
	assert.Equal(t, "0", cmp.ClientValue)
	assert.Equal(t, -1, cmp.ClientBin)
	assert.Nil(t, cmp.ZScore)

	_, err = Compare(ds, 5, "A")
	var se *dataset.InvalidSelectionError
	assert.True(t, errors.As(err, &se))
}

func TestBivariate(t *testing.T) {
	ds := loadPopulation(t)
	v, err := Bivariate(ds, 2, "A", "J")
	require.NoError(t, err)
	assert.Len(t, v.Points, 5)
	assert.Equal(t, Point{X: 3, Y: 6}, v.Client)
	assert.InDelta(t, 1.0, v.Correlation, 1e-12)

	_, err = Bivariate(ds, 2, "A", "D")
	assert.ErrorIs(t, err, ErrNotNumeric)
}

func TestTopExtremes(t *testing.T) {
	ds := loadPopulation(t)

	ex, err := TopExtremes(ds, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "J", "H"}, columns(ex.High))
	assert.Equal(t, []string{"F"}, columns(ex.Low))
	for _, e := range ex.High {
		assert.Greater(t, e.ZScore, 0.0)
		assert.Len(t, e.Histogram.Counts, Bins)
	}

	ex, err = TopExtremes(ds, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, columns(ex.High))
	assert.Equal(t, []string{"F"}, columns(ex.Low))

	ex, err = TopExtremes(ds, 4, 0)
	require.NoError(t, err)
	assert.Empty(t, ex.High)
	assert.Empty(t, ex.Low)

	_, err = TopExtremes(ds, -1, 3)
	var se *dataset.InvalidSelectionError
	assert.True(t, errors.As(err, &se))
}

func TestTopExtremesNeverSharesColumns(t *testing.T) {
	ds := loadPopulation(t)
	for key := 0; key < ds.Len(); key++ {
		ex, err := TopExtremes(ds, key, DefaultExtremes)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(ex.Low), DefaultExtremes)
		assert.LessOrEqual(t, len(ex.High), DefaultExtremes)
		seen := map[string]bool{}
		for _, e := range append(append([]Extreme{}, ex.Low...), ex.High...) {
			assert.False(t, seen[e.Column], e.Column)
			seen[e.Column] = true
			c, _ := ds.Column(e.Column)
			assert.GreaterOrEqual(t, c.Distinct(), 3)
		}
	}
}

func columns(es []Extreme) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Column
	}
	return out
}

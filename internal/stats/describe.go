// Package stats computes population summaries of a dataset column and
// positions a single client inside them.
package stats

import (
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"

	mstats "github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"

	"github.com/KaramelBytes/clientscope-cli/internal/dataset"
)

var (
	// ErrUndefinedZScore is returned when the population standard deviation is zero or undefined.
	ErrUndefinedZScore = errors.New("z-score undefined: standard deviation is zero or undefined")
	// ErrUnknownColumn is returned for a column name absent from the schema.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrNotNumeric is returned when a numeric view is requested for a categorical column.
	ErrNotNumeric = errors.New("column is not numeric")
	// ErrEmptyPopulation is returned when the dataset has no records.
	ErrEmptyPopulation = errors.New("population is empty")
)

// NumericSummary describes a numeric population. Std is the sample standard
// deviation and is NaN for fewer than two values.
type NumericSummary struct {
	Column    string
	Count     int
	Mean      float64
	Std       float64
	Min       float64
	Max       float64
	Median    float64
	Histogram Histogram
}

// StdDefined reports whether Std is a usable non-zero spread.
func (s NumericSummary) StdDefined() bool {
	return !math.IsNaN(s.Std) && !math.IsInf(s.Std, 0) && s.Std > 0
}

func (s NumericSummary) MarshalJSON() ([]byte, error) {
	out := struct {
		Column    string    `json:"column"`
		Count     int       `json:"count"`
		Mean      *float64  `json:"mean"`
		Std       *float64  `json:"std"`
		Min       float64   `json:"min"`
		Max       float64   `json:"max"`
		Median    *float64  `json:"median"`
		Histogram Histogram `json:"histogram"`
	}{s.Column, s.Count, finite(s.Mean), finite(s.Std), s.Min, s.Max, finite(s.Median), s.Histogram}
	return json.Marshal(out)
}

// CategoryCount is one value of a categorical population and its frequency.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CategoricalSummary lists value counts ordered by value.
type CategoricalSummary struct {
	Column string          `json:"column"`
	Count  int             `json:"count"`
	Counts []CategoryCount `json:"counts"`
}

// IsCategorical decides how a column is displayed: categorical columns and
// numeric columns with at most two distinct values get a count view.
func IsCategorical(c *dataset.Column) bool {
	return c.Kind == dataset.KindCategorical || c.Distinct() <= 2
}

func column(ds *dataset.Dataset, name string) (*dataset.Column, error) {
	c, ok := ds.Column(name)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownColumn, "column %q", name)
	}
	return c, nil
}

// DescribeNumeric summarizes a numeric or boolean column.
func DescribeNumeric(ds *dataset.Dataset, name string) (NumericSummary, error) {
	c, err := column(ds, name)
	if err != nil {
		return NumericSummary{}, err
	}
	if !c.IsNumeric() {
		return NumericSummary{}, eris.Wrapf(ErrNotNumeric, "column %q", name)
	}
	return describeValues(name, c.Values)
}

func describeValues(name string, values []float64) (NumericSummary, error) {
	if len(values) == 0 {
		return NumericSummary{}, eris.Wrapf(ErrEmptyPopulation, "column %q", name)
	}
	data := mstats.Float64Data(values)
	s := NumericSummary{Column: name, Count: len(values), Std: math.NaN()}
	var err error
	if s.Mean, err = mstats.Mean(data); err != nil {
		return NumericSummary{}, eris.Wrap(err, "mean")
	}
	if len(values) > 1 {
		if s.Std, err = mstats.StandardDeviationSample(data); err != nil {
			return NumericSummary{}, eris.Wrap(err, "std")
		}
	}
	if s.Min, err = mstats.Min(data); err != nil {
		return NumericSummary{}, eris.Wrap(err, "min")
	}
	if s.Max, err = mstats.Max(data); err != nil {
		return NumericSummary{}, eris.Wrap(err, "max")
	}
	if s.Median, err = mstats.Median(data); err != nil {
		return NumericSummary{}, eris.Wrap(err, "median")
	}
	s.Histogram = NewHistogram(values)
	return s, nil
}

// DescribeCategorical counts the values of any column. Numeric values are
// ordered numerically, labels lexically.
func DescribeCategorical(ds *dataset.Dataset, name string) (CategoricalSummary, error) {
	c, err := column(ds, name)
	if err != nil {
		return CategoricalSummary{}, err
	}
	out := CategoricalSummary{Column: name, Count: ds.Len()}
	if c.IsNumeric() {
		counts := map[float64]int{}
		for _, v := range c.Values {
			counts[v]++
		}
		keys := make([]float64, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Float64s(keys)
		for _, k := range keys {
			out.Counts = append(out.Counts, CategoryCount{Value: FormatValue(k), Count: counts[k]})
		}
		return out, nil
	}
	counts := map[string]int{}
	for _, v := range c.Labels {
		counts[v]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.Counts = append(out.Counts, CategoryCount{Value: k, Count: counts[k]})
	}
	return out, nil
}

// ZScore positions value in the named column's population.
func ZScore(ds *dataset.Dataset, name string, value float64) (float64, error) {
	s, err := DescribeNumeric(ds, name)
	if err != nil {
		return 0, err
	}
	return s.ZScore(value)
}

// ZScore returns (value-mean)/std for this population. Summaries whose
// moments overflowed yield ErrUndefinedZScore.
func (s NumericSummary) ZScore(value float64) (float64, error) {
	if !s.StdDefined() {
		return 0, ErrUndefinedZScore
	}
	z := (value - s.Mean) / s.Std
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 0, ErrUndefinedZScore
	}
	return z, nil
}

// FormatValue renders a numeric value the shortest way that round-trips.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

package stats

import (
	"sort"

	"github.com/KaramelBytes/clientscope-cli/internal/dataset"
)

// DefaultExtremes is the number of attributes shown on each side.
const DefaultExtremes = 3

// Extreme is one attribute where the client deviates from the population.
type Extreme struct {
	Column    string    `json:"column"`
	ZScore    float64   `json:"z_score"`
	Value     float64   `json:"value"`
	Bin       int       `json:"bin"`
	Histogram Histogram `json:"histogram"`
}

// Extremes holds the most negative (Low) and most positive (High) deviations.
type Extremes struct {
	Key  int       `json:"key"`
	Low  []Extreme `json:"low"`
	High []Extreme `json:"high"`
}

// TopExtremes ranks the client's z-scores over every numeric or boolean
// column with at least three distinct values and a non-zero spread.
// Low is ordered most negative first and High most positive first; ties keep
// schema order. A zero z-score belongs to neither side.
func TopExtremes(ds *dataset.Dataset, key, k int) (Extremes, error) {
	if err := ds.CheckKey(key); err != nil {
		return Extremes{}, err
	}
	out := Extremes{Key: key, Low: []Extreme{}, High: []Extreme{}}
	if k <= 0 {
		return out, nil
	}
	var low, high []Extreme
	for _, c := range ds.Columns {
		if !c.IsNumeric() || c.Distinct() < 3 {
			continue
		}
		sum, err := describeValues(c.Name, c.Values)
		if err != nil {
			return Extremes{}, err
		}
		v := c.Values[key]
		z, err := sum.ZScore(v)
		if err != nil || z == 0 {
			continue
		}
		e := Extreme{Column: c.Name, ZScore: z, Value: v, Bin: sum.Histogram.BinOf(v), Histogram: sum.Histogram}
		if z < 0 {
			low = append(low, e)
		} else {
			high = append(high, e)
		}
	}
	sort.SliceStable(low, func(i, j int) bool { return low[i].ZScore < low[j].ZScore })
	sort.SliceStable(high, func(i, j int) bool { return high[i].ZScore > high[j].ZScore })
	if len(low) > k {
		low = low[:k]
	}
	if len(high) > k {
		high = high[:k]
	}
	out.Low = append(out.Low, low...)
	out.High = append(out.High, high...)
	return out, nil
}

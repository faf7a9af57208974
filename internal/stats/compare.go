package stats

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/clientscope-cli/internal/dataset"
)

// Comparison places one client in the population of a single column.
// Exactly one of Numeric and Categories is set.
type Comparison struct {
	Column      string              `json:"column"`
	Categorical bool                `json:"categorical"`
	Numeric     *NumericSummary     `json:"numeric,omitempty"`
	Categories  *CategoricalSummary `json:"categories,omitempty"`
	ClientValue any                 `json:"client_value"`
	// ClientBin is the histogram bin of the client's value, -1 for count views.
	ClientBin int      `json:"client_bin"`
	ZScore    *float64 `json:"z_score,omitempty"`
}

// Compare describes column and locates the client at key in it.
func Compare(ds *dataset.Dataset, key int, name string) (Comparison, error) {
	if err := ds.CheckKey(key); err != nil {
		return Comparison{}, err
	}
	c, err := column(ds, name)
	if err != nil {
		return Comparison{}, err
	}
	cmp := Comparison{Column: name, ClientValue: c.Value(key), ClientBin: -1}
	if IsCategorical(c) {
		counts, err := DescribeCategorical(ds, name)
		if err != nil {
			return Comparison{}, err
		}
		cmp.Categorical = true
		cmp.Categories = &counts
		if c.IsNumeric() {
			cmp.ClientValue = FormatValue(c.Values[key])
		}
		return cmp, nil
	}
	sum, err := DescribeNumeric(ds, name)
	if err != nil {
		return Comparison{}, err
	}
	v := c.Values[key]
	cmp.Numeric = &sum
	cmp.ClientBin = sum.Histogram.BinOf(v)
	if z, err := sum.ZScore(v); err == nil {
		cmp.ZScore = &z
	}
	return cmp, nil
}

// Point is one (x, y) pair.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BivariateView is the joint population of two columns with the client highlighted.
type BivariateView struct {
	X      string  `json:"x"`
	Y      string  `json:"y"`
	Points []Point `json:"points"`
	Client Point   `json:"client"`
	// Correlation is Pearson's r, NaN when either column is constant.
	Correlation float64 `json:"-"`
}

func (b BivariateView) MarshalJSON() ([]byte, error) {
	type alias BivariateView
	return json.Marshal(struct {
		alias
		Correlation *float64 `json:"correlation"`
	}{alias(b), finite(b.Correlation)})
}

// Bivariate pairs two numeric or boolean columns.
func Bivariate(ds *dataset.Dataset, key int, xName, yName string) (BivariateView, error) {
	if err := ds.CheckKey(key); err != nil {
		return BivariateView{}, err
	}
	xc, err := column(ds, xName)
	if err != nil {
		return BivariateView{}, err
	}
	yc, err := column(ds, yName)
	if err != nil {
		return BivariateView{}, err
	}
	if !xc.IsNumeric() {
		return BivariateView{}, eris.Wrapf(ErrNotNumeric, "column %q", xName)
	}
	if !yc.IsNumeric() {
		return BivariateView{}, eris.Wrapf(ErrNotNumeric, "column %q", yName)
	}
	view := BivariateView{
		X:           xName,
		Y:           yName,
		Points:      make([]Point, ds.Len()),
		Client:      Point{X: xc.Values[key], Y: yc.Values[key]},
		Correlation: math.NaN(),
	}
	for i := range view.Points {
		view.Points[i] = Point{X: xc.Values[i], Y: yc.Values[i]}
	}
	if ds.Len() > 1 {
		view.Correlation = stat.Correlation(xc.Values, yc.Values, nil)
	}
	return view, nil
}

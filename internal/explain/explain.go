// Package explain attributes tree-ensemble predictions to input features
// with exact TreeSHAP and summarizes the attributions globally and per client.
package explain

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/KaramelBytes/clientscope-cli/internal/dataset"
	"github.com/KaramelBytes/clientscope-cli/internal/model"
)

// PositiveClass is the class whose probability local explanations decompose.
const PositiveClass = 1

// OtherFeatures labels the folded remainder of a local explanation.
const OtherFeatures = "other features"

// Error reports an attribution request that cannot be served.
type Error struct {
	Key    int
	Len    int
	Reason string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return "explain: " + e.Reason
	}
	return fmt.Sprintf("explain: key %d outside attribution batch [0, %d)", e.Key, e.Len)
}

// Variant says how attributions are laid out for the model's class count.
type Variant int

const (
	// Binary keeps only the positive-class attributions.
	Binary Variant = iota
	// MultiClass keeps one attribution matrix per class.
	MultiClass
)

func (v Variant) String() string {
	if v == Binary {
		return "binary"
	}
	return "multiclass"
}

// Explainer computes attributions for one model.
type Explainer struct {
	model    *model.Ensemble
	variant  Variant
	expected []float64
}

// NewExplainer precomputes the per-class expected values of m.
func NewExplainer(m *model.Ensemble) (*Explainer, error) {
	if m == nil || len(m.Trees) == 0 {
		return nil, &Error{Reason: "model has no trees"}
	}
	e := &Explainer{model: m, variant: MultiClass, expected: make([]float64, m.NClasses)}
	if m.NClasses == 2 {
		e.variant = Binary
	}
	for ti := range m.Trees {
		for c, v := range expectedValue(m, ti) {
			e.expected[c] += v
		}
	}
	for c := range e.expected {
		e.expected[c] /= float64(len(m.Trees))
	}
	return e, nil
}

// Variant returns the attribution layout.
func (e *Explainer) Variant() Variant { return e.variant }

// ExpectedValue returns the per-class base values.
func (e *Explainer) ExpectedValue() []float64 { return append([]float64(nil), e.expected...) }

// Model returns the explained model.
func (e *Explainer) Model() *model.Ensemble { return e.model }

// Shap returns phi[feature][class] for one input vector in model feature order.
func (e *Explainer) Shap(x []float64) ([][]float64, error) {
	if len(x) != len(e.model.FeatureNames) {
		return nil, &Error{Reason: fmt.Sprintf("got %d features, model expects %d", len(x), len(e.model.FeatureNames))}
	}
	phi := make([][]float64, len(x))
	for f := range phi {
		phi[f] = make([]float64, e.model.NClasses)
	}
	for ti := range e.model.Trees {
		treeShap(e.model, ti, x, phi)
	}
	n := float64(len(e.model.Trees))
	for f := range phi {
		for c := range phi[f] {
			phi[f][c] /= n
		}
	}
	return phi, nil
}

// Batch holds attributions for every record of a dataset. Values has one
// matrix for Binary (the positive class) and one per class for MultiClass;
// rows are record keys and columns follow Features.
type Batch struct {
	Features    []string
	Variant     Variant
	Values      []*mat.Dense
	Base        []float64
	X           *mat.Dense
	Predictions []float64
}

// Len returns the number of explained records.
func (b *Batch) Len() int {
	if b == nil || b.X == nil {
		return 0
	}
	r, _ := b.X.Dims()
	return r
}

// positive returns the matrix and base value of the positive class.
func (b *Batch) positive() (*mat.Dense, float64) {
	if b.Variant == Binary {
		return b.Values[0], b.Base[0]
	}
	return b.Values[PositiveClass], b.Base[PositiveClass]
}

// Explain attributes the model output for every record of ds. Model features
// are matched to dataset columns by name and must be numeric or boolean.
func (e *Explainer) Explain(ctx context.Context, ds *dataset.Dataset) (*Batch, error) {
	cols := make([]*dataset.Column, len(e.model.FeatureNames))
	for f, name := range e.model.FeatureNames {
		c, ok := ds.Column(name)
		if !ok {
			return nil, &Error{Reason: fmt.Sprintf("model feature %q missing from dataset %s", name, ds.Name)}
		}
		if !c.IsNumeric() {
			return nil, &Error{Reason: fmt.Sprintf("model feature %q is not numeric", name)}
		}
		cols[f] = c
	}

	n, nf := ds.Len(), len(cols)
	classes := 1
	if e.variant == MultiClass {
		classes = e.model.NClasses
	}
	b := &Batch{
		Features:    append([]string(nil), e.model.FeatureNames...),
		Variant:     e.variant,
		Values:      make([]*mat.Dense, classes),
		Predictions: make([]float64, n),
	}
	if e.variant == Binary {
		b.Base = []float64{e.expected[PositiveClass]}
	} else {
		b.Base = append([]float64(nil), e.expected...)
	}
	if n == 0 {
		return b, nil
	}
	b.X = mat.NewDense(n, nf, nil)
	for c := range b.Values {
		b.Values[c] = mat.NewDense(n, nf, nil)
	}
	for r := 0; r < n; r++ {
		for f, c := range cols {
			b.X.Set(r, f, c.Values[r])
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for r := 0; r < n; r++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			x := b.X.RawRowView(r)
			phi, err := e.Shap(x)
			if err != nil {
				return err
			}
			p, err := e.model.PredictProba(x)
			if err != nil {
				return err
			}
			b.Predictions[r] = p[PositiveClass]
			for f := range phi {
				if e.variant == Binary {
					b.Values[0].Set(r, f, phi[f][PositiveClass])
					continue
				}
				for c := range b.Values {
					b.Values[c].Set(r, f, phi[f][c])
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return b, nil
}

// Importance is the mean absolute attribution of one feature.
type Importance struct {
	Feature string  `json:"feature"`
	MeanAbs float64 `json:"mean_abs"`
}

// GlobalImportance ranks features by mean |attribution| over the batch,
// descending, ties by name. MultiClass batches average over classes.
func GlobalImportance(b *Batch) []Importance {
	out := make([]Importance, len(b.Features))
	n := b.Len()
	for f, name := range b.Features {
		out[f].Feature = name
		if n == 0 {
			continue
		}
		var sum float64
		for _, m := range b.Values {
			for r := 0; r < n; r++ {
				sum += math.Abs(m.At(r, f))
			}
		}
		out[f].MeanAbs = sum / float64(n*len(b.Values))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MeanAbs != out[j].MeanAbs {
			return out[i].MeanAbs > out[j].MeanAbs
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// Contribution is one feature's share of a single prediction.
type Contribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// Local decomposes one record's positive-class probability:
// BaseValue + sum(Contributions) = Prediction.
type Local struct {
	Key           int            `json:"key"`
	BaseValue     float64        `json:"base_value"`
	Prediction    float64        `json:"prediction"`
	Contributions []Contribution `json:"contributions"`
	// Top holds the largest contributions by magnitude; the rest are summed
	// into Other.
	Top        []Contribution `json:"top"`
	Other      float64        `json:"other"`
	OtherCount int            `json:"other_count"`
}

// LocalExplanation returns the attribution of the record at key. topK <= 0
// keeps every feature in Top.
func LocalExplanation(b *Batch, key, topK int) (Local, error) {
	if key < 0 || key >= b.Len() {
		return Local{}, &Error{Key: key, Len: b.Len()}
	}
	m, base := b.positive()
	loc := Local{Key: key, BaseValue: base, Prediction: b.Predictions[key]}
	loc.Contributions = make([]Contribution, len(b.Features))
	for f, name := range b.Features {
		loc.Contributions[f] = Contribution{Feature: name, Value: b.X.At(key, f), Contribution: m.At(key, f)}
	}
	ranked := append([]Contribution(nil), loc.Contributions...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Contribution) > math.Abs(ranked[j].Contribution)
	})
	if topK <= 0 || topK >= len(ranked) {
		loc.Top = ranked
		return loc, nil
	}
	loc.Top = ranked[:topK]
	for _, c := range ranked[topK:] {
		loc.Other += c.Contribution
	}
	loc.OtherCount = len(ranked) - topK
	return loc, nil
}

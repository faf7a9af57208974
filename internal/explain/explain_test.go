package explain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/clientscope-cli/internal/dataset"
	"github.com/KaramelBytes/clientscope-cli/internal/model"
)

func leaf(cover float64, value ...float64) model.Node {
	return model.Node{Feature: -1, Left: model.Leaf, Right: model.Leaf, Cover: cover, Value: value}
}

func split(feature int, thr float64, left, right int, cover float64, value ...float64) model.Node {
	return model.Node{Feature: feature, Threshold: thr, Left: left, Right: right, Cover: cover, Value: value}
}

func stump(t *testing.T) *model.Ensemble {
	t.Helper()
	m := &model.Ensemble{
		Name:         "stump",
		NClasses:     2,
		FeatureNames: []string{"f0", "f1"},
		Trees: []model.Tree{{Nodes: []model.Node{
			split(0, 0.5, 1, 2, 100, 50, 50),
			leaf(50, 50, 0),
			leaf(50, 0, 50),
		}}},
	}
	require.NoError(t, m.Prepare())
	return m
}

// forest has a tree that splits twice on f0 and a second tree on f1 and f2.
func forest(t *testing.T) *model.Ensemble {
	t.Helper()
	m := &model.Ensemble{
		Name:         "forest",
		NClasses:     2,
		FeatureNames: []string{"f0", "f1", "f2"},
		Trees: []model.Tree{
			{Nodes: []model.Node{
				split(0, 0.5, 1, 2, 100, 46, 54),
				split(1, 0, 3, 4, 60, 30, 30),
				split(0, 0.8, 5, 6, 40, 16, 24),
				leaf(20, 20, 0),
				leaf(40, 10, 30),
				leaf(30, 15, 15),
				leaf(10, 1, 9),
			}},
			{Nodes: []model.Node{
				split(1, 1.5, 1, 2, 80, 40, 40),
				split(2, 10, 3, 4, 50, 30, 20),
				leaf(30, 5, 25),
				leaf(25, 20, 5),
				leaf(25, 10, 15),
			}},
		},
	}
	require.NoError(t, m.Prepare())
	return m
}

func TestStumpAttribution(t *testing.T) {
	e, err := NewExplainer(stump(t))
	require.NoError(t, err)
	assert.Equal(t, Binary, e.Variant())
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, e.ExpectedValue(), 1e-12)

	phi, err := e.Shap([]float64{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, phi[0][1], 1e-12)
	assert.InDelta(t, -0.5, phi[0][0], 1e-12)
	assert.InDelta(t, 0.0, phi[1][1], 1e-12)
}

func TestLocalAccuracy(t *testing.T) {
	m := forest(t)
	e, err := NewExplainer(m)
	require.NoError(t, err)
	base := e.ExpectedValue()

	inputs := [][]float64{
		{0.1, -1, 5}, {0.1, 1, 20}, {0.6, 2, 0}, {0.9, 0, 11}, {0.5, 1.5, 10}, {2, -3, -3},
	}
	for _, x := range inputs {
		phi, err := e.Shap(x)
		require.NoError(t, err)
		p, err := m.PredictProba(x)
		require.NoError(t, err)
		for c := 0; c < m.NClasses; c++ {
			sum := base[c]
			for f := range phi {
				sum += phi[f][c]
			}
			assert.InDelta(t, p[c], sum, 1e-9, "x=%v class=%d", x, c)
		}
	}
}

func writeDataset(t *testing.T, body string) *dataset.Dataset {
	t.Helper()
	p := filepath.Join(t.TempDir(), "explain.csv")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	ds, err := dataset.Load(p, dataset.DefaultOptions())
	require.NoError(t, err)
	return ds
}

const explainCSV = `SK_ID_CURR,f2,f0,note,f1
1,5,0.1,a,-1
2,20,0.1,b,1
3,0,0.6,c,2
4,11,0.9,d,0
`

func TestExplainBatchAndLocal(t *testing.T) {
	m := forest(t)
	e, err := NewExplainer(m)
	require.NoError(t, err)
	ds := writeDataset(t, explainCSV)

	b, err := e.Explain(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Len())
	assert.Equal(t, []string{"f0", "f1", "f2"}, b.Features)
	require.Len(t, b.Values, 1)

	for key := 0; key < b.Len(); key++ {
		loc, err := LocalExplanation(b, key, 0)
		require.NoError(t, err)
		sum := loc.BaseValue
		for _, c := range loc.Contributions {
			sum += c.Contribution
		}
		assert.InDelta(t, loc.Prediction, sum, 1e-9)
		assert.Len(t, loc.Top, 3)
		assert.Zero(t, loc.OtherCount)
	}

	loc, err := LocalExplanation(b, 3, 1)
	require.NoError(t, err)
	require.Len(t, loc.Top, 1)
	assert.Equal(t, 2, loc.OtherCount)
	total := loc.Top[0].Contribution + loc.Other
	var all float64
	for _, c := range loc.Contributions {
		all += c.Contribution
	}
	assert.InDelta(t, all, total, 1e-12)
	assert.Equal(t, 0.9, loc.Contributions[0].Value)

	_, err = LocalExplanation(b, 4, 5)
	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 4, ee.Len)
}

func TestExplainBatchMatchesRowByRow(t *testing.T) {
	m := forest(t)
	e, err := NewExplainer(m)
	require.NoError(t, err)
	ds := writeDataset(t, explainCSV)

	first, err := e.Explain(context.Background(), ds)
	require.NoError(t, err)
	second, err := e.Explain(context.Background(), ds)
	require.NoError(t, err)

	for r := 0; r < first.Len(); r++ {
		x := first.X.RawRowView(r)
		phi, err := e.Shap(x)
		require.NoError(t, err)
		p, err := m.PredictProba(x)
		require.NoError(t, err)
		assert.Equal(t, p[PositiveClass], first.Predictions[r])
		for f := range phi {
			assert.Equal(t, phi[f][PositiveClass], first.Values[0].At(r, f))
			assert.Equal(t, first.Values[0].At(r, f), second.Values[0].At(r, f))
		}
	}
}

func TestGlobalImportanceOrdering(t *testing.T) {
	e, err := NewExplainer(stump(t))
	require.NoError(t, err)
	ds := writeDataset(t, "SK_ID_CURR,f0,f1\n1,0,3\n2,1,4\n")
	b, err := e.Explain(context.Background(), ds)
	require.NoError(t, err)

	imp := GlobalImportance(b)
	require.Len(t, imp, 2)
	assert.Equal(t, "f0", imp[0].Feature)
	assert.InDelta(t, 0.5, imp[0].MeanAbs, 1e-12)
	assert.Equal(t, "f1", imp[1].Feature)
	assert.Zero(t, imp[1].MeanAbs)
}

func TestExplainMissingFeature(t *testing.T) {
	e, err := NewExplainer(forest(t))
	require.NoError(t, err)
	ds := writeDataset(t, "SK_ID_CURR,f0,f1\n1,0,3\n")
	_, err = e.Explain(context.Background(), ds)
	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.Contains(t, ee.Error(), "f2")
}

func TestMultiClassVariant(t *testing.T) {
	m := &model.Ensemble{
		NClasses:     3,
		FeatureNames: []string{"f0"},
		Trees: []model.Tree{{Nodes: []model.Node{
			split(0, 0.5, 1, 2, 90, 30, 30, 30),
			leaf(45, 30, 15, 0),
			leaf(45, 0, 15, 30),
		}}},
	}
	require.NoError(t, m.Prepare())
	e, err := NewExplainer(m)
	require.NoError(t, err)
	assert.Equal(t, MultiClass, e.Variant())

	ds := writeDataset(t, "SK_ID_CURR,f0\n1,0\n2,1\n")
	b, err := e.Explain(context.Background(), ds)
	require.NoError(t, err)
	assert.Len(t, b.Values, 3)
	assert.Len(t, b.Base, 3)

	// class 0 and 2 move by 1/3, class 1 not at all: mean |phi| = (1/3+0+1/3)/3
	imp := GlobalImportance(b)
	assert.InDelta(t, 2.0/9.0, imp[0].MeanAbs, 1e-12)

	loc, err := LocalExplanation(b, 1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, loc.BaseValue, 1e-12)
	assert.InDelta(t, 1.0/3.0, loc.Prediction, 1e-12)
}

func TestExplainCancelled(t *testing.T) {
	e, err := NewExplainer(stump(t))
	require.NoError(t, err)
	ds := writeDataset(t, "SK_ID_CURR,f0,f1\n1,0,3\n2,1,4\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Explain(ctx, ds)
	assert.ErrorIs(t, err, context.Canceled)
}

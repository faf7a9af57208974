package report

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/clientscope-cli/internal/dashboard"
	"github.com/KaramelBytes/clientscope-cli/internal/dataset"
	"github.com/KaramelBytes/clientscope-cli/internal/explain"
	"github.com/KaramelBytes/clientscope-cli/internal/scoring"
	"github.com/KaramelBytes/clientscope-cli/internal/session"
	"github.com/KaramelBytes/clientscope-cli/internal/stats"
)

type stubScorer struct {
	res *scoring.Result
	err error
}

func (s stubScorer) Score(context.Context, any) (*scoring.Result, error) { return s.res, s.err }

func fixtureDashboard(t *testing.T, scorer dashboard.Scorer) *dashboard.Dashboard {
	t.Helper()
	dir, err := filepath.Abs(filepath.Join("..", "dashboard", "testdata"))
	require.NoError(t, err)
	return dashboard.New(dashboard.Options{
		DatasetPath: filepath.Join(dir, "clients.csv"),
		ModelPath:   filepath.Join(dir, "model.json"),
	}, scorer)
}

func TestGauge(t *testing.T) {
	g := Gauge(80)
	assert.Contains(t, g, "80.00%")
	assert.Contains(t, g, "+45.00 vs 35%")
	assert.Equal(t, 40+2, len([]rune(strings.SplitN(g, " ", 2)[0])))

	assert.Contains(t, Gauge(10), "-25.00")
	assert.NotPanics(t, func() { Gauge(150); Gauge(-5) })
}

func TestLocalWaterfall(t *testing.T) {
	md := Local(explain.Local{
		BaseValue:  0.5,
		Prediction: 0.8,
		Top:        []explain.Contribution{{Feature: "EXT_SOURCE_2", Value: 0.7, Contribution: 0.25}},
		Other:      0.05,
		OtherCount: 3,
	})
	assert.Contains(t, md, "| EXT_SOURCE_2 | 0.7 | +0.2500 | 0.7500 |")
	assert.Contains(t, md, "| other features (3) | | +0.0500 | 0.8000 |")
}

func TestComparisonCategoricalMarksClient(t *testing.T) {
	md := Comparison(stats.Comparison{
		Column:      "CODE_GENDER",
		Categorical: true,
		Categories:  &stats.CategoricalSummary{Counts: []stats.CategoryCount{{Value: "F", Count: 3}, {Value: "M", Count: 2}}},
		ClientValue: "M",
		ClientBin:   -1,
	})
	assert.Contains(t, md, "| M ◀ | 2 |")
	assert.Contains(t, md, "| F | 3 |")
}

func TestRecordEscapesPipes(t *testing.T) {
	md := Record(dataset.FeatureRecord{Key: 1, ExternalID: "100003", Fields: []dataset.Field{
		{Name: "A|B", Value: 2.5}, {Name: "C", Value: "x|y"},
	}})
	assert.Contains(t, md, "| A/B | 2.5 |")
	assert.Contains(t, md, "| C | x/y |")
}

func TestHTMLAndTerminal(t *testing.T) {
	md := Importance([]explain.Importance{{Feature: "EXT_SOURCE_2", MeanAbs: 0.12}})
	page := string(HTML(md, "Client 100002"))
	assert.Contains(t, page, "<title>Client 100002</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "EXT_SOURCE_2")

	out, err := Terminal(md, "notty", 80)
	require.NoError(t, err)
	assert.Contains(t, out, "EXT_SOURCE_2")
}

func TestBuildKeepsPartialResults(t *testing.T) {
	d := fixtureDashboard(t, stubScorer{err: &scoring.UnavailableError{URL: "http://x", StatusCode: 503, Attempts: 3}})
	s := session.New()
	require.NoError(t, d.Select(s, 2))

	r, err := Build(context.Background(), d, s, BuildOptions{Score: true, Explain: true, WaterfallK: 2, TopN: 3})
	require.NoError(t, err)
	assert.Nil(t, r.Prediction)
	assert.Contains(t, r.PredictionErr, "unavailable")
	require.NotNil(t, r.Explanation)
	assert.Len(t, r.Importance, 3)

	md := r.Markdown()
	assert.Contains(t, md, "# Client report: 100004")
	assert.Contains(t, md, "## Why this score")
	assert.Contains(t, md, "## Global feature importance")
	assert.Contains(t, md, "| DAYS_BIRTH | -19046 |")
}

func TestBuildRequiresSelection(t *testing.T) {
	d := fixtureDashboard(t, stubScorer{})
	_, err := Build(context.Background(), d, session.New(), BuildOptions{})
	require.Error(t, err)
}

func TestBuildWithPrediction(t *testing.T) {
	d := fixtureDashboard(t, stubScorer{res: &scoring.Result{ProbabilityOnTime: 0.62, ProbabilityDefault: 0.38, PredictedClass: 0, Decision: scoring.Approved}})
	s := session.New()
	require.NoError(t, d.Select(s, 0))
	r, err := Build(context.Background(), d, s, BuildOptions{Score: true})
	require.NoError(t, err)
	require.NotNil(t, r.Prediction)
	md := r.Markdown()
	assert.Contains(t, md, "Decision: **APPROVED**")
	assert.Contains(t, md, "Repayment score: 62.00 %")
	assert.NotEmpty(t, DecisionBadge(scoring.Rejected))
}

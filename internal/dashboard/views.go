package dashboard

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/KaramelBytes/clientscope-cli/internal/dataset"
	"github.com/KaramelBytes/clientscope-cli/internal/explain"
	"github.com/KaramelBytes/clientscope-cli/internal/scoring"
	"github.com/KaramelBytes/clientscope-cli/internal/session"
	"github.com/KaramelBytes/clientscope-cli/internal/stats"
)

// Overview describes the loaded dataset for selection widgets.
type Overview struct {
	Name        string            `json:"name"`
	Rows        int               `json:"rows"`
	Dropped     int               `json:"dropped"`
	MinKey      int               `json:"min_key"`
	MaxKey      int               `json:"max_key"`
	IDColumn    string            `json:"id_column"`
	Numeric     []string          `json:"numeric"`
	Categorical []string          `json:"categorical"`
	Renamed     map[string]string `json:"renamed,omitempty"`
}

// Overview summarizes the main dataset. Column lists are sorted by name and
// split the way the comparison view dispatches them.
func (d *Dashboard) Overview() (Overview, error) {
	ds, err := d.Dataset()
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		Name:        ds.Name,
		Rows:        ds.Len(),
		Dropped:     ds.Dropped,
		MinKey:      ds.MinKey(),
		MaxKey:      ds.MaxKey(),
		IDColumn:    ds.IDColumn,
		Numeric:     ds.SortedColumnNames(func(c *dataset.Column) bool { return !stats.IsCategorical(c) }),
		Categorical: ds.SortedColumnNames(stats.IsCategorical),
		Renamed:     ds.Renamed,
	}, nil
}

// Select validates key against the main dataset and stores it in s.
func (d *Dashboard) Select(s *session.Session, key int) error {
	ds, err := d.Dataset()
	if err != nil {
		return err
	}
	return s.Select(ds, key)
}

// SelectExternal selects by business identifier.
func (d *Dashboard) SelectExternal(s *session.Session, ext string) (int, error) {
	ds, err := d.Dataset()
	if err != nil {
		return 0, err
	}
	return s.SelectExternal(ds, ext)
}

func (d *Dashboard) resolve(s *session.Session) (*dataset.Dataset, int, error) {
	ds, err := d.Dataset()
	if err != nil {
		return nil, 0, err
	}
	key, err := s.Resolve(ds)
	if err != nil {
		return nil, 0, err
	}
	return ds, key, nil
}

// Client returns the selected client's record.
func (d *Dashboard) Client(s *session.Session) (dataset.FeatureRecord, error) {
	ds, key, err := d.resolve(s)
	if err != nil {
		return dataset.FeatureRecord{}, err
	}
	return ds.Record(key)
}

// Compare positions the selected client in one column's population.
func (d *Dashboard) Compare(s *session.Session, column string) (stats.Comparison, error) {
	ds, key, err := d.resolve(s)
	if err != nil {
		return stats.Comparison{}, err
	}
	return stats.Compare(ds, key, column)
}

// Bivariate plots two columns with the selected client highlighted.
func (d *Dashboard) Bivariate(s *session.Session, x, y string) (stats.BivariateView, error) {
	ds, key, err := d.resolve(s)
	if err != nil {
		return stats.BivariateView{}, err
	}
	return stats.Bivariate(ds, key, x, y)
}

// Extremes ranks the selected client's most atypical attributes; k <= 0
// uses the configured default.
func (d *Dashboard) Extremes(s *session.Session, k int) (stats.Extremes, error) {
	ds, key, err := d.resolve(s)
	if err != nil {
		return stats.Extremes{}, err
	}
	if k <= 0 {
		k = d.opts.ExtremesK
	}
	return stats.TopExtremes(ds, key, k)
}

// Prediction is a scoring result for a selected client.
type Prediction struct {
	Key        int    `json:"key"`
	ExternalID string `json:"external_id"`
	*scoring.Result
}

// Predict sends the selected client's record to the scoring service.
// A failure leaves the session untouched.
func (d *Dashboard) Predict(ctx context.Context, s *session.Session) (Prediction, error) {
	rec, err := d.Client(s)
	if err != nil {
		return Prediction{}, err
	}
	res, err := d.scorer.Score(ctx, rec)
	if err != nil {
		zap.L().Warn("scoring failed", zap.Int("key", rec.Key), zap.Error(err))
		return Prediction{}, err
	}
	return Prediction{Key: rec.Key, ExternalID: rec.ExternalID, Result: res}, nil
}

// Explain returns the local attribution of the selected client; topK <= 0
// uses the configured default.
func (d *Dashboard) Explain(ctx context.Context, s *session.Session, topK int) (explain.Local, error) {
	ds, key, err := d.resolve(s)
	if err != nil {
		return explain.Local{}, err
	}
	b, err := d.Batch(ctx)
	if err != nil {
		return explain.Local{}, err
	}
	row, err := d.batchRow(ds, key, b)
	if err != nil {
		return explain.Local{}, err
	}
	if topK <= 0 {
		topK = d.opts.WaterfallTopK
	}
	loc, err := explain.LocalExplanation(b, row, topK)
	if err != nil {
		return explain.Local{}, err
	}
	loc.Key = key
	return loc, nil
}

// batchRow maps a main-dataset key to its row in the attribution batch. A
// separate attribution dataset is joined on the business identifier.
func (d *Dashboard) batchRow(ds *dataset.Dataset, key int, b *explain.Batch) (int, error) {
	eds, err := d.ExplainDataset()
	if err != nil {
		return 0, err
	}
	if eds == ds {
		return key, nil
	}
	ext := ds.ExternalID(key)
	row, ok := eds.KeyForExternalID(ext)
	if !ok {
		return 0, &explain.Error{Key: key, Len: b.Len(), Reason: fmt.Sprintf("client %s not in attribution dataset", ext)}
	}
	zap.L().Debug("attribution row joined on external id",
		zap.String("external_id", ext), zap.Int("key", key), zap.Int("row", row))
	return row, nil
}

// Importance returns the topN global feature importances; topN <= 0 uses
// the configured default, which itself may be 0 for every feature.
func (d *Dashboard) Importance(ctx context.Context, topN int) ([]explain.Importance, error) {
	b, err := d.Batch(ctx)
	if err != nil {
		return nil, err
	}
	imp := explain.GlobalImportance(b)
	if topN <= 0 {
		topN = d.opts.ImportanceTopN
	}
	if topN > 0 && topN < len(imp) {
		imp = imp[:topN]
	}
	return imp, nil
}

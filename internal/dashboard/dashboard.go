// Package dashboard is the single entry point the CLI and the HTTP API use:
// it memoizes the dataset, model and attribution batch, and runs every
// per-client view against a session's selection.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/clientscope-cli/internal/cache"
	"github.com/KaramelBytes/clientscope-cli/internal/config"
	"github.com/KaramelBytes/clientscope-cli/internal/dataset"
	"github.com/KaramelBytes/clientscope-cli/internal/explain"
	"github.com/KaramelBytes/clientscope-cli/internal/model"
	"github.com/KaramelBytes/clientscope-cli/internal/scoring"
	"github.com/KaramelBytes/clientscope-cli/internal/stats"
)

// Scorer submits one feature record to a scoring backend.
type Scorer interface {
	Score(ctx context.Context, record any) (*scoring.Result, error)
}

// Options locates the data files and sets view defaults.
type Options struct {
	DatasetPath string
	// ExplainDatasetPath is the table attributions are computed on; empty
	// means DatasetPath.
	ExplainDatasetPath string
	ModelPath          string
	Load               dataset.Options
	ExtremesK          int
	ImportanceTopN     int
	WaterfallTopK      int
}

// Dashboard serves every view. It is safe for concurrent use.
type Dashboard struct {
	opts   Options
	memo   *cache.Memo
	scorer Scorer
}

// New builds a Dashboard around an explicit scorer.
func New(opts Options, scorer Scorer) *Dashboard {
	if opts.Load.IDColumn == "" {
		opts.Load.IDColumn = dataset.DefaultIDColumn
	}
	if opts.ExtremesK == 0 {
		opts.ExtremesK = stats.DefaultExtremes
	}
	return &Dashboard{opts: opts, memo: cache.New(), scorer: scorer}
}

// FromConfig wires a Dashboard and its scoring client from configuration.
func FromConfig(cfg *config.Global) (*Dashboard, error) {
	delim, err := cfg.DelimiterRune()
	if err != nil {
		return nil, err
	}
	client := scoring.NewClient(
		cfg.ScoringURL,
		time.Duration(cfg.HTTPTimeoutSec)*time.Second,
		cfg.RetryMaxAttempts,
		time.Duration(cfg.RetryBaseDelayMs)*time.Millisecond,
		time.Duration(cfg.RetryMaxDelayMs)*time.Millisecond,
	).WithRateLimit(cfg.ScoringRatePerSec)
	return New(Options{
		DatasetPath:        config.ResolvePath(cfg.DatasetPath),
		ExplainDatasetPath: config.ResolvePath(cfg.ExplainDatasetPath),
		ModelPath:          config.ResolvePath(cfg.ModelPath),
		Load:               dataset.Options{IDColumn: cfg.IDColumn, Delimiter: delim, Sheet: cfg.XLSXSheet},
		ExtremesK:          cfg.ExtremesK,
		ImportanceTopN:     cfg.ImportanceTopN,
		WaterfallTopK:      cfg.WaterfallTopK,
	}, client), nil
}

// Options returns the effective options.
func (d *Dashboard) Options() Options { return d.opts }

type loadOpts dataset.Options

func (o loadOpts) String() string {
	return fmt.Sprintf("%s/%q/%s", o.IDColumn, o.Delimiter, o.Sheet)
}

func (d *Dashboard) loadDataset(path string) (*dataset.Dataset, error) {
	id, err := cache.Stat(path)
	if err != nil {
		return nil, &dataset.LoadError{Path: path, Reason: "unreadable file", Err: err}
	}
	key := "dataset:" + cache.Key(id, loadOpts(d.opts.Load))
	return cache.Typed(d.memo, key, func() (*dataset.Dataset, error) {
		return dataset.Load(path, d.opts.Load)
	})
}

// Dataset returns the memoized main dataset.
func (d *Dashboard) Dataset() (*dataset.Dataset, error) {
	return d.loadDataset(d.opts.DatasetPath)
}

// ExplainDataset returns the memoized attribution dataset.
func (d *Dashboard) ExplainDataset() (*dataset.Dataset, error) {
	if d.opts.ExplainDatasetPath == "" {
		return d.Dataset()
	}
	return d.loadDataset(d.opts.ExplainDatasetPath)
}

func (d *Dashboard) modelIdentity() (cache.Identity, error) {
	id, err := cache.Stat(d.opts.ModelPath)
	if err != nil {
		return cache.Identity{}, &explain.Error{Reason: fmt.Sprintf("model artifact unavailable: %v", err)}
	}
	return id, nil
}

// Model returns the memoized model artifact.
func (d *Dashboard) Model() (*model.Ensemble, error) {
	id, err := d.modelIdentity()
	if err != nil {
		return nil, err
	}
	return cache.Typed(d.memo, "model:"+id.String(), func() (*model.Ensemble, error) {
		m, err := model.Load(d.opts.ModelPath)
		if err != nil {
			return nil, &explain.Error{Reason: err.Error()}
		}
		return m, nil
	})
}

// Explainer returns the memoized explainer for the current model.
func (d *Dashboard) Explainer() (*explain.Explainer, error) {
	id, err := d.modelIdentity()
	if err != nil {
		return nil, err
	}
	return cache.Typed(d.memo, "explainer:"+id.String(), func() (*explain.Explainer, error) {
		m, err := d.Model()
		if err != nil {
			return nil, err
		}
		return explain.NewExplainer(m)
	})
}

// Batch returns the memoized attributions of the explain dataset.
func (d *Dashboard) Batch(ctx context.Context) (*explain.Batch, error) {
	ds, err := d.ExplainDataset()
	if err != nil {
		return nil, err
	}
	mid, err := d.modelIdentity()
	if err != nil {
		return nil, err
	}
	did, err := cache.Stat(ds.Path)
	if err != nil {
		return nil, &dataset.LoadError{Path: ds.Path, Reason: "unreadable file", Err: err}
	}
	key := "batch:" + cache.Key(mid, did, loadOpts(d.opts.Load))
	// The load is shared by every waiter and outlives any one caller's cancellation.
	loadCtx := context.WithoutCancel(ctx)
	return cache.Typed(d.memo, key, func() (*explain.Batch, error) {
		e, err := d.Explainer()
		if err != nil {
			return nil, err
		}
		start := time.Now()
		b, err := e.Explain(loadCtx, ds)
		if err != nil {
			return nil, err
		}
		zap.L().Info("attributions computed",
			zap.Int("records", b.Len()),
			zap.Int("features", len(b.Features)),
			zap.String("variant", b.Variant.String()),
			zap.Duration("took", time.Since(start)))
		return b, nil
	})
}

// Invalidate drops every memoized entry and returns how many were removed.
func (d *Dashboard) Invalidate() int {
	return d.memo.Invalidate("")
}

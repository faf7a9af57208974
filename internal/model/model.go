// Package model loads tree-ensemble classifiers exported from the training
// pipeline and evaluates them.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Leaf marks a node without children.
const Leaf = -1

// Node is one split or leaf. Value holds the class distribution of the
// training samples that reached the node; Cover is their (weighted) count.
type Node struct {
	Feature   int       `json:"feature" yaml:"feature"`
	Threshold float64   `json:"threshold" yaml:"threshold"`
	Left      int       `json:"left" yaml:"left"`
	Right     int       `json:"right" yaml:"right"`
	Cover     float64   `json:"cover" yaml:"cover"`
	Value     []float64 `json:"value" yaml:"value"`
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool { return n.Left == Leaf || n.Right == Leaf }

// Tree is a binary decision tree rooted at Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
}

// Ensemble is a random-forest style classifier: the prediction is the mean
// of the per-tree class distributions.
type Ensemble struct {
	Name         string   `json:"name" yaml:"name"`
	NClasses     int      `json:"n_classes" yaml:"n_classes"`
	FeatureNames []string `json:"feature_names" yaml:"feature_names"`
	Trees        []Tree   `json:"trees" yaml:"trees"`

	// probs caches each node's normalized class distribution.
	probs [][][]float64
}

// Load reads a JSON or YAML model artifact.
func Load(path string) (*Ensemble, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read model %s", path)
	}
	var m Ensemble
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "decode model %s", path)
	}
	if m.Name == "" {
		m.Name = filepath.Base(path)
	}
	if err := m.Prepare(); err != nil {
		return nil, eris.Wrapf(err, "model %s", path)
	}
	return &m, nil
}

// Prepare validates the structure and caches normalized leaf distributions.
// It must be called on an Ensemble built in code before evaluating it.
func (m *Ensemble) Prepare() error {
	if m.NClasses < 2 {
		return fmt.Errorf("n_classes must be >= 2, got %d", m.NClasses)
	}
	if len(m.FeatureNames) == 0 {
		return fmt.Errorf("feature_names is empty")
	}
	if len(m.Trees) == 0 {
		return fmt.Errorf("ensemble has no trees")
	}
	m.probs = make([][][]float64, len(m.Trees))
	for ti, t := range m.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		m.probs[ti] = make([][]float64, len(t.Nodes))
		for ni, n := range t.Nodes {
			if len(n.Value) != m.NClasses {
				return fmt.Errorf("tree %d node %d: %d class values, want %d", ti, ni, len(n.Value), m.NClasses)
			}
			if n.Cover <= 0 {
				return fmt.Errorf("tree %d node %d: cover must be > 0", ti, ni)
			}
			if !n.IsLeaf() {
				if n.Feature < 0 || n.Feature >= len(m.FeatureNames) {
					return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
				}
				if n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
					return fmt.Errorf("tree %d node %d: child index out of range", ti, ni)
				}
			}
			m.probs[ti][ni] = normalize(n.Value)
		}
	}
	return nil
}

func normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum == 0 {
		for i := range out {
			out[i] = 1 / float64(len(v))
		}
		return out
	}
	for i, x := range v {
		out[i] = x / sum
	}
	return out
}

// NodeProba returns the normalized class distribution of a node.
func (m *Ensemble) NodeProba(tree, node int) []float64 { return m.probs[tree][node] }

// FeatureIndex maps feature names to their model column.
func (m *Ensemble) FeatureIndex() map[string]int {
	idx := make(map[string]int, len(m.FeatureNames))
	for i, n := range m.FeatureNames {
		idx[n] = i
	}
	return idx
}

// PredictProba returns the averaged class distribution for x, indexed by model feature.
func (m *Ensemble) PredictProba(x []float64) ([]float64, error) {
	if len(x) != len(m.FeatureNames) {
		return nil, fmt.Errorf("got %d features, model expects %d", len(x), len(m.FeatureNames))
	}
	out := make([]float64, m.NClasses)
	for ti, t := range m.Trees {
		leaf := 0
		for !t.Nodes[leaf].IsLeaf() {
			n := t.Nodes[leaf]
			if x[n.Feature] <= n.Threshold {
				leaf = n.Left
			} else {
				leaf = n.Right
			}
		}
		for c, p := range m.probs[ti][leaf] {
			out[c] += p
		}
	}
	for c := range out {
		out[c] /= float64(len(m.Trees))
	}
	return out, nil
}

// Predict returns the most probable class; ties go to the lower class.
func (m *Ensemble) Predict(x []float64) (int, error) {
	p, err := m.PredictProba(x)
	if err != nil {
		return 0, err
	}
	best := 0
	for c := range p {
		if p[c] > p[best] {
			best = c
		}
	}
	return best, nil
}

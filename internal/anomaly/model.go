// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package anomaly

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"

	"github.com/tomtom215/insiderwatch/internal/models"
)

// eulerGamma is the Euler-Mascheroni constant.
const eulerGamma = 0.5772156649015329

// Model is a fitted isolation-forest pipeline: a standard scaler followed by
// the forest, with the training-time column order.
type Model struct {
	FeatureColumns []string `json:"feature_cols"`
	Scaler         Scaler   `json:"scaler"`
	Forest         Forest   `json:"forest"`
}

// Scaler standardizes each column as (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Forest is an ensemble of isolation trees.
type Forest struct {
	// MaxSamples is the subsample size each tree was grown on.
	MaxSamples int `json:"max_samples"`

	// Offset is the fitted decision offset; the model flags scores above zero.
	Offset float64 `json:"offset"`

	Trees []Tree `json:"trees"`
}

// Tree is a flattened binary tree. Node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is a split or, when Left is negative, a leaf.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	NSamples  int     `json:"n_samples"`
}

func (n *Node) leaf() bool { return n.Left < 0 }

// ParseModel decodes and validates a model artifact.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the artifact's internal consistency so scoring never
// indexes out of range.
func (m *Model) Validate() error {
	cols := len(m.FeatureColumns)
	if cols == 0 {
		return fmt.Errorf("model has no feature columns")
	}
	if len(m.Scaler.Mean) != cols || len(m.Scaler.Scale) != cols {
		return fmt.Errorf("scaler has %d means and %d scales for %d columns",
			len(m.Scaler.Mean), len(m.Scaler.Scale), cols)
	}
	if len(m.Forest.Trees) == 0 {
		return fmt.Errorf("model has no trees")
	}
	if m.Forest.MaxSamples < 2 {
		return fmt.Errorf("max_samples must be at least 2, got %d", m.Forest.MaxSamples)
	}
	for ti := range m.Forest.Trees {
		nodes := m.Forest.Trees[ti].Nodes
		if len(nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni := range nodes {
			n := &nodes[ni]
			if n.leaf() {
				continue
			}
			if n.Feature < 0 || n.Feature >= cols {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			// Children must come after their parent, which also rules out cycles.
			if n.Left <= ni || n.Left >= len(nodes) || n.Right <= ni || n.Right >= len(nodes) {
				return fmt.Errorf("tree %d node %d: invalid children %d, %d", ti, ni, n.Left, n.Right)
			}
		}
	}
	return nil
}

// Reindex orders a vector's counts by the training columns. Missing columns
// are zero and unknown columns are dropped.
func (m *Model) Reindex(fv *models.FeatureVector) []float64 {
	x := make([]float64, len(m.FeatureColumns))
	for i, col := range m.FeatureColumns {
		x[i] = fv.Counts[col]
	}
	return x
}

// Score returns the anomaly score of a reindexed row. Higher is more
// anomalous and the model's own decision flags scores above zero.
func (m *Model) Score(x []float64) float64 {
	z := m.scale(x)

	var depth float64
	for i := range m.Forest.Trees {
		depth += m.Forest.Trees[i].pathLength(z)
	}
	mean := depth / float64(len(m.Forest.Trees))

	s := math.Pow(2, -mean/averagePathLength(m.Forest.MaxSamples))
	return s + m.Forest.Offset
}

func (m *Model) scale(x []float64) []float64 {
	z := make([]float64, len(x))
	for i, v := range x {
		scale := m.Scaler.Scale[i]
		if scale == 0 {
			scale = 1
		}
		z[i] = (v - m.Scaler.Mean[i]) / scale
	}
	return z
}

// pathLength walks to a leaf and adds the expected remaining depth for the
// samples that reached it.
func (t *Tree) pathLength(z []float64) float64 {
	var depth float64
	i := 0
	for {
		n := &t.Nodes[i]
		if n.leaf() {
			return depth + averagePathLength(n.NSamples)
		}
		if z[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// averagePathLength is the average depth of an unsuccessful search in a
// binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

package classifier

import (
	"errors"
	"fmt"
	"math"
)

// LogisticParams is a fitted logistic regression
type LogisticParams struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func (p *LogisticParams) validate(nFeatures int) error {
	if len(p.Coefficients) != nFeatures {
		return fmt.Errorf("logistic model has %d coefficients for %d features", len(p.Coefficients), nFeatures)
	}
	return nil
}

func (p *LogisticParams) probability(x []float64) float64 {
	z := p.Intercept
	for i, w := range p.Coefficients {
		z += w * x[i]
	}
	return sigmoid(z)
}

// Node is one node of a binary decision tree. Leaves have Feature < 0.
// Samples with x[Feature] <= Threshold go left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Size      int     `json:"size,omitempty"`
}

// Tree is a flattened decision tree rooted at node 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) validate(nFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d, model has %d", i, n.Feature, nFeatures)
		}
		// Children must come after their parent so traversal always terminates
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

// leaf walks the tree and returns the reached leaf and its depth
func (t *Tree) leaf(x []float64) (Node, int) {
	idx, depth := 0, 0
	for {
		n := t.Nodes[idx]
		if n.Feature < 0 {
			return n, depth
		}
		if x[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
		depth++
	}
}

// ForestParams is a random forest whose leaves hold P(fraud)
type ForestParams struct {
	Trees []Tree `json:"trees"`
}

func (p *ForestParams) validate(nFeatures int) error {
	if len(p.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for i := range p.Trees {
		if err := p.Trees[i].validate(nFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
		for j, n := range p.Trees[i].Nodes {
			if n.Feature < 0 && (n.Value < 0 || n.Value > 1) {
				return fmt.Errorf("tree %d: leaf %d value %.4f is not a probability", i, j, n.Value)
			}
		}
	}
	return nil
}

func (p *ForestParams) probability(x []float64) float64 {
	var sum float64
	for i := range p.Trees {
		leaf, _ := p.Trees[i].leaf(x)
		sum += leaf.Value
	}
	return sum / float64(len(p.Trees))
}

// IsolationParams is an isolation forest. Leaves record how many training
// samples they isolated so unfinished paths can be credited.
type IsolationParams struct {
	SampleSize int    `json:"sample_size"`
	Trees      []Tree `json:"trees"`
}

func (p *IsolationParams) validate(nFeatures int) error {
	if p.SampleSize < 2 {
		return fmt.Errorf("isolation forest sample_size must be at least 2, got %d", p.SampleSize)
	}
	if len(p.Trees) == 0 {
		return errors.New("isolation forest has no trees")
	}
	for i := range p.Trees {
		if err := p.Trees[i].validate(nFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// scoreSample returns the opposite of the anomaly score, in [-1, 0].
// Values near -1 are anomalies, values near -0.5 or above are normal.
func (p *IsolationParams) scoreSample(x []float64) float64 {
	var total float64
	for i := range p.Trees {
		leaf, depth := p.Trees[i].leaf(x)
		total += float64(depth) + averagePathLength(leaf.Size)
	}
	mean := total / float64(len(p.Trees))
	return -math.Pow(2, -mean/averagePathLength(p.SampleSize))
}

const eulerGamma = 0.5772156649015329

// averagePathLength is the expected path length of an unsuccessful BST
// search among n points.
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

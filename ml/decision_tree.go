package ml

import (
	"errors"
	"fmt"
)

type DecisionTree struct {
	nodes []TreeNode
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewDecisionTree(nodes []TreeNode, nFeatures, nClasses int) (*DecisionTree, error) {
	dt := &DecisionTree{nodes: append([]TreeNode(nil), nodes...)}
	if err := dt.validate(nFeatures, nClasses); err != nil {
		return nil, err
	}
	return dt, nil
}

func (dt *DecisionTree) Predict(features []float64) (int, error) {
	if len(dt.nodes) == 0 {
		return 0, errors.New("model not trained")
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) Size() int {
	return len(dt.nodes)
}

// Children must come after their parent (pre-order layout), which rules out
// cycles so Predict always reaches a leaf.
func (dt *DecisionTree) validate(nFeatures, nClasses int) error {
	if len(dt.nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, node := range dt.nodes {
		if node.IsLeaf {
			if node.ClassLabel < 0 || node.ClassLabel >= nClasses {
				return fmt.Errorf("node %d: class label %d out of range [0,%d)", i, node.ClassLabel, nClasses)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= nFeatures {
			return fmt.Errorf("node %d: feature index %d out of range [0,%d)", i, node.FeatureIdx, nFeatures)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(dt.nodes) {
				return fmt.Errorf("node %d: child index %d invalid", i, child)
			}
		}
	}
	return nil
}

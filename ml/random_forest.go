package ml

import (
	"errors"
	"fmt"
)

const (
	TypeRandomForest = "random_forest"
	TypeDecisionTree = "decision_tree"
)

// RandomForest votes over its trees; a single decision tree artifact loads as
// a forest of one.
type RandomForest struct {
	kind      string
	trees     []*DecisionTree
	nFeatures int
	nClasses  int
}

func NewRandomForest(kind string, trees []*DecisionTree, nFeatures, nClasses int) (*RandomForest, error) {
	if len(trees) == 0 {
		return nil, errors.New("forest has no trees")
	}
	if nFeatures <= 0 {
		return nil, fmt.Errorf("invalid feature count %d", nFeatures)
	}
	if nClasses <= 0 {
		return nil, fmt.Errorf("invalid class count %d", nClasses)
	}
	return &RandomForest{
		kind:      kind,
		trees:     trees,
		nFeatures: nFeatures,
		nClasses:  nClasses,
	}, nil
}

// Predict returns the majority class; ties go to the lowest class index.
func (rf *RandomForest) Predict(features []float64) (int, error) {
	if len(features) != rf.nFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", rf.nFeatures, len(features))
	}
	votes := make([]int, rf.nClasses)
	for i, tree := range rf.trees {
		label, err := tree.Predict(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		if label < 0 || label >= rf.nClasses {
			return 0, fmt.Errorf("tree %d: class label %d out of range", i, label)
		}
		votes[label]++
	}
	best := 0
	for label := 1; label < len(votes); label++ {
		if votes[label] > votes[best] {
			best = label
		}
	}
	return best, nil
}

func (rf *RandomForest) NumFeatures() int { return rf.nFeatures }
func (rf *RandomForest) NumClasses() int  { return rf.nClasses }
func (rf *RandomForest) Type() string     { return rf.kind }
func (rf *RandomForest) Trees() int       { return len(rf.trees) }

package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type classifierDoc struct {
	Type      string       `json:"type"`
	NFeatures int          `json:"n_features"`
	NClasses  int          `json:"n_classes"`
	Nodes     []TreeNode   `json:"nodes,omitempty"`
	Trees     [][]TreeNode `json:"trees,omitempty"`
}

type scalerDoc struct {
	Type  string    `json:"type"`
	Mean  []float64 `json:"mean,omitempty"`
	Scale []float64 `json:"scale,omitempty"`
	Min   []float64 `json:"min,omitempty"`
	Max   []float64 `json:"max,omitempty"`
}

type labelEncoderDoc struct {
	Classes []string `json:"classes"`
}

func LoadClassifier(path string) (Classifier, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseClassifier(payload)
}

func ParseClassifier(payload []byte) (Classifier, error) {
	var doc classifierDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode classifier: %w", err)
	}
	if doc.NFeatures <= 0 || doc.NClasses <= 0 {
		return nil, errors.New("classifier must declare n_features and n_classes")
	}

	var raw [][]TreeNode
	switch doc.Type {
	case TypeDecisionTree:
		raw = [][]TreeNode{doc.Nodes}
	case TypeRandomForest:
		raw = doc.Trees
	default:
		return nil, fmt.Errorf("unsupported model type %q", doc.Type)
	}

	trees := make([]*DecisionTree, 0, len(raw))
	for i, nodes := range raw {
		tree, err := NewDecisionTree(nodes, doc.NFeatures, doc.NClasses)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		trees = append(trees, tree)
	}
	return NewRandomForest(doc.Type, trees, doc.NFeatures, doc.NClasses)
}

func LoadScaler(path string) (Scaler, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScaler(payload)
}

func ParseScaler(payload []byte) (Scaler, error) {
	var doc scalerDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	switch doc.Type {
	case ScalerStandard:
		return NewStandardScaler(doc.Mean, doc.Scale)
	case ScalerMinMax:
		return NewMinMaxScaler(doc.Min, doc.Max)
	default:
		return nil, fmt.Errorf("unsupported scaler type %q", doc.Type)
	}
}

func LoadLabelEncoder(path string) (*LabelEncoder, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseLabelEncoder(payload)
}

func ParseLabelEncoder(payload []byte) (*LabelEncoder, error) {
	var doc labelEncoderDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode label encoder: %w", err)
	}
	return NewLabelEncoder(doc.Classes)
}

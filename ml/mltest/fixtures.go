// Package mltest provides a small trained artifact set for tests: a
// three-tree forest separating aluminium, steel and titanium alloys on
// density, elastic modulus and shear modulus.
package mltest

import (
	"os"
	"path/filepath"
	"testing"
)

const (
	ClassifierFile   = "random_forest_model.json"
	ScalerFile       = "scaler.json"
	LabelEncoderFile = "label_encoder.json"
)

var Classes = []string{"Aluminum", "Steel", "Titanium"}

const ClassifierJSON = `{
  "type": "random_forest",
  "n_features": 6,
  "n_classes": 3,
  "trees": [
    [
      {"feature_idx": 5, "threshold": -0.7, "left_child": 1, "right_child": 2, "class_label": 0, "is_leaf": false},
      {"feature_idx": -1, "threshold": 0, "left_child": -1, "right_child": -1, "class_label": 0, "is_leaf": true},
      {"feature_idx": 5, "threshold": 0.6, "left_child": 3, "right_child": 4, "class_label": 2, "is_leaf": false},
      {"feature_idx": -1, "threshold": 0, "left_child": -1, "right_child": -1, "class_label": 2, "is_leaf": true},
      {"feature_idx": -1, "threshold": 0, "left_child": -1, "right_child": -1, "class_label": 1, "is_leaf": true}
    ],
    [
      {"feature_idx": 2, "threshold": -0.65, "left_child": 1, "right_child": 2, "class_label": 0, "is_leaf": false},
      {"feature_idx": -1, "threshold": 0, "left_child": -1, "right_child": -1, "class_label": 0, "is_leaf": true},
      {"feature_idx": 2, "threshold": 0.5, "left_child": 3, "right_child": 4, "class_label": 2, "is_leaf": false},
      {"feature_idx": -1, "threshold": 0, "left_child": -1, "right_child": -1, "class_label": 2, "is_leaf": true},
      {"feature_idx": -1, "threshold": 0, "left_child": -1, "right_child": -1, "class_label": 1, "is_leaf": true}
    ],
    [
      {"feature_idx": 3, "threshold": -0.65, "left_child": 1, "right_child": 2, "class_label": 0, "is_leaf": false},
      {"feature_idx": -1, "threshold": 0, "left_child": -1, "right_child": -1, "class_label": 0, "is_leaf": true},
      {"feature_idx": 3, "threshold": 0.5, "left_child": 3, "right_child": 4, "class_label": 2, "is_leaf": false},
      {"feature_idx": -1, "threshold": 0, "left_child": -1, "right_child": -1, "class_label": 2, "is_leaf": true},
      {"feature_idx": -1, "threshold": 0, "left_child": -1, "right_child": -1, "class_label": 1, "is_leaf": true}
    ]
  ]
}`

const ScalerJSON = `{
  "type": "standard",
  "mean": [450, 300, 126000, 48000, 0.32, 5000],
  "scale": [150, 120, 55000, 21000, 0.02, 2100]
}`

const LabelEncoderJSON = `{"classes": ["Aluminum", "Steel", "Titanium"]}`

// Sample raw feature records in canonical order, one per class.
var (
	SteelSample    = []float64{400, 250, 200000, 80000, 0.3, 7850}
	AluminumSample = []float64{310, 276, 69000, 26000, 0.33, 2700}
	TitaniumSample = []float64{900, 830, 114000, 44000, 0.34, 4430}
)

const SteelPayload = `{"Su":400,"Sy":250,"E":200000,"G":80000,"mu":0.3,"Ro":7850}`

// WriteBundle writes the three fixture artifacts into dir.
func WriteBundle(t testing.TB, dir string) {
	t.Helper()
	files := map[string]string{
		ClassifierFile:   ClassifierJSON,
		ScalerFile:       ScalerJSON,
		LabelEncoderFile: LabelEncoderJSON,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}
}

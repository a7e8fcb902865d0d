package ml

type Classifier interface {
	Predict(features []float64) (int, error)
	NumFeatures() int
	NumClasses() int
	Type() string
}

type Scaler interface {
	Transform(features []float64) ([]float64, error)
	Width() int
	Type() string
}

type ModelInfo struct {
	ClassifierType string   `json:"classifier_type"`
	Trees          int      `json:"trees"`
	ScalerType     string   `json:"scaler_type"`
	Features       []string `json:"features"`
	Classes        []string `json:"classes"`
}

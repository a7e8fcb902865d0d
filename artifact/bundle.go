package artifact

import (
	"fmt"
	"time"

	"matclass/ml"
)

// Info describes one loaded artifact file.
type Info struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
}

// Bundle is the loaded classifier, scaler and label encoder. It is built once
// and only read afterwards, so it is safe to share across requests.
type Bundle struct {
	Classifier ml.Classifier
	Scaler     ml.Scaler
	Encoder    *ml.LabelEncoder
	Artifacts  []Info
	LoadedAt   time.Time
}

// NewBundle checks that the three pieces fit together: the scaler and the
// classifier both take the canonical feature vector, and every class the
// classifier can emit has a name.
func NewBundle(classifier ml.Classifier, scaler ml.Scaler, encoder *ml.LabelEncoder) (*Bundle, error) {
	if classifier == nil || scaler == nil || encoder == nil {
		return nil, fmt.Errorf("bundle is incomplete")
	}
	if scaler.Width() != ml.NumFeatures {
		return nil, fmt.Errorf("scaler expects %d features, want %d", scaler.Width(), ml.NumFeatures)
	}
	if classifier.NumFeatures() != ml.NumFeatures {
		return nil, fmt.Errorf("classifier expects %d features, want %d", classifier.NumFeatures(), ml.NumFeatures)
	}
	if classifier.NumClasses() > encoder.Len() {
		return nil, fmt.Errorf("classifier has %d classes but label encoder knows %d", classifier.NumClasses(), encoder.Len())
	}
	return &Bundle{
		Classifier: classifier,
		Scaler:     scaler,
		Encoder:    encoder,
		LoadedAt:   time.Now().UTC(),
	}, nil
}

// Ready reports whether all three artifacts are present.
func (b *Bundle) Ready() bool {
	return b != nil && b.Classifier != nil && b.Scaler != nil && b.Encoder != nil
}

func (b *Bundle) ModelInfo() ml.ModelInfo {
	info := ml.ModelInfo{
		ClassifierType: b.Classifier.Type(),
		Trees:          1,
		ScalerType:     b.Scaler.Type(),
		Features:       ml.FeatureNames(),
		Classes:        b.Encoder.Classes(),
	}
	if forest, ok := b.Classifier.(interface{ Trees() int }); ok {
		info.Trees = forest.Trees()
	}
	return info
}

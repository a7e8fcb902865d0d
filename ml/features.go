package ml

// Canonical feature order of the vector handed to the scaler.
const (
	FeatureSu = "Su"
	FeatureSy = "Sy"
	FeatureE  = "E"
	FeatureG  = "G"
	FeatureMu = "mu"
	FeatureRo = "Ro"
)

const NumFeatures = 6

type MaterialFeatures struct {
	Su float64 `json:"Su"`
	Sy float64 `json:"Sy"`
	E  float64 `json:"E"`
	G  float64 `json:"G"`
	Mu float64 `json:"mu"`
	Ro float64 `json:"Ro"`
}

func FeatureNames() []string {
	return []string{FeatureSu, FeatureSy, FeatureE, FeatureG, FeatureMu, FeatureRo}
}

func FeatureVector(f MaterialFeatures) []float64 {
	return []float64{f.Su, f.Sy, f.E, f.G, f.Mu, f.Ro}
}

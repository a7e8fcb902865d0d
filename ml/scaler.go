package ml

import (
	"errors"
	"fmt"
)

const (
	ScalerStandard = "standard"
	ScalerMinMax   = "minmax"
)

type StandardScaler struct {
	mean  []float64
	scale []float64
}

func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) == 0 {
		return nil, errors.New("scaler has no statistics")
	}
	if len(mean) != len(scale) {
		return nil, errors.New("mean/scale length mismatch")
	}
	s := &StandardScaler{
		mean:  append([]float64(nil), mean...),
		scale: make([]float64, len(scale)),
	}
	// a constant training column has scale 0 and is left unscaled
	for i, v := range scale {
		if v == 0 {
			v = 1
		}
		s.scale[i] = v
	}
	return s, nil
}

func (s *StandardScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.mean) {
		return nil, fmt.Errorf("X has %d features, but scaler is expecting %d features as input", len(features), len(s.mean))
	}
	result := make([]float64, len(features))
	for i, v := range features {
		result[i] = (v - s.mean[i]) / s.scale[i]
	}
	return result, nil
}

func (s *StandardScaler) Width() int   { return len(s.mean) }
func (s *StandardScaler) Type() string { return ScalerStandard }

type MinMaxScaler struct {
	mins []float64
	maxs []float64
}

func NewMinMaxScaler(mins, maxs []float64) (*MinMaxScaler, error) {
	if len(mins) == 0 {
		return nil, errors.New("scaler has no statistics")
	}
	if len(mins) != len(maxs) {
		return nil, errors.New("min/max length mismatch")
	}
	for i := range mins {
		if maxs[i] < mins[i] {
			return nil, fmt.Errorf("feature %d: max %g below min %g", i, maxs[i], mins[i])
		}
	}
	return &MinMaxScaler{
		mins: append([]float64(nil), mins...),
		maxs: append([]float64(nil), maxs...),
	}, nil
}

func (s *MinMaxScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.mins) {
		return nil, fmt.Errorf("X has %d features, but scaler is expecting %d features as input", len(features), len(s.mins))
	}
	return NormalizeVector(features, s.mins, s.maxs)
}

func (s *MinMaxScaler) Width() int   { return len(s.mins) }
func (s *MinMaxScaler) Type() string { return ScalerMinMax }

func NormalizeFeature(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	return (value - min) / (max - min)
}

func NormalizeVector(values []float64, mins []float64, maxs []float64) ([]float64, error) {
	if len(values) != len(mins) || len(values) != len(maxs) {
		return nil, errors.New("values/mins/maxs length mismatch")
	}
	result := make([]float64, len(values))
	for i := range values {
		result[i] = NormalizeFeature(values[i], mins[i], maxs[i])
	}
	return result, nil
}

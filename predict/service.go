// Package predict turns a material feature record into a material name using
// a loaded artifact bundle.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"matclass/artifact"
	"matclass/errs"
	"matclass/ml"
)

// Messages returned to callers verbatim.
const (
	MsgUnavailable     = "Model or preprocessing objects failed to load"
	MsgNoInput         = "No input data provided"
	MsgMissingFeatures = "Missing one or more required features"
)

type Result struct {
	PredictedMaterial string `json:"predicted_material"`
}

// Service is stateless apart from the bundle it was built with, which it
// never modifies; one Service serves all requests concurrently.
type Service struct {
	bundle *artifact.Bundle
	log    *zap.Logger
}

// NewService wraps bundle, which may be nil when loading failed. Such a
// service answers every request with a ServiceUnavailable error.
func NewService(bundle *artifact.Bundle, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{bundle: bundle, log: log}
}

func (s *Service) Ready() bool {
	return s.bundle.Ready()
}

func (s *Service) Bundle() *artifact.Bundle {
	return s.bundle
}

// Predict validates a JSON feature record and classifies it. The payload
// check runs before the schema check, so an empty object reports
// MsgNoInput rather than MsgMissingFeatures.
func (s *Service) Predict(ctx context.Context, payload []byte) (*Result, error) {
	const op = "predict.Predict"
	if !s.Ready() {
		return nil, errs.E(errs.ServiceUnavailable, op, MsgUnavailable, nil)
	}

	fields, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}
	if err := checkSchema(fields); err != nil {
		return nil, err
	}
	features, err := assembleFeatures(fields)
	if err != nil {
		return nil, err
	}
	return s.PredictFeatures(ctx, features)
}

// PredictFeatures classifies an already typed record.
func (s *Service) PredictFeatures(ctx context.Context, f ml.MaterialFeatures) (*Result, error) {
	if !s.Ready() {
		return nil, errs.E(errs.ServiceUnavailable, "predict.PredictFeatures", MsgUnavailable, nil)
	}
	return s.classify(ctx, ml.FeatureVector(f))
}

func (s *Service) classify(ctx context.Context, vector []float64) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.E(errs.Internal, "predict.classify", "", err)
	}

	scaled, err := s.bundle.Scaler.Transform(vector)
	if err != nil {
		return nil, errs.E(errs.BadRequest, "predict.scale", err.Error(), err)
	}

	label, err := s.bundle.Classifier.Predict(scaled)
	if err != nil {
		s.log.Error("classifier failed", zap.Error(err))
		return nil, errs.E(errs.Internal, "predict.classify", err.Error(), err)
	}

	name, err := s.bundle.Encoder.InverseTransform(label)
	if err != nil {
		s.log.Error("label decoding failed", zap.Int("label", label), zap.Error(err))
		return nil, errs.E(errs.Internal, "predict.decode", err.Error(), err)
	}
	return &Result{PredictedMaterial: name}, nil
}

func decodePayload(payload []byte) (map[string]json.RawMessage, error) {
	const op = "predict.decode"
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, errs.E(errs.BadRequest, op, MsgNoInput, nil)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, errs.E(errs.BadRequest, op, MsgNoInput, err)
	}
	if len(fields) == 0 {
		return nil, errs.E(errs.BadRequest, op, MsgNoInput, nil)
	}
	return fields, nil
}

func checkSchema(fields map[string]json.RawMessage) error {
	for _, name := range ml.FeatureNames() {
		if _, ok := fields[name]; !ok {
			return errs.E(errs.BadRequest, "predict.schema", MsgMissingFeatures, fmt.Errorf("missing %s", name))
		}
	}
	return nil
}

// assembleFeatures reads the six features, accepting JSON numbers only.
func assembleFeatures(fields map[string]json.RawMessage) (ml.MaterialFeatures, error) {
	values := make(map[string]float64, ml.NumFeatures)
	for _, name := range ml.FeatureNames() {
		dec := json.NewDecoder(bytes.NewReader(fields[name]))
		dec.UseNumber()
		var value any
		if err := dec.Decode(&value); err != nil {
			return ml.MaterialFeatures{}, numericError(name, err)
		}
		num, ok := value.(json.Number)
		if !ok {
			return ml.MaterialFeatures{}, numericError(name, fmt.Errorf("got %T", value))
		}
		f, err := num.Float64()
		if err != nil {
			return ml.MaterialFeatures{}, numericError(name, err)
		}
		values[name] = f
	}
	return ml.MaterialFeatures{
		Su: values[ml.FeatureSu],
		Sy: values[ml.FeatureSy],
		E:  values[ml.FeatureE],
		G:  values[ml.FeatureG],
		Mu: values[ml.FeatureMu],
		Ro: values[ml.FeatureRo],
	}, nil
}

func numericError(name string, cause error) error {
	return errs.E(errs.BadRequest, "predict.assemble", fmt.Sprintf("Feature %s must be numeric", name), cause)
}

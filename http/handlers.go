package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"matclass/artifact"
	"matclass/db"
	"matclass/errs"
	"matclass/ml"
	"matclass/monitoring"
	"matclass/predict"
)

const (
	codeOK                 = "ok"
	codeBadRequest         = "bad_request"
	codeServiceUnavailable = "service_unavailable"
	codeInternal           = "internal"
	codeNotFound           = "not_found"
)

// ProvenanceSource lists recorded fetch and load events of artifact files.
type ProvenanceSource interface {
	Latest(ctx context.Context) ([]db.ArtifactEvent, error)
	History(ctx context.Context, artifact string, limit int) ([]db.ArtifactEvent, error)
}

type API struct {
	service     *predict.Service
	metrics     *monitoring.PredictionMetrics
	provenance  ProvenanceSource
	log         *zap.Logger
	exposeError bool
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type modelResponse struct {
	Model      ml.ModelInfo       `json:"model"`
	Artifacts  []artifact.Info    `json:"artifacts"`
	LoadedAt   time.Time          `json:"loaded_at"`
	Provenance []db.ArtifactEvent `json:"provenance,omitempty"`
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /predict", a.handlePredict)
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("GET /api/model", a.handleModel)
	mux.HandleFunc("GET /api/metrics", a.handleMetrics)
	mux.HandleFunc("GET /api/artifacts/{file}/history", a.handleArtifactHistory)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"status": "ok",
		"ready":  a.service.Ready(),
	})
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := GetStartTime(r.Context())
	if start.IsZero() {
		start = time.Now()
	}

	// an unavailable service answers without looking at the body
	var payload []byte
	if a.service.Ready() {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			status, msg := http.StatusBadRequest, "Failed to read request body"
			if errors.As(err, &tooLarge) {
				status, msg = http.StatusRequestEntityTooLarge, "Request body too large"
			}
			a.log.Warn("failed to read prediction request body",
				zap.String("request_id", GetRequestID(r.Context())),
				zap.Error(err))
			a.metrics.Observe(codeBadRequest, "", time.Since(start))
			respondJSONStatus(w, status, errorBody{Error: msg, Code: codeBadRequest})
			return
		}
		payload = body
	}

	result, err := a.service.Predict(r.Context(), payload)
	if err != nil {
		status, body := a.errorResponse(r.Context(), err)
		a.metrics.Observe(body.Code, "", time.Since(start))
		respondJSONStatus(w, status, body)
		return
	}

	a.metrics.Observe(codeOK, result.PredictedMaterial, time.Since(start))
	respondJSON(w, result)
}

func (a *API) handleModel(w http.ResponseWriter, r *http.Request) {
	if !a.service.Ready() {
		respondJSONStatus(w, http.StatusInternalServerError, errorBody{Error: predict.MsgUnavailable, Code: codeServiceUnavailable})
		return
	}
	bundle := a.service.Bundle()
	resp := modelResponse{
		Model:     bundle.ModelInfo(),
		Artifacts: bundle.Artifacts,
		LoadedAt:  bundle.LoadedAt,
	}
	if a.provenance != nil {
		events, err := a.provenance.Latest(r.Context())
		if err != nil {
			a.log.Warn("failed to read artifact provenance", zap.Error(err))
		} else {
			resp.Provenance = events
		}
	}
	respondJSON(w, resp)
}

// handleArtifactHistory lists the newest events for one artifact file,
// e.g. /api/artifacts/scaler.json/history?limit=10.
func (a *API) handleArtifactHistory(w http.ResponseWriter, r *http.Request) {
	if a.provenance == nil {
		respondJSONStatus(w, http.StatusNotFound, errorBody{Error: "provenance store is not configured", Code: codeNotFound})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			respondJSONStatus(w, http.StatusBadRequest, errorBody{Error: "limit must be between 1 and 1000", Code: codeBadRequest})
			return
		}
		limit = n
	}
	file := r.PathValue("file")
	events, err := a.provenance.History(r.Context(), file, limit)
	if err != nil {
		a.log.Error("failed to read artifact history", zap.String("file", file), zap.Error(err))
		msg := "internal server error"
		if a.exposeError {
			msg = err.Error()
		}
		respondJSONStatus(w, http.StatusInternalServerError, errorBody{Error: msg, Code: codeInternal})
		return
	}
	respondJSON(w, map[string]interface{}{
		"artifact": file,
		"events":   events,
	})
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		io.WriteString(w, a.metrics.ExportPrometheus())
		return
	}
	respondJSON(w, a.metrics.Snapshot())
}

// errorResponse maps an error kind to a status and body. Only internal
// failures may have their message withheld.
func (a *API) errorResponse(ctx context.Context, err error) (int, errorBody) {
	requestID := GetRequestID(ctx)
	switch errs.KindOf(err) {
	case errs.BadRequest:
		a.log.Debug("rejected prediction request", zap.String("request_id", requestID), zap.Error(err))
		return http.StatusBadRequest, errorBody{Error: errs.Message(err), Code: codeBadRequest}
	case errs.ServiceUnavailable:
		return http.StatusInternalServerError, errorBody{Error: errs.Message(err), Code: codeServiceUnavailable}
	default:
		a.log.Error("prediction failed", zap.String("request_id", requestID), zap.Error(err))
		msg := "internal server error"
		if a.exposeError {
			msg = errs.Message(err)
		}
		return http.StatusInternalServerError, errorBody{Error: msg, Code: codeInternal}
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

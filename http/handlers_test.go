package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"matclass/ml/mltest"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name  string
		ready bool
	}{
		{"ready", true},
		{"not ready", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle := fixtureBundle(t)
			if !tt.ready {
				bundle = nil
			}
			handler, _ := newTestHandler(t, bundle, ServerConfig{})

			req, err := http.NewRequest("GET", "/api/health", nil)
			if err != nil {
				t.Fatal(err)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if status := rr.Code; status != http.StatusOK {
				t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body["status"] != "ok" || body["ready"] != tt.ready {
				t.Errorf("handler returned unexpected body: %v", body)
			}
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	handler, _ := newTestHandler(t, fixtureBundle(t), ServerConfig{})
	doPredict(t, handler, mltest.SteelPayload)
	doPredict(t, handler, "{}")

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	var snap struct {
		Outcomes map[string]int64 `json:"outcomes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if snap.Outcomes[codeOK] != 1 || snap.Outcomes[codeBadRequest] != 1 {
		t.Fatalf("unexpected outcomes: %v", snap.Outcomes)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/metrics?format=prometheus", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `matclass_predictions_total{outcome="ok"} 1`) {
		t.Fatalf("unexpected prometheus output:\n%s", w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	handler, _ := newTestHandler(t, fixtureBundle(t), ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", w.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected no allow origin for unlisted origin")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler, _ := newTestHandler(t, fixtureBundle(t), ServerConfig{RateLimit: 2})

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}
	if send("10.0.0.1:1000") != http.StatusOK || send("10.0.0.1:1001") != http.StatusOK {
		t.Fatal("expected first two requests to pass")
	}
	if code := send("10.0.0.1:1002"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	// other clients have their own window
	if code := send("10.0.0.2:1000"); code != http.StatusOK {
		t.Fatalf("expected 200 for a different client, got %d", code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := Chain(LoggerMiddleware(log), RecoveryMiddleware(log))(panicking)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-panic")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":"internal"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	recovered := logs.FilterMessage("panic recovered").All()
	if len(recovered) != 1 || recovered[0].ContextMap()["request_id"] != "req-panic" {
		t.Fatalf("expected panic log with request id, got %+v", recovered)
	}
	access := logs.FilterMessage("request").All()
	if len(access) != 1 || access[0].ContextMap()["status"] != int64(http.StatusInternalServerError) {
		t.Fatalf("expected access log with status 500, got %+v", access)
	}
}

func TestLoggerMiddlewareKeepsUpstreamRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	})
	handler := LoggerMiddleware(zap.NewNop())(inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if seen != "req-42" || w.Header().Get(requestIDHeader) != "req-42" {
		t.Fatalf("expected request id to propagate, got %q", seen)
	}
}

func TestServerConfigDefaults(t *testing.T) {
	srv := NewServer(ServerConfig{Port: 8081}, Deps{})
	if srv.Addr() != ":8081" {
		t.Fatalf("unexpected addr %s", srv.Addr())
	}
	cfg := ServerConfig{}.WithDefaults()
	if cfg.Port != 5000 || cfg.MaxBodyBytes != 1<<20 || len(cfg.AllowedOrigins) != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

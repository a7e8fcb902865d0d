package artifact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"matclass/db"
	"matclass/errs"
	"matclass/ml/mltest"
)

type fakeRecorder struct {
	mu     sync.Mutex
	events []db.ArtifactEvent
}

func (f *fakeRecorder) Record(ctx context.Context, ev db.ArtifactEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func testConfig(dir string) Config {
	cfg := DefaultConfig()
	cfg.Dir = dir
	cfg.Classifier.File = mltest.ClassifierFile
	cfg.Scaler.File = mltest.ScalerFile
	cfg.LabelEncoder.File = mltest.LabelEncoderFile
	return cfg
}

func TestEnsureLocalDownloadsMissingArtifact(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(mltest.ClassifierJSON))
	}))
	defer srv.Close()

	dir := t.TempDir()
	rec := &fakeRecorder{}
	p := NewProvider(testConfig(dir), nil, WithRecorder(rec))

	if err := p.EnsureLocal(context.Background(), mltest.ClassifierFile, srv.URL); err != nil {
		t.Fatalf("EnsureLocal failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, mltest.ClassifierFile))
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if string(data) != mltest.ClassifierJSON {
		t.Fatal("artifact content mismatch")
	}
	if len(rec.events) != 1 || rec.events[0].Event != db.EventFetched || len(rec.events[0].SHA256) != 64 {
		t.Fatalf("unexpected provenance events: %+v", rec.events)
	}

	// present locally: no second fetch
	if err := p.EnsureLocal(context.Background(), mltest.ClassifierFile, srv.URL); err != nil {
		t.Fatalf("EnsureLocal failed: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected 1 fetch, got %d", hits)
	}
}

func TestEnsureLocalErrors(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer notFound.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	truncated := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.Write([]byte(`{"type":`))
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer truncated.Close()

	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		dir    string
		file   string
		source string
		want   errs.Kind
	}{
		{"no source", t.TempDir(), "model.json", "", errs.Configuration},
		{"bad file name", t.TempDir(), "../model.json", notFound.URL, errs.Configuration},
		{"non-2xx", t.TempDir(), "model.json", notFound.URL, errs.Network},
		{"transport failure", t.TempDir(), "model.json", closedURL, errs.Network},
		{"truncated body", t.TempDir(), "model.json", truncated.URL, errs.Network},
		{"unstatable dir", filepath.Join(blocker, "sub"), "model.json", notFound.URL, errs.Storage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(Config{Dir: tt.dir}, nil)
			err := p.EnsureLocal(context.Background(), tt.file, tt.source)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errs.KindOf(err); got != tt.want {
				t.Fatalf("expected %s, got %s (%v)", tt.want, got, err)
			}
			if tt.want == errs.Network {
				entries, _ := os.ReadDir(tt.dir)
				if len(entries) != 0 {
					t.Fatalf("expected no files left behind, found %d", len(entries))
				}
			}
		})
	}
}

func TestEnsureLocalWriteFailure(t *testing.T) {
	// /proc/self accepts no new files, even for root
	const dir = "/proc/self"
	if _, err := os.Stat(dir); err != nil {
		t.Skipf("%s not available: %v", dir, err)
	}
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(mltest.ClassifierJSON))
	}))
	defer srv.Close()

	p := NewProvider(Config{Dir: dir}, nil)
	err := p.EnsureLocal(context.Background(), "model.json", srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := errs.KindOf(err); got != errs.Storage {
		t.Fatalf("expected %s, got %s (%v)", errs.Storage, got, err)
	}
	if hits != 1 {
		t.Fatalf("expected 1 fetch, got %d", hits)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "model.json*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("expected no temp files, found %v", leftovers)
	}
}

func TestEnsureLocalRejectsUndecodableDownload(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"html share page", mltest.ClassifierFile, "<!DOCTYPE html><html><body>Sign in</body></html>"},
		{"scaler served as classifier", mltest.ClassifierFile, mltest.ScalerJSON},
		{"empty encoder", mltest.LabelEncoderFile, `{"classes":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			dir := t.TempDir()
			rec := &fakeRecorder{}
			p := NewProvider(testConfig(dir), nil, WithRecorder(rec))
			err := p.EnsureLocal(context.Background(), tt.file, srv.URL)
			if got := errs.KindOf(err); got != errs.ArtifactLoad {
				t.Fatalf("expected %s, got %s (%v)", errs.ArtifactLoad, got, err)
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Fatalf("expected nothing cached, found %d entries", len(entries))
			}
			if len(rec.events) != 0 {
				t.Fatalf("expected no fetched event, got %+v", rec.events)
			}
		})
	}
}

func TestLoadBundle(t *testing.T) {
	dir := t.TempDir()
	mltest.WriteBundle(t, dir)
	rec := &fakeRecorder{}
	p := NewProvider(testConfig(dir), nil, WithRecorder(rec))

	bundle, err := p.LoadBundle(context.Background())
	if err != nil {
		t.Fatalf("LoadBundle failed: %v", err)
	}
	if !bundle.Ready() {
		t.Fatal("expected ready bundle")
	}
	if len(bundle.Artifacts) != 3 {
		t.Fatalf("expected 3 artifact infos, got %d", len(bundle.Artifacts))
	}
	if len(rec.events) != 3 {
		t.Fatalf("expected 3 load events, got %d", len(rec.events))
	}
	info := bundle.ModelInfo()
	if info.Trees != 3 || len(info.Classes) != 3 || len(info.Features) != 6 {
		t.Fatalf("unexpected model info: %+v", info)
	}
}

func TestLoadBundleFailuresLeaveNoBundle(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
	}{
		{"missing scaler", func(t *testing.T, dir string) {
			os.Remove(filepath.Join(dir, mltest.ScalerFile))
		}},
		{"corrupt classifier", func(t *testing.T, dir string) {
			os.WriteFile(filepath.Join(dir, mltest.ClassifierFile), []byte("\x80\x04\x95pickle"), 0o644)
		}},
		{"incompatible scaler width", func(t *testing.T, dir string) {
			os.WriteFile(filepath.Join(dir, mltest.ScalerFile), []byte(`{"type":"standard","mean":[1,2],"scale":[1,1]}`), 0o644)
		}},
		{"encoder too small", func(t *testing.T, dir string) {
			os.WriteFile(filepath.Join(dir, mltest.LabelEncoderFile), []byte(`{"classes":["Steel"]}`), 0o644)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			mltest.WriteBundle(t, dir)
			tt.setup(t, dir)

			bundle, err := NewProvider(testConfig(dir), nil).LoadBundle(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if bundle != nil {
				t.Fatal("expected nil bundle on failure")
			}
			if errs.KindOf(err) != errs.ArtifactLoad {
				t.Fatalf("expected artifact load error, got %s", errs.KindOf(err))
			}
		})
	}
}

func TestLoadBundleReportsEveryFailure(t *testing.T) {
	dir := t.TempDir()
	_, err := NewProvider(testConfig(dir), nil).LoadBundle(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{NameClassifier, NameScaler, NameLabelEncoder} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("expected %s in error, got %v", name, err)
		}
	}
}

func TestProvision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(mltest.ClassifierJSON))
	}))
	defer srv.Close()

	dir := t.TempDir()
	mltest.WriteBundle(t, dir)
	os.Remove(filepath.Join(dir, mltest.ClassifierFile))

	store, err := db.Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "provenance.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	cfg := testConfig(dir)
	cfg.Classifier.URL = srv.URL
	bundle, err := NewProvider(cfg, nil, WithRecorder(store)).Provision(context.Background())
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if !bundle.Ready() {
		t.Fatal("expected ready bundle")
	}

	history, err := store.History(context.Background(), mltest.ClassifierFile, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 || history[0].Event != db.EventLoaded || history[1].Event != db.EventFetched {
		t.Fatalf("unexpected history: %+v", history)
	}
	if history[0].SHA256 != history[1].SHA256 {
		t.Fatal("fetched and loaded digests differ")
	}
}

func TestProvisionWithoutSourceFails(t *testing.T) {
	bundle, err := NewProvider(testConfig(t.TempDir()), nil).Provision(context.Background())
	if err == nil || bundle != nil {
		t.Fatal("expected failure without artifacts or sources")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"absolute file", func(c *Config) { c.Classifier.File = "/random_forest_model.pkl" }, true},
		{"backslash file", func(c *Config) { c.Classifier.File = `\random_forest_model.pkl` }, true},
		{"ftp url", func(c *Config) { c.Classifier.URL = "ftp://example.com/model" }, true},
		{"https url", func(c *Config) { c.Classifier.URL = "https://example.com/model?dl=1" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && errs.KindOf(err) != errs.Configuration {
				t.Errorf("expected configuration error, got %s", errs.KindOf(err))
			}
		})
	}
}

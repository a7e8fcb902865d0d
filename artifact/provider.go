// Package artifact provisions and loads the classifier, scaler and label
// encoder the prediction service runs on.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"matclass/db"
	"matclass/errs"
	"matclass/ml"
)

// Recorder receives provenance events. *db.Store implements it.
type Recorder interface {
	Record(ctx context.Context, ev db.ArtifactEvent) error
}

type Provider struct {
	cfg      Config
	client   *http.Client
	recorder Recorder
	log      *zap.Logger
}

type Option func(*Provider)

func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.client = client }
}

func WithRecorder(r Recorder) Option {
	return func(p *Provider) { p.recorder = r }
}

func NewProvider(cfg Config, log *zap.Logger, opts ...Option) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Provider{
		cfg:    cfg.WithDefaults(),
		client: &http.Client{},
		log:    log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Path(file string) string {
	return filepath.Join(p.cfg.Dir, file)
}

// Provision fetches every missing artifact that has a URL, then loads the
// bundle. On any failure the returned bundle is nil.
func (p *Provider) Provision(ctx context.Context) (*Bundle, error) {
	var provisionErr error
	for _, n := range p.cfg.Sources() {
		if err := p.EnsureLocal(ctx, n.File, n.URL); err != nil {
			p.log.Error("artifact provisioning failed",
				zap.String("artifact", n.Name),
				zap.String("kind", errs.KindOf(err).String()),
				zap.Error(err))
			provisionErr = multierr.Append(provisionErr, err)
		}
	}
	bundle, err := p.LoadBundle(ctx)
	if err != nil {
		return nil, multierr.Append(provisionErr, err)
	}
	return bundle, provisionErr
}

// EnsureLocal makes sure file exists under the artifact dir, downloading it
// from remoteSource when it does not. The download lands in a temp file that
// is renamed into place, so a failed fetch never leaves a partial artifact.
func (p *Provider) EnsureLocal(ctx context.Context, file, remoteSource string) error {
	const op = "artifact.EnsureLocal"
	if err := validateFileName(file); err != nil {
		return errs.E(errs.Configuration, op, "", err)
	}
	path := p.Path(file)

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return errs.E(errs.Storage, op, "", fmt.Errorf("%s is a directory", path))
	case err == nil:
		return nil
	case !os.IsNotExist(err):
		return errs.E(errs.Storage, op, "", err)
	}

	if remoteSource == "" {
		return errs.E(errs.Configuration, op, "", fmt.Errorf("%s is missing and no remote source is configured", path))
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteSource, nil)
	if err != nil {
		return errs.E(errs.Configuration, op, "", fmt.Errorf("invalid remote source: %w", err))
	}
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return errs.E(errs.Network, op, "", fmt.Errorf("fetch %s: %w", file, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errs.E(errs.Network, op, "", fmt.Errorf("fetch %s: unexpected status code: %d", file, resp.StatusCode))
	}

	sum, size, err := p.persist(resp.Body, path, p.checkerFor(file))
	if err != nil {
		return err
	}

	p.log.Info("artifact downloaded",
		zap.String("file", file),
		zap.Int64("bytes", size),
		zap.String("sha256", sum),
		zap.Duration("elapsed", time.Since(start)))
	p.record(ctx, db.ArtifactEvent{
		Artifact:  file,
		Event:     db.EventFetched,
		Source:    remoteSource,
		SHA256:    sum,
		SizeBytes: size,
	})
	return nil
}

// checkerFor returns a parser for file when it is one of the configured
// artifacts, so a download that does not decode is never moved into place.
func (p *Provider) checkerFor(file string) func(path string) error {
	for _, n := range p.cfg.Sources() {
		if n.File != file {
			continue
		}
		switch n.Name {
		case NameClassifier:
			return func(path string) error { _, err := ml.LoadClassifier(path); return err }
		case NameScaler:
			return func(path string) error { _, err := ml.LoadScaler(path); return err }
		case NameLabelEncoder:
			return func(path string) error { _, err := ml.LoadLabelEncoder(path); return err }
		}
	}
	return nil
}

func (p *Provider) persist(body io.Reader, path string, check func(path string) error) (string, int64, error) {
	const op = "artifact.EnsureLocal"
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, errs.E(errs.Storage, op, "", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", 0, errs.E(errs.Storage, op, "", err)
	}
	defer os.Remove(tmp.Name())

	src := &trackingReader{r: body}
	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), src)
	if err != nil {
		tmp.Close()
		if src.err != nil {
			return "", 0, errs.E(errs.Network, op, "", fmt.Errorf("read response body: %w", src.err))
		}
		return "", 0, errs.E(errs.Storage, op, "", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", 0, errs.E(errs.Storage, op, "", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, errs.E(errs.Storage, op, "", err)
	}
	if check != nil {
		if err := check(tmp.Name()); err != nil {
			return "", 0, errs.E(errs.ArtifactLoad, op, "", fmt.Errorf("downloaded %s does not decode: %w", filepath.Base(path), err))
		}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, errs.E(errs.Storage, op, "", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}

// LoadBundle deserializes all three artifacts. Every failure is reported, and
// the bundle is returned only when all three load and fit together.
func (p *Provider) LoadBundle(ctx context.Context) (*Bundle, error) {
	const op = "artifact.LoadBundle"
	var (
		loadErr    error
		classifier ml.Classifier
		scaler     ml.Scaler
		encoder    *ml.LabelEncoder
		infos      []Info
	)

	for _, n := range p.cfg.Sources() {
		path := p.Path(n.File)
		payload, err := os.ReadFile(path)
		if err != nil {
			loadErr = multierr.Append(loadErr, fmt.Errorf("%s: %w", n.Name, err))
			continue
		}
		switch n.Name {
		case NameClassifier:
			classifier, err = ml.ParseClassifier(payload)
		case NameScaler:
			scaler, err = ml.ParseScaler(payload)
		case NameLabelEncoder:
			encoder, err = ml.ParseLabelEncoder(payload)
		}
		if err != nil {
			loadErr = multierr.Append(loadErr, fmt.Errorf("%s (%s): %w", n.Name, path, err))
			continue
		}
		sum := sha256.Sum256(payload)
		infos = append(infos, Info{
			Name:      n.Name,
			Path:      path,
			SHA256:    hex.EncodeToString(sum[:]),
			SizeBytes: int64(len(payload)),
		})
	}
	if loadErr != nil {
		return nil, errs.E(errs.ArtifactLoad, op, "", loadErr)
	}

	bundle, err := NewBundle(classifier, scaler, encoder)
	if err != nil {
		return nil, errs.E(errs.ArtifactLoad, op, "incompatible artifacts", err)
	}
	bundle.Artifacts = infos

	for _, info := range infos {
		p.record(ctx, db.ArtifactEvent{
			Artifact:  filepath.Base(info.Path),
			Event:     db.EventLoaded,
			Source:    info.Path,
			SHA256:    info.SHA256,
			SizeBytes: info.SizeBytes,
		})
	}
	p.log.Info("artifact bundle loaded",
		zap.String("classifier", classifier.Type()),
		zap.String("scaler", scaler.Type()),
		zap.Strings("classes", encoder.Classes()))
	return bundle, nil
}

func (p *Provider) record(ctx context.Context, ev db.ArtifactEvent) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(ctx, ev); err != nil {
		p.log.Warn("failed to record artifact event", zap.String("artifact", ev.Artifact), zap.Error(err))
	}
}

// trackingReader remembers a read error so a failed copy can be blamed on the
// network rather than the disk.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

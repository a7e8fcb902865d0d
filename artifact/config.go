package artifact

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"matclass/errs"
)

const (
	NameClassifier   = "classifier"
	NameScaler       = "scaler"
	NameLabelEncoder = "label_encoder"
)

// Source locates one artifact: a bare file name under Config.Dir and an
// optional URL it can be fetched from when the file is absent.
type Source struct {
	File string `yaml:"file"`
	URL  string `yaml:"url"`
}

type Config struct {
	Dir          string        `yaml:"dir"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Classifier   Source        `yaml:"classifier"`
	Scaler       Source        `yaml:"scaler"`
	LabelEncoder Source        `yaml:"label_encoder"`
}

func DefaultConfig() Config {
	return Config{
		Dir:          "artifacts",
		FetchTimeout: 2 * time.Minute,
		Classifier:   Source{File: "random_forest_model.json"},
		Scaler:       Source{File: "scaler.json"},
		LabelEncoder: Source{File: "label_encoder.json"},
	}
}

// WithDefaults fills every zero field from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Dir == "" {
		c.Dir = def.Dir
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = def.FetchTimeout
	}
	if c.Classifier.File == "" {
		c.Classifier.File = def.Classifier.File
	}
	if c.Scaler.File == "" {
		c.Scaler.File = def.Scaler.File
	}
	if c.LabelEncoder.File == "" {
		c.LabelEncoder.File = def.LabelEncoder.File
	}
	return c
}

// Sources returns the three artifacts in load order.
func (c Config) Sources() []Named {
	return []Named{
		{Name: NameClassifier, Source: c.Classifier},
		{Name: NameScaler, Source: c.Scaler},
		{Name: NameLabelEncoder, Source: c.LabelEncoder},
	}
}

type Named struct {
	Name string
	Source
}

// Validate rejects file names that would resolve outside Dir.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errs.E(errs.Configuration, "artifact.Config", "artifact dir is required", nil)
	}
	for _, n := range c.Sources() {
		if err := validateFileName(n.File); err != nil {
			return errs.E(errs.Configuration, "artifact.Config", fmt.Sprintf("%s file", n.Name), err)
		}
		if n.URL != "" && !strings.HasPrefix(n.URL, "http://") && !strings.HasPrefix(n.URL, "https://") {
			return errs.E(errs.Configuration, "artifact.Config", fmt.Sprintf("%s url must be http(s): %q", n.Name, n.URL), nil)
		}
	}
	return nil
}

func validateFileName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("file name is empty")
	case filepath.IsAbs(name), strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%q must be a bare file name", name)
	case name == "." || name == "..":
		return fmt.Errorf("%q is not a file name", name)
	}
	return nil
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"matclass/artifact"
	qhttp "matclass/http"
	"matclass/logger"
)

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Config struct {
	Http      qhttp.ServerConfig `yaml:"http"`
	Artifacts artifact.Config    `yaml:"artifacts"`
	Database  DatabaseConfig     `yaml:"database"`
	Log       logger.Config      `yaml:"log"`
}

func defaultConfig() Config {
	return Config{
		Http:      qhttp.DefaultServerConfig(),
		Artifacts: artifact.DefaultConfig(),
		Database:  DatabaseConfig{Driver: "sqlite3", DSN: "matclass.db"},
		Log:       logger.DefaultConfig(),
	}
}

// findConfig looks for config.yaml in the working directory, then one level up
// so the binary can be run from cmd/.
func findConfig() string {
	if p := os.Getenv("MATCLASS_CONFIG"); p != "" {
		return p
	}
	configPath := "config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		parent := filepath.Join("..", "config.yaml")
		if _, err := os.Stat(parent); err == nil {
			return parent
		}
		return ""
	}
	return configPath
}

// loadConfig decodes path over the defaults. An empty path yields the defaults.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := applyEnv(&config, os.LookupEnv); err != nil {
		return nil, err
	}
	config.Http = config.Http.WithDefaults()
	config.Artifacts = config.Artifacts.WithDefaults()
	if config.Database.Driver == "" {
		config.Database.Driver = "sqlite3"
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnv overrides config with MATCLASS_* variables. DROPBOX_URL is
// accepted for the classifier URL when MATCLASS_ARTIFACT_URL is unset.
func applyEnv(config *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("MATCLASS_ARTIFACT_URL"); ok && v != "" {
		config.Artifacts.Classifier.URL = v
	} else if v, ok := lookup("DROPBOX_URL"); ok && v != "" {
		config.Artifacts.Classifier.URL = v
	}
	if v, ok := lookup("MATCLASS_ARTIFACT_DIR"); ok && v != "" {
		config.Artifacts.Dir = v
	}
	if v, ok := lookup("MATCLASS_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid MATCLASS_PORT %q", v)
		}
		config.Http.Port = port
	}
	return nil
}

func (c *Config) Validate() error {
	var err error
	err = multierr.Append(err, c.Artifacts.Validate())
	switch c.Database.Driver {
	case "sqlite3", "postgres", "none":
	default:
		err = multierr.Append(err, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("invalid http port %d", c.Http.Port))
	}
	return err
}

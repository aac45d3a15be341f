package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/mchmarny/claimq/pkg/eval"
	"github.com/mchmarny/claimq/pkg/model"
	"github.com/mchmarny/claimq/pkg/queue"
	"github.com/mchmarny/claimq/pkg/score"
)

const (
	configFileName = "config.yaml"
	dirMode        = 0700

	// EnvPrefix scopes environment overrides, e.g. CLAIMQ_WEIGHTS_ANOMALY=0.5.
	EnvPrefix = "CLAIMQ_"

	weightsKey = "weights"
)

// Config represents app config object.
type Config struct {
	LogLevel string        `koanf:"loglevel" validate:"omitempty,oneof=debug info warn warning error"`
	Weights  score.Weights `koanf:"weights"`
	Queue    QueueConfig   `koanf:"queue"`
	Columns  ColumnConfig  `koanf:"columns"`
	Eval     EvalConfig    `koanf:"eval"`
	Workers  int           `koanf:"workers" validate:"min=1,max=64"`
}

// QueueConfig sizes the investigation queue.
type QueueConfig struct {
	Top int `koanf:"top" validate:"min=1"`
}

// ColumnConfig names the precomputed score columns read when no model snapshot is used.
type ColumnConfig struct {
	Anomaly    string `koanf:"anomaly" validate:"required"`
	Classifier string `koanf:"classifier" validate:"required"`
}

// EvalConfig controls evaluation against labelled claims.
type EvalConfig struct {
	Threshold float64 `koanf:"threshold" validate:"gte=0,lte=1"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Weights:  score.DefaultWeights(),
		Queue:    QueueConfig{Top: queue.DefaultTopK},
		Columns: ColumnConfig{
			Anomaly:    model.DefaultAnomalyColumn,
			Classifier: model.DefaultClassifierColumn,
		},
		Eval:    EvalConfig{Threshold: eval.DefaultThreshold},
		Workers: 4,
	}
}

// Load layers defaults, the YAML file at path (optional when empty or
// missing) and CLAIMQ_ environment variables, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
			slog.Debug("config file loaded", "path", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if err := checkWeightKeys(k); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config required")
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// checkWeightKeys rejects weight names the risk combiner does not know.
func checkWeightKeys(k *koanf.Koanf) error {
	m := make(map[string]float64)
	for _, key := range k.MapKeys(weightsKey) {
		m[key] = k.Float64(weightsKey + "." + key)
	}
	if _, err := score.WeightsFromMap(m); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}

// DefaultPath returns the config file location inside dir.
func DefaultPath(dir string) string {
	return filepath.Join(dir, configFileName)
}

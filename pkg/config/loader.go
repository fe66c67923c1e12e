package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/epicbuild/epic/pkg/telemetry"
)

// Loader resolves a Config from defaults, epic.yaml, .env, the process
// environment and command-line overrides, in that order of precedence.
type Loader struct {
	schemas   *SchemaRegistry
	validator *validator.Validate

	// LookupEnv reads the process environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// NewLoader creates a loader with the built-in schemas.
func NewLoader() *Loader {
	return &Loader{
		schemas:   NewSchemaRegistry(),
		validator: validator.New(),
		LookupEnv: os.LookupEnv,
	}
}

// Load is shorthand for NewLoader().Load.
func Load(ctx context.Context, root string, o Overrides) (Config, error) {
	return NewLoader().Load(ctx, root, o)
}

// Default returns the configuration used when no file or variable is set.
func Default(root string) Config {
	tel := telemetry.DefaultConfig()
	return Config{
		Root:      root,
		LocalRepo: defaultLocalRepo(),
		Toolchain: DefaultToolchain,
		Arch:      DefaultArch,
		Variant:   DefaultVariant,
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(StateDir, HistoryFileName),
			Keep:    DefaultHistoryKeep,
		},
		Telemetry: *tel,
	}
}

func defaultLocalRepo() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, StateDir, "repo")
}

// Load resolves the configuration for the project at root.
func (l *Loader) Load(ctx context.Context, root string, o Overrides) (Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve project root: %w", err)
	}
	cfg := Default(abs)

	if err := l.applyFile(ctx, &cfg); err != nil {
		return Config{}, err
	}
	if err := l.applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyOverrides(&cfg, o)

	if cfg.LocalRepo != "" && !filepath.IsAbs(cfg.LocalRepo) {
		cfg.LocalRepo = filepath.Join(abs, cfg.LocalRepo)
	}

	if err := l.validator.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	return cfg, nil
}

func (l *Loader) applyFile(ctx context.Context, cfg *Config) error {
	path := filepath.Join(cfg.Root, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if raw == nil {
		return nil
	}
	if err := l.schemas.ValidateAgainstSchema(ctx, SchemaWorkspace, raw); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	setString(&cfg.LocalRepo, fc.LocalRepo)
	setString(&cfg.Toolchain, fc.Toolchain)
	setString(&cfg.Arch, fc.Arch)
	setString(&cfg.Variant, fc.Variant)
	if fc.OperatorTimeout != "" {
		d, err := time.ParseDuration(fc.OperatorTimeout)
		if err != nil {
			return fmt.Errorf("%s: operator_timeout: %w", path, err)
		}
		cfg.OperatorTimeout = d
	}
	if fc.DirectOutputs != nil {
		cfg.DirectOutputs = *fc.DirectOutputs
	}

	if fc.History.Enabled != nil {
		cfg.History.Enabled = *fc.History.Enabled
	}
	setString(&cfg.History.Path, fc.History.Path)
	if fc.History.Keep != nil {
		cfg.History.Keep = *fc.History.Keep
	}

	tel := &cfg.Telemetry
	setString(&tel.Logging.Level, fc.Telemetry.Logging.Level)
	setString(&tel.Logging.Format, fc.Telemetry.Logging.Format)
	if fc.Telemetry.Tracing.Enabled != nil {
		tel.Tracing.Enabled = *fc.Telemetry.Tracing.Enabled
	}
	setString(&tel.Tracing.Exporter, fc.Telemetry.Tracing.Exporter)
	setString(&tel.Tracing.Endpoint, fc.Telemetry.Tracing.Endpoint)
	if fc.Telemetry.Metrics.Enabled != nil {
		tel.Metrics.Enabled = *fc.Telemetry.Metrics.Enabled
	}
	setString(&tel.Metrics.ListenAddress, fc.Telemetry.Metrics.Address)
	return nil
}

// applyEnv applies variables from the process environment, falling back to
// the project's .env file. Process variables win, as with godotenv.Load.
func (l *Loader) applyEnv(cfg *Config) error {
	dotenv, err := godotenv.Read(filepath.Join(cfg.Root, EnvFileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", EnvFileName, err)
	}

	lookup := func(key string) string {
		if l.LookupEnv != nil {
			if v, ok := l.LookupEnv(key); ok {
				return strings.TrimSpace(v)
			}
		}
		return strings.TrimSpace(dotenv[key])
	}

	setString(&cfg.LocalRepo, lookup(EnvLocalRepo))
	setString(&cfg.Toolchain, lookup(EnvToolchain))
	setString(&cfg.Arch, lookup(EnvArch))
	setString(&cfg.Variant, lookup(EnvVariant))
	setString(&cfg.Telemetry.Logging.Level, strings.ToLower(lookup(EnvLogLevel)))
	return nil
}

func applyOverrides(cfg *Config, o Overrides) {
	setString(&cfg.LocalRepo, o.LocalRepo)
	setString(&cfg.Toolchain, o.Toolchain)
	setString(&cfg.Arch, o.Arch)
	setString(&cfg.Variant, o.Variant)
	setString(&cfg.Telemetry.Logging.Level, o.LogLevel)
	if o.OperatorTimeout != nil {
		cfg.OperatorTimeout = *o.OperatorTimeout
	}
	if o.DirectOutputs != nil {
		cfg.DirectOutputs = *o.DirectOutputs
	}
	if o.NoHistory {
		cfg.History.Enabled = false
	}
	if o.MetricsAddress != "" {
		cfg.Telemetry.Metrics.Enabled = true
		cfg.Telemetry.Metrics.ListenAddress = o.MetricsAddress
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

package config

import (
	"path/filepath"
	"time"

	"github.com/epicbuild/epic/pkg/telemetry"
)

// File names looked up in the project root.
const (
	FileName    = "epic.yaml"
	EnvFileName = ".env"
)

// Environment variables that override epic.yaml.
const (
	EnvLocalRepo = "EPIC_LOCAL_REPO"
	EnvToolchain = "EPIC_TOOLCHAIN"
	EnvArch      = "EPIC_ARCH"
	EnvVariant   = "EPIC_VARIANT"
	EnvLogLevel  = "LOG_LEVEL"
)

// Defaults.
const (
	DefaultToolchain   = "auto"
	DefaultArch        = "x64"
	DefaultVariant     = "debug"
	DefaultHistoryKeep = 100
	StateDir           = ".epic"
	HistoryFileName    = "history.db"
)

// Config is the resolved workspace configuration for one project root. It is
// a value type; callers receive copies and never mutate a shared instance.
type Config struct {
	// Root is the absolute project directory.
	Root string `validate:"required"`

	// LocalRepo is the local package repository root.
	LocalRepo string

	// Toolchain is auto, llvm, gnu or msvc.
	Toolchain string `validate:"required,oneof=auto llvm gnu msvc"`

	Arch    string `validate:"required,oneof=x86 x64"`
	Variant string `validate:"required,oneof=debug release"`

	// OperatorTimeout bounds each operator invocation. Zero means no limit.
	OperatorTimeout time.Duration `validate:"gte=0"`

	// DirectOutputs makes operators write straight to their output path.
	DirectOutputs bool

	History HistoryConfig

	Telemetry telemetry.Config `validate:"-"`
}

// HistoryConfig controls the build history database.
type HistoryConfig struct {
	Enabled bool

	// Path is the database file; relative paths are under Root.
	Path string `validate:"required_if=Enabled true"`

	// Keep is the number of runs retained after each build. Zero keeps all.
	Keep int `validate:"gte=0"`
}

// BuildConfigString names the arch/variant combination, e.g. "x64-debug".
// Dependency libraries are looked up under lib/<BuildConfigString>/.
func (c Config) BuildConfigString() string {
	return c.Arch + "-" + c.Variant
}

// HistoryPath returns the absolute path of the history database.
func (c Config) HistoryPath() string {
	if filepath.IsAbs(c.History.Path) {
		return c.History.Path
	}
	return filepath.Join(c.Root, c.History.Path)
}

// Overrides are command-line values applied last. Empty fields leave the
// loaded value alone.
type Overrides struct {
	LocalRepo       string
	Toolchain       string
	Arch            string
	Variant         string
	LogLevel        string
	OperatorTimeout *time.Duration
	DirectOutputs   *bool
	NoHistory       bool

	// MetricsAddress serves Prometheus metrics, e.g. ":9090".
	MetricsAddress string
}

// fileConfig mirrors epic.yaml. Pointers distinguish unset from zero.
type fileConfig struct {
	LocalRepo       string `yaml:"local_repo"`
	Toolchain       string `yaml:"toolchain"`
	Arch            string `yaml:"arch"`
	Variant         string `yaml:"variant"`
	OperatorTimeout string `yaml:"operator_timeout"`
	DirectOutputs   *bool  `yaml:"direct_outputs"`

	History struct {
		Enabled *bool  `yaml:"enabled"`
		Path    string `yaml:"path"`
		Keep    *int   `yaml:"keep"`
	} `yaml:"history"`

	Telemetry struct {
		Logging struct {
			Level  string `yaml:"level"`
			Format string `yaml:"format"`
		} `yaml:"logging"`
		Tracing struct {
			Enabled  *bool  `yaml:"enabled"`
			Exporter string `yaml:"exporter"`
			Endpoint string `yaml:"endpoint"`
		} `yaml:"tracing"`
		Metrics struct {
			Enabled *bool  `yaml:"enabled"`
			Address string `yaml:"address"`
		} `yaml:"metrics"`
	} `yaml:"telemetry"`
}

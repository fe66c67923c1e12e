package packages

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/epicbuild/epic/pkg/config"
	"github.com/epicbuild/epic/pkg/engine"
)

// ManifestName is the package manifest file in the package root.
const ManifestName = "package.json"

// manifest mirrors package.json.
type manifest struct {
	Name         string                 `json:"name,omitempty" validate:"omitempty,max=128,excludesall=/"`
	Version      string                 `json:"version,omitempty" validate:"omitempty,max=64"`
	Dependencies map[string]string      `json:"dependencies,omitempty" validate:"omitempty,dive,keys,min=1,excludesall=/,endkeys,max=64"`
	Defines      map[string]interface{} `json:"defines,omitempty"`
	Options      struct {
		Compile []string `json:"compile,omitempty"`
		Archive []string `json:"archive,omitempty"`
		Link    []string `json:"link,omitempty"`
	} `json:"options,omitempty"`
}

// Settings holds the values declared in package.json. It is immutable:
// accessors return copies.
type Settings struct {
	name         string
	version      string
	dependencies map[string]string
	defines      map[string]string
	options      map[engine.ActionKind][]string
}

// Name is the declared package name, or "" to use the folder name.
func (s Settings) Name() string { return s.name }

// Version is the declared package version.
func (s Settings) Version() string { return s.version }

// Dependencies returns identifier to version-constraint pairs. Constraints
// are recorded but not evaluated.
func (s Settings) Dependencies() map[string]string {
	out := make(map[string]string, len(s.dependencies))
	for k, v := range s.dependencies {
		out[k] = v
	}
	return out
}

// DependencyIDs returns the declared dependency identifiers, sorted.
func (s Settings) DependencyIDs() []string {
	ids := make([]string, 0, len(s.dependencies))
	for id := range s.dependencies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Defines returns preprocessor definitions as strings.
func (s Settings) Defines() map[string]string {
	out := make(map[string]string, len(s.defines))
	for k, v := range s.defines {
		out[k] = v
	}
	return out
}

// Options returns the extra tool arguments declared for action.
func (s Settings) Options(action engine.ActionKind) []string {
	return append([]string(nil), s.options[action]...)
}

// parseManifest decodes and validates package.json content.
func parseManifest(ctx context.Context, data []byte, schemas *config.SchemaRegistry, v *validator.Validate) (Settings, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("invalid %s: %w", ManifestName, err)
	}
	if raw != nil {
		if err := schemas.ValidateAgainstSchema(ctx, config.SchemaManifest, raw); err != nil {
			return Settings{}, err
		}
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Settings{}, fmt.Errorf("invalid %s: %w", ManifestName, err)
	}
	if err := v.Struct(m); err != nil {
		return Settings{}, fmt.Errorf("invalid %s: %w", ManifestName, err)
	}

	s := Settings{
		name:         m.Name,
		version:      m.Version,
		dependencies: make(map[string]string, len(m.Dependencies)),
		defines:      make(map[string]string, len(m.Defines)),
		options: map[engine.ActionKind][]string{
			engine.ActionCompile: m.Options.Compile,
			engine.ActionArchive: m.Options.Archive,
			engine.ActionLink:    m.Options.Link,
		},
	}
	for k, v := range m.Dependencies {
		s.dependencies[k] = v
	}
	for k, v := range m.Defines {
		s.defines[k] = defineValue(v)
	}
	return s, nil
}

// defineValue renders a JSON define value. true becomes "1" and false "0".
func defineValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

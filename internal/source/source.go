// Package source maps source names to the variants that can capture from
// them and extract messages from their raw payloads.
package source

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alfredjeanlab/microblog/internal/capture"
	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/transfer"
)

var (
	// ErrInvalidConfig is returned when a variant's required settings are missing or malformed.
	ErrInvalidConfig = errors.New("invalid source configuration")

	// ErrUnknownSource is returned by Lookup for a name no variant is registered under.
	ErrUnknownSource = errors.New("unknown source")
)

// EnvPrefix starts every source setting variable.
const EnvPrefix = "MB_SOURCE_"

// Variant is one kind of source.
type Variant interface {
	Name() string
	// NewStream validates settings and returns a stream plus the rule to
	// install on it. It performs no network I/O.
	NewStream(settings Settings, logger *slog.Logger) (capture.Stream, string, error)
	// Extractor turns this variant's raw payloads into message text.
	Extractor() transfer.Extractor
}

// Settings holds a variant's configuration keyed by full variable name.
type Settings map[string]string

// SettingsFromEnv collects the variables in environ (KEY=VALUE form) that
// start with EnvPrefix and contain the upper-cased source name anywhere.
func SettingsFromEnv(name string, environ []string) Settings {
	upper := strings.ToUpper(name)
	settings := Settings{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) || !strings.Contains(key, upper) {
			continue
		}
		settings[key] = value
	}
	return settings
}

// Merge returns a copy of s with every entry of over applied on top.
func (s Settings) Merge(over Settings) Settings {
	out := make(Settings, len(s)+len(over))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Get returns the value for key, or def when it is unset or empty.
func (s Settings) Get(key, def string) string {
	if v := s[key]; v != "" {
		return v
	}
	return def
}

// Require checks that every key has a non-empty value.
func (s Settings) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if s[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

// Registry is a name-keyed set of variants.
type Registry struct {
	variants map[string]Variant
}

// NewRegistry registers each variant under its Name. It panics on a name
// that is not a valid data source key or is registered twice.
func NewRegistry(variants ...Variant) *Registry {
	r := &Registry{variants: make(map[string]Variant, len(variants))}
	for _, v := range variants {
		name := v.Name()
		if err := model.ValidateDataSourceName(name); err != nil {
			panic(fmt.Sprintf("source: register %q: %v", name, err))
		}
		if _, dup := r.variants[name]; dup {
			panic(fmt.Sprintf("source: %q registered twice", name))
		}
		r.variants[name] = v
	}
	return r
}

// Lookup returns the variant registered under name.
func (r *Registry) Lookup(name string) (Variant, error) {
	v, ok := r.variants[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownSource, name, strings.Join(r.Names(), ", "))
	}
	return v, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.variants))
	for name := range r.variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

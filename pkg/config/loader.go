package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	baseFile    = "base.yaml"
	secretsFile = "secrets.env"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadLayers reads base.yaml, overlays <env>.yaml when present and resolves
// ${VAR} placeholders from secrets.env and then the process environment.
// Unresolved placeholders are left untouched.
func LoadLayers(env, configDir string) (map[string]any, error) {
	if configDir == "" {
		configDir = "config"
	}

	layers, err := readYAML(filepath.Join(configDir, baseFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", baseFile, err)
	}

	if env != "" && env != "base" {
		name := env + ".yaml"
		overlay, err := readYAML(filepath.Join(configDir, name))
		switch {
		case err == nil:
			layers = mergeMaps(layers, overlay)
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to load %s: %w", name, err)
		}
	}

	secrets, err := godotenv.Read(filepath.Join(configDir, secretsFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", secretsFile, err)
	}
	lookup := func(key string) (string, bool) {
		if v, ok := secrets[key]; ok {
			return v, true
		}
		return os.LookupEnv(key)
	}

	resolved, _ := resolve(layers, lookup).(map[string]any)
	return resolved, nil
}

// Decode converts a merged config map into the typed target struct.
func Decode(layers map[string]any, out any) error {
	data, err := yaml.Marshal(layers)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

func readYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// mergeMaps returns base overlaid with top; nested maps merge key by key.
func mergeMaps(base, top map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		bm, bok := out[k].(map[string]any)
		tm, tok := v.(map[string]any)
		if bok && tok {
			out[k] = mergeMaps(bm, tm)
			continue
		}
		out[k] = v
	}
	return out
}

func resolve(v any, lookup func(string) (string, bool)) any {
	switch val := v.(type) {
	case string:
		return placeholder.ReplaceAllStringFunc(val, func(m string) string {
			if s, ok := lookup(m[2 : len(m)-1]); ok {
				return s
			}
			return m
		})
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = resolve(item, lookup)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolve(item, lookup)
		}
		return out
	default:
		return v
	}
}

// GetEnv returns the environment value for key, or def when it is unset or empty.
func GetEnv(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

// ConfigEnv names the config overlay to load, from CONFIG_ENV, defaulting to local.
func ConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var supportedExtensions = []string{".json", ".yaml", ".yml", ".toml"}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	known := false
	for _, e := range supportedExtensions {
		if ext == e {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("config file must have one of the extensions: %s", strings.Join(supportedExtensions, ", "))
	}
	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}
	return nil
}

// decodeFile parses the file into a generic tree, converts duration strings such
// as "10s" where the target field is a time.Duration, and decodes the result
// through the json tags onto cfg.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - path validated by caller
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	tree := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &tree)
	case ".toml":
		err = toml.Unmarshal(data, &tree)
	default:
		err = json.Unmarshal(data, &tree)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := normalizeDurations(tree, reflect.TypeOf(*cfg)); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	normalized, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := json.Unmarshal(normalized, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func normalizeDurations(tree map[string]any, t reflect.Type) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		v, ok := tree[name]
		if !ok {
			continue
		}
		switch {
		case f.Type == durationType:
			s, isString := v.(string)
			if !isString {
				continue
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			tree[name] = int64(d)
		case f.Type.Kind() == reflect.Struct:
			if sub, isMap := v.(map[string]any); isMap {
				if err := normalizeDurations(sub, f.Type); err != nil {
					return fmt.Errorf("%s.%w", name, err)
				}
			}
		}
	}
	return nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// decodeFunc unmarshals raw file contents into a key map.
type decodeFunc func([]byte, any) error

var decoders = map[string]decodeFunc{
	".yaml": yaml.Unmarshal,
	".yml":  yaml.Unmarshal,
	".json": json.Unmarshal,
}

// FromFile loads a configuration file, picking the decoder from the
// extension. Supported: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parse(raw, decode, ext)
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	return parse(data, yaml.Unmarshal, ".yaml")
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	return parse(data, json.Unmarshal, ".json")
}

func parse(data []byte, decode decodeFunc, ext string) (Config, error) {
	var m map[string]any
	if err := decode(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse %s config: %w", strings.TrimPrefix(ext, "."), err)
	}
	return New(m), nil
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix env-var overrides are read under, e.g.
// SENSISCAN_SCAN_CONCURRENCY overrides scan.concurrency.
const EnvPrefix = "SENSISCAN"

// Load reads, env-overrides, defaults, and validates a config from path.
//
// The file format is determined by extension: .yaml/.yml for YAML, .json
// for JSON. If the extension is unrecognized, YAML is attempted first,
// then JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading config: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses, env-overrides, defaults, and validates a config
// from raw bytes. path is used only for format detection and error
// messages; pass "" to force YAML-then-JSON detection.
func LoadFromBytes(data []byte, path string) (*Config, error) {
	if len(data) == 0 {
		return nil, errors.New("config file is empty")
	}

	cfg, err := parseConfig(data, path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	cfg.ApplyDefaults()

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromReader reads, then defers to LoadFromBytes.
func LoadFromReader(r io.Reader, path string) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return LoadFromBytes(data, path)
}

func parseConfig(data []byte, path string) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		return parseJSON(data)
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		cfg, yamlErr := parseYAML(data)
		if yamlErr == nil {
			return cfg, nil
		}
		cfg, jsonErr := parseJSON(data)
		if jsonErr == nil {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to parse config (tried YAML and JSON): %w", yamlErr)
	}
}

func parseJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON in config: %w", err)
	}
	return &cfg, nil
}

func parseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets deployment environments override individual
// scan tunables without editing the config file, e.g. for CI runs that
// need a lower concurrency than the checked-in manifest specifies.
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if s, ok := lookupEnv(v, "PROBE_ENDPOINT"); ok {
		cfg.Probe.Endpoint = s
	}
	if s, ok := lookupEnv(v, "PROBE_API_KEY"); ok {
		cfg.Probe.APIKey = s
	}
	if s, ok := lookupEnv(v, "PROBE_MODEL"); ok {
		cfg.Probe.Model = s
	}
	if n, ok := lookupEnvInt(v, "SCAN_CONCURRENCY"); ok {
		cfg.Scan.Concurrency = n
	}
	if n, ok := lookupEnvInt(v, "SCAN_TIMEOUT_SECONDS"); ok {
		cfg.Scan.TimeoutSeconds = n
	}
	if n, ok := lookupEnvInt(v, "SCAN_MAX_RETRIES"); ok {
		cfg.Scan.MaxRetries = n
	}
	if n, ok := lookupEnvInt(v, "SCAN_CHUNK_SIZE"); ok {
		cfg.Scan.ChunkSize = n
	}
}

func lookupEnv(v *viper.Viper, key string) (string, bool) {
	if !v.IsSet(key) {
		return "", false
	}
	s := v.GetString(key)
	if s == "" {
		return "", false
	}
	return s, true
}

func lookupEnvInt(v *viper.Viper, key string) (int, bool) {
	if !v.IsSet(key) {
		return 0, false
	}
	return v.GetInt(key), true
}

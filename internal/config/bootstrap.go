package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Bootstrap is the subset of config.yaml read directly, bypassing viper,
// before storage opens. Mirrors the teacher's LoadLocalConfig: a direct
// os.ReadFile + yaml.Unmarshal, returning a zero-value struct (never nil,
// never an error) when the file is missing or malformed so callers can
// treat "not configured yet" uniformly with "configured empty".
type Bootstrap struct {
	StorageConnectionString string `yaml:"storage.connectionString"`
	PlatformABaseURL        string `yaml:"platformA.baseUrl"`
	PlatformBBaseURL        string `yaml:"platformB.baseUrl"`
}

// LoadBootstrap reads configPath directly for the keys needed before a
// storage handle can be opened (IsBootstrapKey). It never fails: a missing
// or unparsable file yields a zero-value Bootstrap.
func LoadBootstrap(configPath string) *Bootstrap {
	data, err := os.ReadFile(configPath) // #nosec G304 - operator-supplied path
	if err != nil {
		return &Bootstrap{}
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return &Bootstrap{}
	}

	return &Bootstrap{
		StorageConnectionString: nestedString(raw, "storage", "connectionString"),
		PlatformABaseURL:        nestedString(raw, "platformA", "baseUrl"),
		PlatformBBaseURL:        nestedString(raw, "platformB", "baseUrl"),
	}
}

// nestedString reads raw[section][key] defensively; config.yaml nests
// platformA/platformB/storage as maps, but a malformed file might have
// flattened or missing sections.
func nestedString(raw map[string]any, section, key string) string {
	sec, ok := raw[section].(map[string]any)
	if !ok {
		return ""
	}
	val, _ := sec[key].(string)
	return val
}

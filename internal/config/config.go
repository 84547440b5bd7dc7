// Package config loads the engine's settings from config.yaml (or a .toml
// alternate) and environment variables, the latter taking precedence.
// Command-line flags are not layered in.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config is the fully resolved, validated configuration for one sync engine
// instance. It corresponds to the "Configuration" keys in the external
// interfaces: platformA.*, platformB.*, categoryKeys, polling.*,
// storage.connectionString.
type Config struct {
	PlatformA PlatformConfig
	PlatformB PlatformConfig

	CategoryKeys []string

	Polling PollingConfig

	StorageConnectionString string

	Observability ObservabilityConfig
}

// PlatformConfig holds the connection details for one side of the sync.
// PublicURL is used when composing Source: backlinks that point at this
// platform; it may differ from BaseURL (e.g. a reverse proxy).
type PlatformConfig struct {
	BaseURL         string
	PublicURL       string
	APIKey          string // platformA.apiKey
	Token           string // platformB.token
	CustomFieldName string // platformA.customFieldName, default "Gitlab Repo"
}

// PollingConfig controls the poll driver's cadence (spec §4.8, §6).
type PollingConfig struct {
	Enabled  bool
	Interval time.Duration
	Jitter   time.Duration
}

// ObservabilityConfig controls where internal/observability sends spans and
// counters: the stdout exporters always run, and OTLPEndpoint additionally
// sends the counters (not the spans) over OTLP/HTTP when set.
type ObservabilityConfig struct {
	OTLPEndpoint string // empty => stdout exporter only
}

const (
	defaultCustomFieldName  = "Gitlab Repo"
	defaultPollingInterval  = 60 * time.Second
	defaultPollingJitter    = 5 * time.Second
	minPollingInterval      = 5 * time.Second
	envPrefix               = "RGSYNC"
)

// bootstrapKeys are read from config.yaml directly (see LoadBootstrap),
// before viper and its env/flag layers are wired up, the way the teacher's
// YamlOnlyKeys allowlist separates keys needed before the store opens from
// everything else.
var bootstrapKeys = map[string]bool{
	"storage.connectionstring": true,
	"platforma.baseurl":        true,
	"platformb.baseurl":        true,
}

// IsBootstrapKey reports whether key must be resolvable before storage opens.
func IsBootstrapKey(key string) bool {
	return bootstrapKeys[strings.ToLower(key)]
}

// Load builds its own viper instance layering the config file at
// configPath under RGSYNC_*-prefixed environment variables, and decodes the
// result into a Config. No flags are bound to that instance.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("platforma.customfieldname", defaultCustomFieldName)
	v.SetDefault("polling.enabled", true)
	v.SetDefault("polling.intervalseconds", int(defaultPollingInterval.Seconds()))
	v.SetDefault("polling.jitterseconds", int(defaultPollingJitter.Seconds()))

	if strings.EqualFold(filepath.Ext(configPath), ".toml") {
		if err := mergeTOMLConfig(v, configPath); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", configPath, err)
			}
		}
	}

	cfg := &Config{
		PlatformA: PlatformConfig{
			BaseURL:         v.GetString("platforma.baseurl"),
			PublicURL:       v.GetString("platforma.publicurl"),
			APIKey:          v.GetString("platforma.apikey"),
			CustomFieldName: v.GetString("platforma.customfieldname"),
		},
		PlatformB: PlatformConfig{
			BaseURL:   v.GetString("platformb.baseurl"),
			PublicURL: v.GetString("platformb.publicurl"),
			Token:     v.GetString("platformb.token"),
		},
		CategoryKeys: v.GetStringSlice("categorykeys"),
		Polling: PollingConfig{
			Enabled:  v.GetBool("polling.enabled"),
			Interval: time.Duration(v.GetInt("polling.intervalseconds")) * time.Second,
			Jitter:   time.Duration(v.GetInt("polling.jitterseconds")) * time.Second,
		},
		StorageConnectionString: v.GetString("storage.connectionstring"),
		Observability: ObservabilityConfig{
			OTLPEndpoint: v.GetString("observability.otlpendpoint"),
		},
	}

	if cfg.PlatformA.PublicURL == "" {
		cfg.PlatformA.PublicURL = cfg.PlatformA.BaseURL
	}
	if cfg.PlatformB.PublicURL == "" {
		cfg.PlatformB.PublicURL = cfg.PlatformB.BaseURL
	}

	return cfg, cfg.Validate()
}

// mergeTOMLConfig decodes a TOML config file with BurntSushi/toml, the
// format operators may pass via --config=*.toml instead of config.yaml, and
// layers the result into v exactly as v.ReadInConfig would its own format.
func mergeTOMLConfig(v *viper.Viper, configPath string) error {
	var raw map[string]any
	if _, err := toml.DecodeFile(configPath, &raw); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read toml config %s: %w", configPath, err)
	}
	if err := v.MergeConfigMap(raw); err != nil {
		return fmt.Errorf("merge toml config %s: %w", configPath, err)
	}
	return nil
}

// Validate enforces the required-field and bound constraints from SPEC_FULL §6.
func (c *Config) Validate() error {
	if c.PlatformA.BaseURL == "" {
		return fmt.Errorf("config: platformA.baseUrl is required")
	}
	if c.PlatformA.APIKey == "" {
		return fmt.Errorf("config: platformA.apiKey is required")
	}
	if c.PlatformB.BaseURL == "" {
		return fmt.Errorf("config: platformB.baseUrl is required")
	}
	if c.PlatformB.Token == "" {
		return fmt.Errorf("config: platformB.token is required")
	}
	if len(c.CategoryKeys) == 0 {
		return fmt.Errorf("config: categoryKeys must be non-empty")
	}
	if c.StorageConnectionString == "" {
		return fmt.Errorf("config: storage.connectionString is required")
	}
	if c.Polling.Interval < minPollingInterval {
		return fmt.Errorf("config: polling.intervalSeconds must be >= %d", int(minPollingInterval.Seconds()))
	}
	if c.Polling.Jitter < 0 {
		return fmt.Errorf("config: polling.jitterSeconds must be >= 0")
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devinsights/scm-normalizer/internal/providers"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

var validStoreBackends = []string{"memory", "redis", "postgres"}

// Config is the root application configuration.
type Config struct {
	Server       ServerConfig
	Integrations []IntegrationConfig
	Store        StoreConfig
	Backfill     BackfillConfig
	Health       HealthConfig
	Telemetry    TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
}

// IntegrationConfig configures one source-control integration: which
// provider adapter handles its payloads and the normalization context the
// adapter needs.
type IntegrationConfig struct {
	ID      string
	Kind    providers.Kind
	RepoID  string
	Project string
	// ReviewSplit surfaces approve+comment reviews as two events for
	// providers with a direct review list.
	ReviewSplit bool
	// WorkitemPattern overrides the default numeric work-item pattern.
	WorkitemPattern string
	// DepotMapping maps depot path prefixes to logical repo ids; only the
	// path-based provider uses it.
	DepotMapping       []DepotMappingEntry
	DepotCaseSensitive bool
}

// DepotMappingEntry is one (path prefix, repo id) pair.
type DepotMappingEntry struct {
	PathPrefix string `yaml:"path_prefix"`
	RepoID     string `yaml:"repo_id"`
}

// StoreConfig configures canonical record storage.
type StoreConfig struct {
	Backend            string
	RedisMode          string
	RedisAddr          string
	RedisMasterSet     string
	RedisSentinelAddrs []string
	RedisPassword      string
	RedisDB            int
	PostgresDSN        string
	Retention          time.Duration
}

// BackfillConfig configures the GitHub App backfill client that replays
// historical repository data through the normalizer.
type BackfillConfig struct {
	Enabled        bool
	IntegrationID  string
	APIBaseURL     string
	Org            string
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	Repos          []string
	Window         time.Duration
	RequestTimeout time.Duration
}

// HealthConfig configures health probe behavior.
type HealthConfig struct {
	StoreProbeInterval time.Duration
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELExporterEndpoint string
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}

	if len(c.Integrations) == 0 {
		errs = append(errs, "integrations must contain at least one integration")
	}

	seenIDs := make(map[string]struct{}, len(c.Integrations))
	for i, integration := range c.Integrations {
		prefix := fmt.Sprintf("integrations[%d]", i)
		if integration.ID == "" {
			errs = append(errs, prefix+".id is required")
		}
		if _, err := providers.ParseKind(string(integration.Kind)); err != nil {
			errs = append(errs, prefix+".kind must be one of "+kindList())
		}
		if integration.WorkitemPattern != "" {
			if _, err := regexp.Compile(integration.WorkitemPattern); err != nil {
				errs = append(errs, prefix+".workitem_pattern is not a valid regexp: "+err.Error())
			}
		}
		if integration.Kind == providers.KindHelix && len(integration.DepotMapping) == 0 {
			errs = append(errs, prefix+".depot_mapping is required for helix integrations")
		}
		for j, entry := range integration.DepotMapping {
			if entry.PathPrefix == "" || entry.RepoID == "" {
				errs = append(errs, fmt.Sprintf("%s.depot_mapping[%d] needs both path_prefix and repo_id", prefix, j))
			}
		}
		if _, ok := seenIDs[integration.ID]; ok {
			errs = append(errs, "integrations contains duplicate id: "+integration.ID)
		}
		seenIDs[integration.ID] = struct{}{}
	}

	if !slices.Contains(validStoreBackends, c.Store.Backend) {
		errs = append(errs, "store.backend must be one of memory|redis|postgres")
	}
	if c.Store.Backend == "redis" {
		if c.Store.RedisMode != "standalone" && c.Store.RedisMode != "sentinel" {
			errs = append(errs, "store.redis_mode must be standalone or sentinel")
		}
		if c.Store.RedisMode == "sentinel" && len(c.Store.RedisSentinelAddrs) == 0 {
			errs = append(errs, "store.redis_sentinel_addrs is required when store.redis_mode=sentinel")
		}
	}
	if c.Store.Backend == "postgres" && c.Store.PostgresDSN == "" {
		errs = append(errs, "store.postgres_dsn is required when store.backend=postgres")
	}

	if c.Backfill.Enabled {
		if c.Backfill.IntegrationID == "" {
			errs = append(errs, "backfill.integration_id is required when backfill.enabled=true")
		} else if _, ok := seenIDs[c.Backfill.IntegrationID]; !ok {
			errs = append(errs, "backfill.integration_id does not name a configured integration")
		}
		if c.Backfill.Org == "" {
			errs = append(errs, "backfill.org is required when backfill.enabled=true")
		}
		if c.Backfill.AppID <= 0 {
			errs = append(errs, "backfill.app_id must be > 0 when backfill.enabled=true")
		}
		if c.Backfill.InstallationID <= 0 {
			errs = append(errs, "backfill.installation_id must be > 0 when backfill.enabled=true")
		}
		if c.Backfill.PrivateKeyPath == "" {
			errs = append(errs, "backfill.private_key_path is required when backfill.enabled=true")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Integration finds a configured integration by id.
func (c *Config) Integration(id string) (IntegrationConfig, bool) {
	for _, integration := range c.Integrations {
		if integration.ID == id {
			return integration, true
		}
	}
	return IntegrationConfig{}, false
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.RedisMode == "" {
		cfg.Store.RedisMode = "standalone"
	}
	if cfg.Backfill.Window == 0 {
		cfg.Backfill.Window = 30 * 24 * time.Hour
	}
	if cfg.Backfill.RequestTimeout == 0 {
		cfg.Backfill.RequestTimeout = 30 * time.Second
	}
	if cfg.Health.StoreProbeInterval == 0 {
		cfg.Health.StoreProbeInterval = 30 * time.Second
	}
}

func kindList() string {
	kinds := providers.Kinds()
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, string(kind))
	}
	return strings.Join(names, "|")
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server       ServerConfig     `yaml:"server"`
	Integrations []rawIntegration `yaml:"integrations"`
	Store        rawStore         `yaml:"store"`
	Backfill     rawBackfill      `yaml:"backfill"`
	Health       rawHealth        `yaml:"health"`
	Telemetry    rawTelemetry     `yaml:"telemetry"`
}

type rawIntegration struct {
	ID                 string              `yaml:"id"`
	Kind               string              `yaml:"kind"`
	RepoID             string              `yaml:"repo_id"`
	Project            string              `yaml:"project"`
	ReviewSplit        bool                `yaml:"review_split"`
	WorkitemPattern    string              `yaml:"workitem_pattern"`
	DepotMapping       []DepotMappingEntry `yaml:"depot_mapping"`
	DepotCaseSensitive bool                `yaml:"depot_case_sensitive"`
}

type rawStore struct {
	Backend            string   `yaml:"backend"`
	RedisMode          string   `yaml:"redis_mode"`
	RedisAddr          string   `yaml:"redis_addr"`
	RedisMasterSet     string   `yaml:"redis_master_set"`
	RedisSentinelAddrs []string `yaml:"redis_sentinel_addrs"`
	RedisPassword      string   `yaml:"redis_password"`
	RedisDB            int      `yaml:"redis_db"`
	PostgresDSN        string   `yaml:"postgres_dsn"`
	Retention          duration `yaml:"retention"`
}

type rawBackfill struct {
	Enabled        bool     `yaml:"enabled"`
	IntegrationID  string   `yaml:"integration_id"`
	APIBaseURL     string   `yaml:"api_base_url"`
	Org            string   `yaml:"org"`
	AppID          int64    `yaml:"app_id"`
	InstallationID int64    `yaml:"installation_id"`
	PrivateKeyPath string   `yaml:"private_key_path"`
	Repos          []string `yaml:"repos"`
	Window         duration `yaml:"window"`
	RequestTimeout duration `yaml:"request_timeout"`
}

type rawHealth struct {
	StoreProbeInterval duration `yaml:"store_probe_interval"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELExporterEndpoint string  `yaml:"otel_exporter_otlp_endpoint"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	cfg := &Config{
		Server:       r.Server,
		Integrations: make([]IntegrationConfig, 0, len(r.Integrations)),
		Store: StoreConfig{
			Backend:            r.Store.Backend,
			RedisMode:          r.Store.RedisMode,
			RedisAddr:          r.Store.RedisAddr,
			RedisMasterSet:     r.Store.RedisMasterSet,
			RedisSentinelAddrs: r.Store.RedisSentinelAddrs,
			RedisPassword:      r.Store.RedisPassword,
			RedisDB:            r.Store.RedisDB,
			PostgresDSN:        r.Store.PostgresDSN,
			Retention:          r.Store.Retention.Duration,
		},
		Backfill: BackfillConfig{
			Enabled:        r.Backfill.Enabled,
			IntegrationID:  r.Backfill.IntegrationID,
			APIBaseURL:     r.Backfill.APIBaseURL,
			Org:            r.Backfill.Org,
			AppID:          r.Backfill.AppID,
			InstallationID: r.Backfill.InstallationID,
			PrivateKeyPath: r.Backfill.PrivateKeyPath,
			Repos:          r.Backfill.Repos,
			Window:         r.Backfill.Window.Duration,
			RequestTimeout: r.Backfill.RequestTimeout.Duration,
		},
		Health: HealthConfig{
			StoreProbeInterval: r.Health.StoreProbeInterval.Duration,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELExporterEndpoint: r.Telemetry.OTELExporterEndpoint,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}

	for _, integration := range r.Integrations {
		cfg.Integrations = append(cfg.Integrations, IntegrationConfig{
			ID:                 integration.ID,
			Kind:               providers.Kind(integration.Kind),
			RepoID:             integration.RepoID,
			Project:            integration.Project,
			ReviewSplit:        integration.ReviewSplit,
			WorkitemPattern:    integration.WorkitemPattern,
			DepotMapping:       integration.DepotMapping,
			DepotCaseSensitive: integration.DepotCaseSensitive,
		})
	}

	return cfg
}

package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"microstructure-cache/src/helpers"
	"microstructure-cache/src/models"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "MCC_"

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// envOverrides are the settings that may come from the environment or a .env file.
type envOverrides struct {
	LogLevel           string   `env:"LOG_LEVEL"`
	DBType             string   `env:"DB_TYPE"`
	DBPath             string   `env:"DB_PATH"`
	DBConnectionString string   `env:"DB_CONNECTION_STRING"`
	RedisAddr          string   `env:"REDIS_ADDR"`
	RedisPassword      string   `env:"REDIS_PASSWORD"`
	ProviderType       string   `env:"PROVIDER_TYPE"`
	ProviderBaseURL    string   `env:"PROVIDER_BASE_URL"`
	ProviderAPIKey     string   `env:"PROVIDER_API_KEY"`
	HTTPPort           int      `env:"HTTP_PORT"`
	GRPCPort           int      `env:"GRPC_PORT"`
	Symbols            []string `env:"SYMBOLS" envSeparator:","`
}

// -----------------------------------------------------------------------------

// NewConfig loads the YAML file, applies .env and MCC_* environment
// overrides, fills defaults and validates the result.
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, helpers.NewConfigurationError(fmt.Sprintf("failed to read config file '%s'", configPath), err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, helpers.NewConfigurationError("failed to parse config from YAML", err)
	}

	config := &Config{MConfig: &modelConfig}

	// 3. Environment overrides (.env is optional)
	_ = godotenv.Load()
	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	// 4. Defaults and validation
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Default returns a configuration made of defaults only. It has no symbols.
func Default() *Config {
	c := &Config{MConfig: &models.MConfig{}}
	c.ApplyDefaults()
	return c
}

// -----------------------------------------------------------------------------

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: envPrefix}); err != nil {
		return helpers.NewConfigurationError("failed to parse environment overrides", err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&c.LogLevel, o.LogLevel)
	setString(&c.Storage.DBType, o.DBType)
	setString(&c.Storage.DBPath, o.DBPath)
	setString(&c.Storage.DBConnectionString, o.DBConnectionString)
	setString(&c.Storage.RedisAddr, o.RedisAddr)
	setString(&c.Storage.RedisPassword, o.RedisPassword)
	setString(&c.Provider.Type, o.ProviderType)
	setString(&c.Provider.BaseURL, o.ProviderBaseURL)
	setString(&c.Provider.APIKey, o.ProviderAPIKey)

	if o.HTTPPort > 0 {
		c.Port = o.HTTPPort
	}
	if o.GRPCPort > 0 {
		c.GrpcPort = o.GRPCPort
	}
	if len(o.Symbols) > 0 {
		c.Generator.Symbols = o.Symbols
	}
	return nil
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "microstructure-cache"
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.GrpcHost == "" {
		c.GrpcHost = c.Host
	}
	if c.GrpcPort == 0 {
		c.GrpcPort = 50051
	}

	// Storage
	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "data/metrics_cache.db"
	}
	if c.Storage.BusyTimeoutMs == 0 {
		c.Storage.BusyTimeoutMs = 5000
	}
	if c.Storage.WriteRetries == 0 {
		c.Storage.WriteRetries = 5
	}
	if c.Storage.RedisKeyPrefix == "" {
		c.Storage.RedisKeyPrefix = "mcc:"
	}

	// Network
	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 10
	}
	if c.Network.ProxyCooldownSeconds == 0 {
		c.Network.ProxyCooldownSeconds = 30
	}

	// Provider
	if c.Provider.Type == "" {
		c.Provider.Type = "synthetic"
	}
	if c.Provider.MaxTicksPerCall == 0 {
		c.Provider.MaxTicksPerCall = 10000
	}
	if c.Provider.TicksPerHour == 0 {
		c.Provider.TicksPerHour = 3600
	}
	if c.Provider.CallTimeoutSeconds == 0 {
		c.Provider.CallTimeoutSeconds = 30
	}

	// Cache
	if c.Cache.MemoryTTLSeconds == 0 {
		c.Cache.MemoryTTLSeconds = 60
	}
	if c.Cache.RetentionHours == 0 {
		c.Cache.RetentionHours = 24
	}
	if c.Cache.CleanupIntervalSeconds == 0 {
		c.Cache.CleanupIntervalSeconds = 600
	}

	// Generator
	if c.Generator.UpdateIntervalSeconds == 0 {
		c.Generator.UpdateIntervalSeconds = 60
	}
	if len(c.Generator.Windows) == 0 {
		c.Generator.Windows = []models.MWindowConfig{
			{Name: "1m", Minutes: 1},
			{Name: "5m", Minutes: 5},
			{Name: "15m", Minutes: 15},
			{Name: "1h", Minutes: 60},
		}
	}
	if c.Generator.BaselineHours == 0 {
		c.Generator.BaselineHours = 24
	}
	if c.Generator.BaselineRefreshSeconds == 0 {
		c.Generator.BaselineRefreshSeconds = 3600
	}
	if c.Generator.BaselineStartDelaySeconds == 0 {
		c.Generator.BaselineStartDelaySeconds = 5
	}
	if c.Generator.Workers == 0 {
		c.Generator.Workers = 4
	}
	if c.Generator.StopGraceSeconds == 0 {
		c.Generator.StopGraceSeconds = 3
	}

	// Thresholds
	d := models.DefaultThresholds()
	t := &c.Thresholds.Default
	if t.AbsorptionVolumeMultiplier == 0 {
		t.AbsorptionVolumeMultiplier = d.AbsorptionVolumeMultiplier
	}
	if t.AbsorptionPriceTolerance == 0 {
		t.AbsorptionPriceTolerance = d.AbsorptionPriceTolerance
	}
	if t.AbsorptionBinSeconds == 0 {
		t.AbsorptionBinSeconds = d.AbsorptionBinSeconds
	}
	if t.AbsorptionTopN == 0 {
		t.AbsorptionTopN = d.AbsorptionTopN
	}
	if t.VoidSpreadMultiplier == 0 {
		t.VoidSpreadMultiplier = d.VoidSpreadMultiplier
	}
	if t.CVDSlopeThreshold == 0 {
		t.CVDSlopeThreshold = d.CVDSlopeThreshold
	}
	if t.CVDSamplePoints == 0 {
		t.CVDSamplePoints = d.CVDSamplePoints
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return helpers.NewConfigurationError(fmt.Sprintf(format, args...), nil)
	}

	if c.Name == "" {
		return fail("application name cannot be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fail("invalid server port number: %d", c.Port)
	}
	if c.GrpcPort < 0 || c.GrpcPort > 65535 {
		return fail("invalid grpc port number: %d", c.GrpcPort)
	}

	// Storage
	switch strings.ToLower(c.Storage.DBType) {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fail("database path cannot be empty for sqlite")
		}
	case "postgres", "postgresql":
		if c.Storage.DBConnectionString == "" {
			return fail("database connection string cannot be empty for postgres")
		}
	default:
		return fail("unsupported database type %q", c.Storage.DBType)
	}

	// Network
	if c.Network.RequestTimeout <= 0 {
		return fail("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fail("max retries cannot be negative")
	}

	// Provider
	switch strings.ToLower(c.Provider.Type) {
	case "synthetic":
	case "http", "httpfeed":
		if c.Provider.BaseURL == "" {
			return fail("provider base_url cannot be empty for the http provider")
		}
	default:
		return fail("unsupported provider type %q", c.Provider.Type)
	}
	if c.Provider.MaxTicksPerCall < 0 {
		return fail("max ticks per call cannot be negative")
	}
	if c.Provider.TicksPerHour <= 0 {
		return fail("ticks per hour must be greater than 0")
	}
	for sym, v := range c.Provider.SymbolTicksPerHour {
		if v <= 0 {
			return fail("ticks per hour for %s must be greater than 0", sym)
		}
	}

	// Cache
	if c.Cache.MemoryTTLSeconds <= 0 {
		return fail("memory ttl must be greater than 0")
	}
	if c.Cache.RetentionHours <= 0 {
		return fail("retention hours must be greater than 0")
	}

	// Generator
	if len(c.Generator.Symbols) == 0 {
		return fail("at least one symbol must be configured")
	}
	for i, s := range c.Generator.Symbols {
		if strings.TrimSpace(s) == "" {
			return fail("symbol %d cannot be empty", i)
		}
	}
	if c.Generator.UpdateIntervalSeconds <= 0 {
		return fail("update interval must be greater than 0")
	}
	seen := make(map[string]bool)
	for i, w := range c.Generator.Windows {
		if w.Name == "" {
			return fail("window %d must have a name", i)
		}
		if w.Minutes <= 0 {
			return fail("window '%s' must be at least one minute", w.Name)
		}
		if seen[w.Name] {
			return fail("duplicate window name '%s'", w.Name)
		}
		seen[w.Name] = true
	}
	if c.Generator.BaselineHours <= 0 {
		return fail("baseline hours must be greater than 0")
	}
	if c.Generator.Workers <= 0 {
		return fail("workers must be greater than 0")
	}

	// Sessions
	for _, s := range c.Sessions {
		if s.Name == "" {
			return fail("session must have a name")
		}
		if s.StartHour < 0 || s.StartHour > 23 || s.EndHour < 0 || s.EndHour > 24 || s.StartHour == s.EndHour {
			return fail("invalid hours for session '%s': %d-%d", s.Name, s.StartHour, s.EndHour)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}

// -----------------------------------------------------------------------------

// WindowDurations maps window names to their durations.
func (c *Config) WindowDurations() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.Generator.Windows))
	for _, w := range c.Generator.Windows {
		out[w.Name] = time.Duration(w.Minutes) * time.Minute
	}
	return out
}

// -----------------------------------------------------------------------------

// LargestWindow returns the longest configured window duration.
func (c *Config) LargestWindow() time.Duration {
	var largest time.Duration
	for _, d := range c.WindowDurations() {
		if d > largest {
			largest = d
		}
	}
	return largest
}

// -----------------------------------------------------------------------------

// SessionAt returns the first configured session containing t (UTC hours),
// or "" when none does.
func (c *Config) SessionAt(t time.Time) string {
	hour := t.UTC().Hour()
	for _, s := range c.Sessions {
		if s.StartHour < s.EndHour {
			if hour >= s.StartHour && hour < s.EndHour {
				return s.Name
			}
		} else if hour >= s.StartHour || hour < s.EndHour {
			return s.Name
		}
	}
	return ""
}

// -----------------------------------------------------------------------------

// SymbolList returns the configured symbols, sorted and de-duplicated.
func (c *Config) SymbolList() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(c.Generator.Symbols))
	for _, s := range c.Generator.Symbols {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

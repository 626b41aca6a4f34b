package models

// MConfig Structure
type MConfig struct {
	Name       string            `yaml:"name"`
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	LogLevel   string            `yaml:"log_level"`
	GrpcHost   string            `yaml:"grpc_host"`
	GrpcPort   int               `yaml:"grpc_port"`
	Storage    MStorageConfig    `yaml:"storage"`
	Network    MNetworkConfig    `yaml:"network"`
	Provider   MProviderConfig   `yaml:"provider"`
	Cache      MCacheConfig      `yaml:"cache"`
	Generator  MGeneratorConfig  `yaml:"generator"`
	Thresholds MThresholdsConfig `yaml:"thresholds"`
	Sessions   []MSessionConfig  `yaml:"sessions"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	BusyTimeoutMs      int    `yaml:"busy_timeout_ms"`
	WriteRetries       int    `yaml:"write_retries"`
	RedisAddr          string `yaml:"redis_addr"`
	RedisPassword      string `yaml:"redis_password"`
	RedisDB            int    `yaml:"redis_db"`
	RedisKeyPrefix     string `yaml:"redis_key_prefix"`
}

type MNetworkConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Proxies        []string `yaml:"proxies"`
	RequestTimeout int      `yaml:"timeout"`
	MaxRetries     int      `yaml:"retries"`
	UserAgent      string   `yaml:"user_agent"`

	ProxyCooldownSeconds int `yaml:"proxy_cooldown_seconds"`
}

type MProviderConfig struct {
	Type               string             `yaml:"type"` // "http" or "synthetic"
	BaseURL            string             `yaml:"base_url"`
	APIKey             string             `yaml:"api_key"`
	MaxTicksPerCall    int                `yaml:"max_ticks_per_call"`
	TicksPerHour       float64            `yaml:"ticks_per_hour"`
	SymbolTicksPerHour map[string]float64 `yaml:"symbol_ticks_per_hour"`
	ChunkPauseMs       int                `yaml:"chunk_pause_ms"`
	CallTimeoutSeconds int                `yaml:"call_timeout_seconds"`
	SyntheticSeed      int64              `yaml:"synthetic_seed"`
}

type MCacheConfig struct {
	MemoryTTLSeconds       int `yaml:"memory_ttl_seconds"`
	RetentionHours         int `yaml:"retention_hours"`
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds"`
}

type MGeneratorConfig struct {
	Symbols                   []string          `yaml:"symbols"`
	UpdateIntervalSeconds     int               `yaml:"update_interval_seconds"`
	Windows                   []MWindowConfig   `yaml:"windows"`
	BaselineHours             int               `yaml:"baseline_hours"`
	BaselineRefreshSeconds    int               `yaml:"baseline_refresh_seconds"`
	BaselineStartDelaySeconds int               `yaml:"baseline_start_delay_seconds"`
	Workers                   int               `yaml:"workers"`
	StopGraceSeconds          int               `yaml:"stop_grace_seconds"`
	RespectMarketHours        bool              `yaml:"respect_market_hours"`
	SymbolCalendars           map[string]string `yaml:"symbol_calendars"`
}

// MWindowConfig names one rolling window.
type MWindowConfig struct {
	Name    string `yaml:"name"`
	Minutes int    `yaml:"minutes"`
}

type MThresholdsConfig struct {
	Default   MCalculatorThresholds `yaml:"default"`
	Overrides []MThresholdOverride  `yaml:"overrides"`
}

// MThresholdOverride applies to every calculation matching its non-empty keys.
// Nil fields leave the less specific value in place.
type MThresholdOverride struct {
	Symbol  string `yaml:"symbol"`
	Window  string `yaml:"window"`
	Session string `yaml:"session"`

	AbsorptionVolumeMultiplier *float64 `yaml:"absorption_volume_multiplier"`
	AbsorptionPriceTolerance   *float64 `yaml:"absorption_price_tolerance_pct"`
	AbsorptionBinSeconds       *int64   `yaml:"absorption_bin_seconds"`
	AbsorptionTopN             *int     `yaml:"absorption_top_n"`
	VoidSpreadMultiplier       *float64 `yaml:"void_spread_multiplier"`
	CVDSlopeThreshold          *float64 `yaml:"cvd_slope_threshold"`
	CVDSamplePoints            *int     `yaml:"cvd_sample_points"`
}

// MSessionConfig is a trading session expressed in UTC hours, [StartHour, EndHour).
// EndHour may be smaller than StartHour for sessions that wrap midnight.
type MSessionConfig struct {
	Name      string `yaml:"name"`
	StartHour int    `yaml:"start_hour"`
	EndHour   int    `yaml:"end_hour"`
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"microstructure-cache/src/helpers"
	"microstructure-cache/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: fx-cache
port: 9090
log_level: DEBUG
storage:
  db_type: sqlite
  db_path: /tmp/fx.db
provider:
  type: synthetic
  ticks_per_hour: 5000
  symbol_ticks_per_hour:
    BTCUSD: 40000
generator:
  symbols: [EURUSD, BTCUSD]
  update_interval_seconds: 30
  windows:
    - name: 5m
      minutes: 5
    - name: 30m
      minutes: 30
thresholds:
  default:
    void_spread_multiplier: 3.0
  overrides:
    - symbol: BTCUSD
      absorption_price_tolerance_pct: 0.2
sessions:
  - name: asia
    start_hour: 23
    end_hour: 7
  - name: london
    start_hour: 7
    end_hour: 13
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewConfig_LoadsYAMLAndDefaults(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "fx-cache", cfg.Name)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 50051, cfg.GrpcPort)
	assert.Equal(t, 40000.0, cfg.Provider.SymbolTicksPerHour["BTCUSD"])
	assert.Equal(t, 30, cfg.Generator.UpdateIntervalSeconds)
	assert.Equal(t, 60, cfg.Cache.MemoryTTLSeconds)
	assert.Equal(t, 24, cfg.Generator.BaselineHours)
	assert.Equal(t, 3.0, cfg.Thresholds.Default.VoidSpreadMultiplier)
	assert.Equal(t, models.DefaultThresholds().CVDSlopeThreshold, cfg.Thresholds.Default.CVDSlopeThreshold)

	assert.Equal(t, 30*time.Minute, cfg.LargestWindow())
	assert.Equal(t, map[string]time.Duration{"5m": 5 * time.Minute, "30m": 30 * time.Minute}, cfg.WindowDurations())
	assert.Equal(t, []string{"BTCUSD", "EURUSD"}, cfg.SymbolList())
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MCC_HTTP_PORT", "7070")
	t.Setenv("MCC_DB_PATH", "/var/lib/mcc/cache.db")
	t.Setenv("MCC_SYMBOLS", "XAUUSD,USDJPY")
	t.Setenv("MCC_PROVIDER_TYPE", "http")
	t.Setenv("MCC_PROVIDER_BASE_URL", "http://feed.local")

	cfg, err := NewConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "/var/lib/mcc/cache.db", cfg.Storage.DBPath)
	assert.Equal(t, []string{"XAUUSD", "USDJPY"}, cfg.Generator.Symbols)
	assert.Equal(t, "http", cfg.Provider.Type)
}

func TestNewConfig_Errors(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = NewConfig(writeConfig(t, "name: [unclosed"))
	require.Error(t, err)

	var cfgErr *helpers.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no symbols", mutate: func(c *Config) { c.Generator.Symbols = nil }, wantErr: "at least one symbol"},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: "port"},
		{name: "unknown db", mutate: func(c *Config) { c.Storage.DBType = "mongo" }, wantErr: "database type"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.DBType = "postgres" }, wantErr: "connection string"},
		{name: "http without url", mutate: func(c *Config) { c.Provider.Type = "http" }, wantErr: "base_url"},
		{
			name:    "duplicate window",
			mutate:  func(c *Config) { c.Generator.Windows = append(c.Generator.Windows, models.MWindowConfig{Name: "1m", Minutes: 2}) },
			wantErr: "duplicate window",
		},
		{
			name:    "bad session",
			mutate:  func(c *Config) { c.Sessions = []models.MSessionConfig{{Name: "x", StartHour: 5, EndHour: 5}} },
			wantErr: "invalid hours",
		},
		{name: "zero symbol tph", mutate: func(c *Config) { c.Provider.SymbolTicksPerHour = map[string]float64{"X": 0} }, wantErr: "ticks per hour"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			c.Generator.Symbols = []string{"EURUSD"}
			tc.mutate(c)

			err := c.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	c := Default()
	c.Generator.Symbols = []string{"EURUSD"}
	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, c.Save(path))

	loaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, c.Generator.Windows, loaded.Generator.Windows)
	assert.Equal(t, c.Thresholds.Default, loaded.Thresholds.Default)
}

func TestSessionAt(t *testing.T) {
	c := Default()
	c.Sessions = []models.MSessionConfig{
		{Name: "asia", StartHour: 23, EndHour: 7},
		{Name: "london", StartHour: 7, EndHour: 13},
		{Name: "newyork", StartHour: 13, EndHour: 21},
	}

	at := func(h int) time.Time { return time.Date(2025, 1, 6, h, 30, 0, 0, time.UTC) }
	assert.Equal(t, "asia", c.SessionAt(at(23)))
	assert.Equal(t, "asia", c.SessionAt(at(2)))
	assert.Equal(t, "london", c.SessionAt(at(7)))
	assert.Equal(t, "newyork", c.SessionAt(at(20)))
	assert.Equal(t, "", c.SessionAt(at(22)))

	// non-UTC input is converted first
	tokyo := time.FixedZone("JST", 9*3600)
	assert.Equal(t, "london", c.SessionAt(time.Date(2025, 1, 6, 17, 0, 0, 0, tokyo)))
}

// Package config loads the service configuration from YAML with
// environment overrides. Engine tunables are handed down as explicit
// values so the core never reads ambient process state.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Rotation  RotationConfig  `yaml:"rotation"`
	Watermark WatermarkConfig `yaml:"watermark"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServerConfig struct {
	Listen             string `yaml:"listen"`
	DBPath             string `yaml:"db_path"`
	AdminToken         string `yaml:"admin_token"`
	TokenSalt          string `yaml:"token_salt"`
	RequestTimeout     int    `yaml:"request_timeout_s"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

type RotationConfig struct {
	CycleMinutesMin       int   `yaml:"cycle_minutes_min"`
	CycleMinutesMax       int   `yaml:"cycle_minutes_max"`
	MaxBatchSize          int   `yaml:"max_batch_size"`
	DefaultClickThreshold int64 `yaml:"default_click_threshold"`
	ItemTimeoutMs         int   `yaml:"item_timeout_ms"`
	DedupWindowHours      int   `yaml:"dedup_window_hours"`
}

type WatermarkConfig struct {
	Min              int     `yaml:"min"`
	Max              int     `yaml:"max"`
	Default          int     `yaml:"default"`
	SafetyFactor     float64 `yaml:"safety_factor"`
	HistoryWindowHrs int     `yaml:"history_window_hours"`
}

type ProxyConfig struct {
	ExitIPs []string `yaml:"exit_ips"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
	LogSpans    bool    `yaml:"log_spans"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:             ":8080",
			DBPath:             "rotor.db",
			RequestTimeout:     10,
			RateLimitPerMinute: 120,
		},
		Rotation: RotationConfig{
			CycleMinutesMin:       10,
			CycleMinutesMax:       60,
			MaxBatchSize:          100,
			DefaultClickThreshold: 5,
			ItemTimeoutMs:         5000,
			DedupWindowHours:      24,
		},
		Watermark: WatermarkConfig{
			Min:              3,
			Max:              20,
			Default:          5,
			SafetyFactor:     2.0,
			HistoryWindowHrs: 24,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// Load reads config from file with env var overrides
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if listen := os.Getenv("ROTOR_LISTEN"); listen != "" {
		cfg.Server.Listen = listen
	}
	if dbPath := os.Getenv("ROTOR_DB_PATH"); dbPath != "" {
		cfg.Server.DBPath = dbPath
	}
	if token := os.Getenv("ROTOR_ADMIN_TOKEN"); token != "" {
		cfg.Server.AdminToken = token
	}
	if salt := os.Getenv("ROTOR_TOKEN_SALT"); salt != "" {
		cfg.Server.TokenSalt = salt
	}
	if level := os.Getenv("ROTOR_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return ErrMissingListen
	}
	if c.Server.DBPath == "" {
		return ErrMissingDBPath
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 10
	}
	if c.Server.RateLimitPerMinute < 0 {
		c.Server.RateLimitPerMinute = 0
	}
	if c.Rotation.CycleMinutesMin < 10 {
		c.Rotation.CycleMinutesMin = 10
	}
	if c.Rotation.CycleMinutesMax <= 0 || c.Rotation.CycleMinutesMax > 60 {
		c.Rotation.CycleMinutesMax = 60
	}
	if c.Rotation.CycleMinutesMax < c.Rotation.CycleMinutesMin {
		return ErrCycleRange
	}
	if c.Rotation.MaxBatchSize <= 0 || c.Rotation.MaxBatchSize > 100 {
		c.Rotation.MaxBatchSize = 100
	}
	if c.Rotation.DefaultClickThreshold <= 0 {
		c.Rotation.DefaultClickThreshold = 5
	}
	if c.Rotation.ItemTimeoutMs <= 0 {
		c.Rotation.ItemTimeoutMs = 5000
	}
	if c.Rotation.DedupWindowHours <= 0 {
		c.Rotation.DedupWindowHours = 24
	}
	if c.Watermark.Min <= 0 {
		c.Watermark.Min = 3
	}
	if c.Watermark.Max <= 0 {
		c.Watermark.Max = 20
	}
	if c.Watermark.Max < c.Watermark.Min {
		return ErrWatermarkBounds
	}
	if c.Watermark.Default < c.Watermark.Min {
		c.Watermark.Default = c.Watermark.Min
	}
	if c.Watermark.Default > c.Watermark.Max {
		c.Watermark.Default = c.Watermark.Max
	}
	if c.Watermark.SafetyFactor <= 0 {
		c.Watermark.SafetyFactor = 2.0
	}
	if c.Watermark.HistoryWindowHrs <= 0 {
		c.Watermark.HistoryWindowHrs = 24
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
	return nil
}

var (
	ErrMissingListen   = &Error{"listen address is required"}
	ErrMissingDBPath   = &Error{"database path is required"}
	ErrCycleRange      = &Error{"cycle_minutes_max must not be below cycle_minutes_min"}
	ErrWatermarkBounds = &Error{"watermark max must not be below watermark min"}
)

type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

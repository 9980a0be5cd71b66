package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures every setting needed to boot the console server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Assistant AssistantConfig `yaml:"assistant"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the console HTTP listener and the side listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// BackendConfig configures the log storage + analysis backend every session talks to.
type BackendConfig struct {
	BaseURL          string        `yaml:"baseURL"`
	Token            string        `yaml:"token"`
	LogsPath         string        `yaml:"logsPath"`
	SearchPath       string        `yaml:"searchPath"`
	AggregationsPath string        `yaml:"aggregationsPath"`
	StatsPath        string        `yaml:"statsPath"`
	AnalyzePath      string        `yaml:"analyzePath"`
	FeedbackPath     string        `yaml:"feedbackPath"`
	LoginPath        string        `yaml:"loginPath"`
	HealthPath       string        `yaml:"healthPath"`
	Timeout          time.Duration `yaml:"timeout"`
	HealthInterval   time.Duration `yaml:"healthInterval"`
}

// AssistantConfig bounds the conversational analysis sub-loop.
type AssistantConfig struct {
	AnalysisTimeout time.Duration `yaml:"analysisTimeout"`
	FeedbackTimeout time.Duration `yaml:"feedbackTimeout"`
}

// DashboardConfig fixes the pagination and chart parameters of the dashboard.
type DashboardConfig struct {
	PageSize            int           `yaml:"pageSize"`
	AggregationInterval string        `yaml:"aggregationInterval"`
	DrillRadius         time.Duration `yaml:"drillRadius"`
}

// SessionsConfig controls how long idle operator sessions survive.
type SessionsConfig struct {
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	ReapInterval time.Duration `yaml:"reapInterval"`
	MaxSessions  int           `yaml:"maxSessions"`
}

// CacheConfig controls caching of aggregation responses, in memory or in Valkey.
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	KeyPrefix       string        `yaml:"keyPrefix"`
	TLS             bool          `yaml:"tls"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	MaxRetries      int           `yaml:"maxRetries"`
	MaxEntries      int           `yaml:"maxEntries"`
	AggregationsTTL time.Duration `yaml:"aggregationsTTL"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

var validIntervals = map[string]struct{}{"1m": {}, "5m": {}, "1h": {}, "1d": {}}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("LOG_CONSOLE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the console cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return errors.New("backend.baseURL is required")
	}
	if c.Dashboard.PageSize < 1 || c.Dashboard.PageSize > 1000 {
		return fmt.Errorf("dashboard.pageSize must be within 1..1000, got %d", c.Dashboard.PageSize)
	}
	if _, ok := validIntervals[c.Dashboard.AggregationInterval]; !ok {
		return fmt.Errorf("dashboard.aggregationInterval must be one of 1m, 5m, 1h, 1d, got %q", c.Dashboard.AggregationInterval)
	}
	if c.Server.Address == "" {
		return errors.New("server.address is required")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GRPCAddress:     ":50052",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			GracefulTimeout: 10 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL:          "http://localhost:8000",
			LogsPath:         "/api/logs",
			SearchPath:       "/api/logs/search",
			AggregationsPath: "/api/logs/aggregations",
			StatsPath:        "/api/stats",
			AnalyzePath:      "/api/chat/analyze",
			FeedbackPath:     "/api/chat/feedback",
			LoginPath:        "/auth/login",
			HealthPath:       "/health",
			Timeout:          15 * time.Second,
			HealthInterval:   30 * time.Second,
		},
		Assistant: AssistantConfig{
			AnalysisTimeout: 2 * time.Minute,
			FeedbackTimeout: 10 * time.Second,
		},
		Dashboard: DashboardConfig{
			PageSize:            50,
			AggregationInterval: "1h",
			DrillRadius:         5 * time.Minute,
		},
		Sessions: SessionsConfig{
			IdleTimeout:  30 * time.Minute,
			ReapInterval: time.Minute,
			MaxSessions:  500,
		},
		Cache: CacheConfig{
			Enabled:         true,
			KeyPrefix:       "log-console:",
			DialTimeout:     2 * time.Second,
			ReadTimeout:     500 * time.Millisecond,
			WriteTimeout:    500 * time.Millisecond,
			MaxRetries:      2,
			MaxEntries:      256,
			AggregationsTTL: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Address, "LOG_CONSOLE_ADDRESS")
	setString(&cfg.Server.MetricsAddress, "LOG_CONSOLE_METRICS_ADDRESS")
	setString(&cfg.Server.GRPCAddress, "LOG_CONSOLE_GRPC_ADDRESS")
	if v := os.Getenv("LOG_CONSOLE_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	setString(&cfg.Backend.BaseURL, "LOG_CONSOLE_BACKEND_URL")
	setString(&cfg.Backend.Token, "LOG_CONSOLE_BACKEND_TOKEN")
	setDuration(&cfg.Backend.Timeout, "LOG_CONSOLE_BACKEND_TIMEOUT")
	setDuration(&cfg.Assistant.AnalysisTimeout, "LOG_CONSOLE_ANALYSIS_TIMEOUT")

	setInt(&cfg.Dashboard.PageSize, "LOG_CONSOLE_PAGE_SIZE")
	setString(&cfg.Dashboard.AggregationInterval, "LOG_CONSOLE_AGGREGATION_INTERVAL")
	setDuration(&cfg.Sessions.IdleTimeout, "LOG_CONSOLE_SESSION_IDLE_TIMEOUT")

	setBool(&cfg.Cache.Enabled, "LOG_CONSOLE_CACHE_ENABLED")
	setString(&cfg.Cache.Addr, "LOG_CONSOLE_CACHE_ADDR")
	setString(&cfg.Cache.Username, "LOG_CONSOLE_CACHE_USERNAME")
	setString(&cfg.Cache.Password, "LOG_CONSOLE_CACHE_PASSWORD")
	setInt(&cfg.Cache.DB, "LOG_CONSOLE_CACHE_DB")
	setBool(&cfg.Cache.TLS, "LOG_CONSOLE_CACHE_TLS")
	setDuration(&cfg.Cache.AggregationsTTL, "LOG_CONSOLE_CACHE_AGGREGATIONS_TTL")

	setString(&cfg.Logging.Level, "LOG_CONSOLE_LOG_LEVEL")
	if v := os.Getenv("LOG_CONSOLE_LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

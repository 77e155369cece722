package config

import "time"

// Config represents the complete mstrctl configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Filter  FilterConfig  `mapstructure:"filter"`
}

// ServerConfig holds the Intelligence Server connection details
type ServerConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	LoginMode string        `mapstructure:"login_mode"`
	ProjectID string        `mapstructure:"project_id"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// FetchConfig tunes chunked result downloads
type FetchConfig struct {
	Parallel        bool          `mapstructure:"parallel"`
	MinChunk        int           `mapstructure:"min_chunk"`
	SizeTargetBytes int           `mapstructure:"size_target_bytes"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	ChunkTimeout    time.Duration `mapstructure:"chunk_timeout"`
}

// RedisConfig enables the definition cache and the shared session store
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// FilterConfig contains named filter expressions usable with --filter @name.
// Viper lowercases preset names.
type FilterConfig struct {
	Presets map[string]string `mapstructure:"presets"`
}

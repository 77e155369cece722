// Package config loads the mstrctl configuration from YAML files and MSTR_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/mstr-client/pkg/client"
	"github.com/Sternrassler/mstr-client/pkg/filter"
	"github.com/Sternrassler/mstr-client/pkg/logging"
	"github.com/Sternrassler/mstr-client/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MSTR_SERVER_PASSWORD.
const EnvPrefix = "MSTR"

// Load loads the configuration. An explicit configPath must exist; without
// one the standard locations are searched and a missing file leaves the
// defaults and environment in effect.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".mstrctl"))
		}
		v.AddConfigPath("/etc/mstrctl/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.username", "")
	v.SetDefault("server.password", "")
	v.SetDefault("server.login_mode", "standard")
	v.SetDefault("server.project_id", "")
	v.SetDefault("server.timeout", "60s")
	v.SetDefault("server.user_agent", "mstrctl/1.0")

	def := pagination.DefaultConfig()
	v.SetDefault("fetch.parallel", true)
	v.SetDefault("fetch.min_chunk", def.MinChunk)
	v.SetDefault("fetch.size_target_bytes", def.SizeTargetBytes)
	v.SetDefault("fetch.max_concurrency", def.MaxConcurrency)
	v.SetDefault("fetch.chunk_timeout", def.ChunkTimeout)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", "10m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)

	v.SetDefault("metrics.addr", "")
}

var loginModes = map[string]client.LoginMode{
	"standard":  client.LoginModeStandard,
	"anonymous": client.LoginModeAnonymous,
	"ldap":      client.LoginModeLDAP,
}

func validate(cfg *Config) error {
	if cfg.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	mode, ok := loginModes[strings.ToLower(cfg.Server.LoginMode)]
	if !ok {
		return fmt.Errorf("invalid server.login_mode: %s (must be standard, anonymous or ldap)", cfg.Server.LoginMode)
	}
	if mode != client.LoginModeAnonymous && cfg.Server.Username == "" {
		return fmt.Errorf("server.username is required for %s login", cfg.Server.LoginMode)
	}

	if cfg.Fetch.MinChunk <= 0 {
		return fmt.Errorf("fetch.min_chunk must be positive")
	}
	if cfg.Fetch.SizeTargetBytes <= 0 {
		return fmt.Errorf("fetch.size_target_bytes must be positive")
	}
	if cfg.Fetch.MaxConcurrency <= 0 {
		return fmt.Errorf("fetch.max_concurrency must be positive")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	validFormats := map[string]bool{
		logging.FormatConsole: true,
		logging.FormatJSON:    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	for name, expression := range cfg.Filter.Presets {
		if _, err := filter.Compile(expression); err != nil {
			return fmt.Errorf("filter preset %q: %w", name, err)
		}
	}

	return nil
}

// ClientConfig builds the client configuration. rdb is attached when Redis
// is enabled and may be nil otherwise.
func (c *Config) ClientConfig(rdb *redis.Client) client.Config {
	cc := client.DefaultConfig(c.Server.BaseURL, c.Server.UserAgent)
	cc.Username = c.Server.Username
	cc.Password = c.Server.Password
	cc.LoginMode = loginModes[strings.ToLower(c.Server.LoginMode)]
	cc.ProjectID = c.Server.ProjectID
	if c.Server.Timeout > 0 {
		cc.Timeout = c.Server.Timeout
	}
	if c.Redis.Enabled {
		cc.Redis = rdb
		cc.CacheTTL = c.Redis.CacheTTL
	}
	return cc
}

// RedisClient opens the configured Redis connection, or returns nil when
// Redis is disabled.
func (c *Config) RedisClient() *redis.Client {
	if !c.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}

// Materializer returns the chunked download settings.
func (c *Config) Materializer() pagination.Config {
	mc := pagination.DefaultConfig()
	mc.MinChunk = c.Fetch.MinChunk
	mc.SizeTargetBytes = c.Fetch.SizeTargetBytes
	mc.MaxConcurrency = c.Fetch.MaxConcurrency
	mc.ChunkTimeout = c.Fetch.ChunkTimeout
	return mc
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.LogLevel(c.Logging.Level)
	lc.Format = c.Logging.Format
	lc.Color = c.Logging.Color
	return lc
}

// Preset compiles the named filter preset.
func (c *Config) Preset(name string) (*filter.Filter, error) {
	expression, ok := c.Filter.Presets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown filter preset %q", name)
	}
	return filter.Compile(expression)
}

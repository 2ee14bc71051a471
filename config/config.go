package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const defaultProxyTimeout = 15 * time.Second

// StorageConfig selects the blob backend holding distribution files. The
// metadata database is configured separately under DatabaseConfig.
type StorageConfig struct {
	Root    string   `mapstructure:"root"    validate:"required"`
	Backend string   `mapstructure:"backend" validate:"omitempty,oneof=filesystem s3 memory"`
	S3      S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	KeyID     string `mapstructure:"key_id"`
	AccessKey string `mapstructure:"access_key"`
	Timeout   string `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"     validate:"required"`
	Port     int    `mapstructure:"port"     validate:"required,min=1,max=65535"`
	Username string `mapstructure:"username" validate:"required"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" validate:"required"`
	SSLMode  string `mapstructure:"sslmode"`
}

type APIConfig struct {
	PathBase string `mapstructure:"path_base"`
	Listen   string `mapstructure:"listen" validate:"required"`
}

// AdminConfig holds the out-of-band administrator credential. The admin is
// never persisted as a principal row; its password is compared verbatim.
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Enabled  bool   `mapstructure:"enabled"`
}

type AuthConfig struct {
	Admin          AdminConfig `mapstructure:"admin"`
	AllowAnonymous bool        `mapstructure:"allow_anonymous"`
}

type FeatureConfig struct {
	Proxy bool `mapstructure:"proxy"`
	Auth  bool `mapstructure:"auth"`
}

// MirrorConfig describes one upstream registry. IndexURL and PackageURL are
// templates containing a {project_name} placeholder.
type MirrorConfig struct {
	Name       string `mapstructure:"name"`
	Priority   int    `mapstructure:"priority"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	IndexURL   string `mapstructure:"index_url"   validate:"required"`
	PackageURL string `mapstructure:"package_url"`
}

type AppConfig struct {
	LogLevel     string                  `mapstructure:"log_level"`
	Storage      StorageConfig           `mapstructure:"storage"  validate:"required"`
	Database     DatabaseConfig          `mapstructure:"database" validate:"required"`
	API          APIConfig               `mapstructure:"api"      validate:"required"`
	Auth         AuthConfig              `mapstructure:"auth"`
	Features     FeatureConfig           `mapstructure:"features"`
	Proxy        map[string]MirrorConfig `mapstructure:"proxy"    validate:"omitempty,dive"`
	ProxyTimeout string                  `mapstructure:"proxy_timeout"`
}

// Load reads the TOML config named by REGISTRY_CONFIG (default ./config.toml),
// applies REGISTRY_-prefixed environment overrides and validates the result.
func Load() (*AppConfig, error) {
	v := viper.New()

	path := os.Getenv("REGISTRY_CONFIG")
	if path == "" {
		path = "./config.toml"
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix("REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("storage.backend", "filesystem")
	v.SetDefault("api.path_base", "/")
	v.SetDefault("api.listen", ":8000")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("features.proxy", true)
	v.SetDefault("features.auth", true)
	v.SetDefault("auth.allow_anonymous", false)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Mirrors returns the configured upstreams in ascending priority order, or
// nothing when the proxy feature is disabled.
func (c *AppConfig) Mirrors() []MirrorConfig {
	if !c.Features.Proxy {
		return nil
	}

	mirrors := make([]MirrorConfig, 0, len(c.Proxy))
	for key, mirror := range c.Proxy {
		if mirror.Name == "" {
			mirror.Name = key
		}
		mirrors = append(mirrors, mirror)
	}
	sort.SliceStable(mirrors, func(i, j int) bool {
		return mirrors[i].Priority < mirrors[j].Priority
	})

	return mirrors
}

// MirrorTimeout bounds each upstream call made by the federator.
func (c *AppConfig) MirrorTimeout() time.Duration {
	if c.ProxyTimeout == "" {
		return defaultProxyTimeout
	}
	d, err := time.ParseDuration(c.ProxyTimeout)
	if err != nil || d <= 0 {
		return defaultProxyTimeout
	}

	return d
}

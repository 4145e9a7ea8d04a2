// Package config loads amari settings from defaults, an optional YAML file,
// and AMARI_* environment variables, in increasing order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"amari/internal/blob"
	"amari/internal/taxonomy"
)

// EnvPrefix is prepended to every environment override, with dots in the key
// replaced by underscores (storage.driver -> AMARI_STORAGE_DRIVER).
const EnvPrefix = "AMARI"

// Config is the fully resolved application configuration.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Cache    CacheConfig    `mapstructure:"cache"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Taxonomy TaxonomyConfig `mapstructure:"taxonomy"`
	Log      LogConfig      `mapstructure:"log"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// BlobConfig selects the export blob store.
type BlobConfig struct {
	Driver string   `mapstructure:"driver"`
	FSRoot string   `mapstructure:"fs_root"`
	S3     S3Config `mapstructure:"s3"`
}

// S3Config configures the S3 blob driver.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// CacheConfig selects the listing cache backend.
type CacheConfig struct {
	Driver    string        `mapstructure:"driver"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// TaxonomyConfig configures substitution behaviour.
type TaxonomyConfig struct {
	Implication string `mapstructure:"implication"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigFilePath, when set, must point to a readable YAML file.
	ConfigFilePath string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{Driver: "sqlite", SQLitePath: "amari.db", PostgresDSN: "postgres://localhost/amari?sslmode=disable"},
		Blob:    BlobConfig{Driver: string(blob.DriverFilesystem), FSRoot: "./blobdata", S3: S3Config{Region: "us-east-1"}},
		Cache:   CacheConfig{Driver: "memory", RedisAddr: "localhost:6379", TTL: 10 * time.Minute},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Taxonomy: TaxonomyConfig{
			Implication: string(taxonomy.DefaultPolicy),
		},
		Log: LogConfig{Level: "info"},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)
	v.SetDefault("blob.driver", d.Blob.Driver)
	v.SetDefault("blob.fs_root", d.Blob.FSRoot)
	v.SetDefault("blob.s3.bucket", d.Blob.S3.Bucket)
	v.SetDefault("blob.s3.region", d.Blob.S3.Region)
	v.SetDefault("blob.s3.endpoint", d.Blob.S3.Endpoint)
	v.SetDefault("blob.s3.path_style", d.Blob.S3.PathStyle)
	v.SetDefault("cache.driver", d.Cache.Driver)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("taxonomy.implication", d.Taxonomy.Implication)
	v.SetDefault("log.level", d.Log.Level)
}

// Load resolves configuration. It returns the config file path that was read,
// or "" when only defaults and environment were used.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""
	if opts.ConfigFilePath != "" {
		if _, err := os.Stat(opts.ConfigFilePath); err != nil {
			return nil, "", fmt.Errorf("config file not found: %s: %w", opts.ConfigFilePath, err)
		}
		v.SetConfigFile(opts.ConfigFilePath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("read config %s: %w", opts.ConfigFilePath, err)
		}
		resolvedPath = opts.ConfigFilePath
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolvedPath, nil
}

// Validate rejects unknown drivers and policies.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket: required for s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver))
	}
	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.driver: unknown driver %q", c.Cache.Driver))
	}
	if _, err := taxonomy.ParsePolicy(c.Taxonomy.Implication); err != nil {
		errs = append(errs, fmt.Errorf("taxonomy.implication: %w", err))
	}
	return errors.Join(errs...)
}

// Policy returns the configured implication policy.
func (c Config) Policy() taxonomy.Policy {
	p, err := taxonomy.ParsePolicy(c.Taxonomy.Implication)
	if err != nil {
		return taxonomy.DefaultPolicy
	}
	return p
}

// BlobStoreConfig translates the blob section for blob.Open.
func (c Config) BlobStoreConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:    c.Blob.S3.Bucket,
			Region:    c.Blob.S3.Region,
			Endpoint:  c.Blob.S3.Endpoint,
			PathStyle: c.Blob.S3.PathStyle,
		},
	}
}

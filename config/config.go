// Package config loads the console cache configuration from a file and the
// environment and builds the cache stack it describes.
package config

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/console"
	"github.com/unkn0wn-root/querycache/mutation"
)

// EnvPrefix prefixes environment overrides: QUERYCACHE_CACHE_DEFAULT_STALE_TIME=2m.
const EnvPrefix = "QUERYCACHE"

// keyDelim replaces viper's "." so rule kinds such as "booking.status" stay
// single keys.
const keyDelim = "::"

const (
	ProviderBigCache  = "bigcache"
	ProviderRistretto = "ristretto"
	ProviderRedis     = "redis"

	GenStoreLocal = "local"
	GenStoreRedis = "redis"

	LogZap    = "zap"
	LogLogrus = "logrus"
	LogSlog   = "slog"
	LogNone   = "none"
)

type Config struct {
	Namespace string         `mapstructure:"namespace" json:"namespace"`
	Provider  ProviderConfig `mapstructure:"provider" json:"provider"`
	GenStore  GenStoreConfig `mapstructure:"genstore" json:"genstore"`
	Cache     CacheConfig    `mapstructure:"cache" json:"cache"`
	// Rules are layered over console.DefaultRules().
	Rules mutation.Table `mapstructure:"rules" json:"rules"`
	API   APIConfig      `mapstructure:"api" json:"api"`
	Log   LogConfig      `mapstructure:"log" json:"log"`
}

type ProviderConfig struct {
	Kind      string          `mapstructure:"kind" json:"kind"`
	BigCache  BigCacheConfig  `mapstructure:"bigcache" json:"bigcache"`
	Ristretto RistrettoConfig `mapstructure:"ristretto" json:"ristretto"`
	Redis     RedisConfig     `mapstructure:"redis" json:"redis"`
}

type BigCacheConfig struct {
	Shards             int `mapstructure:"shards" json:"shards"`
	MaxEntriesInWindow int `mapstructure:"max_entries_in_window" json:"max_entries_in_window"`
	MaxEntrySize       int `mapstructure:"max_entry_size" json:"max_entry_size"`
	HardMaxCacheSizeMB int `mapstructure:"hard_max_cache_size_mb" json:"hard_max_cache_size_mb"`
}

type RistrettoConfig struct {
	NumCounters int64 `mapstructure:"num_counters" json:"num_counters"`
	MaxCost     int64 `mapstructure:"max_cost" json:"max_cost"`
	BufferItems int64 `mapstructure:"buffer_items" json:"buffer_items"`
}

// RedisConfig is shared by the redis provider and the redis gen store; both
// use one client when both are selected.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" json:"addr"`
	Password string `mapstructure:"password" json:"-"`
	DB       int    `mapstructure:"db" json:"db"`
}

type GenStoreConfig struct {
	Kind            string        `mapstructure:"kind" json:"kind"`
	TTL             time.Duration `mapstructure:"ttl" json:"ttl"` // redis only
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" json:"cleanup_interval"`
	Retention       time.Duration `mapstructure:"retention" json:"retention"`
}

type CacheConfig struct {
	DefaultStaleTime  time.Duration `mapstructure:"default_stale_time" json:"default_stale_time"`
	EntryTTL          time.Duration `mapstructure:"entry_ttl" json:"entry_ttl"`
	RevalidateWorkers int           `mapstructure:"revalidate_workers" json:"revalidate_workers"`
	Disabled          bool          `mapstructure:"disabled" json:"disabled"`
	// Codec is the payload encoding: json, cbor or msgpack.
	Codec codec.Format `mapstructure:"codec" json:"codec"`
	// MaxPayload rejects cached payloads above this many bytes; 0 => no limit.
	MaxPayload int `mapstructure:"max_payload" json:"max_payload"`
	// Staleness is layered over console.DefaultStaleness().
	Staleness map[string]time.Duration `mapstructure:"staleness" json:"staleness"`
}

type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url" json:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
	UserAgent string        `mapstructure:"user_agent" json:"user_agent"`
}

type LogConfig struct {
	Backend string `mapstructure:"backend" json:"backend"`
	Level   string `mapstructure:"level" json:"level"`
}

func newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelim))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelim, "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("namespace", "console")
	v.SetDefault("provider::kind", ProviderRistretto)
	v.SetDefault("provider::ristretto::num_counters", 100_000)
	v.SetDefault("provider::ristretto::max_cost", 64<<20)
	v.SetDefault("provider::ristretto::buffer_items", 64)
	v.SetDefault("provider::redis::addr", "")
	v.SetDefault("provider::redis::db", 0)
	v.SetDefault("genstore::kind", GenStoreLocal)
	v.SetDefault("genstore::ttl", time.Duration(0))
	v.SetDefault("genstore::cleanup_interval", time.Hour)
	v.SetDefault("genstore::retention", 30*24*time.Hour)
	v.SetDefault("cache::default_stale_time", time.Minute)
	v.SetDefault("cache::entry_ttl", 30*time.Minute)
	v.SetDefault("cache::revalidate_workers", 8)
	v.SetDefault("cache::disabled", false)
	v.SetDefault("cache::codec", string(codec.FormatJSON))
	v.SetDefault("cache::max_payload", 0)
	v.SetDefault("api::base_url", "")
	v.SetDefault("api::timeout", 15*time.Second)
	v.SetDefault("log::backend", LogZap)
	v.SetDefault("log::level", "info")
	return v
}

// Load reads the file at path (YAML, TOML or JSON by extension), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return decode(v)
}

// Read is Load for an in-memory document; format is "yaml", "toml" or "json".
func Read(r io.Reader, format string) (*Config, error) {
	v := newViper()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return decode(v)
}

// Defaults is the configuration with no file at all (environment still applies).
func Defaults() (*Config, error) {
	return Read(bytes.NewReader(nil), "yaml")
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Namespace, validation.Required),
		validation.Field(&c.Provider, validation.When(c.GenStore.Kind == GenStoreRedis, validation.By(func(any) error {
			return validation.Errors{"redis": redisRequired(c.Provider.Redis)}.Filter()
		}))),
		validation.Field(&c.GenStore),
		validation.Field(&c.Cache),
		validation.Field(&c.Rules),
		validation.Field(&c.API),
		validation.Field(&c.Log),
	)
}

func (p ProviderConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Kind, validation.Required, validation.In(ProviderBigCache, ProviderRistretto, ProviderRedis)),
		validation.Field(&p.Ristretto, validation.When(p.Kind == ProviderRistretto, validation.By(func(any) error {
			r := p.Ristretto
			return validation.ValidateStruct(&r,
				validation.Field(&r.NumCounters, validation.Required, validation.Min(int64(1))),
				validation.Field(&r.MaxCost, validation.Required, validation.Min(int64(1))),
				validation.Field(&r.BufferItems, validation.Required, validation.Min(int64(1))),
			)
		}))),
		validation.Field(&p.Redis, validation.When(p.Kind == ProviderRedis, validation.By(redisRequired))),
	)
}

func redisRequired(v any) error {
	r, _ := v.(RedisConfig)
	return validation.ValidateStruct(&r, validation.Field(&r.Addr, validation.Required))
}

func (g GenStoreConfig) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.Kind, validation.Required, validation.In(GenStoreLocal, GenStoreRedis)),
		validation.Field(&g.TTL, validation.Min(time.Duration(0))),
		validation.Field(&g.Retention, validation.Min(time.Duration(0))),
	)
}

func (cc CacheConfig) Validate() error {
	return validation.ValidateStruct(&cc,
		validation.Field(&cc.EntryTTL, validation.Min(time.Duration(0))),
		validation.Field(&cc.RevalidateWorkers, validation.Min(0), validation.Max(256)),
		validation.Field(&cc.Codec, validation.In(formats()...)),
		validation.Field(&cc.MaxPayload, validation.Min(0)),
		validation.Field(&cc.Staleness, validation.By(validKinds)),
	)
}

func formats() []any {
	out := make([]any, len(codec.Formats))
	for i, f := range codec.Formats {
		out[i] = f
	}
	return out
}

func validKinds(v any) error {
	m, _ := v.(map[string]time.Duration)
	errs := validation.Errors{}
	for kind := range m {
		if _, err := querycache.NewKey(kind, nil); err != nil {
			errs[kind] = err
		}
	}
	return errs.Filter()
}

func (a APIConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.BaseURL, is.URL),
		validation.Field(&a.Timeout, validation.Min(time.Duration(0))),
	)
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Backend, validation.In(LogZap, LogLogrus, LogSlog, LogNone)),
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
	)
}

// RuleTable is console.DefaultRules() with the configured rules on top.
func (c *Config) RuleTable() mutation.Table {
	return console.DefaultRules().Merge(c.Rules)
}

// Staleness is console.DefaultStaleness() with the configured windows on top.
func (c *Config) Staleness() map[string]time.Duration {
	out := console.DefaultStaleness()
	for kind, d := range c.Cache.Staleness {
		out[kind] = d
	}
	return out
}

package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/celokit/celo-reader/pkg/rpc"
)

type Config struct {
	Project string           `mapstructure:"project"`
	Network string           `mapstructure:"network"` // preset name, e.g. "celo-mainnet"
	Log     LogConfig        `mapstructure:"log"`
	Reader  ReaderConfig     `mapstructure:"reader"`
	Cache   CacheConfig      `mapstructure:"cache"`
	ABI     ABIStoreConfig   `mapstructure:"abi_store"`
	RPC     []rpc.NodeConfig `mapstructure:"rpc_nodes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

type ReaderConfig struct {
	// BatchSize caps calls per multicall chunk
	BatchSize int `mapstructure:"batch_size"`

	// RequestTimeout bounds one tool invocation end to end
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// SoftTimeout bounds the gather phase of aggregate reads so partial
	// results return before RequestTimeout expires
	SoftTimeout time.Duration `mapstructure:"soft_timeout"`
}

type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // memory, redis
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type ABIStoreConfig struct {
	Backend     string      `mapstructure:"backend"` // memory, redis, postgres
	PostgresDSN string      `mapstructure:"postgres_dsn"`
	TablePrefix string      `mapstructure:"table_prefix"`
	Redis       RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CELOREADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefaults builds a config without a file, for env-only deployments.
func LoadDefaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Network == "" {
		cfg.Network = "celo-mainnet"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Reader.BatchSize == 0 {
		cfg.Reader.BatchSize = 100
	}
	if cfg.Reader.RequestTimeout == 0 {
		cfg.Reader.RequestTimeout = 30 * time.Second
	}
	if cfg.Reader.SoftTimeout == 0 {
		cfg.Reader.SoftTimeout = 25 * time.Second
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.ABI.Backend == "" {
		cfg.ABI.Backend = "memory"
	}
}

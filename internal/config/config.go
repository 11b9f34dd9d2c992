package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Etcd      EtcdConfig      `mapstructure:"etcd"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

type ServerConfig struct {
	Environment    string   `mapstructure:"environment"`
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SeedDemoUsers  bool     `mapstructure:"seed_demo_users"`
}

// DatabaseConfig selects the gorm dialector: mysql, postgres or sqlite.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EtcdConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type WorkersConfig struct {
	OutboxInterval     time.Duration `mapstructure:"outbox_interval"`
	ReconcilerInterval time.Duration `mapstructure:"reconciler_interval"`
}

type StreamConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HubBufferSize     int           `mapstructure:"hub_buffer_size"`
}

type AuthConfig struct {
	SigningKey      string        `mapstructure:"signing_key"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
}

// RiskConfig configures the risk assessor. Provider is one of oracle, heuristic, static.
type RiskConfig struct {
	Provider    string        `mapstructure:"provider"`
	Endpoint    string        `mapstructure:"endpoint"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	StaticScore int           `mapstructure:"static_score"`
	Policy      RiskPolicy    `mapstructure:"policy"`
}

// RiskPolicy holds the numeric policy handed to the assessor. The gatekeeper never reads it.
type RiskPolicy struct {
	SensitiveKeywords  []string `mapstructure:"sensitive_keywords"`
	MitigationKeywords []string `mapstructure:"mitigation_keywords"`
	TrafficThreshold   int64    `mapstructure:"traffic_threshold"`
	TrafficBump        int      `mapstructure:"traffic_bump"`
	MitigationCredit   int      `mapstructure:"mitigation_credit"`
	ZeroTrafficCap     int      `mapstructure:"zero_traffic_cap"`
}

type TelemetryConfig struct {
	BlastRadiusWindow time.Duration `mapstructure:"blast_radius_window"`
}

// CacheConfig selects the read cache driver: none, memory or redis.
type CacheConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
	Prefix string        `mapstructure:"prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.seed_demo_users", true)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=safeflag port=5432 sslmode=disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("etcd.enabled", false)
	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.dial_timeout", 5*time.Second)

	v.SetDefault("workers.outbox_interval", 2*time.Second)
	v.SetDefault("workers.reconciler_interval", time.Minute)

	v.SetDefault("stream.heartbeat_interval", 15*time.Second)
	v.SetDefault("stream.hub_buffer_size", 512)

	v.SetDefault("auth.signing_key", "safeflag-dev-signing-key")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)

	v.SetDefault("ratelimit.requests_per_second", 5)

	v.SetDefault("risk.provider", "oracle")
	v.SetDefault("risk.endpoint", "https://api.groq.com/openai/v1/chat/completions")
	v.SetDefault("risk.model", "openai/gpt-oss-120b")
	v.SetDefault("risk.temperature", 0.1)
	v.SetDefault("risk.timeout", 10*time.Second)
	v.SetDefault("risk.static_score", 5)
	v.SetDefault("risk.policy.sensitive_keywords", []string{"payment", "database", "auth"})
	v.SetDefault("risk.policy.mitigation_keywords", []string{"circuit breaker", "alpha testing", "internal"})
	v.SetDefault("risk.policy.traffic_threshold", 1000)
	v.SetDefault("risk.policy.traffic_bump", 2)
	v.SetDefault("risk.policy.mitigation_credit", 3)
	v.SetDefault("risk.policy.zero_traffic_cap", 7)

	v.SetDefault("telemetry.blast_radius_window", 24*time.Hour)

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl", 10*time.Second)
	v.SetDefault("cache.prefix", "safeflag:cache:")
}

func Load() *Config {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("SAFEFLAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine, defaults and env cover everything
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

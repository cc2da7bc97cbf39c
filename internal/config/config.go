package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tag names used for endpoints, topics and session ids.
const (
	TagInsights  = "insights"
	TagAnalytics = "analytics"
	TagCustom    = "custom"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Reporter  ReporterConfig  `yaml:"reporter"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Projects  ProjectsConfig  `yaml:"projects"`
	Session   SessionConfig   `yaml:"session"`
	Pages     PagesConfig     `yaml:"pages"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Vitals    VitalsConfig    `yaml:"vitals"`
}

type ServerConfig struct {
	GRPCPort int `yaml:"grpc_port"`
	HTTPPort int `yaml:"http_port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type ReporterConfig struct {
	Transport string            `yaml:"transport"` // http or kafka
	Endpoints map[string]string `yaml:"endpoints"`
	Timeout   time.Duration     `yaml:"timeout"`
}

type KafkaConfig struct {
	Brokers       []string          `yaml:"brokers"`
	Topics        map[string]string `yaml:"topics"`
	ConsumerGroup string            `yaml:"consumer_group"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// ProjectsConfig maps page hosts to project keys for pages activated without one.
type ProjectsConfig struct {
	Sites    map[string]string `yaml:"sites"`
	CacheTTL time.Duration     `yaml:"cache_ttl"`
}

type SessionConfig struct {
	Store string        `yaml:"store"` // memory or redis
	TTL   time.Duration `yaml:"ttl"`
}

type PagesConfig struct {
	MaxPages int           `yaml:"max_pages"`
	IdleTTL  time.Duration `yaml:"idle_ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// VitalsConfig toggles individual extractors. All are enabled when none is.
type VitalsConfig struct {
	LCP        bool `yaml:"lcp"`
	FID        bool `yaml:"fid"`
	CLS        bool `yaml:"cls"`
	FCP        bool `yaml:"fcp"`
	Navigation bool `yaml:"navigation"`
}

// AnyEnabled reports whether at least one extractor is switched on.
func (v VitalsConfig) AnyEnabled() bool {
	return v.LCP || v.FID || v.CLS || v.FCP || v.Navigation
}

// AllVitals returns a config with every extractor enabled.
func AllVitals() VitalsConfig {
	return VitalsConfig{LCP: true, FID: true, CLS: true, FCP: true, Navigation: true}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML document after expanding environment variables and
// fills in defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	if cfg.Reporter.Transport == "" {
		cfg.Reporter.Transport = "http"
	}
	if cfg.Reporter.Timeout == 0 {
		cfg.Reporter.Timeout = 5 * time.Second
	}
	if cfg.Reporter.Endpoints == nil {
		cfg.Reporter.Endpoints = make(map[string]string)
	}
	defaultEndpoints := map[string]string{
		TagInsights:  "https://www.nanosights.dev/api/tags/insights",
		TagAnalytics: "https://www.nanosights.dev/api/tags/analytics",
		TagCustom:    "https://www.nanosights.dev/api/tags/custom",
	}
	for tag, url := range defaultEndpoints {
		if cfg.Reporter.Endpoints[tag] == "" {
			cfg.Reporter.Endpoints[tag] = url
		}
	}

	if cfg.Kafka.Topics == nil {
		cfg.Kafka.Topics = make(map[string]string)
	}
	defaultTopics := map[string]string{
		TagInsights:  "nanotags.insights",
		TagAnalytics: "nanotags.analytics",
		TagCustom:    "nanotags.custom",
		"signals":    "nanotags.signals",
	}
	for name, topic := range defaultTopics {
		if cfg.Kafka.Topics[name] == "" {
			cfg.Kafka.Topics[name] = topic
		}
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "nanotags-insights-agent"
	}

	if cfg.Projects.CacheTTL == 0 {
		cfg.Projects.CacheTTL = 5 * time.Minute
	}

	if cfg.Session.Store == "" {
		cfg.Session.Store = "memory"
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 30 * 24 * time.Hour
	}

	if cfg.Pages.MaxPages == 0 {
		cfg.Pages.MaxPages = 10000
	}
	if cfg.Pages.IdleTTL == 0 {
		cfg.Pages.IdleTTL = 30 * time.Minute
	}

	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 50
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 100
	}

	// Enable all extractors by default if not configured
	if !cfg.Vitals.AnyEnabled() {
		cfg.Vitals = AllVitals()
	}
}

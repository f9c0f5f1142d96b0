package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the gateway process, loaded from
// config.yaml (if present), environment variables (PLLM_GATEWAY_* prefix)
// and a local .env file for development.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Security   SecurityConfig   `mapstructure:"security"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	AdminPort        int           `mapstructure:"admin_port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdown time.Duration `mapstructure:"graceful_shutdown"`
	// UpstreamTimeout bounds a buffered (non-streaming) upstream dispatch.
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
	// StreamIdleTimeout bounds the gap between two chunks of a streaming
	// upstream response; the overall stream duration is not bounded.
	StreamIdleTimeout time.Duration `mapstructure:"stream_idle_timeout"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type AuthConfig struct {
	// APIKeySalt is mixed into every presented secret before hashing to
	// produce a credential fingerprint (spec: Credential Store).
	APIKeySalt string `mapstructure:"api_key_salt"`
	// AdminJWTSecret signs/validates tokens accepted by the admin API.
	AdminJWTSecret string `mapstructure:"admin_jwt_secret"`
	// CredentialCacheTTL bounds how long a positive credential lookup is
	// served from the in-memory cache before re-checking the store.
	CredentialCacheTTL time.Duration `mapstructure:"credential_cache_ttl"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerWindow int           `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`
}

type BudgetConfig struct {
	// SnapshotTTL is the cache lifetime of a budget evaluation snapshot.
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
	// DefaultWarnPercent / DefaultCriticalPercent seed new budgets lacking
	// explicit thresholds.
	DefaultWarnPercent     float64 `mapstructure:"default_warn_percent"`
	DefaultCriticalPercent float64 `mapstructure:"default_critical_percent"`
	// SettlementMaxRetries bounds the exponential-backoff retries of one
	// budget settlement; after the last one the error is returned to the
	// caller, which logs it. There is no separate retry queue.
	SettlementMaxRetries int `mapstructure:"settlement_max_retries"`
}

type SecurityConfig struct {
	// DefaultDetectionLevel is used for any tenant/agent without an
	// explicit AgentPolicy: monitor, warn, or enforce.
	DefaultDetectionLevel   string        `mapstructure:"default_detection_level"`
	AutoKillEnabled         bool          `mapstructure:"auto_kill_enabled"`
	AutoKillThreshold       float64       `mapstructure:"auto_kill_threshold"`
	SyncDetectorBudget      time.Duration `mapstructure:"sync_detector_budget"`
	TotalMiddlewareBudget   time.Duration `mapstructure:"total_middleware_budget"`
	AsyncQueueSize          int           `mapstructure:"async_queue_size"`
}

type ProvidersConfig struct {
	AnthropicAPIKey  string `mapstructure:"anthropic_api_key"`
	AnthropicBaseURL string `mapstructure:"anthropic_base_url"`
	OpenAIAPIKey     string `mapstructure:"openai_api_key"`
	OpenAIBaseURL    string `mapstructure:"openai_base_url"`
	GoogleAPIKey     string `mapstructure:"google_api_key"`
	GoogleBaseURL    string `mapstructure:"google_base_url"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
}

// Load reads config.yaml from configPath (or ., ./config, /etc/pllm-gateway),
// applies PLLM_GATEWAY_* environment overrides, and loads a local .env file
// if one is present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.AddConfigPath(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/pllm-gateway")
	}

	setDefaults()

	viper.SetEnvPrefix("PLLM_GATEWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvSecrets(&cfg)

	return &cfg, nil
}

// applyEnvSecrets pulls upstream API keys directly from the process
// environment so they never need to land in a config file on disk.
func applyEnvSecrets(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAIAPIKey = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.Providers.GoogleAPIKey = v
	}
	if v := os.Getenv("API_KEY_SALT"); v != "" && cfg.Auth.APIKeySalt == "" {
		cfg.Auth.APIKeySalt = v
	}
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.admin_port", 8081)
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 130*time.Second)
	viper.SetDefault("server.idle_timeout", 120*time.Second)
	viper.SetDefault("server.graceful_shutdown", 15*time.Second)
	viper.SetDefault("server.upstream_timeout", 120*time.Second)
	viper.SetDefault("server.stream_idle_timeout", 60*time.Second)

	viper.SetDefault("database.max_connections", 20)
	viper.SetDefault("database.max_idle_connections", 5)
	viper.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	viper.SetDefault("redis.pool_size", 20)

	viper.SetDefault("auth.credential_cache_ttl", 30*time.Second)

	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_window", 1000)
	viper.SetDefault("rate_limit.window", 60*time.Second)

	viper.SetDefault("budget.snapshot_ttl", 30*time.Second)
	viper.SetDefault("budget.default_warn_percent", 80.0)
	viper.SetDefault("budget.default_critical_percent", 100.0)
	viper.SetDefault("budget.settlement_max_retries", 5)

	viper.SetDefault("security.default_detection_level", "monitor")
	viper.SetDefault("security.auto_kill_enabled", false)
	viper.SetDefault("security.auto_kill_threshold", 0.95)
	viper.SetDefault("security.sync_detector_budget", 10*time.Millisecond)
	viper.SetDefault("security.total_middleware_budget", 50*time.Millisecond)
	viper.SetDefault("security.async_queue_size", 1024)

	viper.SetDefault("providers.anthropic_base_url", "https://api.anthropic.com")
	viper.SetDefault("providers.openai_base_url", "https://api.openai.com")
	viper.SetDefault("providers.google_base_url", "https://generativelanguage.googleapis.com")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")

	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{"*"})
	viper.SetDefault("cors.max_age", 300)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.service_name", "pllm-gateway")
}

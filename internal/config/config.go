// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Fetch     FetchConfig     `mapstructure:"fetch"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Session   SessionConfig   `mapstructure:"session"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// FetchConfig governs the default fetch method, retry budgets, and
// identity rotation.
type FetchConfig struct {
	Method          string   `mapstructure:"method"` // plain, plain_once, rendered
	Retries         int      `mapstructure:"retries"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	BackoffBaseMs   int      `mapstructure:"backoff_base_ms"`
	CacheTTLSeconds int      `mapstructure:"cache_ttl_seconds"`
	UserAgents      []string `mapstructure:"user_agents"`
	Proxies         []string `mapstructure:"proxies"`
}

// RateLimitConfig sets per-domain and global request pacing.
type RateLimitConfig struct {
	GlobalRPS  float64            `mapstructure:"global_rps"`
	DomainRPS  map[string]float64 `mapstructure:"domain_rps"`
	MaxDomains int                `mapstructure:"max_domains"`
}

// CacheConfig selects and tunes the response cache backend.
type CacheConfig struct {
	Backend       string `mapstructure:"backend"` // none, memory, file, redis
	MaxSize       int    `mapstructure:"max_size"`
	Dir           string `mapstructure:"dir"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// AuthConfig selects the credential flow applied to outgoing requests.
type AuthConfig struct {
	Method string `mapstructure:"method"` // none, basic, token, form, oauth2

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	Token       string `mapstructure:"token"`
	TokenPrefix string `mapstructure:"token_prefix"`

	LoginURL      string `mapstructure:"login_url"`
	UsernameField string `mapstructure:"username_field"`
	PasswordField string `mapstructure:"password_field"`
	SuccessURL    string `mapstructure:"success_url"`
	SuccessText   string `mapstructure:"success_text"`
	ErrorText     string `mapstructure:"error_text"`
	AuthCookie    string `mapstructure:"auth_cookie"`

	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"`
	RefreshURL   string `mapstructure:"refresh_url"`
	Scope        string `mapstructure:"scope"`
	RefreshToken string `mapstructure:"refresh_token"`
}

// SessionConfig tunes the shared HTTP connection pool.
type SessionConfig struct {
	MaxConnections int               `mapstructure:"max_connections"`
	Proxy          string            `mapstructure:"proxy"`
	Headers        map[string]string `mapstructure:"headers"`
}

// HeadlessConfig configures the page-rendering subsystem.
type HeadlessConfig struct {
	MaxParallel       int `mapstructure:"max_parallel"`
	NavTimeoutSeconds int `mapstructure:"nav_timeout_seconds"`
}

// MetricsConfig controls the Prometheus scrape endpoint. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HIVEFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fetch.method", "plain")
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.backoff_base_ms", 1000)
	v.SetDefault("fetch.cache_ttl_seconds", 0)
	v.SetDefault("rate_limit.global_rps", 0)
	v.SetDefault("rate_limit.max_domains", 100)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.redis_prefix", "hivefetch:cache:")
	v.SetDefault("auth.method", "none")
	v.SetDefault("auth.username_field", "username")
	v.SetDefault("auth.password_field", "password")
	v.SetDefault("auth.token_prefix", "Bearer")
	v.SetDefault("session.max_connections", 10)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Fetch.Method {
	case "plain", "plain_once", "rendered":
	default:
		return fmt.Errorf("fetch.method must be one of plain, plain_once, rendered")
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must be >= 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.RateLimit.MaxDomains <= 0 {
		return fmt.Errorf("rate_limit.max_domains must be > 0")
	}
	if c.RateLimit.GlobalRPS < 0 {
		return fmt.Errorf("rate_limit.global_rps must be >= 0")
	}
	for domain, rps := range c.RateLimit.DomainRPS {
		if rps < 0 {
			return fmt.Errorf("rate_limit.domain_rps[%s] must be >= 0", domain)
		}
	}
	switch c.Cache.Backend {
	case "none", "memory":
	case "file":
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache.dir must be set for the file backend")
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be one of none, memory, file, redis")
	}
	switch c.Auth.Method {
	case "none":
	case "basic":
		if c.Auth.Username == "" {
			return fmt.Errorf("auth.username must be set for basic auth")
		}
	case "token":
		if c.Auth.Token == "" {
			return fmt.Errorf("auth.token must be set for token auth")
		}
	case "form":
		if c.Auth.LoginURL == "" {
			return fmt.Errorf("auth.login_url must be set for form auth")
		}
	case "oauth2":
		if c.Auth.TokenURL == "" {
			return fmt.Errorf("auth.token_url must be set for oauth2 auth")
		}
		if c.Auth.ClientID == "" {
			return fmt.Errorf("auth.client_id must be set for oauth2 auth")
		}
	default:
		return fmt.Errorf("auth.method must be one of none, basic, token, form, oauth2")
	}
	if c.Session.MaxConnections <= 0 {
		return fmt.Errorf("session.max_connections must be > 0")
	}
	if c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0")
	}
	return nil
}

// Timeout converts the per-attempt timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// BackoffBase converts the retry backoff base into a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.Fetch.BackoffBaseMs) * time.Millisecond
}

// CacheTTL converts the cache entry lifetime into a duration. Zero means
// entries never expire.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Fetch.CacheTTLSeconds) * time.Second
}

// NavTimeout converts the headless navigation budget into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSeconds) * time.Second
}

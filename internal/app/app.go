// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hivefetch/hivefetch/internal/auth"
	"github.com/hivefetch/hivefetch/internal/cache"
	"github.com/hivefetch/hivefetch/internal/config"
	"github.com/hivefetch/hivefetch/internal/fetch"
	"github.com/hivefetch/hivefetch/internal/logging"
	"github.com/hivefetch/hivefetch/internal/metrics"
	"github.com/hivefetch/hivefetch/internal/ratelimit"
	"github.com/hivefetch/hivefetch/internal/session"
	collytransport "github.com/hivefetch/hivefetch/internal/transport/colly"
	"github.com/hivefetch/hivefetch/internal/transport/headless"
)

// App holds the shared, long-lived services built from configuration. It is
// initialized once at startup and handed to the command layer.
type App struct {
	Logger       *zap.Logger
	Orchestrator *fetch.Orchestrator

	redisClient   *redis.Client
	metricsServer *http.Server
}

// New builds every service the orchestrator depends on. It fails fast when
// any backend cannot be constructed from the configuration.
func New(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{Logger: logger}

	responseCache, err := a.buildCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	provider, err := buildAuth(cfg.Auth)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(ratelimit.Config{
		GlobalRPS:  cfg.RateLimit.GlobalRPS,
		Rules:      rateRules(cfg.RateLimit.DomainRPS),
		MaxDomains: cfg.RateLimit.MaxDomains,
	}, logger)

	sess := session.New(session.Config{
		MaxConnections: cfg.Session.MaxConnections,
		Proxy:          cfg.Session.Proxy,
		Headers:        sessionHeaders(cfg.Session.Headers),
	})

	plain := collytransport.New(sess)
	renderer := headless.New(headless.Config{
		MaxParallel: cfg.Headless.MaxParallel,
		NavTimeout:  cfg.NavTimeout(),
	})

	a.Orchestrator = fetch.NewOrchestrator(plain, renderer, responseCache, limiter, provider, sess, fetch.Config{
		Retries:     cfg.Fetch.Retries,
		Timeout:     cfg.Timeout(),
		BackoffBase: cfg.BackoffBase(),
		CacheTTL:    cfg.CacheTTL(),
		UserAgents:  cfg.Fetch.UserAgents,
		Proxies:     cfg.Fetch.Proxies,
	}, logger)

	if cfg.Metrics.Addr != "" {
		a.startMetricsServer(cfg.Metrics.Addr)
	}

	logger.Info("services initialized",
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("auth_method", cfg.Auth.Method),
	)
	return a, nil
}

// startMetricsServer exposes the Prometheus collectors for scraping.
func (a *App) startMetricsServer(addr string) {
	metrics.Init()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metricsServer = &http.Server{Addr: addr, Handler: mux}
	a.Logger.Info("starting metrics server", zap.String("addr", addr))
	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}

// Close releases backend connections and flushes buffered log entries.
func (a *App) Close() error {
	var firstErr error
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("shutdown metrics server: %w", err)
		}
		cancel()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close redis client: %w", err)
		}
	}
	if a.Logger != nil {
		a.Logger.Sync() //nolint:errcheck // best-effort flush
	}
	return firstErr
}

func (a *App) buildCache(cfg config.CacheConfig) (fetch.Cache, error) {
	switch cfg.Backend {
	case "none":
		return cache.NewNoop(), nil
	case "memory":
		return cache.NewMemory(cfg.MaxSize, nil), nil
	case "file":
		backend, err := cache.NewFile(cfg.Dir, nil)
		if err != nil {
			return nil, fmt.Errorf("initialize file cache: %w", err)
		}
		return backend, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPassword,
		})
		a.redisClient = client
		return cache.NewRedis(client, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

func buildAuth(cfg config.AuthConfig) (fetch.AuthProvider, error) {
	switch cfg.Method {
	case "none":
		return auth.NewNone(), nil
	case "basic":
		return auth.NewBasic(cfg.Username, cfg.Password), nil
	case "token":
		return auth.NewToken(cfg.Token, cfg.TokenPrefix), nil
	case "form":
		return auth.NewForm(auth.FormConfig{
			LoginURL:      cfg.LoginURL,
			UsernameField: cfg.UsernameField,
			PasswordField: cfg.PasswordField,
			Username:      cfg.Username,
			Password:      cfg.Password,
			SuccessURL:    cfg.SuccessURL,
			SuccessText:   cfg.SuccessText,
			ErrorText:     cfg.ErrorText,
			AuthCookie:    cfg.AuthCookie,
		}), nil
	case "oauth2":
		return auth.NewOAuth2(auth.OAuth2Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			RefreshURL:   cfg.RefreshURL,
			Scope:        cfg.Scope,
			RefreshToken: cfg.RefreshToken,
		}), nil
	default:
		return nil, fmt.Errorf("unknown auth method: %s", cfg.Method)
	}
}

func rateRules(domainRPS map[string]float64) []ratelimit.Rule {
	rules := make([]ratelimit.Rule, 0, len(domainRPS))
	for pattern, rps := range domainRPS {
		rules = append(rules, ratelimit.Rule{Pattern: pattern, RPS: rps})
	}
	return rules
}

func sessionHeaders(raw map[string]string) http.Header {
	if len(raw) == 0 {
		return nil
	}
	headers := http.Header{}
	for key, value := range raw {
		headers.Set(key, value)
	}
	return headers
}

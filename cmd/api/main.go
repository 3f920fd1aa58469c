package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/paymob-gateway/internal/cache"
	"github.com/noah-isme/paymob-gateway/internal/config"
	"github.com/noah-isme/paymob-gateway/internal/health"
	"github.com/noah-isme/paymob-gateway/internal/obs"
	"github.com/noah-isme/paymob-gateway/internal/payment"
	"github.com/noah-isme/paymob-gateway/internal/resilience"
	"github.com/noah-isme/paymob-gateway/internal/token"
	"github.com/noah-isme/paymob-gateway/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "paymob")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "paymob-gateway",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var redisClient *redis.Client
	var tokenStore cache.Store
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if metricsEnabled {
			if err := redisotel.InstrumentMetrics(redisClient); err != nil {
				logger.Error().Err(err).Msg("instrument redis metrics")
			}
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
		tokenStore = cache.NewRedis(redisClient, logger)
	} else {
		logger.Warn().Msg("REDIS_URL not set, using in-process token cache")
		tokenStore = cache.NewMemory()
	}

	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.HTTPTimeout,
	}
	providerClient := resilience.Client{
		HTTP:        httpClient,
		Breaker:     resilience.NewBreaker("paymob", 5, 30*time.Second, logger),
		MaxAttempts: 3,
		BaseBackoff: 200 * time.Millisecond,
		Jitter:      0.2,
		Timeout:     cfg.HTTPTimeout,
	}

	tokens, err := token.NewManager(token.Config{
		BaseURL: cfg.PaymobBaseURL,
		APIKey:  cfg.PaymobAPIKey,
		Cache:   tokenStore,
		Client:  providerClient,
		TTL:     cfg.TokenTTL,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token manager")
	}

	authenticator, err := webhook.NewAuthenticator(cfg.PaymobHMACSecret, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise webhook authenticator")
	}
	webhookHandler := &webhook.Handler{
		Auth:      authenticator,
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
		Logger:    logger,
	}

	paymentClient, err := payment.NewClient(payment.ClientConfig{
		BaseURL:   cfg.PaymobBaseURL,
		SecretKey: cfg.PaymobSecretKey,
		PublicKey: cfg.PaymobPublicKey,
		Tokens:    tokens,
		HTTP:      providerClient,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise payment client")
	}
	paymentHandler := &payment.Handler{Client: paymentClient, Logger: logger}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if metricsEnabled && httpMetrics != nil {
		r.Use(httpMetrics.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := &health.Handler{Redis: redisClient}
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)

	r.Route("/v1", func(v chi.Router) {
		v.Post("/payments/intents", paymentHandler.CreateIntent)
		v.Get("/transactions/{id}", paymentHandler.TransactionByID)
		v.Get("/transactions/ref/{ref}", paymentHandler.TransactionByRef)
		v.Post("/webhooks/paymob", webhookHandler.Handle)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

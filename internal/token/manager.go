// Package token manages the short-lived Paymob bearer token: acquisition,
// caching, forced refresh and invalidation.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/paymob-gateway/internal/cache"
	"github.com/noah-isme/paymob-gateway/internal/obs"
)

// CacheKey is the fixed credential cache key. It is shared by every manager
// targeting the same provider account, so it doubles as a cross-process cache
// namespace when the backend is Redis. Do not change it.
const CacheKey = "paymob:auth_token"

// DefaultTTL keeps cached tokens five minutes below Paymob's one-hour token
// lifetime so a near-expiry token is never handed out.
const DefaultTTL = 55 * time.Minute

// highRefreshThreshold is the per-hour refresh count above which the manager
// warns about anomalous refresh pressure.
const highRefreshThreshold = 3

// AuthError reports a failed token acquisition. It carries the upstream
// failure text but never the raw transport error type or the API key.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token: %s: %v", e.Reason, e.Err)
	}
	return "token: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// Doer executes a single HTTP request. Satisfied by resilience.Client.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config collects the dependencies of a Manager.
type Config struct {
	BaseURL string
	APIKey  string
	Cache   cache.Store
	Client  Doer
	TTL     time.Duration
	Logger  zerolog.Logger
}

// Manager owns the provider auth token lifecycle. It is safe for concurrent
// use; concurrent cache misses may each issue their own token request.
type Manager struct {
	baseURL string
	apiKey  string
	cache   cache.Store
	client  Doer
	ttl     time.Duration
	logger  zerolog.Logger

	mu        sync.Mutex
	refreshes int
	lastHour  int64
	now       func() time.Time
}

// NewManager validates cfg and constructs a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("token: base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("token: api key is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("token: cache store is required")
	}
	if cfg.Client == nil {
		return nil, errors.New("token: http client is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		cache:    cfg.Cache,
		client:   cfg.Client,
		ttl:      ttl,
		logger:   cfg.Logger,
		lastHour: -1,
		now:      time.Now,
	}, nil
}

// Token returns a valid bearer token, from cache when possible. With
// forceRefresh the cache is bypassed and a fresh token is requested. Failed
// acquisition surfaces as *AuthError.
func (m *Manager) Token(ctx context.Context, forceRefresh bool) (string, error) {
	if !forceRefresh {
		if cached, ok := m.cache.Get(ctx, CacheKey); ok {
			m.logger.Debug().Msg("using cached auth token")
			return cached, nil
		}
	}

	m.trackRefresh()

	m.logger.Info().Bool("forced", forceRefresh).Msg("requesting new auth token")
	tok, err := m.requestToken(ctx)
	if err != nil {
		if obs.TokenRefreshTotal != nil {
			obs.TokenRefreshTotal.WithLabelValues("error").Inc()
		}
		return "", err
	}
	if obs.TokenRefreshTotal != nil {
		obs.TokenRefreshTotal.WithLabelValues("ok").Inc()
	}

	m.cache.Set(ctx, CacheKey, tok, m.ttl)
	return tok, nil
}

// Invalidate removes the cached token. Best effort: a backend failure is
// absorbed by the cache layer and never surfaces here.
func (m *Manager) Invalidate(ctx context.Context) {
	m.cache.Delete(ctx, CacheKey)
	m.logger.Info().Msg("auth token invalidated")
}

func (m *Manager) requestToken(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{"api_key": m.apiKey})
	if err != nil {
		return "", &AuthError{Reason: "encode token request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/auth/tokens", bytes.NewReader(payload))
	if err != nil {
		return "", &AuthError{Reason: "build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(ctx, req)
	if err != nil {
		m.logger.Error().Err(err).Msg("token request failed")
		return "", &AuthError{Reason: "token request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		m.logger.Error().Int("status", resp.StatusCode).Msg("token request rejected")
		return "", &AuthError{Reason: fmt.Sprintf("token request returned %s: %s", resp.Status, strings.TrimSpace(string(body)))}
	}

	var decoded struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &AuthError{Reason: "decode token response", Err: err}
	}
	if decoded.Token == "" {
		return "", &AuthError{Reason: "no token in provider response"}
	}
	m.logger.Info().Msg("obtained new auth token")
	return decoded.Token, nil
}

// trackRefresh counts token requests per wall-clock hour bucket. Best-effort
// telemetry: the bucket check is not atomic with respect to the request that
// follows.
func (m *Manager) trackRefresh() {
	hour := m.now().Unix() / 3600

	m.mu.Lock()
	if hour != m.lastHour {
		m.refreshes = 0
		m.lastHour = hour
	}
	m.refreshes++
	count := m.refreshes
	m.mu.Unlock()

	if count > highRefreshThreshold {
		m.logger.Warn().Int("count", count).Msg("high token refresh rate this hour")
		if obs.TokenHighRefreshTotal != nil {
			obs.TokenHighRefreshTotal.Inc()
		}
	}
}

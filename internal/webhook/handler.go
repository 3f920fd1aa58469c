package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/paymob-gateway/internal/common"
	"github.com/noah-isme/paymob-gateway/internal/obs"
)

// Handler terminates the provider callback endpoint: it owns request parsing
// and response-status mapping around the Authenticator.
type Handler struct {
	Auth      *Authenticator
	Replay    *redis.Client
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

// Handle processes an inbound Paymob callback. The response deliberately
// reveals nothing about why a callback was rejected.
func (h Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Auth == nil {
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "payload is not valid JSON", nil)
		return
	}

	origin := common.ClientIP(r)
	callbackType, err := h.Auth.Authenticate(payload, r.URL.Query(), origin)
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		h.count("undefined", "invalid")
		common.JSONError(w, http.StatusBadRequest, "INVALID_CALLBACK", validationErr.Reason, nil)
		return
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_ERROR", "verification failed", nil)
		return
	}
	if callbackType == TypeUndefined {
		h.count("undefined", "rejected")
		common.JSONError(w, http.StatusUnauthorized, "NOT_VERIFIED", "callback not verified", nil)
		return
	}

	if h.Replay != nil && h.ReplayTTL > 0 {
		key := "wh:paymob:" + common.Sha256Hex(body)
		stored, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			// replay store outage must not drop genuine callbacks
			h.Logger.Warn().Err(err).Msg("replay store unavailable")
		} else if !stored {
			h.count(callbackType.String(), "replay")
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate callback", nil)
			return
		}
	}

	h.count(callbackType.String(), "verified")
	h.Logger.Info().
		Str("type", callbackType.String()).
		Str("origin", origin).
		Msg("callback accepted")
	common.JSON(w, http.StatusOK, map[string]string{"type": callbackType.String()})
}

func (h Handler) count(callbackType, result string) {
	if obs.WebhookVerifiedTotal != nil {
		obs.WebhookVerifiedTotal.WithLabelValues(callbackType, result).Inc()
	}
}

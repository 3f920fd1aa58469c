package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNoSecret reports missing HMAC key material. It is a configuration
// failure, raised at construction, never a verification rejection.
var ErrNoSecret = errors.New("webhook: hmac secret not configured")

// Authenticator verifies callback signatures with HMAC-SHA512.
type Authenticator struct {
	secret []byte
	logger zerolog.Logger
}

// NewAuthenticator constructs an Authenticator. The secret is operator
// supplied; an empty one fails eagerly with ErrNoSecret.
func NewAuthenticator(secret string, logger zerolog.Logger) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrNoSecret
	}
	return &Authenticator{secret: []byte(secret), logger: logger}, nil
}

// Authenticate verifies that the callback payload was signed by the provider
// and returns its type. A forged, unsigned or unclassifiable callback is an
// expected adversarial input: it yields TypeUndefined with a nil error and is
// logged with the caller's origin for audit. Only a structurally malformed
// subscription callback returns a *ValidationError.
//
// Paymob delivers the signature either as an "hmac" field on the body or as
// an "hmac" query parameter; the body wins when both are present.
func (a *Authenticator) Authenticate(payload map[string]any, query url.Values, origin string) (Type, error) {
	signature := strings.TrimSpace(query.Get("hmac"))
	if raw, ok := payload["hmac"]; ok && raw != nil {
		if fromBody := strings.TrimSpace(fmt.Sprint(raw)); fromBody != "" {
			signature = fromBody
		}
	}
	if signature == "" {
		a.reject(origin, payload, "callback signature missing")
		return TypeUndefined, nil
	}

	callbackType := Classify(payload)
	if callbackType == TypeUndefined {
		a.reject(origin, payload, "cannot determine callback type")
		return TypeUndefined, nil
	}

	canonical, err := Canonical(callbackType, payload)
	if err != nil {
		return TypeUndefined, err
	}
	if canonical == "" {
		a.reject(origin, payload, "empty canonical string")
		return TypeUndefined, nil
	}

	mac := hmac.New(sha512.New, a.secret)
	mac.Write([]byte(canonical))
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(signature)) {
		a.reject(origin, payload, "callback signature mismatch")
		return TypeUndefined, nil
	}
	a.logger.Debug().Str("type", callbackType.String()).Msg("callback verified")
	return callbackType, nil
}

func (a *Authenticator) reject(origin string, payload map[string]any, reason string) {
	a.logger.Error().
		Str("origin", origin).
		Interface("payload", payload).
		Msg(reason)
}

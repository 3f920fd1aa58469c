package webhook_test

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paymob-gateway/internal/webhook"
)

const testSecret = "FE2C55AB171D"

func sign(t *testing.T, secret, message string) string {
	t.Helper()
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func newAuthenticator(t *testing.T) *webhook.Authenticator {
	t.Helper()
	auth, err := webhook.NewAuthenticator(testSecret, zerolog.Nop())
	require.NoError(t, err)
	return auth
}

func flipFirstChar(signature string) string {
	replacement := byte('0')
	if signature[0] == '0' {
		replacement = '1'
	}
	return string(replacement) + signature[1:]
}

func TestAuthenticateRoundTripQuerySignature(t *testing.T) {
	auth := newAuthenticator(t)
	payload := decode(t, transactionPayload)
	canonical, err := webhook.Canonical(webhook.TypeTransaction, payload)
	require.NoError(t, err)

	query := url.Values{"hmac": {sign(t, testSecret, canonical)}}
	verified, err := auth.Authenticate(payload, query, "203.0.113.7")
	require.NoError(t, err)
	require.Equal(t, webhook.TypeTransaction, verified)
}

func TestAuthenticateBodySignatureWinsOverQuery(t *testing.T) {
	auth := newAuthenticator(t)
	payload := decode(t, transactionPayload)
	canonical, err := webhook.Canonical(webhook.TypeTransaction, payload)
	require.NoError(t, err)
	payload["hmac"] = sign(t, testSecret, canonical)

	query := url.Values{"hmac": {"deadbeef"}}
	verified, err := auth.Authenticate(payload, query, "203.0.113.7")
	require.NoError(t, err)
	require.Equal(t, webhook.TypeTransaction, verified)
}

func TestAuthenticateRejectsTamperedSignature(t *testing.T) {
	auth := newAuthenticator(t)
	payload := decode(t, transactionPayload)
	canonical, err := webhook.Canonical(webhook.TypeTransaction, payload)
	require.NoError(t, err)

	query := url.Values{"hmac": {flipFirstChar(sign(t, testSecret, canonical))}}
	verified, err := auth.Authenticate(payload, query, "203.0.113.7")
	require.NoError(t, err)
	require.Equal(t, webhook.TypeUndefined, verified)
}

func TestAuthenticateRejectsMissingSignature(t *testing.T) {
	auth := newAuthenticator(t)
	payload := decode(t, transactionPayload)

	verified, err := auth.Authenticate(payload, url.Values{}, "203.0.113.7")
	require.NoError(t, err)
	require.Equal(t, webhook.TypeUndefined, verified)
}

func TestAuthenticateRejectsUndefinedType(t *testing.T) {
	auth := newAuthenticator(t)
	payload := decode(t, `{"obj":{"id":1},"hmac":"deadbeef"}`)

	verified, err := auth.Authenticate(payload, url.Values{}, "203.0.113.7")
	require.NoError(t, err)
	require.Equal(t, webhook.TypeUndefined, verified)
}

func TestAuthenticateSubscriptionRoundTrip(t *testing.T) {
	auth := newAuthenticator(t)
	payload := decode(t, `{"trigger_type":"Subscription Created","subscription_data":{"id":118}}`)

	query := url.Values{"hmac": {sign(t, testSecret, "Subscription Createdfor118")}}
	verified, err := auth.Authenticate(payload, query, "203.0.113.7")
	require.NoError(t, err)
	require.Equal(t, webhook.TypeSubscription, verified)
}

func TestAuthenticateMalformedSubscriptionIsValidationError(t *testing.T) {
	auth := newAuthenticator(t)
	payload := decode(t, `{"trigger_type":"Subscription Created","subscription_data":{"plan":7}}`)

	query := url.Values{"hmac": {"deadbeef"}}
	_, err := auth.Authenticate(payload, query, "203.0.113.7")
	var validationErr *webhook.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestNewAuthenticatorRequiresSecret(t *testing.T) {
	_, err := webhook.NewAuthenticator("  ", zerolog.Nop())
	require.ErrorIs(t, err, webhook.ErrNoSecret)
}

package webhook_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paymob-gateway/internal/webhook"
)

func newHandler(t *testing.T) webhook.Handler {
	t.Helper()
	return webhook.Handler{Auth: newAuthenticator(t), Logger: zerolog.Nop()}
}

func postCallback(h webhook.Handler, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestHandleVerifiedTransaction(t *testing.T) {
	h := newHandler(t)
	payload := decode(t, transactionPayload)
	canonical, err := webhook.Canonical(webhook.TypeTransaction, payload)
	require.NoError(t, err)
	signature := sign(t, testSecret, canonical)

	rec := postCallback(h, "/v1/webhooks/paymob?hmac="+signature, transactionPayload)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"type":"transaction"}`, rec.Body.String())
}

func TestHandleMissingSignature(t *testing.T) {
	h := newHandler(t)

	rec := postCallback(h, "/v1/webhooks/paymob", transactionPayload)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_VERIFIED")
}

func TestHandleMalformedJSON(t *testing.T) {
	h := newHandler(t)

	rec := postCallback(h, "/v1/webhooks/paymob", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMalformedSubscription(t *testing.T) {
	h := newHandler(t)

	body := `{"trigger_type":"Subscription Created","subscription_data":{"plan":7}}`
	rec := postCallback(h, "/v1/webhooks/paymob?hmac=deadbeef", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_CALLBACK")
}

func TestHandleSuppressesReplayedCallback(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := newHandler(t)
	h.Replay = client
	h.ReplayTTL = time.Hour

	payload := decode(t, transactionPayload)
	canonical, err := webhook.Canonical(webhook.TypeTransaction, payload)
	require.NoError(t, err)
	target := "/v1/webhooks/paymob?hmac=" + sign(t, testSecret, canonical)

	first := postCallback(h, target, transactionPayload)
	require.Equal(t, http.StatusOK, first.Code)

	second := postCallback(h, target, transactionPayload)
	require.Equal(t, http.StatusConflict, second.Code)
}

package payment_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paymob-gateway/internal/payment"
)

func newRouter(h *payment.Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/payments/intents", h.CreateIntent)
	r.Get("/v1/transactions/{id}", h.TransactionByID)
	r.Get("/v1/transactions/ref/{ref}", h.TransactionByRef)
	return r
}

func TestCreateIntentHandlerMapsValidationFailure(t *testing.T) {
	c := newClient(t, "https://accept.invalid", &plainDoer{client: http.DefaultClient}, &fakeTokens{})
	router := newRouter(&payment.Handler{Client: c, Logger: zerolog.Nop()})

	body := `{"amountCents":0,"currency":"EGP","paymentMethods":[12]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/payments/intents", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_FAILED")
}

func TestCreateIntentHandlerReturnsCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"client_secret":"cs_h1"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, &plainDoer{client: srv.Client()}, &fakeTokens{})
	router := newRouter(&payment.Handler{Client: c, Logger: zerolog.Nop()})

	body := `{
		"amountCents": 1500,
		"currency": "EGP",
		"paymentMethods": [12],
		"firstName": "Ada",
		"lastName": "Lovelace",
		"email": "ada@example.com",
		"phoneNumber": "+201234567890",
		"specialReference": "order-9"
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/payments/intents", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "clientSecret=cs_h1")
	assert.Contains(t, rec.Body.String(), `"specialReference":"order-9"`)
}

func TestTransactionHandlerRejectsBadID(t *testing.T) {
	c := newClient(t, "https://accept.invalid", &plainDoer{client: http.DefaultClient}, &fakeTokens{})
	router := newRouter(&payment.Handler{Client: c, Logger: zerolog.Nop()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/transactions/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ID")
}

func TestTransactionHandlerMapsProviderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, &plainDoer{client: srv.Client()}, &fakeTokens{})
	router := newRouter(&payment.Handler{Client: c, Logger: zerolog.Nop()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/transactions/999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/paymob-gateway/internal/common"
	"github.com/noah-isme/paymob-gateway/internal/obs"
	"github.com/noah-isme/paymob-gateway/internal/token"
)

// Handler exposes the payment routes.
type Handler struct {
	Client *Client
	Logger zerolog.Logger
}

type intentReq struct {
	AmountCents      int64             `json:"amountCents"`
	Currency         string            `json:"currency"`
	PaymentMethods   []int             `json:"paymentMethods"`
	FirstName        string            `json:"firstName"`
	LastName         string            `json:"lastName"`
	Email            string            `json:"email"`
	PhoneNumber      string            `json:"phoneNumber"`
	Items            []Item            `json:"items"`
	BillingData      map[string]string `json:"billingData"`
	SpecialReference string            `json:"specialReference"`
	NotificationURL  string            `json:"notificationUrl"`
	RedirectionURL   string            `json:"redirectionUrl"`
	Extras           map[string]any    `json:"extras"`
}

type intentResp struct {
	CheckoutURL      string `json:"checkoutUrl"`
	ClientSecret     string `json:"clientSecret"`
	SpecialReference string `json:"specialReference"`
}

// CreateIntent handles POST /v1/payments/intents.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var body intentReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON", nil)
		return
	}

	resp, err := h.Client.CreateIntent(r.Context(), IntentRequest{
		AmountCents:      body.AmountCents,
		Currency:         body.Currency,
		PaymentMethods:   body.PaymentMethods,
		FirstName:        body.FirstName,
		LastName:         body.LastName,
		Email:            body.Email,
		PhoneNumber:      body.PhoneNumber,
		Items:            body.Items,
		BillingData:      body.BillingData,
		SpecialReference: body.SpecialReference,
		NotificationURL:  body.NotificationURL,
		RedirectionURL:   body.RedirectionURL,
		Extras:           body.Extras,
	})
	if err != nil {
		h.writeError(w, err, "intent")
		return
	}
	countIntent("ok")
	common.JSON(w, http.StatusCreated, intentResp{
		CheckoutURL:      resp.CheckoutURL,
		ClientSecret:     resp.ClientSecret,
		SpecialReference: resp.SpecialReference,
	})
}

// TransactionByID handles GET /v1/transactions/{id}.
func (h *Handler) TransactionByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ID", "transaction id must be an integer", nil)
		return
	}
	tx, err := h.Client.TransactionByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "transaction")
		return
	}
	common.JSON(w, http.StatusOK, tx)
}

// TransactionByRef handles GET /v1/transactions/ref/{ref}.
func (h *Handler) TransactionByRef(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Client.TransactionByRef(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.writeError(w, err, "transaction")
		return
	}
	common.JSON(w, http.StatusOK, tx)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, op string) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
		if op == "intent" {
			countIntent("invalid")
		}
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "request failed validation", details)
		return
	}

	var authErr *token.AuthError
	if errors.As(err, &authErr) {
		h.Logger.Error().Err(err).Str("op", op).Msg("provider authentication failed")
		if op == "intent" {
			countIntent("error")
		}
		common.JSONError(w, http.StatusBadGateway, "PROVIDER_AUTH", "payment provider authentication failed", nil)
		return
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		h.Logger.Error().Err(err).Str("op", op).Int("status", apiErr.Status).Msg("provider request rejected")
		if apiErr.Status == http.StatusNotFound {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "transaction not found", nil)
			return
		}
		if op == "intent" {
			countIntent("error")
		}
		common.JSONError(w, http.StatusBadGateway, "PROVIDER_ERROR", "payment provider rejected the request", nil)
		return
	}

	h.Logger.Error().Err(err).Str("op", op).Msg("provider request failed")
	if op == "intent" {
		countIntent("error")
	}
	common.JSONError(w, http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "payment provider is unreachable", nil)
}

func countIntent(result string) {
	if obs.PaymentIntentTotal != nil {
		obs.PaymentIntentTotal.WithLabelValues(result).Inc()
	}
}

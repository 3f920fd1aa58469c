// Package payment shapes outbound requests to the Paymob acceptance API:
// payment intentions and transaction inquiry.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// billingDataKeys are the optional billing_data fields Paymob accepts.
var billingDataKeys = map[string]struct{}{
	"apartment":         {},
	"street":            {},
	"building":          {},
	"country":           {},
	"floor":             {},
	"state":             {},
	"city":              {},
	"postal_code":       {},
	"extra_description": {},
	"shipping_method":   {},
}

// Doer executes a single HTTP request. Satisfied by resilience.Client.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// TokenSource supplies bearer tokens for acceptance API calls.
// Satisfied by token.Manager.
type TokenSource interface {
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// Item is a line item attached to a payment intention.
type Item struct {
	Name        string `json:"name" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
}

// IntentRequest captures the information required to open a payment
// intention. BillingData carries the optional address fields; unknown keys
// are dropped rather than forwarded.
type IntentRequest struct {
	AmountCents    int64  `validate:"required,gt=0"`
	Currency       string `validate:"required"`
	PaymentMethods []int  `validate:"required,min=1"`

	FirstName   string `validate:"required"`
	LastName    string `validate:"required"`
	Email       string `validate:"required,email,max=320"`
	PhoneNumber string `validate:"required"`

	Items                 []Item `validate:"omitempty,dive"`
	SpecialReference      string
	NotificationURL       string `validate:"omitempty,url"`
	RedirectionURL        string `validate:"omitempty,url"`
	Extras                map[string]any
	BillingData           map[string]string
	SubscriptionPlanID    string
	SubscriptionStartDate string `validate:"omitempty,datetime=2006-01-02"`
	ExpirationSec         int    `validate:"omitempty,gt=0"`
}

// IntentResponse is the minimal result of creating an intention.
type IntentResponse struct {
	ClientSecret     string
	CheckoutURL      string
	SpecialReference string
	Raw              json.RawMessage
}

// Transaction is the subset of a Paymob transaction this service consumes.
type Transaction struct {
	ID          int64  `json:"id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Success     bool   `json:"success"`
	Pending     bool   `json:"pending"`
	IsRefunded  bool   `json:"is_refunded"`
	IsVoided    bool   `json:"is_voided"`
	CreatedAt   string `json:"created_at"`
	Order       struct {
		ID              int64  `json:"id"`
		MerchantOrderID string `json:"merchant_order_id"`
	} `json:"order"`
}

// APIError reports a non-2xx acceptance API response.
type APIError struct {
	Status int
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment: %s returned %d: %s", e.Path, e.Status, e.Body)
}

// ClientConfig collects the dependencies of a Client.
type ClientConfig struct {
	BaseURL   string
	SecretKey string
	PublicKey string
	Tokens    TokenSource
	HTTP      Doer
	Logger    zerolog.Logger
}

// Client talks to the Paymob acceptance API.
type Client struct {
	baseURL   string
	secretKey string
	publicKey string
	tokens    TokenSource
	http      Doer
	logger    zerolog.Logger
	validate  *validator.Validate
}

// NewClient validates cfg and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("payment: base url is required")
	}
	if strings.TrimSpace(cfg.SecretKey) == "" || strings.TrimSpace(cfg.PublicKey) == "" {
		return nil, errors.New("payment: secret and public keys are required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("payment: token source is required")
	}
	if cfg.HTTP == nil {
		return nil, errors.New("payment: http client is required")
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		publicKey: cfg.PublicKey,
		tokens:    cfg.Tokens,
		http:      cfg.HTTP,
		logger:    cfg.Logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// CreateIntent opens a payment intention and returns the hosted checkout URL.
// The intention endpoint authenticates with the account secret key, not the
// bearer token. A missing SpecialReference is filled with a generated one so
// callbacks can always be correlated back to the originating request.
func (c *Client) CreateIntent(ctx context.Context, req IntentRequest) (*IntentResponse, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("validate intent: %w", err)
	}
	if strings.TrimSpace(req.SpecialReference) == "" {
		req.SpecialReference = uuid.NewString()
	}

	payload := c.intentPayload(req)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode intent: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/intention/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Token "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("intent request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := readResponse(resp, "/v1/intention/")
	if err != nil {
		return nil, err
	}

	var decoded struct {
		ClientSecret string `json:"client_secret"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode intent response: %w", err)
	}
	if decoded.ClientSecret == "" {
		return nil, errors.New("payment: no client_secret in intent response")
	}

	checkout := fmt.Sprintf("%s/unifiedcheckout/?publicKey=%s&clientSecret=%s",
		c.baseURL, url.QueryEscape(c.publicKey), url.QueryEscape(decoded.ClientSecret))
	c.logger.Debug().Str("special_reference", req.SpecialReference).Msg("payment intention created")
	return &IntentResponse{
		ClientSecret:     decoded.ClientSecret,
		CheckoutURL:      checkout,
		SpecialReference: req.SpecialReference,
		Raw:              raw,
	}, nil
}

func (c *Client) intentPayload(req IntentRequest) map[string]any {
	billing := map[string]string{
		"first_name":   req.FirstName,
		"last_name":    req.LastName,
		"email":        req.Email,
		"phone_number": req.PhoneNumber,
	}
	for key, value := range req.BillingData {
		if _, allowed := billingDataKeys[key]; allowed && value != "" {
			billing[key] = value
		}
	}

	payload := map[string]any{
		"amount":            req.AmountCents,
		"currency":          req.Currency,
		"payment_methods":   req.PaymentMethods,
		"billing_data":      billing,
		"special_reference": req.SpecialReference,
	}
	if len(req.Items) > 0 {
		payload["items"] = req.Items
	}
	if req.NotificationURL != "" {
		payload["notification_url"] = req.NotificationURL
	}
	if req.RedirectionURL != "" {
		payload["redirection_url"] = req.RedirectionURL
	}
	if len(req.Extras) > 0 {
		payload["extras"] = req.Extras
	}
	if req.SubscriptionPlanID != "" {
		payload["subscription_plan_id"] = req.SubscriptionPlanID
	}
	if req.SubscriptionStartDate != "" {
		payload["subscription_start_date"] = req.SubscriptionStartDate
	}
	if req.ExpirationSec > 0 {
		payload["expiration"] = req.ExpirationSec
	}
	return payload
}

// TransactionByID retrieves a transaction by its provider identifier.
func (c *Client) TransactionByID(ctx context.Context, id int64) (*Transaction, error) {
	path := fmt.Sprintf("/api/acceptance/transactions/%d", id)
	return c.fetchTransaction(ctx, http.MethodGet, path, nil)
}

// TransactionByRef retrieves a transaction by its merchant reference
// (the special_reference supplied at intent creation).
func (c *Client) TransactionByRef(ctx context.Context, ref string) (*Transaction, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, errors.New("payment: merchant reference is required")
	}
	body := map[string]string{"merchant_order_id": ref}
	return c.fetchTransaction(ctx, http.MethodPost, "/api/ecommerce/orders/transaction_inquiry", body)
}

func (c *Client) fetchTransaction(ctx context.Context, method, path string, body any) (*Transaction, error) {
	resp, err := c.doAuthed(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := readResponse(resp, path)
	if err != nil {
		return nil, err
	}
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &tx, nil
}

// doAuthed executes a bearer-authenticated call. A 403 on a token served from
// cache forces one refresh and one retry; a second 403 is terminal. This
// recovers transparently from a token that expired between cache read and use.
func (c *Client) doAuthed(ctx context.Context, method, path string, body any) (*http.Response, error) {
	resp, err := c.attempt(ctx, false, method, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusForbidden {
		_ = resp.Body.Close()
		c.logger.Info().Str("path", path).Msg("authorization rejected, forcing token refresh")
		resp, err = c.attempt(ctx, true, method, path, body)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, forceRefresh bool, method, path string, body any) (*http.Response, error) {
	tok, err := c.tokens.Token(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(ctx, req)
}

func readResponse(resp *http.Response, path string) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(raw))
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &APIError{Status: resp.StatusCode, Path: path, Body: snippet}
	}
	return raw, nil
}

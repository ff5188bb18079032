package payments

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
	"time"
)

// PaystackLogger mirrors the lightweight logging contract used across services.
type PaystackLogger func(ctx context.Context, event string, fields map[string]any)

// PaystackProviderConfig captures the inputs required to talk to the Paystack API.
type PaystackProviderConfig struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     PaystackLogger
	Clock      func() time.Time
}

// PaystackProvider implements Provider on top of the Paystack transaction API.
type PaystackProvider struct {
	secretKey string
	baseURL   string
	client    *http.Client
	logger    PaystackLogger
	clock     func() time.Time
}

// NewPaystackProvider validates the configuration and constructs a PaystackProvider.
func NewPaystackProvider(cfg PaystackProviderConfig) (*PaystackProvider, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errors.New("paystack: secret key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.paystack.co"
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("paystack: invalid base url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &PaystackProvider{
		secretKey: secret,
		baseURL:   base,
		client:    client,
		logger:    logger,
		clock:     clock,
	}, nil
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackVerifyData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Channel   string `json:"channel"`
	PaidAt    string `json:"paid_at"`
}

// CreateHostedCheckout initialises a Paystack transaction and returns the hosted payment page.
func (p *PaystackProvider) CreateHostedCheckout(ctx context.Context, req HostedCheckoutRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("paystack: provider is nil")
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return CheckoutSession{}, errors.New("paystack: customer email is required")
	}
	if req.Amount <= 0 {
		return CheckoutSession{}, errors.New("paystack: amount must be positive")
	}

	payload := map[string]any{
		"email":  email,
		"amount": req.Amount,
	}
	if currency := strings.ToUpper(strings.TrimSpace(req.Currency)); currency != "" {
		payload["currency"] = currency
	}
	if reference := strings.TrimSpace(req.Reference); reference != "" {
		payload["reference"] = reference
	}
	if callback := strings.TrimSpace(req.CallbackURL); callback != "" {
		payload["callback_url"] = callback
	}
	if len(req.Metadata) > 0 {
		metadata := make(map[string]any, len(req.Metadata))
		for k, v := range req.Metadata {
			metadata[k] = v
		}
		payload["metadata"] = metadata
	}

	var data paystackInitializeData
	raw, err := p.call(ctx, http.MethodPost, "/transaction/initialize", req.IdempotencyKey, payload, &data)
	if err != nil {
		return CheckoutSession{}, err
	}

	p.logger(ctx, "payments.paystack.checkout.created", map[string]any{
		"reference": data.Reference,
		"currency":  req.Currency,
		"amount":    req.Amount,
	})

	return CheckoutSession{
		ID:          data.Reference,
		Provider:    "paystack",
		Reference:   data.Reference,
		AccessCode:  data.AccessCode,
		RedirectURL: data.AuthorizationURL,
		ExpiresAt:   p.clock().Add(30 * time.Minute),
		Raw:         raw,
	}, nil
}

// VerifyPayment retrieves the current state of a Paystack transaction by reference.
func (p *PaystackProvider) VerifyPayment(ctx context.Context, reference string) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("paystack: provider is nil")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return PaymentDetails{}, errors.New("paystack: transaction reference is required")
	}

	var data paystackVerifyData
	raw, err := p.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), "", nil, &data)
	if err != nil {
		return PaymentDetails{}, err
	}

	status := StatusPending
	switch strings.ToLower(strings.TrimSpace(data.Status)) {
	case "success":
		status = StatusSucceeded
	case "failed", "reversed":
		status = StatusFailed
	case "abandoned":
		status = StatusAbandoned
	}

	var paidAt *time.Time
	if trimmed := strings.TrimSpace(data.PaidAt); trimmed != "" {
		if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
			utc := t.UTC()
			paidAt = &utc
		}
	}

	p.logger(ctx, "payments.paystack.payment.verified", map[string]any{
		"reference": data.Reference,
		"status":    string(status),
	})

	return PaymentDetails{
		Provider:  "paystack",
		Reference: data.Reference,
		Status:    status,
		Amount:    data.Amount,
		Currency:  strings.ToUpper(data.Currency),
		Channel:   data.Channel,
		PaidAt:    paidAt,
		Raw:       raw,
	}, nil
}

func (p *PaystackProvider) call(ctx context.Context, method, path, idempotencyKey string, payload any, out any) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("paystack: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("paystack: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		httpReq.Header.Set("Idempotency-Key", key)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("paystack: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("paystack: read response: %w", err)
	}

	var envelope paystackEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("paystack: decode response (http %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Status {
		message := strings.TrimSpace(envelope.Message)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("paystack: %s %s failed (http %d): %s", method, path, resp.StatusCode, message)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return nil, fmt.Errorf("paystack: decode response data: %w", err)
		}
	}

	raw := map[string]any{}
	if len(envelope.Data) > 0 {
		_ = json.Unmarshal(envelope.Data, &raw)
	}
	return raw, nil
}

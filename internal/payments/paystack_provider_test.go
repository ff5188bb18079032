package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPaystackCreateHostedCheckout(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transaction/initialize" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_secret" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.com/abc123",
				"access_code":       "abc123",
				"reference":         "ref_001",
			},
		})
	}))
	defer server.Close()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	provider, err := NewPaystackProvider(PaystackProviderConfig{
		SecretKey: "sk_test_secret",
		BaseURL:   server.URL,
		Clock:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	session, err := provider.CreateHostedCheckout(context.Background(), HostedCheckoutRequest{
		Reference:   "ref_001",
		Email:       "ada@example.com",
		Amount:      12000,
		Currency:    "NGN",
		CallbackURL: "https://example.com/thanks",
		Metadata:    map[string]string{"plan": "Advanced"},
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}

	if session.RedirectURL != "https://checkout.paystack.com/abc123" {
		t.Fatalf("unexpected redirect url %q", session.RedirectURL)
	}
	if session.Reference != "ref_001" {
		t.Fatalf("unexpected reference %q", session.Reference)
	}
	if session.AccessCode != "abc123" {
		t.Fatalf("unexpected access code %q", session.AccessCode)
	}
	if !session.ExpiresAt.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", session.ExpiresAt)
	}

	if captured["email"] != "ada@example.com" {
		t.Fatalf("expected email in payload, got %v", captured["email"])
	}
	if captured["amount"] != float64(12000) {
		t.Fatalf("expected minor unit amount, got %v", captured["amount"])
	}
	if captured["callback_url"] != "https://example.com/thanks" {
		t.Fatalf("expected callback url, got %v", captured["callback_url"])
	}
	metadata, ok := captured["metadata"].(map[string]any)
	if !ok || metadata["plan"] != "Advanced" {
		t.Fatalf("expected metadata plan, got %v", captured["metadata"])
	}
}

func TestPaystackCreateHostedCheckoutRequiresEmail(t *testing.T) {
	provider, err := NewPaystackProvider(PaystackProviderConfig{SecretKey: "sk_test_secret"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.CreateHostedCheckout(context.Background(), HostedCheckoutRequest{Amount: 900}); err == nil {
		t.Fatalf("expected error for missing email")
	}
}

func TestPaystackVerifyPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/transaction/verify/ref_001" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]any{
				"status":    "success",
				"reference": "ref_001",
				"amount":    12000,
				"currency":  "ngn",
				"channel":   "card",
				"paid_at":   "2024-05-01T12:05:00Z",
			},
		})
	}))
	defer server.Close()

	provider, err := NewPaystackProvider(PaystackProviderConfig{
		SecretKey: "sk_test_secret",
		BaseURL:   server.URL,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	details, err := provider.VerifyPayment(context.Background(), "ref_001")
	if err != nil {
		t.Fatalf("verify payment: %v", err)
	}
	if details.Status != StatusSucceeded {
		t.Fatalf("expected succeeded status, got %q", details.Status)
	}
	if details.Amount != 12000 {
		t.Fatalf("unexpected amount %d", details.Amount)
	}
	if details.Currency != "NGN" {
		t.Fatalf("expected uppercase currency, got %q", details.Currency)
	}
	if details.Channel != "card" {
		t.Fatalf("unexpected channel %q", details.Channel)
	}
	if details.PaidAt == nil || !details.PaidAt.Equal(time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)) {
		t.Fatalf("unexpected paid at %v", details.PaidAt)
	}
}

func TestPaystackVerifyPaymentAbandoned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"status":    "abandoned",
				"reference": "ref_002",
			},
		})
	}))
	defer server.Close()

	provider, err := NewPaystackProvider(PaystackProviderConfig{
		SecretKey: "sk_test_secret",
		BaseURL:   server.URL,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	details, err := provider.VerifyPayment(context.Background(), "ref_002")
	if err != nil {
		t.Fatalf("verify payment: %v", err)
	}
	if details.Status != StatusAbandoned {
		t.Fatalf("expected abandoned status, got %q", details.Status)
	}
	if details.PaidAt != nil {
		t.Fatalf("expected nil paid at for abandoned payment")
	}
}

func TestPaystackSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"message": "Invalid key",
		})
	}))
	defer server.Close()

	provider, err := NewPaystackProvider(PaystackProviderConfig{
		SecretKey: "sk_test_secret",
		BaseURL:   server.URL,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	if _, err := provider.VerifyPayment(context.Background(), "ref_003"); err == nil {
		t.Fatalf("expected error from failed verification")
	}
}

func TestNewPaystackProviderValidation(t *testing.T) {
	if _, err := NewPaystackProvider(PaystackProviderConfig{}); err == nil {
		t.Fatalf("expected error for missing secret key")
	}
	if _, err := NewPaystackProvider(PaystackProviderConfig{SecretKey: "sk", BaseURL: "::bad url"}); err == nil {
		t.Fatalf("expected error for invalid base url")
	}
}

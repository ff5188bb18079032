package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "formflow-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Checkout.Currency != "NGN" {
		t.Errorf("expected default currency NGN, got %s", cfg.Checkout.Currency)
	}
	if cfg.Checkout.ConfirmationURL != defaultConfirmationURL {
		t.Errorf("unexpected confirmation url: %s", cfg.Checkout.ConfirmationURL)
	}
	if cfg.PSP.DefaultProvider != "paystack" {
		t.Errorf("expected default provider paystack, got %s", cfg.PSP.DefaultProvider)
	}
	if cfg.PSP.PaystackBaseURL != defaultPaystackBaseURL {
		t.Errorf("unexpected paystack base url: %s", cfg.PSP.PaystackBaseURL)
	}
	if got := cfg.PSP.CurrencyRoutes["ngn"]; got != "paystack" {
		t.Errorf("expected ngn routed to paystack, got %s", got)
	}
	if cfg.Session.CookieName != defaultSessionCookie {
		t.Errorf("unexpected session cookie name: %s", cfg.Session.CookieName)
	}
	if cfg.Session.TTL != defaultSessionTTL {
		t.Errorf("unexpected session ttl: %s", cfg.Session.TTL)
	}
	if cfg.Events.PaymentTopic != defaultEventsTopic {
		t.Errorf("unexpected events topic: %s", cfg.Events.PaymentTopic)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":               "9090",
		"API_SERVER_READ_TIMEOUT":       "20s",
		"API_SERVER_WRITE_TIMEOUT":      "25s",
		"API_SERVER_IDLE_TIMEOUT":       "2m",
		"API_FIRESTORE_PROJECT_ID":      "formflow-prod",
		"API_FIRESTORE_EMULATOR_HOST":   "localhost:8200",
		"API_PSP_PAYSTACK_SECRET_KEY":   "secret://paystack/secret",
		"API_PSP_PAYSTACK_PUBLIC_KEY":   "pk_live_123",
		"API_PSP_STRIPE_API_KEY":        "secret://stripe/api",
		"API_PSP_DEFAULT_PROVIDER":      "Stripe",
		"API_PSP_CURRENCY_ROUTES":       "NGN=paystack, USD=stripe",
		"API_CHECKOUT_CURRENCY":         "usd",
		"API_CHECKOUT_CONFIRMATION_URL": "https://pay.example.com/done",
		"API_SESSION_SIGNING_SECRET":    "secret://session/signing",
		"API_SESSION_COOKIE_NAME":       "wizard_session",
		"API_SESSION_TTL":               "72h",
		"API_EVENTS_PAYMENT_TOPIC":      "payments-prod",
	}

	secrets := map[string]string{
		"secret://paystack/secret": "sk_live_abc",
		"secret://stripe/api":      "stripe-key",
		"secret://session/signing": "signing-key",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.EmulatorHost != "localhost:8200" {
		t.Errorf("unexpected emulator host %s", cfg.Firestore.EmulatorHost)
	}
	if cfg.PSP.PaystackSecretKey != "sk_live_abc" {
		t.Errorf("expected resolved paystack secret, got %s", cfg.PSP.PaystackSecretKey)
	}
	if cfg.PSP.StripeAPIKey != "stripe-key" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.PSP.StripeAPIKey)
	}
	if cfg.PSP.DefaultProvider != "stripe" {
		t.Errorf("expected lowercased default provider, got %s", cfg.PSP.DefaultProvider)
	}
	if got := cfg.PSP.CurrencyRoutes["ngn"]; got != "paystack" {
		t.Errorf("expected ngn route paystack, got %s", got)
	}
	if got := cfg.PSP.CurrencyRoutes["usd"]; got != "stripe" {
		t.Errorf("expected usd route stripe, got %s", got)
	}
	if cfg.Checkout.Currency != "USD" {
		t.Errorf("expected uppercased currency USD, got %s", cfg.Checkout.Currency)
	}
	if cfg.Checkout.ConfirmationURL != "https://pay.example.com/done" {
		t.Errorf("unexpected confirmation url %s", cfg.Checkout.ConfirmationURL)
	}
	if cfg.Session.SigningSecret != "signing-key" {
		t.Errorf("expected resolved signing secret, got %s", cfg.Session.SigningSecret)
	}
	if cfg.Session.CookieName != "wizard_session" {
		t.Errorf("unexpected cookie name %s", cfg.Session.CookieName)
	}
	if cfg.Session.TTL != 72*time.Hour {
		t.Errorf("unexpected session ttl %s", cfg.Session.TTL)
	}
	if cfg.Events.PaymentTopic != "payments-prod" {
		t.Errorf("unexpected events topic %s", cfg.Events.PaymentTopic)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIRESTORE_PROJECT_ID=formflow-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "formflow-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID":    "formflow-dev",
		"API_PSP_PAYSTACK_SECRET_KEY": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIRESTORE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS":  "secret://paystack/secret=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["API_SECRET_VERSION_PINS"]; got != "secret://paystack/secret=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "formflow-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.PaystackSecretKey"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("PSP.PaystackSecretKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "formflow-dev",
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "PSP.PaystackSecretKey" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.PaystackSecretKey"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID":   "formflow-dev",
		"API_SESSION_SIGNING_SECRET": "sm://session/signing",
	}

	secrets := map[string]string{
		"secret://session/signing": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Session.SigningSecret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Session.SigningSecret)
	}
}

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"golang.org/x/text/language"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout <= cfg.Checkout.ProcessingTimeout {
		t.Errorf("write timeout %s must exceed processing timeout %s", cfg.Server.WriteTimeout, cfg.Checkout.ProcessingTimeout)
	}
	if cfg.Merchant.Name != "Minha Empresa" {
		t.Errorf("unexpected merchant name %q", cfg.Merchant.Name)
	}
	if cfg.Merchant.Document != "00000000000100" {
		t.Errorf("unexpected merchant document %q", cfg.Merchant.Document)
	}
	if cfg.Merchant.Locale != language.BrazilianPortuguese {
		t.Errorf("expected pt-BR locale, got %s", cfg.Merchant.Locale)
	}
	if cfg.Merchant.Currency.String() != "BRL" {
		t.Errorf("expected BRL currency, got %s", cfg.Merchant.Currency)
	}
	if cfg.Merchant.Location().String() != "America/Sao_Paulo" {
		t.Errorf("unexpected merchant location %s", cfg.Merchant.Location())
	}
	if cfg.Checkout.ProcessingDelay != 2*time.Second {
		t.Errorf("unexpected processing delay: %s", cfg.Checkout.ProcessingDelay)
	}
	if cfg.Checkout.SeedDemoCart {
		t.Errorf("expected demo seed disabled by default")
	}
	if cfg.Payments.DefaultProvider != "terminal" {
		t.Errorf("unexpected default provider %s", cfg.Payments.DefaultProvider)
	}
	if cfg.Payments.MethodRoutes["cash"] != "drawer" {
		t.Errorf("expected cash routed to drawer, got %v", cfg.Payments.MethodRoutes)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 24*time.Hour {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("unexpected metrics config %+v", cfg.Metrics)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"PDV_SERVER_PORT":                 "9090",
		"PDV_SERVER_IDLE_TIMEOUT":         "2m",
		"PDV_MERCHANT_NAME":               "Loja Centro",
		"PDV_MERCHANT_DOCUMENT":           "12.345.678/0001-95",
		"PDV_MERCHANT_WEBSITE":            "www.lojacentro.com.br",
		"PDV_MERCHANT_TIMEZONE":           "UTC",
		"PDV_MERCHANT_LOCALE":             "pt-PT",
		"PDV_MERCHANT_CURRENCY":           "eur",
		"PDV_CHECKOUT_PROCESSING_DELAY":   "500ms",
		"PDV_CHECKOUT_PROCESSING_TIMEOUT": "5s",
		"PDV_CHECKOUT_SEED_DEMO_CART":     "yes",
		"PDV_CATALOG_FILE":                "/etc/pdv/catalog.yaml",
		"PDV_PAYMENTS_METHOD_ROUTES":      "cash=drawer, PIX=Terminal,broken",
		"PDV_PAYMENTS_BREAKER_FAILURES":   "3",
		"PDV_IDEMPOTENCY_HEADER":          "X-Idem-Key",
		"PDV_IDEMPOTENCY_CLEANUP_BATCH":   "500",
		"PDV_METRICS_ENABLED":             "off",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Merchant.Document != "12345678000195" {
		t.Errorf("expected document digits, got %s", cfg.Merchant.Document)
	}
	if cfg.Merchant.Currency.String() != "EUR" {
		t.Errorf("expected EUR, got %s", cfg.Merchant.Currency)
	}
	if cfg.Checkout.ProcessingDelay != 500*time.Millisecond {
		t.Errorf("unexpected processing delay %s", cfg.Checkout.ProcessingDelay)
	}
	if !cfg.Checkout.SeedDemoCart {
		t.Errorf("expected demo seed enabled")
	}
	if cfg.Catalog.File != "/etc/pdv/catalog.yaml" {
		t.Errorf("unexpected catalog file %s", cfg.Catalog.File)
	}
	if len(cfg.Payments.MethodRoutes) != 2 || cfg.Payments.MethodRoutes["pix"] != "terminal" {
		t.Errorf("unexpected method routes %v", cfg.Payments.MethodRoutes)
	}
	if cfg.Payments.BreakerFailures != 3 {
		t.Errorf("unexpected breaker failures %d", cfg.Payments.BreakerFailures)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
	if cfg.Metrics.Enabled {
		t.Errorf("expected metrics disabled")
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local register\nPDV_SERVER_PORT=7070\nexport PDV_MERCHANT_NAME=\"Loja Dot\"\n"
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
	if cfg.Merchant.Name != "Loja Dot" {
		t.Errorf("expected merchant name from dotenv, got %q", cfg.Merchant.Name)
	}
}

func TestLoadEnvMapOverridesSystemAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("PDV_SERVER_PORT=7070\nPDV_MERCHANT_NAME=Dot\n"), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}
	t.Setenv("PDV_SERVER_PORT", "6060")
	t.Setenv("PDV_MERCHANT_WEBSITE", "os.example.com")

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithEnvMap(map[string]string{"PDV_SERVER_PORT": "5050"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "5050" {
		t.Fatalf("expected explicit map to win, got %s", cfg.Server.Port)
	}
	if cfg.Merchant.Website != "os.example.com" {
		t.Fatalf("expected system env to beat dotenv, got %s", cfg.Merchant.Website)
	}
	if cfg.Merchant.Name != "Dot" {
		t.Fatalf("expected dotenv fallback, got %s", cfg.Merchant.Name)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "absent.env")), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	env := map[string]string{
		"PDV_SERVER_PORT":                 "http",
		"PDV_MERCHANT_DOCUMENT":           "123",
		"PDV_MERCHANT_TIMEZONE":           "Mars/Olympus",
		"PDV_MERCHANT_LOCALE":             "not a locale!",
		"PDV_MERCHANT_CURRENCY":           "XYZ",
		"PDV_CHECKOUT_PROCESSING_DELAY":   "3s",
		"PDV_CHECKOUT_PROCESSING_TIMEOUT": "1s",
		"PDV_PAYMENTS_BREAKER_FAILURES":   "0",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	fields := validation.Fields()
	for _, want := range []string{
		"Server.Port",
		"Merchant.Document",
		"Merchant.Timezone",
		"Merchant.Locale",
		"Merchant.Currency",
		"Checkout.ProcessingTimeout",
		"Payments.BreakerFailures",
	} {
		if !slices.Contains(fields, want) {
			t.Errorf("expected %s in invalid fields %v", want, fields)
		}
	}
}

func TestLoadReportsMalformedValues(t *testing.T) {
	env := map[string]string{
		"PDV_SERVER_READ_TIMEOUT":       "soon",
		"PDV_CHECKOUT_SEED_DEMO_CART":   "maybe",
		"PDV_IDEMPOTENCY_CLEANUP_BATCH": "lots",
		"PDV_SERVER_PORT":               "70000",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	want := []string{"Server.ReadTimeout", "Checkout.SeedDemoCart", "Idempotency.CleanupBatchSize", "Server.Port"}
	fields := validation.Fields()
	for _, field := range want {
		if !slices.Contains(fields, field) {
			t.Errorf("expected %s in invalid fields %v", field, fields)
		}
	}
	if len(fields) != len(want) {
		t.Errorf("expected each field reported once, got %v", fields)
	}
}

func TestLoadRejectsWriteTimeoutWithinProcessingTimeout(t *testing.T) {
	env := map[string]string{
		"PDV_SERVER_WRITE_TIMEOUT":        "30s",
		"PDV_CHECKOUT_PROCESSING_TIMEOUT": "30s",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fields := validation.Fields(); !slices.Equal(fields, []string{"Server.WriteTimeout"}) {
		t.Fatalf("expected only Server.WriteTimeout, got %v", fields)
	}
}

func TestLoadBlankValueFallsBackToDefault(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{"PDV_SERVER_PORT": "  "}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port, got %s", cfg.Server.Port)
	}
}

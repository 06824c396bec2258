package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

const envPrefix = "PDV_"

var defaults = map[string]string{
	"SERVER_PORT":                  "8080",
	"SERVER_READ_TIMEOUT":          "15s",
	"SERVER_WRITE_TIMEOUT":         "45s",
	"SERVER_IDLE_TIMEOUT":          "2m",
	"MERCHANT_NAME":                "Minha Empresa",
	"MERCHANT_DOCUMENT":            "00000000000100",
	"MERCHANT_WEBSITE":             "www.minhaempresa.com",
	"MERCHANT_FOOTER":              "Obrigado pela preferência!",
	"MERCHANT_TIMEZONE":            "America/Sao_Paulo",
	"MERCHANT_LOCALE":              "pt-BR",
	"MERCHANT_CURRENCY":            "BRL",
	"CHECKOUT_PROCESSING_DELAY":    "2s",
	"CHECKOUT_PROCESSING_TIMEOUT":  "30s",
	"CHECKOUT_RETENTION":           "24h",
	"CHECKOUT_SWEEP_INTERVAL":      "10m",
	"CHECKOUT_SEED_DEMO_CART":      "false",
	"PAYMENTS_DEFAULT_PROVIDER":    "terminal",
	"PAYMENTS_METHOD_ROUTES":       "cash=drawer",
	"PAYMENTS_BREAKER_FAILURES":    "5",
	"PAYMENTS_BREAKER_TIMEOUT":     "30s",
	"IDEMPOTENCY_HEADER":           "Idempotency-Key",
	"IDEMPOTENCY_TTL":              "24h",
	"IDEMPOTENCY_CLEANUP_INTERVAL": "1h",
	"IDEMPOTENCY_CLEANUP_BATCH":    "200",
	"METRICS_ENABLED":              "true",
	"METRICS_PATH":                 "/metrics",
}

// Option customises Load.
type Option func(*sources)

// sources are consulted in order: explicit map, process environment, .env file.
type sources struct {
	explicit  map[string]string
	systemEnv bool
	envFile   string
	dotEnv    map[string]string
}

// WithEnvFile reads overrides from path instead of ./.env. An empty path disables the file.
func WithEnvFile(path string) Option {
	return func(s *sources) { s.envFile = path }
}

// WithEnvMap supplies PDV_* values that win over the process environment and the .env file.
func WithEnvMap(values map[string]string) Option {
	return func(s *sources) { s.explicit = maps.Clone(values) }
}

// WithoutSystemEnv stops Load from consulting the process environment.
func WithoutSystemEnv() Option {
	return func(s *sources) { s.systemEnv = false }
}

func (s *sources) get(name string) string {
	key := envPrefix + name
	if v, ok := s.explicit[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if s.systemEnv {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(s.dotEnv[key]); v != "" {
		return v
	}
	return defaults[name]
}

// Load resolves every setting and validates the result. Malformed and out-of-range values
// are collected into a single *ValidationError.
func Load(_ context.Context, opts ...Option) (Config, error) {
	src := &sources{systemEnv: true, envFile: ".env"}
	for _, opt := range opts {
		if opt != nil {
			opt(src)
		}
	}
	dotEnv, err := readDotEnv(src.envFile)
	if err != nil {
		return Config{}, err
	}
	src.dotEnv = dotEnv

	r := &reader{src: src}
	cfg := Config{
		Server: ServerConfig{
			Port:         r.str("SERVER_PORT"),
			ReadTimeout:  r.duration("SERVER_READ_TIMEOUT", "Server.ReadTimeout"),
			WriteTimeout: r.duration("SERVER_WRITE_TIMEOUT", "Server.WriteTimeout"),
			IdleTimeout:  r.duration("SERVER_IDLE_TIMEOUT", "Server.IdleTimeout"),
		},
		Merchant: MerchantConfig{
			Name:     r.str("MERCHANT_NAME"),
			Document: keepDigits(r.str("MERCHANT_DOCUMENT")),
			Website:  r.str("MERCHANT_WEBSITE"),
			Footer:   r.str("MERCHANT_FOOTER"),
			Timezone: r.str("MERCHANT_TIMEZONE"),
			Locale:   r.locale("MERCHANT_LOCALE", "Merchant.Locale"),
			Currency: r.currency("MERCHANT_CURRENCY", "Merchant.Currency"),
		},
		Checkout: CheckoutConfig{
			ProcessingDelay:   r.duration("CHECKOUT_PROCESSING_DELAY", "Checkout.ProcessingDelay"),
			ProcessingTimeout: r.duration("CHECKOUT_PROCESSING_TIMEOUT", "Checkout.ProcessingTimeout"),
			Retention:         r.duration("CHECKOUT_RETENTION", "Checkout.Retention"),
			SweepInterval:     r.duration("CHECKOUT_SWEEP_INTERVAL", "Checkout.SweepInterval"),
			SeedDemoCart:      r.boolean("CHECKOUT_SEED_DEMO_CART", "Checkout.SeedDemoCart"),
		},
		Catalog: CatalogConfig{File: r.str("CATALOG_FILE")},
		Payments: PaymentsConfig{
			DefaultProvider: strings.ToLower(r.str("PAYMENTS_DEFAULT_PROVIDER")),
			MethodRoutes:    parseRoutes(r.str("PAYMENTS_METHOD_ROUTES")),
			BreakerFailures: r.integer("PAYMENTS_BREAKER_FAILURES", "Payments.BreakerFailures"),
			BreakerTimeout:  r.duration("PAYMENTS_BREAKER_TIMEOUT", "Payments.BreakerTimeout"),
		},
		Idempotency: IdempotencyConfig{
			Header:           r.str("IDEMPOTENCY_HEADER"),
			TTL:              r.duration("IDEMPOTENCY_TTL", "Idempotency.TTL"),
			CleanupInterval:  r.duration("IDEMPOTENCY_CLEANUP_INTERVAL", "Idempotency.CleanupInterval"),
			CleanupBatchSize: r.integer("IDEMPOTENCY_CLEANUP_BATCH", "Idempotency.CleanupBatchSize"),
		},
		Metrics: MetricsConfig{
			Enabled: r.boolean("METRICS_ENABLED", "Metrics.Enabled"),
			Path:    r.str("METRICS_PATH"),
		},
	}

	if bad := validate(cfg, r.malformed); len(bad) > 0 {
		return Config{}, &ValidationError{fields: bad}
	}
	return cfg, nil
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

// reader converts raw values, remembering the fields that failed to parse.
type reader struct {
	src       *sources
	malformed []string
}

func (r *reader) str(name string) string { return r.src.get(name) }

func (r *reader) fail(field string) { r.malformed = append(r.malformed, field) }

func (r *reader) duration(name, field string) time.Duration {
	d, err := time.ParseDuration(r.src.get(name))
	if err != nil {
		r.fail(field)
	}
	return d
}

func (r *reader) integer(name, field string) int {
	n, err := strconv.Atoi(r.src.get(name))
	if err != nil {
		r.fail(field)
	}
	return n
}

func (r *reader) boolean(name, field string) bool {
	switch strings.ToLower(r.src.get(name)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	r.fail(field)
	return false
}

func (r *reader) locale(name, field string) language.Tag {
	tag, err := language.Parse(r.src.get(name))
	if err != nil {
		r.fail(field)
	}
	return tag
}

func (r *reader) currency(name, field string) currency.Unit {
	unit, err := currency.ParseISO(strings.ToUpper(r.src.get(name)))
	if err != nil {
		r.fail(field)
	}
	return unit
}

// parseRoutes reads "method=provider" pairs separated by commas, lower-cased. Pairs missing
// either side are skipped.
func parseRoutes(raw string) map[string]string {
	routes := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		method, provider, ok := strings.Cut(pair, "=")
		method = strings.ToLower(strings.TrimSpace(method))
		provider = strings.ToLower(strings.TrimSpace(provider))
		if ok && method != "" && provider != "" {
			routes[method] = provider
		}
	}
	return routes
}

func keepDigits(value string) string {
	return strings.Map(func(r rune) rune {
		if r < '0' || r > '9' {
			return -1
		}
		return r
	}, value)
}

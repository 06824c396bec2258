// Package config loads register settings from PDV_* environment variables, an optional
// .env file and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// Config is the full register configuration.
type Config struct {
	Server      ServerConfig
	Merchant    MerchantConfig
	Checkout    CheckoutConfig
	Catalog     CatalogConfig
	Payments    PaymentsConfig
	Idempotency IdempotencyConfig
	Metrics     MetricsConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// MerchantConfig describes the store printed on receipts.
type MerchantConfig struct {
	Name     string
	Document string
	Website  string
	// Footer is markdown rendered at the bottom of HTML receipts.
	Footer   string
	Timezone string
	Locale   language.Tag
	Currency currency.Unit
}

// Location resolves the merchant timezone, falling back to UTC.
func (m MerchantConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(m.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// CheckoutConfig controls the sale finalizer and checkout registry.
type CheckoutConfig struct {
	ProcessingDelay   time.Duration
	ProcessingTimeout time.Duration
	Retention         time.Duration
	SweepInterval     time.Duration
	SeedDemoCart      bool
}

// CatalogConfig points at an optional YAML product catalog.
type CatalogConfig struct {
	File string
}

// PaymentsConfig configures processor routing and the circuit breaker.
type PaymentsConfig struct {
	DefaultProvider string
	MethodRoutes    map[string]string
	BreakerFailures int
	BreakerTimeout  time.Duration
}

type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// ValidationError lists every config field that was malformed or out of range.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid fields: %s", strings.Join(e.fields, ", "))
}

// Fields names the offending fields, e.g. "Server.Port".
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

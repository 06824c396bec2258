package config

import (
	"strconv"
	"strings"
	"time"
)

// validate appends range and consistency failures to the fields that already failed to
// parse. A field is reported once.
func validate(cfg Config, malformed []string) []string {
	bad := append([]string(nil), malformed...)
	check := func(ok bool, field string) {
		if !ok && !containsField(bad, field) {
			bad = append(bad, field)
		}
	}

	port, err := strconv.Atoi(cfg.Server.Port)
	check(err == nil && port > 0 && port <= 65535, "Server.Port")
	check(cfg.Server.ReadTimeout > 0, "Server.ReadTimeout")
	check(cfg.Server.WriteTimeout > 0, "Server.WriteTimeout")

	check(strings.TrimSpace(cfg.Merchant.Name) != "", "Merchant.Name")
	check(len(cfg.Merchant.Document) == 11 || len(cfg.Merchant.Document) == 14, "Merchant.Document")
	_, err = time.LoadLocation(cfg.Merchant.Timezone)
	check(err == nil, "Merchant.Timezone")

	check(cfg.Checkout.ProcessingDelay >= 0, "Checkout.ProcessingDelay")
	check(cfg.Checkout.ProcessingTimeout > cfg.Checkout.ProcessingDelay, "Checkout.ProcessingTimeout")
	// A waiting finalize must be able to write its 504 before the server cuts the response.
	check(cfg.Server.WriteTimeout > cfg.Checkout.ProcessingTimeout, "Server.WriteTimeout")
	check(cfg.Checkout.Retention > 0, "Checkout.Retention")
	check(cfg.Checkout.SweepInterval > 0, "Checkout.SweepInterval")

	check(cfg.Payments.DefaultProvider != "", "Payments.DefaultProvider")
	check(cfg.Payments.BreakerFailures > 0, "Payments.BreakerFailures")
	check(cfg.Payments.BreakerTimeout > 0, "Payments.BreakerTimeout")

	check(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	check(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	check(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	check(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")

	check(!cfg.Metrics.Enabled || strings.HasPrefix(cfg.Metrics.Path, "/"), "Metrics.Path")
	return bad
}

func containsField(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

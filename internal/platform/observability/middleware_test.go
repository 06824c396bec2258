package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/erp-saas/pdv/internal/platform/requestctx"
)

func TestTerminalMiddlewareStoresHeader(t *testing.T) {
	var got string
	handler := TerminalMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestctx.Terminal(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestctx.TerminalHeader, "  caixa-01 ")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "caixa-01" {
		t.Fatalf("expected terminal caixa-01, got %q", got)
	}
}

func TestTraceMiddlewareKeepsInboundTraceID(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var got string
	handler := TraceMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestctx.TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkouts", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got != traceID {
		t.Fatalf("expected trace id %s, got %q", traceID, got)
	}
	if rr.Header().Get("traceparent") == "" {
		t.Fatalf("expected traceparent response header")
	}
}

func TestRecoveryMiddlewareWritesJSONError(t *testing.T) {
	handler := RecoveryMiddleware(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %s", ct)
	}
}

func TestSanitizeRouteStripsControlCharacters(t *testing.T) {
	if got := SanitizeRoute("/a\x00b"); got != "/ab" {
		t.Fatalf("unexpected sanitized route %q", got)
	}
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected root route, got %q", got)
	}
}

func TestSanitizeTerminalID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: " caixa-01 ", want: "caixa-01"},
		{in: "loja_2.caixa-3", want: "loja_2.caixa-3"},
		{in: "caixa 01", want: ""},
		{in: "caixa\n01", want: ""},
		{in: "ção", want: ""},
		{in: "abcdefghijklmnopqrstuvwxyz0123456", want: ""},
	}
	for _, tt := range tests {
		if got := SanitizeTerminalID(tt.in); got != tt.want {
			t.Errorf("SanitizeTerminalID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTerminalMiddlewareIgnoresMalformedHeader(t *testing.T) {
	var got string
	handler := TerminalMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestctx.Terminal(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestctx.TerminalHeader, "caixa 01; drop")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "" {
		t.Fatalf("expected malformed terminal to be ignored, got %q", got)
	}
}

func TestRequestLoggerLogsCheckoutRoute(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)), TerminalMiddleware(), RequestLoggerMiddleware())
	router.Post("/api/v1/checkouts/{checkoutId}/finalize", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkouts/chk-1/finalize", nil)
	req.Header.Set(requestctx.TerminalHeader, "caixa-01")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for 422, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["route"] != "/api/v1/checkouts/{checkoutId}/finalize" {
		t.Fatalf("unexpected route field %v", fields["route"])
	}
	if fields["checkout_id"] != "chk-1" || fields["terminal_id"] != "caixa-01" {
		t.Fatalf("expected checkout and terminal fields, got %v", fields)
	}
	if fields["status"] != int64(http.StatusUnprocessableEntity) {
		t.Fatalf("unexpected status field %v", fields["status"])
	}
}

func TestEventLoggerLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := EventLogger(zap.New(core), "checkout")

	log(context.Background(), "checkout.processing_failed", map[string]any{"checkoutID": "chk-1", "attempt": 2})
	log(context.Background(), "checkout.sale_completed", nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[1].Level != zapcore.InfoLevel {
		t.Fatalf("unexpected levels %s, %s", entries[0].Level, entries[1].Level)
	}
	fields := entries[0].ContextMap()
	if fields["event"] != "checkout.processing_failed" || fields["checkoutID"] != "chk-1" {
		t.Fatalf("unexpected fields %v", fields)
	}

	reqCore, reqLogs := observer.New(zapcore.DebugLevel)
	ctx := WithLogger(context.Background(), zap.New(reqCore))
	log(ctx, "checkout.opened", nil)
	if reqLogs.Len() != 1 || reqLogs.All()[0].LoggerName != "checkout" {
		t.Fatalf("expected request logger named checkout to receive the event")
	}
}

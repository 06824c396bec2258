package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/erp-saas/pdv/internal/payments"
	"github.com/erp-saas/pdv/internal/platform/httpx"
	"github.com/erp-saas/pdv/internal/services"
)

const (
	maxCheckoutBodySize = 8 * 1024
	defaultCurrency     = "BRL"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

// CheckoutHandlers exposes the register checkout endpoints.
type CheckoutHandlers struct {
	checkouts   services.CheckoutService
	currency    string
	seedDemo    bool
	finalizeMWs []func(http.Handler) http.Handler
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutCurrency sets the ISO code used for display amounts.
func WithCheckoutCurrency(code string) CheckoutOption {
	return func(h *CheckoutHandlers) {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			h.currency = code
		}
	}
}

// WithDemoCartByDefault seeds new checkouts with the demo cart unless the request says otherwise.
func WithDemoCartByDefault(enabled bool) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.seedDemo = enabled
	}
}

// WithFinalizeMiddlewares wraps only the finalize route, e.g. with idempotency.
func WithFinalizeMiddlewares(mw ...func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		for _, m := range mw {
			if m != nil {
				h.finalizeMWs = append(h.finalizeMWs, m)
			}
		}
	}
}

// NewCheckoutHandlers constructs handlers delegating to the checkout service.
func NewCheckoutHandlers(checkouts services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		checkouts: checkouts,
		currency:  defaultCurrency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /checkouts endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.openCheckout)
	r.Route("/{checkoutId}", func(r chi.Router) {
		r.Get("/", h.getCheckout)
		r.Delete("/", h.discardCheckout)

		r.Post("/lines", h.addLine)
		r.Delete("/lines", h.clearCart)
		r.Post("/lines/{lineId}:increment", h.incrementLine)
		r.Post("/lines/{lineId}:decrement", h.decrementLine)
		r.Delete("/lines/{lineId}", h.removeLine)

		r.Put("/discount", h.setDiscount)
		r.Put("/payment", h.selectPayment)
		r.Put("/customer", h.setCustomer)
		r.Delete("/customer", h.clearCustomer)

		r.With(h.finalizeMWs...).Post("/finalize", h.finalize)
		r.Get("/receipt", h.receipt)
	})
}

type openCheckoutRequest struct {
	SeedDemoCart *bool `json:"seedDemoCart"`
}

type addLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type discountRequest struct {
	Percent *float64 `json:"percent"`
}

type paymentRequest struct {
	Method         string `json:"method"`
	AmountTendered *int64 `json:"amountTendered"`
}

type customerRequest struct {
	Name         string `json:"name"`
	Document     string `json:"document"`
	DocumentKind string `json:"documentKind"`
	Phone        string `json:"phone"`
}

func (h *CheckoutHandlers) openCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}

	var req openCheckoutRequest
	if !h.decodeOptional(ctx, w, r, &req) {
		return
	}

	seed := h.seedDemo
	if req.SeedDemoCart != nil {
		seed = *req.SeedDemoCart
	}
	snap, err := h.checkouts.Open(ctx, services.OpenCheckoutCommand{SeedDemoCart: seed})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+snap.ID)
	h.writeCheckout(w, http.StatusCreated, snap)
}

func (h *CheckoutHandlers) getCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	snap, err := h.checkouts.Get(ctx, chi.URLParam(r, "checkoutId"))
	h.respond(ctx, w, snap, err)
}

func (h *CheckoutHandlers) discardCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	if err := h.checkouts.Discard(ctx, chi.URLParam(r, "checkoutId")); err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CheckoutHandlers) addLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req addLineRequest
	if !h.decodeRequired(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}
	snap, err := h.checkouts.AddProduct(ctx, services.AddProductCommand{
		CheckoutID: chi.URLParam(r, "checkoutId"),
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
	})
	h.respond(ctx, w, snap, err)
}

func (h *CheckoutHandlers) incrementLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	snap, err := h.checkouts.IncrementLine(ctx, chi.URLParam(r, "checkoutId"), chi.URLParam(r, "lineId"))
	h.respond(ctx, w, snap, err)
}

func (h *CheckoutHandlers) decrementLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	snap, err := h.checkouts.DecrementLine(ctx, chi.URLParam(r, "checkoutId"), chi.URLParam(r, "lineId"))
	h.respond(ctx, w, snap, err)
}

func (h *CheckoutHandlers) removeLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	snap, err := h.checkouts.RemoveLine(ctx, chi.URLParam(r, "checkoutId"), chi.URLParam(r, "lineId"))
	h.respond(ctx, w, snap, err)
}

func (h *CheckoutHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	snap, err := h.checkouts.ClearCart(ctx, chi.URLParam(r, "checkoutId"))
	h.respond(ctx, w, snap, err)
}

func (h *CheckoutHandlers) setDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req discountRequest
	if !h.decodeRequired(ctx, w, r, &req) {
		return
	}
	if req.Percent == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "percent is required", http.StatusBadRequest))
		return
	}
	snap, err := h.checkouts.SetDiscount(ctx, chi.URLParam(r, "checkoutId"), *req.Percent)
	h.respond(ctx, w, snap, err)
}

func (h *CheckoutHandlers) selectPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req paymentRequest
	if !h.decodeRequired(ctx, w, r, &req) {
		return
	}
	snap, err := h.checkouts.SelectPayment(ctx, services.SelectPaymentCommand{
		CheckoutID:     chi.URLParam(r, "checkoutId"),
		Method:         req.Method,
		AmountTendered: req.AmountTendered,
	})
	h.respond(ctx, w, snap, err)
}

func (h *CheckoutHandlers) setCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req customerRequest
	if !h.decodeRequired(ctx, w, r, &req) {
		return
	}
	snap, err := h.checkouts.SetCustomer(ctx, services.SetCustomerCommand{
		CheckoutID:   chi.URLParam(r, "checkoutId"),
		Name:         req.Name,
		Document:     req.Document,
		DocumentKind: req.DocumentKind,
		Phone:        req.Phone,
	})
	h.respond(ctx, w, snap, err)
}

func (h *CheckoutHandlers) clearCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	snap, err := h.checkouts.ClearCustomer(ctx, chi.URLParam(r, "checkoutId"))
	h.respond(ctx, w, snap, err)
}

func (h *CheckoutHandlers) finalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}

	wait := false
	if raw := strings.TrimSpace(r.URL.Query().Get("wait")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "wait must be a boolean", http.StatusBadRequest))
			return
		}
		wait = parsed
	}

	outcome, err := h.checkouts.Finalize(ctx, services.FinalizeCommand{
		CheckoutID: chi.URLParam(r, "checkoutId"),
		Wait:       wait,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if outcome.Checkout.State == services.StateProcessing {
		status = http.StatusAccepted
	}
	writeJSONResponse(w, status, finalizeResponse{
		Accepted: outcome.Accepted,
		Checkout: buildCheckoutPayload(outcome.Checkout, h.currency),
	})
}

func (h *CheckoutHandlers) receipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	format := services.ReceiptFormat(r.URL.Query().Get("format"))
	receipt, err := h.checkouts.Receipt(ctx, chi.URLParam(r, "checkoutId"), format)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", receipt.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Sale-ID", receipt.SaleID)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, receipt.Body)
}

func (h *CheckoutHandlers) available(ctx context.Context, w http.ResponseWriter) bool {
	if h == nil || h.checkouts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *CheckoutHandlers) respond(ctx context.Context, w http.ResponseWriter, snap services.CheckoutSnapshot, err error) {
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	h.writeCheckout(w, http.StatusOK, snap)
}

func (h *CheckoutHandlers) writeCheckout(w http.ResponseWriter, status int, snap services.CheckoutSnapshot) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, status, checkoutResponse{Checkout: buildCheckoutPayload(snap, h.currency)})
}

// decodeRequired parses a JSON body that must be present.
func (h *CheckoutHandlers) decodeRequired(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *CheckoutHandlers) decodeOptional(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if errors.Is(err, errEmptyBody) {
		return true
	}
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrNoMethodSelected):
		httpx.WriteError(ctx, w, httpx.NewError("no_method_selected", "select a payment method", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrInsufficientCash):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_cash", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no items", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_not_found", "checkout not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCartLineNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("line_not_found", "cart line not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutBusy):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_busy", "checkout is processing a payment", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutClosed):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_closed", "checkout already completed", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutNotCompleted):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_not_completed", "sale has not been completed", http.StatusConflict))
	case errors.Is(err, services.ErrCartInvalidDiscount):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_discount", "percent must be between 0 and 100", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentUnsupportedMethod):
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_payment_method", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentInvalidAmount):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_amount_tendered", "amountTendered must not be negative", http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_customer", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutInvalidInput), errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, payments.ErrProcessorUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_unavailable", "payment provider is unavailable, retry later", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", err.Error(), http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_timeout", "payment is still processing", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout request failed", http.StatusInternalServerError))
	}
}

// CatalogHandlers exposes the product lookup endpoints.
type CatalogHandlers struct {
	checkouts services.CheckoutService
	currency  string
}

// NewCatalogHandlers constructs catalog handlers; products are resolved through the checkout service.
func NewCatalogHandlers(checkouts services.CheckoutService, currency string) *CatalogHandlers {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = defaultCurrency
	}
	return &CatalogHandlers{checkouts: checkouts, currency: currency}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/popular", h.popular)
}

func (h *CatalogHandlers) popular(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h == nil || h.checkouts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}
	products, err := h.checkouts.PopularProducts(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, productsResponse{Items: buildProductPayloads(products, h.currency)})
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxCheckoutBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package services

import (
	"errors"
	"fmt"

	"github.com/erp-saas/pdv/internal/domain"
)

var (
	// ErrNoMethodSelected indicates checkout was attempted without a payment method.
	ErrNoMethodSelected = errors.New("payment: no method selected")
	// ErrPaymentUnsupportedMethod indicates a method outside the accepted set.
	ErrPaymentUnsupportedMethod = errors.New("payment: unsupported method")
	// ErrInsufficientCash indicates the cash tendered does not cover the total.
	ErrInsufficientCash = errors.New("payment: insufficient cash")
	// ErrPaymentInvalidAmount indicates a negative amount tendered.
	ErrPaymentInvalidAmount = errors.New("payment: invalid amount tendered")
)

// ValidatePayment decides whether a sale with the given total may proceed. Card and pix
// payments need no further checks; cash must cover the total.
func ValidatePayment(selection domain.PaymentSelection, total int64) error {
	switch {
	case selection.Method == domain.PaymentMethodNone:
		return ErrNoMethodSelected
	case !selection.Method.Valid():
		return fmt.Errorf("%w: %s", ErrPaymentUnsupportedMethod, selection.Method)
	case selection.Method != domain.PaymentMethodCash:
		return nil
	}

	if selection.AmountTendered == nil {
		return fmt.Errorf("%w: amount tendered is required, %d missing", ErrInsufficientCash, total)
	}
	tendered := *selection.AmountTendered
	if tendered < total {
		return fmt.Errorf("%w: %d missing", ErrInsufficientCash, total-tendered)
	}
	return nil
}

// ComputeChange returns the change due for a cash payment, never negative.
func ComputeChange(total, tendered int64) int64 {
	if tendered <= total {
		return 0
	}
	return tendered - total
}

package services

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/erp-saas/pdv/internal/domain"
)

var (
	// ErrCartInvalidInput signals bad line data such as a missing product id or negative price.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartLineNotFound indicates the referenced line does not exist in the cart.
	ErrCartLineNotFound = errors.New("cart: line not found")
	// ErrCartInvalidDiscount indicates a discount outside the 0-100 range.
	ErrCartInvalidDiscount = errors.New("cart: invalid discount")
)

// AddLine appends a line for product, or bumps the quantity of an existing line with the same
// product id. A zero quantity adds one unit. The input cart is never modified.
func AddLine(cart domain.Cart, product domain.Product, quantity int) (domain.Cart, error) {
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return cart, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if product.UnitPrice < 0 {
		return cart, fmt.Errorf("%w: product %s has a negative price", ErrCartInvalidInput, productID)
	}
	if quantity < 0 {
		return cart, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}
	if quantity == 0 {
		quantity = 1
	}

	out := cart.Clone()
	for i := range out.Lines {
		if out.Lines[i].ID != productID {
			continue
		}
		if out.Lines[i].Quantity > math.MaxInt32-quantity {
			return cart, fmt.Errorf("%w: quantity overflow for %s", ErrCartInvalidInput, productID)
		}
		out.Lines[i].Quantity += quantity
		return out, nil
	}

	out.Lines = append(out.Lines, domain.CartLine{
		ID:        productID,
		ProductID: productID,
		SKU:       strings.TrimSpace(product.SKU),
		Name:      strings.TrimSpace(product.Name),
		UnitPrice: product.UnitPrice,
		Quantity:  quantity,
	})
	return out, nil
}

// IncrementQuantity adds exactly one unit to the line.
func IncrementQuantity(cart domain.Cart, lineID string) (domain.Cart, error) {
	return updateLine(cart, lineID, func(line *domain.CartLine) error {
		if line.Quantity >= math.MaxInt32 {
			return fmt.Errorf("%w: quantity overflow for %s", ErrCartInvalidInput, line.ID)
		}
		line.Quantity++
		return nil
	})
}

// DecrementQuantity removes one unit. At quantity 1 it is a no-op; use RemoveLine to delete.
func DecrementQuantity(cart domain.Cart, lineID string) (domain.Cart, error) {
	return updateLine(cart, lineID, func(line *domain.CartLine) error {
		if line.Quantity > 1 {
			line.Quantity--
		}
		return nil
	})
}

// RemoveLine deletes the line unconditionally.
func RemoveLine(cart domain.Cart, lineID string) (domain.Cart, error) {
	idx := lineIndex(cart, lineID)
	if idx < 0 {
		return cart, ErrCartLineNotFound
	}
	out := domain.Cart{DiscountPercent: cart.DiscountPercent}
	out.Lines = make([]domain.CartLine, 0, len(cart.Lines)-1)
	out.Lines = append(out.Lines, cart.Lines[:idx]...)
	out.Lines = append(out.Lines, cart.Lines[idx+1:]...)
	return out, nil
}

// ClearCart drops every line and keeps the discount.
func ClearCart(cart domain.Cart) domain.Cart {
	return domain.Cart{DiscountPercent: cart.DiscountPercent}
}

// SetDiscount replaces the discount percentage.
func SetDiscount(cart domain.Cart, percent float64) (domain.Cart, error) {
	if math.IsNaN(percent) || math.IsInf(percent, 0) || percent < 0 || percent > 100 {
		return cart, fmt.Errorf("%w: %v", ErrCartInvalidDiscount, percent)
	}
	out := cart.Clone()
	out.DiscountPercent = percent
	return out, nil
}

// ComputeTotals derives subtotal, discount and total. The percentage is clamped into [0, 100]
// so the total never goes negative, and sums saturate instead of overflowing.
func ComputeTotals(cart domain.Cart) domain.CartTotals {
	var subtotal int64
	for _, line := range cart.Lines {
		lineTotal := line.LineTotal()
		if subtotal > math.MaxInt64-lineTotal {
			subtotal = math.MaxInt64
			continue
		}
		subtotal += lineTotal
	}

	percent := clampPercent(cart.DiscountPercent)
	var discount int64
	if raw := math.Round(float64(subtotal) * percent / 100); raw >= float64(subtotal) {
		discount = subtotal
	} else if raw > 0 {
		discount = int64(raw)
	}

	return domain.CartTotals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		Total:          subtotal - discount,
	}
}

func clampPercent(percent float64) float64 {
	switch {
	case math.IsNaN(percent), percent <= 0:
		return 0
	case percent >= 100:
		return 100
	default:
		return percent
	}
}

func updateLine(cart domain.Cart, lineID string, mutate func(*domain.CartLine) error) (domain.Cart, error) {
	idx := lineIndex(cart, lineID)
	if idx < 0 {
		return cart, ErrCartLineNotFound
	}
	out := cart.Clone()
	if err := mutate(&out.Lines[idx]); err != nil {
		return cart, err
	}
	return out, nil
}

func lineIndex(cart domain.Cart, lineID string) int {
	lineID = strings.TrimSpace(lineID)
	if lineID == "" {
		return -1
	}
	for i, line := range cart.Lines {
		if line.ID == lineID {
			return i
		}
	}
	return -1
}

// Package format renders Brazilian documents, phone numbers and money for display.
// Every function is total: malformed input yields a partially masked string.
package format

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"

	"github.com/erp-saas/pdv/internal/domain"
)

const (
	cpfDigits   = 11
	cnpjDigits  = 14
	phoneDigits = 11

	cpfMask         = "###.###.###-##"
	cnpjMask        = "##.###.###/####-##"
	landlineMask    = "(##) ####-####"
	mobileMask      = "(##) #####-####"
	maskPlaceholder = '#'
)

var currencySymbols = map[string]string{
	"BRL": "R$",
	"USD": "US$",
	"EUR": "€",
}

// Digits strips every non-digit rune.
func Digits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CPF masks up to 11 digits as 123.456.789-01.
func CPF(value string) string {
	return applyMask(truncate(Digits(value), cpfDigits), cpfMask)
}

// CNPJ masks up to 14 digits as 12.345.678/0001-95.
func CNPJ(value string) string {
	return applyMask(truncate(Digits(value), cnpjDigits), cnpjMask)
}

// Document picks the CPF or CNPJ mask by kind. Unknown kinds return the digits only.
func Document(kind domain.DocumentKind, value string) string {
	switch kind {
	case domain.DocumentKindCPF:
		return CPF(value)
	case domain.DocumentKindCNPJ:
		return CNPJ(value)
	default:
		return Digits(value)
	}
}

// Phone masks landline (10 digit) and mobile (11 digit) numbers.
func Phone(value string) string {
	digits := truncate(Digits(value), phoneDigits)
	if len(digits) == phoneDigits {
		return applyMask(digits, mobileMask)
	}
	return applyMask(digits, landlineMask)
}

// applyMask writes digits into the placeholders of mask. Literals are only emitted when a
// digit follows them, so partial input never ends with dangling punctuation.
func applyMask(digits, mask string) string {
	if digits == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(mask))
	next := 0
	for _, r := range mask {
		if next >= len(digits) {
			break
		}
		if r == maskPlaceholder {
			b.WriteByte(digits[next])
			next++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncate(digits string, max int) string {
	if len(digits) > max {
		return digits[:max]
	}
	return digits
}

// Currency renders minor units with pt-BR separators, e.g. R$ 1.234,56.
// Unknown codes fall back to BRL.
func Currency(amount int64, code string) string {
	symbol := currencySymbol(code)

	negative := amount < 0
	var magnitude uint64
	if negative {
		magnitude = uint64(-(amount + 1)) + 1
	} else {
		magnitude = uint64(amount)
	}

	units := strconv.FormatUint(magnitude/100, 10)
	cents := magnitude % 100

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	b.WriteString(symbol)
	b.WriteByte(' ')
	b.WriteString(groupThousands(units))
	b.WriteByte(',')
	if cents < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatUint(cents, 10))
	return b.String()
}

func currencySymbol(code string) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return currencySymbols["BRL"]
	}
	iso := unit.String()
	if symbol, ok := currencySymbols[iso]; ok {
		return symbol
	}
	return iso
}

func groupThousands(units string) string {
	if len(units) <= 3 {
		return units
	}
	var b strings.Builder
	lead := len(units) % 3
	if lead > 0 {
		b.WriteString(units[:lead])
	}
	for i := lead; i < len(units); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(units[i : i+3])
	}
	return b.String()
}

// Percent renders a percentage with at most two decimals and a comma separator.
func Percent(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}
	formatted := strconv.FormatFloat(value, 'f', 2, 64)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimSuffix(formatted, ".")
	if formatted == "-0" {
		formatted = "0"
	}
	return strings.Replace(formatted, ".", ",", 1) + "%"
}

package format

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erp-saas/pdv/internal/domain"
)

func TestCPF(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "complete", input: "12345678901", want: "123.456.789-01"},
		{name: "already masked", input: "123.456.789-01", want: "123.456.789-01"},
		{name: "partial", input: "1234", want: "123.4"},
		{name: "ten digits", input: "1234567890", want: "123.456.789-0"},
		{name: "three digits", input: "123", want: "123"},
		{name: "truncates", input: "123456789012345", want: "123.456.789-01"},
		{name: "letters only", input: "abc", want: ""},
		{name: "empty", input: "", want: ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, CPF(tc.input))
		})
	}
}

func TestCNPJ(t *testing.T) {
	t.Parallel()

	require.Equal(t, "12.345.678/0001-95", CNPJ("12345678000195"))
	require.Equal(t, "12.345.678/0001-95", CNPJ("12345678000195999"))
	require.Equal(t, "12.345", CNPJ("12345"))
	require.Equal(t, "12.345.678/0", CNPJ("123456780"))
	require.Equal(t, "00.000.000/0001-00", CNPJ("00.000.000/0001-00"))
}

func TestDocument(t *testing.T) {
	t.Parallel()

	require.Equal(t, "123.456.789-01", Document(domain.DocumentKindCPF, "12345678901"))
	require.Equal(t, "12.345.678/0001-95", Document(domain.DocumentKindCNPJ, "12345678000195"))
	require.Equal(t, "12345", Document(domain.DocumentKind("rg"), "12.345"))
}

func TestPhone(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"11999999999":     "(11) 99999-9999",
		"1199999999":      "(11) 9999-9999",
		"11":              "(11",
		"1":               "(1",
		"119999":          "(11) 9999",
		"119999999":       "(11) 9999-999",
		"(11) 99999-9999": "(11) 99999-9999",
		"1199999999999":   "(11) 99999-9999",
		"":                "",
	}
	for input, want := range cases {
		require.Equal(t, want, Phone(input), "input %q", input)
	}
}

func TestDigits(t *testing.T) {
	require.Equal(t, "11999", Digits("(11) 9-99"))
	require.Equal(t, "", Digits("R$"))
}

func TestCurrency(t *testing.T) {
	t.Parallel()

	cases := []struct {
		amount int64
		code   string
		want   string
	}{
		{amount: 123456, code: "BRL", want: "R$ 1.234,56"},
		{amount: 0, code: "BRL", want: "R$ 0,00"},
		{amount: 5, code: "BRL", want: "R$ 0,05"},
		{amount: 499900, code: "brl", want: "R$ 4.999,00"},
		{amount: 100000000, code: "BRL", want: "R$ 1.000.000,00"},
		{amount: -100, code: "BRL", want: "-R$ 1,00"},
		{amount: 1050, code: "USD", want: "US$ 10,50"},
		{amount: 1050, code: "JPY", want: "JPY 10,50"},
		{amount: 1050, code: "", want: "R$ 10,50"},
		{amount: math.MinInt64, code: "BRL", want: "-R$ 92.233.720.368.547.758,08"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Currency(tc.amount, tc.code))
	}
}

func TestPercent(t *testing.T) {
	t.Parallel()

	require.Equal(t, "10%", Percent(10))
	require.Equal(t, "12,5%", Percent(12.5))
	require.Equal(t, "33,33%", Percent(33.333))
	require.Equal(t, "0%", Percent(0))
	require.Equal(t, "0%", Percent(math.NaN()))
	require.Equal(t, "100%", Percent(100))
}

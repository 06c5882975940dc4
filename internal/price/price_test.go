package price

import (
	"errors"
	"testing"

	"dealcatalog/internal/catalog"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		text     string
		currency string
		expected Amount
	}{
		{"$89.95", "AUD", Amount{Minor: 8995, Currency: "AUD"}},
		{"$44.97", "AUD", Amount{Minor: 4497, Currency: "AUD"}},
		{"US$ 3.74", "AUD", Amount{Minor: 374, Currency: "USD"}},
		{"Regular Price $89.95", "AUD", Amount{Minor: 8995, Currency: "AUD"}},
		{"SpecialPrice$44.97", "AUD", Amount{Minor: 4497, Currency: "AUD"}},
		{"$1,234.50", "USD", Amount{Minor: 123450, Currency: "USD"}},
		{"1.234,56 €", "USD", Amount{Minor: 123456, Currency: "EUR"}},
		{"1 234,56", "EUR", Amount{Minor: 123456, Currency: "EUR"}},
		{"3,74", "EUR", Amount{Minor: 374, Currency: "EUR"}},
		{"1,234", "USD", Amount{Minor: 123400, Currency: "USD"}},
		{"CA$ 10", "USD", Amount{Minor: 1000, Currency: "CAD"}},
		{"A$10.00", "USD", Amount{Minor: 1000, Currency: "AUD"}},
		{"¥1,500", "USD", Amount{Minor: 1500, Currency: "JPY"}},
		{"AUD 79.95", "USD", Amount{Minor: 7995, Currency: "AUD"}},
		{"Free", "USD", Amount{Minor: 0, Currency: "USD"}},
		{"$0.995", "USD", Amount{Minor: 100, Currency: "USD"}},
	}

	for _, test := range testCases {
		amount, err := Parse(test.text, test.currency)
		require.NoError(t, err, test.text)
		require.Equal(t, test.expected, amount, test.text)
	}
}

func TestParseInvalid(t *testing.T) {
	inputs := []string{
		"", "N/A", "-$5.00", "$-5", "$3.74 ($14.99)", "abc",
		// past int64 minor units
		"$99999999999999999999", "$184467440737095516.16",
	}
	for _, text := range inputs {
		_, err := Parse(text, "USD")
		require.Error(t, err, text)

		var validationErr *catalog.ValidationError
		require.True(t, errors.As(err, &validationErr), text)
		require.Equal(t, catalog.CategoryValidation, catalog.CategoryOf(err))
	}
}

func TestFormat(t *testing.T) {
	require.Equal(t, "AUD 89.95", Format(Amount{Minor: 8995, Currency: "AUD"}))
	require.Equal(t, "USD 0.05", Format(Amount{Minor: 5, Currency: "USD"}))
	require.Equal(t, "JPY 1500", Format(Amount{Minor: 1500, Currency: "JPY"}))
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"$89.95", "$44.97", "US$ 3.74", "1.234,56 €", "£0.99", "¥1,500",
		"$1,234,567.89", "Free", "A$ 0.01", "12", "NZ$19.5",
	}
	for _, text := range inputs {
		first, err := Parse(text, "AUD")
		require.NoError(t, err, text)
		second, err := Parse(Format(first), "AUD")
		require.NoError(t, err, text)
		require.Equal(t, first, second, text)
	}
}

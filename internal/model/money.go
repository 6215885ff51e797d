package model

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in major currency units with its ISO currency code.
// The Storefront API sends amounts as decimal strings ("12.5"), so amounts
// are kept as decimals end to end and never pass through float64.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
}

// ParseMoney builds Money from a platform decimal string.
// Empty amounts parse to zero; malformed amounts are an error.
func ParseMoney(amount, currencyCode string) (Money, error) {
	if amount == "" {
		return Money{Amount: decimal.Zero, CurrencyCode: currencyCode}, nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	return Money{Amount: d, CurrencyCode: currencyCode}, nil
}

// Display formats the amount with two decimals followed by the currency code.
// Examples: "12.5" USD → "12.50 USD", "0" EUR → "0.00 EUR"
func (m Money) Display() string {
	if m.CurrencyCode == "" {
		return m.Amount.StringFixed(2)
	}
	return m.Amount.StringFixed(2) + " " + m.CurrencyCode
}

// Cents returns the amount in minor units, rounded half away from zero.
func (m Money) Cents() int64 {
	return m.Amount.Shift(2).Round(0).IntPart()
}

// MarshalJSON emits the amount as a fixed two-decimal string so clients
// never see exponent notation.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currency_code"`
		Display      string `json:"display"`
	}{
		Amount:       m.Amount.StringFixed(2),
		CurrencyCode: m.CurrencyCode,
		Display:      m.Display(),
	})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currency_code"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseMoney(raw.Amount, raw.CurrencyCode)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

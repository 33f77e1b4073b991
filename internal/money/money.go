// Package money holds exact decimal amounts tagged with an opaque currency code.
package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Amount is a signed decimal value in a currency. Currencies are compared for
// equality only; no conversion ever happens.
type Amount struct {
	value decimal.Decimal
	cur   string
}

// New returns an Amount of value in currency.
func New(value decimal.Decimal, currency string) Amount {
	return Amount{value: value, cur: normCurrency(currency)}
}

// Parse reads a decimal string such as "-50.00" or "1,200.5".
func Parse(value, currency string) (Amount, error) {
	s := strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	s = strings.TrimPrefix(s, "+")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return New(d, currency), nil
}

// MustParse is like Parse but panics on error.
func MustParse(value, currency string) Amount {
	a, err := Parse(value, currency)
	if err != nil {
		panic(err.Error())
	}
	return a
}

func normCurrency(c string) string { return strings.ToUpper(strings.TrimSpace(c)) }

func (a Amount) Decimal() decimal.Decimal { return a.value }
func (a Amount) Currency() string         { return a.cur }
func (a Amount) IsZero() bool             { return a.value.IsZero() }
func (a Amount) IsNegative() bool         { return a.value.IsNegative() }
func (a Amount) IsPositive() bool         { return a.value.IsPositive() }
func (a Amount) Abs() Amount              { return Amount{value: a.value.Abs(), cur: a.cur} }
func (a Amount) Neg() Amount              { return Amount{value: a.value.Neg(), cur: a.cur} }

// Equal reports whether both value and currency match.
func (a Amount) Equal(b Amount) bool { return a.cur == b.cur && a.value.Equal(b.value) }

// SameCurrency reports whether a and b carry the same currency tag.
func (a Amount) SameCurrency(b Amount) bool { return a.cur == b.cur }

// Sub returns a-b. It panics on currency mismatch.
func (a Amount) Sub(b Amount) Amount {
	if a.cur != b.cur {
		panic("currency mismatch " + a.cur + "!=" + b.cur)
	}
	return Amount{value: a.value.Sub(b.value), cur: a.cur}
}

// String formats the amount with the currency symbol when the currency is known.
func (a Amount) String() string {
	cur := money.GetCurrency(a.cur)
	if cur == nil {
		return strings.TrimSpace(a.value.StringFixed(2) + " " + a.cur)
	}
	minor := a.value.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

type amountJSON struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// MarshalJSON writes the value as a decimal string to keep precision.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(amountJSON{Value: a.value.String(), Currency: a.cur})
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw amountJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := Parse(raw.Value, raw.Currency)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

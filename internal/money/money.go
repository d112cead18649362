// Package money normalizes heterogeneous numeric inputs into canonical
// fixed-point values at configured precision with a defined rounding rule.
// Every other component converts through this package; no unquantized value
// is ever persisted.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidValue is returned when an input is of an unsupported type, does
// not parse as a number, or fails a positivity/structural check.
var ErrInvalidValue = errors.New("money: invalid value")

// Rounding selects the rule applied when quantizing.
type Rounding int

const (
	// RoundHalfEven rounds ties to the nearest even digit (banker's rounding).
	RoundHalfEven Rounding = iota
	// RoundHalfAwayFromZero rounds ties away from zero.
	RoundHalfAwayFromZero
)

// Rules holds the precision and rounding configuration for cash and
// quantity values.
type Rules struct {
	CashPlaces int32
	QtyPlaces  int32
	Rounding   Rounding
}

// DefaultRules returns the standard configuration: 2 cash places, 8 quantity
// places, round-half-to-even.
func DefaultRules() Rules {
	return Rules{CashPlaces: 2, QtyPlaces: 8, Rounding: RoundHalfEven}
}

func (r Rules) quantize(d decimal.Decimal, places int32) decimal.Decimal {
	if r.Rounding == RoundHalfAwayFromZero {
		return d.Round(places)
	}
	return d.RoundBank(places)
}

// toDecimal converts a supported input into a decimal. Floats go through
// their shortest decimal string representation (NewFromFloat), never raw
// binary coercion.
func toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int32:
		return decimal.NewFromInt32(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return decimal.Decimal{}, fmt.Errorf("%w: non-finite float", ErrInvalidValue)
		}
		return decimal.NewFromFloat32(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, fmt.Errorf("%w: non-finite float", ErrInvalidValue)
		}
		return decimal.NewFromFloat(v), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q does not parse as a number", ErrInvalidValue, v)
		}
		return d, nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q does not parse as a number", ErrInvalidValue, v)
		}
		return d, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: unsupported numeric type %T", ErrInvalidValue, value)
	}
}

// ToCash converts a value to a decimal quantized to cash precision.
func (r Rules) ToCash(value any) (decimal.Decimal, error) {
	d, err := toDecimal(value)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return r.quantize(d, r.CashPlaces), nil
}

// ToQty converts a value to a decimal quantized to quantity precision.
func (r Rules) ToQty(value any) (decimal.Decimal, error) {
	d, err := toDecimal(value)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return r.quantize(d, r.QtyPlaces), nil
}

// RequirePositiveCash converts and ensures a strictly positive cash amount.
// Values that quantize to exactly zero are rejected.
func (r Rules) RequirePositiveCash(value any, field string) (decimal.Decimal, error) {
	d, err := r.ToCash(value)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s must be greater than zero", ErrInvalidValue, field)
	}
	return d, nil
}

// RequireNonNegativeCash converts and ensures a cash amount >= 0.
func (r Rules) RequireNonNegativeCash(value any, field string) (decimal.Decimal, error) {
	d, err := r.ToCash(value)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s cannot be negative", ErrInvalidValue, field)
	}
	return d, nil
}

// RequirePositiveQty converts and ensures a strictly positive quantity.
func (r Rules) RequirePositiveQty(value any, field string) (decimal.Decimal, error) {
	d, err := r.ToQty(value)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s must be greater than zero", ErrInvalidValue, field)
	}
	return d, nil
}

// RequireNonNegativeQty converts and ensures a quantity >= 0.
func (r Rules) RequireNonNegativeQty(value any, field string) (decimal.Decimal, error) {
	d, err := r.ToQty(value)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s cannot be negative", ErrInvalidValue, field)
	}
	return d, nil
}

// NormalizeSymbol strips surrounding whitespace and rejects empty symbols.
func NormalizeSymbol(symbol string, uppercase bool) (string, error) {
	sym := strings.TrimSpace(symbol)
	if sym == "" {
		return "", fmt.Errorf("%w: symbol must be a non-empty string", ErrInvalidValue)
	}
	if uppercase {
		sym = strings.ToUpper(sym)
	}
	return sym, nil
}

// NormalizeSide lowercases and validates an order side ("buy" or "sell").
func NormalizeSide(side string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(side))
	if s != "buy" && s != "sell" {
		return "", fmt.Errorf("%w: side must be 'buy' or 'sell'", ErrInvalidValue)
	}
	return s, nil
}

// TotalCash computes the trade notional quantity * price, quantized to cash
// precision. This is the canonical calculation used everywhere a trade total
// is needed.
func (r Rules) TotalCash(quantity, price any) (decimal.Decimal, error) {
	qty, err := r.ToQty(quantity)
	if err != nil {
		return decimal.Decimal{}, err
	}
	px, err := r.ToCash(price)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return r.quantize(qty.Mul(px), r.CashPlaces), nil
}

// QuantizeCash re-quantizes an already-converted decimal to cash precision.
func (r Rules) QuantizeCash(d decimal.Decimal) decimal.Decimal {
	return r.quantize(d, r.CashPlaces)
}

// QuantizeQty re-quantizes an already-converted decimal to quantity precision.
func (r Rules) QuantizeQty(d decimal.Decimal) decimal.Decimal {
	return r.quantize(d, r.QtyPlaces)
}

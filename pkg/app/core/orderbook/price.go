package orderbook

import (
	"github.com/shopspring/decimal"
)

// pricePlaces is the rounding precision applied to derived prices (midpoints).
const pricePlaces = 2

// Price is a positive decimal quote in the instrument's unit (e.g. CNY/ton).
// It travels on the wire as a bare JSON number.
type Price struct {
	d decimal.Decimal
}

func NewPrice(v int64) Price { return Price{d: decimal.NewFromInt(v)} }

func PriceFromDecimal(d decimal.Decimal) Price { return Price{d: d} }

func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, err
	}
	return Price{d: d}, nil
}

// MustPrice parses s and panics on malformed input. Intended for literals.
func MustPrice(s string) Price {
	p, err := ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Price) Decimal() decimal.Decimal { return p.d }
func (p Price) IsPositive() bool         { return p.d.IsPositive() }
func (p Price) IsZero() bool             { return p.d.IsZero() }
func (p Price) Cmp(q Price) int          { return p.d.Cmp(q.d) }
func (p Price) Equal(q Price) bool       { return p.d.Equal(q.d) }
func (p Price) Sub(q Price) Price        { return Price{d: p.d.Sub(q.d)} }
func (p Price) Add(q Price) Price        { return Price{d: p.d.Add(q.d)} }

// Mid returns the midpoint of p and q rounded half away from zero to two places.
func (p Price) Mid(q Price) Price {
	return Price{d: p.d.Add(q.d).Div(decimal.NewFromInt(2)).Round(pricePlaces)}
}

// String is the canonical form used inside match keys ("3820", "3827.5").
func (p Price) String() string { return p.d.String() }

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.d.String()), nil
}

// UnmarshalJSON accepts both bare numbers and quoted decimal strings.
func (p *Price) UnmarshalJSON(b []byte) error {
	return p.d.UnmarshalJSON(b)
}

package kapytal

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/etnz/kapytal/date"
	"github.com/shopspring/decimal"
)

// MaxPlaces is the largest number of decimal places a Currency can have.
const MaxPlaces = 18

// Currency is a 3-letter coded currency with a fixed number of decimal places.
//
// A Currency knows the exchange rates it takes part in, and caches the
// conversion factors computed through them.
type Currency struct {
	code   string
	places int32

	rates []*ExchangeRate
	cache map[conversionKey]ratio
}

// ConversionPrecision is the number of decimal places kept when a conversion
// divides by an exchange rate.
const ConversionPrecision = 16

// conversionKey identifies a cached conversion factor. A zero day is the latest factor.
type conversionKey struct {
	to  string
	day date.Date
}

// ratio is a conversion factor kept as a fraction, so that a path through
// inverse rates divides once.
type ratio struct{ num, den decimal.Decimal }

// apply returns v times r, rounded to ConversionPrecision places when r divides.
func (r ratio) apply(v decimal.Decimal) decimal.Decimal {
	v = v.Mul(r.num)
	if r.den.Equal(decimal.NewFromInt(1)) {
		return v
	}
	return v.DivRound(r.den, ConversionPrecision)
}

// NewCurrency returns a currency with the upper-cased code and the given decimal places.
func NewCurrency(code string, places int) (*Currency, error) {
	code = strings.ToUpper(code)
	if len(code) != 3 || strings.IndexFunc(code, func(r rune) bool { return r < 'A' || r > 'Z' }) >= 0 {
		return nil, invalidf("currency code %q must be 3 letters", code)
	}
	if places < 0 || places > MaxPlaces {
		return nil, invalidf("currency %s places must be within 0 and %d", code, MaxPlaces)
	}
	return &Currency{code: code, places: int32(places)}, nil
}

// DefaultPlaces returns the usual number of decimal places for an ISO 4217 code, or 2.
func DefaultPlaces(code string) int {
	if c := money.GetCurrency(strings.ToUpper(code)); c != nil {
		return c.Fraction
	}
	return 2
}

// Code returns the currency's code.
func (c *Currency) Code() string { return c.code }

// Places returns the currency's number of decimal places.
func (c *Currency) Places() int { return int(c.places) }

func (c *Currency) String() string { return c.code }

// Zero returns a zero amount in this currency.
func (c *Currency) Zero() CashAmount { return CashAmount{currency: c} }

// ExchangeRates returns the exchange rates this currency is part of.
func (c *Currency) ExchangeRates() []*ExchangeRate { return slices.Clone(c.rates) }

func (c *Currency) resetCache() { clear(c.cache) }

// hop is one step of a conversion path.
type hop struct {
	rate    *ExchangeRate
	inverse bool // true when walking from secondary to primary
}

// path returns the shortest sequence of exchange rates from c to target.
// Neighbours are visited in currency code order so that the path is deterministic.
func (c *Currency) path(target *Currency) ([]hop, bool) {
	type visit struct {
		from *Currency
		hop  hop
	}
	visited := map[*Currency]visit{c: {}}
	queue := []*Currency{c}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == target {
			var hops []hop
			for x := target; x != c; x = visited[x].from {
				hops = append(hops, visited[x].hop)
			}
			slices.Reverse(hops)
			return hops, true
		}
		rates := slices.Clone(current.rates)
		slices.SortFunc(rates, func(a, b *ExchangeRate) int {
			return cmp.Compare(a.other(current).code, b.other(current).code)
		})
		for _, r := range rates {
			next := r.other(current)
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = visit{from: current, hop: hop{rate: r, inverse: r.secondary == current}}
			queue = append(queue, next)
		}
	}
	return nil, false
}

// ConversionFactor returns the factor to multiply an amount in c by to get
// the amount in target. A nil day uses the latest rates, otherwise the rates
// in force on that day. A factor through inverse rates is rounded to
// ConversionPrecision places.
func (c *Currency) ConversionFactor(target *Currency, day *date.Date) (decimal.Decimal, error) {
	r, err := c.ratio(target, day)
	if err != nil {
		return decimal.Zero, err
	}
	return r.apply(decimal.NewFromInt(1)), nil
}

func (c *Currency) ratio(target *Currency, day *date.Date) (ratio, error) {
	one := decimal.NewFromInt(1)
	if c == target {
		return ratio{one, one}, nil
	}
	key := conversionKey{to: target.code}
	if day != nil {
		key.day = *day
	}
	if r, ok := c.cache[key]; ok {
		return r, nil
	}
	hops, ok := c.path(target)
	if !ok {
		return ratio{}, fmt.Errorf("%s to %s: no exchange rate path: %w", c.code, target.code, ErrConversionNotFound)
	}
	when := "latest"
	if day != nil {
		when = day.String()
	}
	r := ratio{one, one}
	for _, h := range hops {
		var rate decimal.Decimal
		var found bool
		if day == nil {
			_, rate, found = h.rate.LatestRate()
		} else {
			rate, found = h.rate.RateOn(*day)
		}
		if !found {
			return ratio{}, fmt.Errorf("%s to %s: no %s rate (%s): %w", c.code, target.code, h.rate.Code(), when, ErrConversionNotFound)
		}
		if h.inverse {
			r.den = r.den.Mul(rate)
		} else {
			r.num = r.num.Mul(rate)
		}
	}
	if c.cache == nil {
		c.cache = make(map[conversionKey]ratio)
	}
	c.cache[key] = r
	return r, nil
}

// CashAmount is a decimal value in a currency.
//
// The zero value has no currency and is not a valid amount.
type CashAmount struct {
	value    decimal.Decimal
	currency *Currency
}

// NewCashAmount returns value in currency c.
func NewCashAmount(value decimal.Decimal, c *Currency) CashAmount {
	return CashAmount{value: value, currency: c}
}

// AmountFromFloat returns f in currency c, it fails on NaN and infinities.
func AmountFromFloat(f float64, c *Currency) (CashAmount, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return CashAmount{}, invalidf("amount %v is not a finite number", f)
	}
	return CashAmount{value: decimal.NewFromFloat(f), currency: c}, nil
}

// ParseAmount parses a decimal number into an amount in currency c.
func ParseAmount(s string, c *Currency) (CashAmount, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return CashAmount{}, invalidf("amount %q is not a finite number", s)
	}
	return CashAmount{value: v, currency: c}, nil
}

// parseNormalized parses the Normalized form of an amount, currency resolves the code.
func parseNormalized(s string, currency func(code string) (*Currency, error)) (CashAmount, error) {
	value, code, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return CashAmount{}, invalidf("amount %q has no currency", s)
	}
	c, err := currency(code)
	if err != nil {
		return CashAmount{}, err
	}
	return ParseAmount(value, c)
}

// IsSet reports whether the amount has a currency.
func (a CashAmount) IsSet() bool { return a.currency != nil }

// Value returns the decimal value of the amount.
func (a CashAmount) Value() decimal.Decimal { return a.value }

// Currency returns the amount's currency.
func (a CashAmount) Currency() *Currency { return a.currency }

// IsZero reports whether the amount's value is zero.
func (a CashAmount) IsZero() bool { return a.value.IsZero() }

// IsPositive reports whether the amount's value is strictly positive.
func (a CashAmount) IsPositive() bool { return a.value.IsPositive() }

// IsNegative reports whether the amount's value is strictly negative.
func (a CashAmount) IsNegative() bool { return a.value.IsNegative() }

func (a CashAmount) sameCurrency(b CashAmount) error {
	if a.currency == nil || b.currency == nil || a.currency != b.currency {
		return fmt.Errorf("%v and %v: %w", a.currency, b.currency, ErrCurrency)
	}
	return nil
}

// Add returns a+b, both must share the same currency.
func (a CashAmount) Add(b CashAmount) (CashAmount, error) {
	if err := a.sameCurrency(b); err != nil {
		return CashAmount{}, err
	}
	return CashAmount{value: a.value.Add(b.value), currency: a.currency}, nil
}

// Sub returns a-b, both must share the same currency.
func (a CashAmount) Sub(b CashAmount) (CashAmount, error) {
	if err := a.sameCurrency(b); err != nil {
		return CashAmount{}, err
	}
	return CashAmount{value: a.value.Sub(b.value), currency: a.currency}, nil
}

// Neg returns -a.
func (a CashAmount) Neg() CashAmount { return CashAmount{value: a.value.Neg(), currency: a.currency} }

// Mul returns a multiplied by a plain number.
func (a CashAmount) Mul(n decimal.Decimal) CashAmount {
	return CashAmount{value: a.value.Mul(n), currency: a.currency}
}

// Cmp compares a and b, both must share the same currency.
func (a CashAmount) Cmp(b CashAmount) (int, error) {
	if err := a.sameCurrency(b); err != nil {
		return 0, err
	}
	return a.value.Cmp(b.value), nil
}

// Equal reports whether a and b are the same amount. Zero amounts are equal whatever their currency.
func (a CashAmount) Equal(b CashAmount) bool {
	if a.value.IsZero() && b.value.IsZero() {
		return true
	}
	return a.currency == b.currency && a.value.Equal(b.value)
}

// Convert returns the amount in the target currency, see Currency.ConversionFactor.
// Through inverse rates the value is divided once and rounded to
// ConversionPrecision places.
func (a CashAmount) Convert(target *Currency, day *date.Date) (CashAmount, error) {
	if a.currency == nil {
		return CashAmount{}, invalidf("amount has no currency")
	}
	r, err := a.currency.ratio(target, day)
	if err != nil {
		return CashAmount{}, err
	}
	return CashAmount{value: r.apply(a.value), currency: target}, nil
}

// Rounded returns the amount rounded to its currency places.
func (a CashAmount) Rounded() CashAmount {
	return CashAmount{value: a.value.Round(a.currency.places), currency: a.currency}
}

// String returns the value rounded to the currency places followed by its code, like "12.50 CZK".
func (a CashAmount) String() string {
	if a.currency == nil {
		return a.value.String()
	}
	return a.value.StringFixed(a.currency.places) + " " + a.currency.code
}

// Normalized returns the value with no trailing zero followed by its code, like "12.5 CZK".
func (a CashAmount) Normalized() string {
	if a.currency == nil {
		return a.value.String()
	}
	return a.value.String() + " " + a.currency.code
}

// Format returns a human readable form, with the currency symbol when it is a known ISO currency.
func (a CashAmount) Format() string {
	if a.currency == nil {
		return a.value.String()
	}
	cur := money.GetCurrency(a.currency.code)
	if cur == nil {
		return a.String()
	}
	dec := a.value.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(dec.IntPart())
}

// sum adds up amounts in currency c.
func sum(c *Currency, amounts ...CashAmount) (CashAmount, error) {
	total := c.Zero()
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return CashAmount{}, err
		}
	}
	return total, nil
}

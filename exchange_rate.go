package kapytal

import (
	"iter"

	"github.com/etnz/kapytal/date"
	"github.com/shopspring/decimal"
)

// ExchangeRate is the daily history of the price of one primary currency unit in the secondary currency.
type ExchangeRate struct {
	primary   *Currency
	secondary *Currency
	rates     date.History[decimal.Decimal]
}

func newExchangeRate(primary, secondary *Currency) (*ExchangeRate, error) {
	if primary == secondary {
		return nil, invalidf("exchange rate %s/%s must use two different currencies", primary.code, secondary.code)
	}
	return &ExchangeRate{primary: primary, secondary: secondary}, nil
}

// Code returns "PRIMARY/SECONDARY".
func (r *ExchangeRate) Code() string { return r.primary.code + "/" + r.secondary.code }

func (r *ExchangeRate) String() string { return r.Code() }

// Primary returns the currency being priced.
func (r *ExchangeRate) Primary() *Currency { return r.primary }

// Secondary returns the currency the price is expressed in.
func (r *ExchangeRate) Secondary() *Currency { return r.secondary }

// other returns the currency at the other end of the rate.
func (r *ExchangeRate) other(c *Currency) *Currency {
	if c == r.primary {
		return r.secondary
	}
	return r.primary
}

// SetRate inserts or overwrites the rate on a given day. The rate must be strictly positive.
func (r *ExchangeRate) SetRate(day date.Date, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return invalidf("exchange rate %s on %s must be positive, got %s", r.Code(), day, rate)
	}
	r.rates.Append(day, rate)
	r.invalidate()
	return nil
}

// DeleteRate removes the rate on a given day, it reports whether there was one.
func (r *ExchangeRate) DeleteRate(day date.Date) bool {
	if !r.rates.Delete(day) {
		return false
	}
	r.invalidate()
	return true
}

// LatestRate returns the latest known rate.
func (r *ExchangeRate) LatestRate() (day date.Date, rate decimal.Decimal, ok bool) {
	if r.rates.Len() == 0 {
		return date.Date{}, decimal.Zero, false
	}
	day, rate = r.rates.Latest()
	return day, rate, true
}

// RateOn returns the rate in force on a given day: the last one set on or before it.
func (r *ExchangeRate) RateOn(day date.Date) (decimal.Decimal, bool) { return r.rates.ValueAsOf(day) }

// Rates iterates over the rate history in chronological order.
func (r *ExchangeRate) Rates() iter.Seq2[date.Date, decimal.Decimal] { return r.rates.Values() }

// Len returns the number of days with a rate.
func (r *ExchangeRate) Len() int { return r.rates.Len() }

// invalidate resets the conversion caches of every currency connected to this rate.
func (r *ExchangeRate) invalidate() {
	seen := map[*Currency]bool{}
	queue := []*Currency{r.primary, r.secondary}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if seen[c] {
			continue
		}
		seen[c] = true
		c.resetCache()
		for _, x := range c.rates {
			queue = append(queue, x.other(c))
		}
	}
}

// link adds the rate to its currencies' graph.
func (r *ExchangeRate) link() {
	r.primary.rates = append(r.primary.rates, r)
	r.secondary.rates = append(r.secondary.rates, r)
	r.invalidate()
}

// unlink removes the rate from its currencies' graph.
func (r *ExchangeRate) unlink() {
	r.invalidate()
	for _, c := range []*Currency{r.primary, r.secondary} {
		for i, x := range c.rates {
			if x == r {
				c.rates = append(c.rates[:i:i], c.rates[i+1:]...)
				break
			}
		}
	}
}

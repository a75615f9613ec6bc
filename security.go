package kapytal

import (
	"fmt"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/etnz/kapytal/date"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bounds on securities.
const (
	SecurityNameMaxLength = 64
	SecurityTypeMaxLength = 32
	SymbolMaxLength       = 8
	SharesDecimalsMax     = 18
)

// Security is a tradable asset priced in a currency.
type Security struct {
	identity
	id             uuid.UUID
	symbol         string
	typ            string
	currency       *Currency
	sharesDecimals int32
	prices         date.History[decimal.Decimal]
}

// ID returns the security identifier.
func (s *Security) ID() uuid.UUID { return s.id }

// Symbol returns the upper-cased ticker, possibly empty.
func (s *Security) Symbol() string { return s.symbol }

// Type returns the free-form kind of security ("ETF", "Stock", ...).
func (s *Security) Type() string { return s.typ }

// Currency returns the currency the security is priced in.
func (s *Security) Currency() *Currency { return s.currency }

// SharesDecimals returns the number of decimals a share count can have.
func (s *Security) SharesDecimals() int { return int(s.sharesDecimals) }

func (s *Security) String() string { return s.name }

func validateSymbol(symbol string) (string, error) {
	if len(symbol) > SymbolMaxLength {
		return "", invalidf("symbol %q must be at most %d characters", symbol, SymbolMaxLength)
	}
	for _, r := range symbol {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.') {
			return "", invalidf("symbol %q can contain only ASCII letters, digits or a period", symbol)
		}
	}
	return strings.ToUpper(symbol), nil
}

func validateSecurityType(typ string) error {
	if n := utf8.RuneCountInString(typ); n < 1 || n > SecurityTypeMaxLength {
		return invalidf("security type %q length must be within 1 and %d", typ, SecurityTypeMaxLength)
	}
	return nil
}

func newSecurity(id uuid.UUID, name, symbol, typ string, c *Currency, sharesDecimals int, now time.Time) (*Security, error) {
	if err := validateName("security", name, SecurityNameMaxLength, true); err != nil {
		return nil, err
	}
	symbol, err := validateSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if err := validateSecurityType(typ); err != nil {
		return nil, err
	}
	if sharesDecimals < 0 || sharesDecimals > SharesDecimalsMax {
		return nil, invalidf("security %q shares decimals must be within 0 and %d", name, SharesDecimalsMax)
	}
	return &Security{
		identity:       newIdentity(name, now),
		id:             id,
		symbol:         symbol,
		typ:            typ,
		currency:       c,
		sharesDecimals: int32(sharesDecimals),
	}, nil
}

// SetPrice inserts or overwrites the price of one share on a given day.
func (s *Security) SetPrice(day date.Date, price CashAmount) error {
	if price.currency != s.currency {
		return fmt.Errorf("security %q priced in %v: %w", s.name, price.currency, ErrCurrency)
	}
	if price.IsNegative() {
		return invalidf("security %q price on %s must not be negative", s.name, day)
	}
	s.prices.Append(day, price.value)
	return nil
}

// DeletePrice removes the price on a given day, it reports whether there was one.
func (s *Security) DeletePrice(day date.Date) bool { return s.prices.Delete(day) }

// Price returns the price of one share in force on day, or the latest when day is nil.
func (s *Security) Price(day *date.Date) (CashAmount, bool) {
	var v decimal.Decimal
	var ok bool
	if day == nil {
		ok = s.prices.Len() > 0
		_, v = s.prices.Latest()
	} else {
		v, ok = s.prices.ValueAsOf(*day)
	}
	return NewCashAmount(v, s.currency), ok
}

// Prices iterates over the price history in chronological order.
func (s *Security) Prices() iter.Seq2[date.Date, CashAmount] {
	return func(yield func(date.Date, CashAmount) bool) {
		for day, v := range s.prices.Values() {
			if !yield(day, NewCashAmount(v, s.currency)) {
				return
			}
		}
	}
}

// validShares checks that shares is positive and fits the security decimals.
func (s *Security) validShares(shares decimal.Decimal) error {
	if !shares.IsPositive() {
		return invalidf("shares of %q must be positive, got %s", s.name, shares)
	}
	if !shares.Equal(shares.Truncate(s.sharesDecimals)) {
		return invalidf("shares of %q must have at most %d decimals, got %s", s.name, s.sharesDecimals, shares)
	}
	return nil
}

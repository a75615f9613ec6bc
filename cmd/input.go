package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/etnz/kapytal"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// now is the clock of the commands.
var now = time.Now

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

// parseTime parses a timestamp in the local time zone. A date alone stands
// for noon of that day and an empty string for now.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return now(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	d, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q, want YYYY-MM-DD[THH:MM]", s)
	}
	return d.Add(12 * time.Hour), nil
}

// pairs is a repeatable flag of "name" or "name=value" items.
type pairs []string

func (p *pairs) String() string { return strings.Join(*p, ",") }

func (p *pairs) Set(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("empty value")
	}
	*p = append(*p, v)
	return nil
}

// split returns the name and the value of a "name=value" pair, value is empty without "=".
func split(pair string) (name, value string) {
	i := strings.LastIndex(pair, "=")
	if i < 0 {
		return strings.TrimSpace(pair), ""
	}
	return strings.TrimSpace(pair[:i]), strings.TrimSpace(pair[i+1:])
}

// amounts parses the values of pairs as amounts in currency c. A missing
// value is an unset amount.
func amounts(ps pairs, c *kapytal.Currency) (names []string, values []kapytal.CashAmount, err error) {
	for _, p := range ps {
		name, value := split(p)
		var amount kapytal.CashAmount
		if value != "" {
			if amount, err = kapytal.ParseAmount(value, c); err != nil {
				return nil, nil, fmt.Errorf("%q: %w", p, err)
			}
		}
		names = append(names, name)
		values = append(values, amount)
	}
	return names, values, nil
}

func categorySplits(ps pairs, c *kapytal.Currency) ([]kapytal.CategorySplit, error) {
	names, values, err := amounts(ps, c)
	if err != nil {
		return nil, err
	}
	splits := make([]kapytal.CategorySplit, len(names))
	for i := range names {
		splits[i] = kapytal.CategorySplit{Path: names[i], Amount: values[i]}
	}
	return splits, nil
}

func tagSplits(ps pairs, c *kapytal.Currency) ([]kapytal.TagSplit, error) {
	names, values, err := amounts(ps, c)
	if err != nil {
		return nil, err
	}
	splits := make([]kapytal.TagSplit, len(names))
	for i := range names {
		if !values[i].IsSet() {
			return nil, fmt.Errorf("tag %q needs an amount, like %s=10", names[i], names[i])
		}
		splits[i] = kapytal.TagSplit{Name: names[i], Amount: values[i]}
	}
	return splits, nil
}

func parseDecimal(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return d, nil
}

// minPrefix is the shortest transaction id prefix accepted.
const minPrefix = 4

// resolveIDs resolves full transaction ids or unique prefixes of them.
func resolveIDs(rk *kapytal.RecordKeeper, args []string) ([]uuid.UUID, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing transaction id")
	}
	index := rk.TransactionIndex()
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		if id, err := uuid.Parse(arg); err == nil {
			ids = append(ids, id)
			continue
		}
		if len(arg) < minPrefix {
			return nil, fmt.Errorf("transaction id %q is too short", arg)
		}
		var found []uuid.UUID
		for id := range index {
			if strings.HasPrefix(id.String(), strings.ToLower(arg)) {
				found = append(found, id)
			}
		}
		switch len(found) {
		case 0:
			return nil, fmt.Errorf("transaction %q: %w", arg, kapytal.ErrNotFound)
		case 1:
			ids = append(ids, found[0])
		default:
			return nil, fmt.Errorf("transaction id %q is ambiguous", arg)
		}
	}
	return ids, nil
}

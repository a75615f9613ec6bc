package renderer

import (
	"strings"

	"github.com/etnz/kapytal"
	"github.com/etnz/kapytal/date"
)

// AccountRow is one item of the account tree.
type AccountRow struct {
	Indent string
	Name   string
	Path   string
	Group  bool
	// Balance is the balance in the account currency, only set when it
	// differs from the reporting currency.
	Balance   string
	Converted string
}

// Accounts is the account tree valued in a single currency.
type Accounts struct {
	Date        string // empty for the latest balances
	Currency    string
	Rows        []AccountRow
	Total       string
	Unconverted []string // paths of the accounts that could not be valued
}

// NewAccounts values every item of the account tree in currency c, on day or
// with the latest balances when day is nil. A group is valued as the sum of its items.
func NewAccounts(rk *kapytal.RecordKeeper, c *kapytal.Currency, day *date.Date) *Accounts {
	a := &Accounts{Currency: c.Code()}
	if day != nil {
		a.Date = day.String()
	}
	total := c.Zero()
	for _, item := range rk.RootAccountItems() {
		v := a.visit(rk, item, 0, c, day)
		total, _ = total.Add(v)
	}
	a.Total = total.String()
	return a
}

// visit appends the rows of item and its descendants, and returns the value of item.
func (a *Accounts) visit(rk *kapytal.RecordKeeper, item kapytal.AccountItem, depth int, c *kapytal.Currency, day *date.Date) kapytal.CashAmount {
	i := len(a.Rows)
	a.Rows = append(a.Rows, AccountRow{Indent: strings.Repeat("  ", depth), Name: item.Name(), Path: item.Path()})
	value := c.Zero()
	var err error
	switch item := item.(type) {
	case *kapytal.AccountGroup:
		a.Rows[i].Group = true
		for _, child := range rk.Children(item) {
			v := a.visit(rk, child, depth+1, c, day)
			value, _ = value.Add(v)
		}
	case *kapytal.CashAccount:
		if item.Currency() != c {
			b := item.Balance()
			if day != nil {
				b = item.BalanceOn(*day)
			}
			a.Rows[i].Balance = b.String()
		}
		value, err = item.ConvertedBalance(c, day)
	case *kapytal.SecurityAccount:
		value, err = item.Balance(c, day)
	}
	if err != nil {
		a.Unconverted = append(a.Unconverted, item.Path())
		a.Rows[i].Converted = "n/a"
		return c.Zero()
	}
	a.Rows[i].Converted = value.String()
	return value
}

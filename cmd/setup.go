package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/kapytal"
	"github.com/etnz/kapytal/date"
	"github.com/google/subcommands"
)

type currencyCmd struct {
	places int
	base   bool
}

func (*currencyCmd) Name() string     { return "currency" }
func (*currencyCmd) Synopsis() string { return "add a currency or change the base currency" }
func (*currencyCmd) Usage() string {
	return `kpt currency [-places <n>] [-base] <code>

  Adds the currency <code>. The first currency of a ledger is its base
  currency, -base makes <code> the base currency, adding it if needed.

Usage Examples:
$ kpt currency EUR
$ kpt currency -base CZK
`
}

func (c *currencyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.places, "places", -1, "Number of decimal places. Defaults to the ISO 4217 value, or 2.")
	f.BoolVar(&c.base, "base", false, "Make it the base currency.")
}

func (c *currencyCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a single currency code is required")
		return subcommands.ExitUsageError
	}
	code := strings.ToUpper(f.Arg(0))
	return run("currency "+code, func(rk *kapytal.RecordKeeper) error {
		_, err := rk.Currency(code)
		if errors.Is(err, kapytal.ErrNotFound) || !c.base {
			places := c.places
			if places < 0 {
				places = kapytal.DefaultPlaces(code)
			}
			if _, err := rk.AddCurrency(code, places); err != nil {
				return err
			}
		}
		if c.base {
			return rk.SetBaseCurrency(code)
		}
		return nil
	})
}

type rateCmd struct {
	date   string
	delete bool
}

func (*rateCmd) Name() string     { return "rate" }
func (*rateCmd) Synopsis() string { return "set an exchange rate" }
func (*rateCmd) Usage() string {
	return `kpt rate [-d <date>] <primary>/<secondary> <rate>
kpt rate -delete [-d <date>] <primary>/<secondary>

  Sets the number of <secondary> units one <primary> unit is worth on a day.
  The exchange rate is created on first use, both currencies must exist.
  With -delete, removes the rate set on that day instead.

Usage Examples:
$ kpt rate EUR/CZK 25.2
$ kpt rate -d 2024-01-31 EUR/CZK 25.05
$ kpt rate -delete -d 2024-01-31 EUR/CZK
`
}

func (c *rateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Day of the rate. Defaults to today.")
	f.BoolVar(&c.delete, "delete", false, "Delete the rate of the day.")
}

func (c *rateCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	switch {
	case c.delete && f.NArg() != 1:
		fmt.Fprintln(os.Stderr, "Error: a single pair is required")
		return subcommands.ExitUsageError
	case !c.delete && f.NArg() != 2:
		fmt.Fprintln(os.Stderr, "Error: a pair and a rate are required")
		return subcommands.ExitUsageError
	}
	code := strings.ToUpper(f.Arg(0))
	primary, secondary, ok := strings.Cut(code, "/")
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: invalid pair %q, want like EUR/CZK\n", code)
		return subcommands.ExitUsageError
	}
	return run("rate "+code, func(rk *kapytal.RecordKeeper) error {
		day, err := parseDay(c.date)
		if err != nil {
			return err
		}
		if c.delete {
			return rk.DeleteExchangeRate(code, day)
		}
		rate, err := parseDecimal("rate", f.Arg(1))
		if err != nil {
			return err
		}
		if _, err := rk.ExchangeRate(code); errors.Is(err, kapytal.ErrNotFound) {
			if _, err := rk.AddExchangeRate(primary, secondary); err != nil {
				return err
			}
		}
		return rk.SetExchangeRate(code, day, rate)
	})
}

// parseDay parses a date, empty for today.
func parseDay(s string) (date.Date, error) {
	if s == "" {
		return date.Of(now()), nil
	}
	return date.Parse(s)
}

type securityCmd struct {
	symbol   string
	typ      string
	currency string
	decimals int
}

func (*securityCmd) Name() string     { return "security" }
func (*securityCmd) Synopsis() string { return "declare a security" }
func (*securityCmd) Usage() string {
	return `kpt security -c <currency> [-symbol <symbol>] [-type <type>] [-decimals <n>] <name>

  Declares a security traded in <currency>.

Usage Examples:
$ kpt security -c USD -symbol AAPL -type STOCK Apple
`
}

func (c *securityCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "Ticker symbol, unique when set.")
	f.StringVar(&c.typ, "type", "STOCK", "Security type, like STOCK, BOND, FUND or CRYPTO.")
	f.StringVar(&c.currency, "c", "", "Currency of the prices.")
	f.IntVar(&c.decimals, "decimals", 0, "Number of decimal places of the shares.")
}

func (c *securityCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 || c.currency == "" {
		fmt.Fprintln(os.Stderr, "Error: a name and a currency are required")
		return subcommands.ExitUsageError
	}
	return run("security "+f.Arg(0), func(rk *kapytal.RecordKeeper) error {
		_, err := rk.AddSecurity(kapytal.SecurityInput{
			Name:           f.Arg(0),
			Symbol:         c.symbol,
			Type:           c.typ,
			Currency:       c.currency,
			SharesDecimals: c.decimals,
		})
		return err
	})
}

type priceCmd struct {
	date string
}

func (*priceCmd) Name() string     { return "price" }
func (*priceCmd) Synopsis() string { return "set the price of a security" }
func (*priceCmd) Usage() string {
	return `kpt price [-d <date>] <security> <price>

  Sets the price of one share, in the security currency.
`
}

func (c *priceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Day of the price. Defaults to today.")
}

func (c *priceCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Error: a security and a price are required")
		return subcommands.ExitUsageError
	}
	return run("price "+f.Arg(0), func(rk *kapytal.RecordKeeper) error {
		day, err := parseDay(c.date)
		if err != nil {
			return err
		}
		price, err := parseDecimal("price", f.Arg(1))
		if err != nil {
			return err
		}
		return rk.SetSecurityPrice(f.Arg(0), day, price)
	})
}

type groupCmd struct{}

func (*groupCmd) Name() string     { return "group" }
func (*groupCmd) Synopsis() string { return "add an account group" }
func (*groupCmd) Usage() string {
	return `kpt group <path>

  Adds an account group, and its missing parent groups.

Usage Examples:
$ kpt group Bank
$ kpt group Bank/Savings
`
}

func (*groupCmd) SetFlags(f *flag.FlagSet) {}

func (*groupCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a single path is required")
		return subcommands.ExitUsageError
	}
	return run("group "+f.Arg(0), func(rk *kapytal.RecordKeeper) error {
		if err := addParentGroups(rk, f.Arg(0)); err != nil {
			return err
		}
		_, err := rk.AddAccountGroup(f.Arg(0))
		return err
	})
}

// addParentGroups adds the groups on the way to path that do not exist yet.
func addParentGroups(rk *kapytal.RecordKeeper, path string) error {
	names := strings.Split(path, kapytal.PathSeparator)
	for i := 1; i < len(names); i++ {
		parent := strings.Join(names[:i], kapytal.PathSeparator)
		if _, err := rk.AccountItem(parent); err == nil {
			continue
		}
		if _, err := rk.AddAccountGroup(parent); err != nil {
			return err
		}
	}
	return nil
}

type accountCmd struct {
	currency string
	initial  string
	security bool
}

func (*accountCmd) Name() string     { return "account" }
func (*accountCmd) Synopsis() string { return "add a cash or a security account" }
func (*accountCmd) Usage() string {
	return `kpt account [-c <currency>] [-initial <amount>] [-security] <path>

  Adds a cash account, or a security account with -security. A cash account
  defaults to the base currency. Missing parent groups are added too.

Usage Examples:
$ kpt account -initial 1500 Bank/Current
$ kpt account -c EUR Bank/Euro
$ kpt account -security Broker/Shares
`
}

func (c *accountCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "c", "", "Currency of a cash account. Defaults to the base currency.")
	f.StringVar(&c.initial, "initial", "0", "Initial balance of a cash account.")
	f.BoolVar(&c.security, "security", false, "Add a security account.")
}

func (c *accountCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a single path is required")
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)
	return run("account "+path, func(rk *kapytal.RecordKeeper) error {
		if err := addParentGroups(rk, path); err != nil {
			return err
		}
		if c.security {
			_, err := rk.AddSecurityAccount(path)
			return err
		}
		currency := c.currency
		if currency == "" {
			if rk.BaseCurrency() == nil {
				return fmt.Errorf("no currency, add one first")
			}
			currency = rk.BaseCurrency().Code()
		}
		initial, err := parseDecimal("initial balance", c.initial)
		if err != nil {
			return err
		}
		_, err = rk.AddCashAccount(path, currency, initial)
		return err
	})
}

type categoryCmd struct {
	typ string
}

func (*categoryCmd) Name() string     { return "category" }
func (*categoryCmd) Synopsis() string { return "add a category" }
func (*categoryCmd) Usage() string {
	return `kpt category [-type <type>] <path>

  Adds a category. A sub category has the type of its parent.
  Types are expense, income or income_and_expense.

Usage Examples:
$ kpt category Food
$ kpt category Food/Restaurant
$ kpt category -type income Salary
`
}

func (c *categoryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.typ, "type", "expense", "Type of a top level category.")
}

func (c *categoryCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a single path is required")
		return subcommands.ExitUsageError
	}
	typ, err := kapytal.ParseCategoryType(c.typ)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run("category "+f.Arg(0), func(rk *kapytal.RecordKeeper) error {
		if parent, err := rk.Category(parentPath(f.Arg(0))); err == nil {
			typ = parent.Type()
		}
		_, err := rk.AddCategory(f.Arg(0), typ)
		return err
	})
}

func parentPath(path string) string {
	i := strings.LastIndex(path, kapytal.PathSeparator)
	if i < 0 {
		return ""
	}
	return path[:i]
}

type moveCmd struct {
	category bool
	parent   string
	top      bool
	name     string
	index    int
	initial  string
}

func (*moveCmd) Name() string     { return "move" }
func (*moveCmd) Synopsis() string { return "rename, move or reorder an account, a group or a category" }
func (*moveCmd) Usage() string {
	return `kpt move [-category] [-to <parent> | -top] [-name <name>] [-index <n>] [-initial <amount>] <path>

  Moves the item at <path> of the account tree, or of the category tree with
  -category. Descendants follow their parent.
  -initial changes the initial balance of a cash account.

Usage Examples:
$ kpt move -to Bank Wallet
$ kpt move -name Savings Bank/Current
$ kpt move -category -name Groceries -index 0 Food
`
}

func (c *moveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.category, "category", false, "Move a category.")
	f.StringVar(&c.parent, "to", "", "Path of the new parent.")
	f.BoolVar(&c.top, "top", false, "Move to the top level.")
	f.StringVar(&c.name, "name", "", "New name.")
	f.IntVar(&c.index, "index", -1, "New position among the siblings.")
	f.StringVar(&c.initial, "initial", "", "New initial balance of a cash account.")
}

func (c *moveCmd) edit() kapytal.TreeEdit {
	var e kapytal.TreeEdit
	if c.name != "" {
		e.Name = &c.name
	}
	if c.top {
		top := ""
		e.Parent = &top
	} else if c.parent != "" {
		e.Parent = &c.parent
	}
	if c.index >= 0 {
		e.Index = &c.index
	}
	return e
}

func (c *moveCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a single path is required")
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)
	return run("move "+path, func(rk *kapytal.RecordKeeper) error {
		edit := c.edit()
		if c.category {
			_, err := rk.EditCategory(path, edit)
			return err
		}
		item, err := rk.AccountItem(path)
		if err != nil {
			return err
		}
		switch item.(type) {
		case *kapytal.AccountGroup:
			_, err = rk.EditAccountGroup(path, edit)
		case *kapytal.SecurityAccount:
			_, err = rk.EditSecurityAccount(path, edit)
		case *kapytal.CashAccount:
			e := kapytal.CashAccountEdit{TreeEdit: edit}
			if c.initial != "" {
				initial, err := parseDecimal("initial balance", c.initial)
				if err != nil {
					return err
				}
				e.InitialBalance = &initial
			}
			_, err = rk.EditCashAccount(path, e)
		}
		return err
	})
}

type renameCmd struct {
	role  string
	merge bool
}

func (*renameCmd) Name() string     { return "rename" }
func (*renameCmd) Synopsis() string { return "rename or merge a payee or a tag" }
func (*renameCmd) Usage() string {
	return `kpt rename [-role payee|tag] [-merge] <name> <new name>

  Renames a payee, or a tag. With -merge, <new name> may already exist: every
  transaction of <name> then moves to <new name> and <name> is removed.

Usage Examples:
$ kpt rename Tesco "Tesco Express"
$ kpt rename -role tag -merge holidays vacation
`
}

func (c *renameCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.role, "role", "payee", "Role of the attribute, payee or tag.")
	f.BoolVar(&c.merge, "merge", false, "Merge into an existing attribute.")
}

func (c *renameCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Error: a name and a new name are required")
		return subcommands.ExitUsageError
	}
	role, err := kapytal.ParseAttributeRole(c.role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run("rename "+f.Arg(0), func(rk *kapytal.RecordKeeper) error {
		_, err := rk.EditAttribute(f.Arg(0), role, f.Arg(1), c.merge)
		return err
	})
}

type removeCmd struct {
	kind string
}

// removers maps a kind of item to the RecordKeeper method removing one.
var removers = map[string]func(rk *kapytal.RecordKeeper, key string) error{
	"account":  (*kapytal.RecordKeeper).RemoveAccount,
	"group":    (*kapytal.RecordKeeper).RemoveAccountGroup,
	"category": (*kapytal.RecordKeeper).RemoveCategory,
	"payee":    (*kapytal.RecordKeeper).RemovePayee,
	"tag":      (*kapytal.RecordKeeper).RemoveTag,
	"security": (*kapytal.RecordKeeper).RemoveSecurity,
	"currency": (*kapytal.RecordKeeper).RemoveCurrency,
	"rate":     (*kapytal.RecordKeeper).RemoveExchangeRate,
}

func (*removeCmd) Name() string     { return "remove" }
func (*removeCmd) Synopsis() string { return "remove transactions or unused items" }
func (*removeCmd) Usage() string {
	return `kpt remove [-kind <kind>] <key>...

  Removes transactions by id, or id prefix, by default. Other kinds are
  account, group, category, payee, tag, security, currency and rate; an item
  still referenced cannot be removed.

Usage Examples:
$ kpt remove 3f2a
$ kpt remove -kind payee Tesco
`
}

func (c *removeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", "tx", "Kind of the removed items.")
}

func (c *removeCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: nothing to remove")
		return subcommands.ExitUsageError
	}
	remove, ok := removers[c.kind]
	if !ok && c.kind != "tx" {
		fmt.Fprintf(os.Stderr, "Error: unknown kind %q\n", c.kind)
		return subcommands.ExitUsageError
	}
	return run("remove "+c.kind, func(rk *kapytal.RecordKeeper) error {
		if c.kind == "tx" {
			ids, err := resolveIDs(rk, f.Args())
			if err != nil {
				return err
			}
			return rk.RemoveTransactions(ids)
		}
		for _, key := range f.Args() {
			if err := remove(rk, key); err != nil {
				return err
			}
		}
		return nil
	})
}

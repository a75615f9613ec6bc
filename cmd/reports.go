package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/etnz/kapytal"
	"github.com/etnz/kapytal/date"
	"github.com/etnz/kapytal/renderer"
	"github.com/google/subcommands"
)

type balanceCmd struct {
	currency string
	date     string
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "display the accounts tree with balances" }
func (*balanceCmd) Usage() string {
	return `kpt balance [-c <currency>] [-d <date>]

  Displays every account group and account with its balance converted into
  <currency>, the base currency by default. Security accounts are valued with
  the latest price known on <date>.

Usage Examples:
$ kpt balance
$ kpt balance -c EUR -d 2024-12-31
`
}

func (c *balanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "c", "", "Reporting currency. Defaults to the base currency.")
	f.StringVar(&c.date, "d", "", "Balance date, YYYY-MM-DD. Defaults to the latest balances.")
}

func (c *balanceCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return report(func(rk *kapytal.RecordKeeper) (string, error) {
		currency := rk.BaseCurrency()
		if c.currency != "" {
			var err error
			if currency, err = rk.Currency(c.currency); err != nil {
				return "", err
			}
		}
		if currency == nil {
			return "", fmt.Errorf("no base currency, run 'kpt currency -base <code>' first")
		}
		var day *date.Date
		if c.date != "" {
			d, err := date.Parse(c.date)
			if err != nil {
				return "", err
			}
			day = &d
		}
		return renderer.RenderAccounts(renderer.NewAccounts(rk, currency, day)), nil
	})
}

type historyCmd struct{}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "display the balance history of a cash account" }
func (*historyCmd) Usage() string {
	return `kpt history <account>

  Displays every transaction of the cash account in chronological order
  with the balance after it.

Usage Examples:
$ kpt history Bank/Current
`
}

func (*historyCmd) SetFlags(f *flag.FlagSet) {}

func (*historyCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a single cash account is required")
		return subcommands.ExitUsageError
	}
	return report(func(rk *kapytal.RecordKeeper) (string, error) {
		account, err := rk.CashAccount(f.Arg(0))
		if err != nil {
			return "", err
		}
		return renderer.RenderHistory(renderer.NewHistory(account)), nil
	})
}

type logCmd struct {
	limit   int
	account string
	tag     string
	period  string
}

func (*logCmd) Name() string     { return "log" }
func (*logCmd) Synopsis() string { return "list transactions, newest first" }
func (*logCmd) Usage() string {
	return `kpt log [-n <count>] [-a <account>] [-t <tag>] [-r <from>..<to>]

  Lists transactions, newest first, with their id. Ids, or a prefix of at
  least four characters, are what edit, tag and remove expect.

Usage Examples:
$ kpt log -n 10
$ kpt log -a Bank/Current -r 2024-01-01..2024-03-31
`
}

func (c *logCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 20, "Maximum number of transactions, 0 for all.")
	f.StringVar(&c.account, "a", "", "Only the transactions of this account.")
	f.StringVar(&c.tag, "t", "", "Only the transactions with this tag.")
	f.StringVar(&c.period, "r", "", "Only the transactions in this date range, like 2024-01-01..2024-01-31.")
}

func (c *logCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return report(func(rk *kapytal.RecordKeeper) (string, error) {
		txs := rk.Transactions()
		title := "Transactions"
		if c.account != "" {
			account, err := rk.Account(c.account)
			if err != nil {
				return "", err
			}
			txs = slices.DeleteFunc(txs, func(t kapytal.Transaction) bool { return !kapytal.IsRelated(t, account) })
			title += " of " + account.Path()
		}
		if c.tag != "" {
			tag, err := rk.Tag(c.tag)
			if err != nil {
				return "", err
			}
			txs = slices.DeleteFunc(txs, func(t kapytal.Transaction) bool { return !slices.Contains(t.Tags(), tag) })
			title += " tagged " + tag.Name()
		}
		if c.period != "" {
			r, err := date.ParseRange(c.period)
			if err != nil {
				return "", err
			}
			txs = slices.DeleteFunc(txs, func(t kapytal.Transaction) bool { return !r.Contains(date.Of(t.Timestamp())) })
			title += " in " + r.String()
		}
		return renderer.RenderTransactions(renderer.NewTransactions(title, txs, c.limit)), nil
	})
}

type categoriesCmd struct{}

func (*categoriesCmd) Name() string     { return "categories" }
func (*categoriesCmd) Synopsis() string { return "display the categories, payees and tags" }
func (*categoriesCmd) Usage() string {
	return `kpt categories

Usage Examples:
$ kpt categories
`
}

func (*categoriesCmd) SetFlags(f *flag.FlagSet) {}

func (*categoriesCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return report(func(rk *kapytal.RecordKeeper) (string, error) {
		return renderer.RenderCategories(renderer.NewCategories(rk)), nil
	})
}

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/etnz/kapytal"
	"github.com/etnz/kapytal/date"
	"github.com/google/subcommands"
	"github.com/google/uuid"
)

type cashTxCmd struct {
	typ         kapytal.CashTransactionType
	account     string
	payee       string
	when        string
	description string
	categories  pairs
	tags        pairs
}

func (c *cashTxCmd) Name() string { return strings.ToLower(c.typ.String()) }
func (c *cashTxCmd) Synopsis() string {
	if c.typ == kapytal.IncomeTransaction {
		return "record money received"
	}
	return "record money spent"
}
func (c *cashTxCmd) Usage() string {
	return fmt.Sprintf(`kpt %s -a <account> -p <payee> -c <category>[=<amount>]... [-t <tag>=<amount>]... [-d <time>] [-m <description>] [<amount>]

  Records an %s transaction. With a single category, the amount can be
  given as the last argument. Missing payees, categories and tags are created.
  Prints the id of the new transaction.

Usage Examples:
$ kpt %s -a Bank/Current -p Shop -c Food 250
$ kpt %s -a Bank/Current -p Shop -c Food=200 -c Drinks=50 -t party=50
`, c.Name(), c.Name(), c.Name(), c.Name())
}

func (c *cashTxCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "Cash account.")
	f.StringVar(&c.payee, "p", "", "Payee.")
	f.StringVar(&c.when, "d", "", "Timestamp, YYYY-MM-DD[THH:MM]. Defaults to now.")
	f.StringVar(&c.description, "m", "", "Description.")
	f.Var(&c.categories, "c", "Category and amount, repeatable.")
	f.Var(&c.tags, "t", "Tag and amount, repeatable.")
}

func (c *cashTxCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Error: too many arguments")
		return subcommands.ExitUsageError
	}
	var id uuid.UUID
	status := run(c.Name(), func(rk *kapytal.RecordKeeper) error {
		account, err := rk.CashAccount(c.account)
		if err != nil {
			return err
		}
		in := kapytal.CashTransactionInput{
			Description: c.description,
			Type:        c.typ,
			Account:     c.account,
			Payee:       c.payee,
		}
		if in.Timestamp, err = parseTime(c.when); err != nil {
			return err
		}
		if in.Categories, err = categorySplits(c.categories, account.Currency()); err != nil {
			return err
		}
		if f.NArg() == 1 {
			if len(in.Categories) != 1 || in.Categories[0].Amount.IsSet() {
				return fmt.Errorf("an amount argument needs a single category with no amount")
			}
			if in.Categories[0].Amount, err = kapytal.ParseAmount(f.Arg(0), account.Currency()); err != nil {
				return err
			}
		}
		if in.Tags, err = tagSplits(c.tags, account.Currency()); err != nil {
			return err
		}
		tx, err := rk.AddCashTransaction(in)
		if err != nil {
			return err
		}
		id = tx.ID()
		return nil
	})
	if status == subcommands.ExitSuccess {
		fmt.Fprintln(stdout, id)
	}
	return status
}

type refundCmd struct {
	account     string
	payee       string
	when        string
	description string
	categories  pairs
	tags        pairs
}

func (*refundCmd) Name() string     { return "refund" }
func (*refundCmd) Synopsis() string { return "record a refund of an expense" }
func (*refundCmd) Usage() string {
	return `kpt refund [-a <account>] [-p <payee>] [-c <category>=<amount>]... [-t <tag>=<amount>]... [-d <time>] [-m <description>] <transaction> [<amount>]

  Records a refund of the expense <transaction>. The account and the payee
  default to the ones of the expense. Categories and tags not listed are
  refunded 0. When the expense has a single category, the amount can be
  given as the last argument.

Usage Examples:
$ kpt refund 3f2a 60
$ kpt refund -c Food=60 -c Drinks=0 -t trip=20 3f2a
`
}

func (c *refundCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "Cash account receiving the refund.")
	f.StringVar(&c.payee, "p", "", "Payee.")
	f.StringVar(&c.when, "d", "", "Timestamp, YYYY-MM-DD[THH:MM]. Defaults to now.")
	f.StringVar(&c.description, "m", "", "Description.")
	f.Var(&c.categories, "c", "Category and amount, repeatable.")
	f.Var(&c.tags, "t", "Tag and amount, repeatable.")
}

func (c *refundCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 1 || f.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "Error: a transaction id and an optional amount are required")
		return subcommands.ExitUsageError
	}
	var id uuid.UUID
	status := run("refund", func(rk *kapytal.RecordKeeper) error {
		ids, err := resolveIDs(rk, f.Args()[:1])
		if err != nil {
			return err
		}
		t, err := rk.Transaction(ids[0])
		if err != nil {
			return err
		}
		refunded, ok := t.(*kapytal.CashTransaction)
		if !ok {
			return fmt.Errorf("transaction %s is not an expense: %w", ids[0], kapytal.ErrInvalidOperation)
		}
		in := kapytal.RefundInput{
			Description: c.description,
			Refunded:    refunded.ID(),
			Account:     c.account,
			Payee:       c.payee,
		}
		if in.Account == "" {
			in.Account = refunded.Account().Path()
		}
		if in.Payee == "" {
			in.Payee = refunded.Payee().Name()
		}
		if in.Timestamp, err = parseTime(c.when); err != nil {
			return err
		}
		currency := refunded.Amount().Currency()

		given, err := categorySplits(c.categories, currency)
		if err != nil {
			return err
		}
		if f.NArg() == 2 {
			if len(refunded.Categories()) != 1 || len(given) > 0 {
				return fmt.Errorf("an amount argument needs an expense with a single category")
			}
			amount, err := kapytal.ParseAmount(f.Arg(1), currency)
			if err != nil {
				return err
			}
			given = []kapytal.CategorySplit{{Path: refunded.Categories()[0].Category.Path(), Amount: amount}}
		}
		for _, ca := range refunded.Categories() {
			split := kapytal.CategorySplit{Path: ca.Category.Path(), Amount: currency.Zero()}
			for _, g := range given {
				if g.Path == split.Path {
					split.Amount = g.Amount
				}
			}
			in.Categories = append(in.Categories, split)
		}
		if len(given) > len(in.Categories) {
			return fmt.Errorf("the expense has only %d categories", len(in.Categories))
		}

		tags, err := tagSplits(c.tags, currency)
		if err != nil {
			return err
		}
		for _, ta := range refunded.TagAmounts() {
			split := kapytal.TagSplit{Name: ta.Tag.Name(), Amount: currency.Zero()}
			for _, g := range tags {
				if g.Name == split.Name {
					split.Amount = g.Amount
				}
			}
			in.Tags = append(in.Tags, split)
		}

		r, err := rk.AddRefund(in)
		if err != nil {
			return err
		}
		id = r.ID()
		return nil
	})
	if status == subcommands.ExitSuccess {
		fmt.Fprintln(stdout, id)
	}
	return status
}

type transferCmd struct {
	from        string
	to          string
	received    string
	when        string
	description string
	tags        pairs
}

func (*transferCmd) Name() string     { return "transfer" }
func (*transferCmd) Synopsis() string { return "record a transfer between two cash accounts" }
func (*transferCmd) Usage() string {
	return `kpt transfer -from <account> -to <account> [-received <amount>] [-t <tag>]... [-d <time>] [-m <description>] <amount>

  Records a transfer of <amount>, in the sender currency. Between accounts of
  different currencies the received amount defaults to the converted amount.

Usage Examples:
$ kpt transfer -from Bank/Current -to Wallet 200
$ kpt transfer -from Bank/Current -to Bank/Euro -received 40 1000
`
}

func (c *transferCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "Sending account.")
	f.StringVar(&c.to, "to", "", "Receiving account.")
	f.StringVar(&c.received, "received", "", "Amount received, in the recipient currency.")
	f.StringVar(&c.when, "d", "", "Timestamp, YYYY-MM-DD[THH:MM]. Defaults to now.")
	f.StringVar(&c.description, "m", "", "Description.")
	f.Var(&c.tags, "t", "Tag, repeatable.")
}

func (c *transferCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a single amount is required")
		return subcommands.ExitUsageError
	}
	var id uuid.UUID
	status := run("transfer", func(rk *kapytal.RecordKeeper) error {
		sender, err := rk.CashAccount(c.from)
		if err != nil {
			return err
		}
		recipient, err := rk.CashAccount(c.to)
		if err != nil {
			return err
		}
		in := kapytal.CashTransferInput{
			Description: c.description,
			Sender:      c.from,
			Recipient:   c.to,
			Tags:        c.tags,
		}
		if in.Timestamp, err = parseTime(c.when); err != nil {
			return err
		}
		if in.AmountSent, err = kapytal.ParseAmount(f.Arg(0), sender.Currency()); err != nil {
			return err
		}
		if c.received != "" {
			in.AmountReceived, err = kapytal.ParseAmount(c.received, recipient.Currency())
		} else {
			day := date.Of(in.Timestamp)
			in.AmountReceived, err = in.AmountSent.Convert(recipient.Currency(), &day)
		}
		if err != nil {
			return err
		}
		in.AmountReceived = in.AmountReceived.Rounded()
		tx, err := rk.AddCashTransfer(in)
		if err != nil {
			return err
		}
		id = tx.ID()
		return nil
	})
	if status == subcommands.ExitSuccess {
		fmt.Fprintln(stdout, id)
	}
	return status
}

type securityTxCmd struct {
	typ         kapytal.SecurityTransactionType
	security    string
	account     string
	cash        string
	price       string
	when        string
	description string
	tags        pairs
}

func (c *securityTxCmd) Name() string { return strings.ToLower(c.typ.String()) }
func (c *securityTxCmd) Synopsis() string {
	switch c.typ {
	case kapytal.Buy:
		return "record shares bought"
	case kapytal.Sell:
		return "record shares sold"
	}
	return "record a dividend"
}
func (c *securityTxCmd) Usage() string {
	return fmt.Sprintf(`kpt %s -s <security> -a <security account> -cash <cash account> -price <price> [-t <tag>]... [-d <time>] [-m <description>] <shares>

  Records a %s. The price is per share, in the security currency, which must
  also be the currency of the cash account. A dividend is the number of
  shares held and the dividend per share.

Usage Examples:
$ kpt %s -s Apple -a Broker/Shares -cash Broker/Cash -price 170.5 10
`, c.Name(), c.Name(), c.Name())
}

func (c *securityTxCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.security, "s", "", "Security name.")
	f.StringVar(&c.account, "a", "", "Security account.")
	f.StringVar(&c.cash, "cash", "", "Cash account.")
	f.StringVar(&c.price, "price", "", "Price, or dividend, per share.")
	f.StringVar(&c.when, "d", "", "Timestamp, YYYY-MM-DD[THH:MM]. Defaults to now.")
	f.StringVar(&c.description, "m", "", "Description.")
	f.Var(&c.tags, "t", "Tag, repeatable.")
}

func (c *securityTxCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a number of shares is required")
		return subcommands.ExitUsageError
	}
	var id uuid.UUID
	status := run(c.Name(), func(rk *kapytal.RecordKeeper) error {
		security, err := rk.Security(c.security)
		if err != nil {
			return err
		}
		in := kapytal.SecurityTransactionInput{
			Description:     c.description,
			Type:            c.typ,
			Security:        c.security,
			SecurityAccount: c.account,
			CashAccount:     c.cash,
			Tags:            c.tags,
		}
		if in.Timestamp, err = parseTime(c.when); err != nil {
			return err
		}
		if in.Shares, err = parseDecimal("shares", f.Arg(0)); err != nil {
			return err
		}
		if in.PricePerShare, err = kapytal.ParseAmount(c.price, security.Currency()); err != nil {
			return err
		}
		tx, err := rk.AddSecurityTransaction(in)
		if err != nil {
			return err
		}
		id = tx.ID()
		return nil
	})
	if status == subcommands.ExitSuccess {
		fmt.Fprintln(stdout, id)
	}
	return status
}

type moveSharesCmd struct {
	security    string
	from        string
	to          string
	when        string
	description string
	tags        pairs
}

func (*moveSharesCmd) Name() string     { return "move-shares" }
func (*moveSharesCmd) Synopsis() string { return "record shares moved between two security accounts" }
func (*moveSharesCmd) Usage() string {
	return `kpt move-shares -s <security> -from <account> -to <account> [-t <tag>]... [-d <time>] [-m <description>] <shares>
`
}

func (c *moveSharesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.security, "s", "", "Security name.")
	f.StringVar(&c.from, "from", "", "Sending security account.")
	f.StringVar(&c.to, "to", "", "Receiving security account.")
	f.StringVar(&c.when, "d", "", "Timestamp, YYYY-MM-DD[THH:MM]. Defaults to now.")
	f.StringVar(&c.description, "m", "", "Description.")
	f.Var(&c.tags, "t", "Tag, repeatable.")
}

func (c *moveSharesCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a number of shares is required")
		return subcommands.ExitUsageError
	}
	return run("move-shares", func(rk *kapytal.RecordKeeper) error {
		in := kapytal.SecurityTransferInput{
			Description: c.description,
			Security:    c.security,
			Sender:      c.from,
			Recipient:   c.to,
			Tags:        c.tags,
		}
		var err error
		if in.Timestamp, err = parseTime(c.when); err != nil {
			return err
		}
		if in.Shares, err = parseDecimal("shares", f.Arg(0)); err != nil {
			return err
		}
		_, err = rk.AddSecurityTransfer(in)
		return err
	})
}

type tagCmd struct {
	add bool
}

func (c *tagCmd) Name() string {
	if c.add {
		return "tag"
	}
	return "untag"
}
func (c *tagCmd) Synopsis() string {
	if c.add {
		return "add tags to transactions"
	}
	return "remove tags from transactions"
}
func (c *tagCmd) Usage() string {
	return fmt.Sprintf(`kpt %s <tag>[,<tag>...] <transaction>...

  On incomes and expenses, a new tag annotates the whole amount. Refunds,
  and the expenses they refund, cannot be retagged.

Usage Examples:
$ kpt %s holidays 3f2a 9be1
`, c.Name(), c.Name())
}

func (*tagCmd) SetFlags(f *flag.FlagSet) {}

func (c *tagCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Error: tags and transactions are required")
		return subcommands.ExitUsageError
	}
	names := strings.Split(f.Arg(0), ",")
	return run(c.Name(), func(rk *kapytal.RecordKeeper) error {
		ids, err := resolveIDs(rk, f.Args()[1:])
		if err != nil {
			return err
		}
		if c.add {
			return rk.AddTagsToTransactions(ids, names)
		}
		return rk.RemoveTagsFromTransactions(ids, names)
	})
}

type editCmd struct {
	description string
	when        string
	payee       string
	account     string
}

func (*editCmd) Name() string     { return "edit" }
func (*editCmd) Synopsis() string { return "edit transactions of the same kind at once" }
func (*editCmd) Usage() string {
	return `kpt edit [-m <description>] [-d <time>] [-p <payee>] [-a <account>] <transaction>...

  Changes the given fields of every transaction, which must all be of the
  same kind. Payee and account only apply to incomes, expenses and refunds.
  Either every transaction is changed, or none.

Usage Examples:
$ kpt edit -p "Tesco Express" 3f2a 9be1
`
}

func (c *editCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.description, "m", "", "New description.")
	f.StringVar(&c.when, "d", "", "New timestamp, YYYY-MM-DD[THH:MM].")
	f.StringVar(&c.payee, "p", "", "New payee.")
	f.StringVar(&c.account, "a", "", "New cash account.")
}

// optional returns a pointer to s, nil when s is empty.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (c *editCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: no transaction to edit")
		return subcommands.ExitUsageError
	}
	return run("edit", func(rk *kapytal.RecordKeeper) error {
		ids, err := resolveIDs(rk, f.Args())
		if err != nil {
			return err
		}
		description := optional(c.description)
		var when *time.Time
		if c.when != "" {
			t, err := parseTime(c.when)
			if err != nil {
				return err
			}
			when = &t
		}
		first, err := rk.Transaction(ids[0])
		if err != nil {
			return err
		}
		for _, id := range ids[1:] {
			t, err := rk.Transaction(id)
			if err != nil {
				return err
			}
			if fmt.Sprintf("%T", t) != fmt.Sprintf("%T", first) {
				return fmt.Errorf("transactions %s and %s are not of the same kind", ids[0], id)
			}
		}
		cashOnly := func() error {
			if c.payee != "" || c.account != "" {
				return fmt.Errorf("payee and account cannot be edited on a %s", strings.ToLower(kindOf(first)))
			}
			return nil
		}
		switch first.(type) {
		case *kapytal.CashTransaction:
			return rk.EditCashTransactions(ids, kapytal.CashTransactionEdit{
				Description: description, Timestamp: when, Payee: optional(c.payee), Account: optional(c.account),
			})
		case *kapytal.RefundTransaction:
			return rk.EditRefunds(ids, kapytal.RefundEdit{
				Description: description, Timestamp: when, Payee: optional(c.payee), Account: optional(c.account),
			})
		case *kapytal.CashTransfer:
			if err := cashOnly(); err != nil {
				return err
			}
			return rk.EditCashTransfers(ids, kapytal.CashTransferEdit{Description: description, Timestamp: when})
		case *kapytal.SecurityTransaction:
			if err := cashOnly(); err != nil {
				return err
			}
			return rk.EditSecurityTransactions(ids, kapytal.SecurityTransactionEdit{Description: description, Timestamp: when})
		case *kapytal.SecurityTransfer:
			if err := cashOnly(); err != nil {
				return err
			}
			return rk.EditSecurityTransfers(ids, kapytal.SecurityTransferEdit{Description: description, Timestamp: when})
		}
		return nil
	})
}

// kindOf names the variant of t.
func kindOf(t kapytal.Transaction) string {
	switch t.(type) {
	case *kapytal.CashTransaction:
		return "Cash transaction"
	case *kapytal.RefundTransaction:
		return "Refund"
	case *kapytal.CashTransfer:
		return "Transfer"
	case *kapytal.SecurityTransaction:
		return "Security transaction"
	}
	return "Security transfer"
}

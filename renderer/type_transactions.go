package renderer

import (
	"fmt"
	"strings"

	"github.com/etnz/kapytal"
)

// TransactionRow is one transaction of a list.
type TransactionRow struct {
	ID          string
	Time        string
	Kind        string
	Description string
	Details     string
	Amount      string
	Tags        string
}

// Transactions is a list of transactions.
type Transactions struct {
	Title string
	Rows  []TransactionRow
	// Hidden counts the transactions left out by a limit.
	Hidden int
}

// NewTransactions lists txs in their order, at most limit of them when limit is positive.
func NewTransactions(title string, txs []kapytal.Transaction, limit int) *Transactions {
	l := &Transactions{Title: title}
	if limit > 0 && len(txs) > limit {
		l.Hidden = len(txs) - limit
		txs = txs[:limit]
	}
	for _, t := range txs {
		tags := make([]string, 0, len(t.Tags()))
		for _, tag := range t.Tags() {
			tags = append(tags, tag.Name())
		}
		l.Rows = append(l.Rows, TransactionRow{
			ID:          t.ID().String(),
			Time:        t.Timestamp().Format(TimeFormat),
			Kind:        kind(t),
			Description: cell(t.Description()),
			Details:     cell(details(t)),
			Amount:      amount(t),
			Tags:        strings.Join(tags, ", "),
		})
	}
	return l
}

// cell escapes the characters of s that would break a table row.
func cell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

func kind(t kapytal.Transaction) string {
	switch t := t.(type) {
	case *kapytal.CashTransaction:
		if t.Type() == kapytal.IncomeTransaction {
			return "Income"
		}
		return "Expense"
	case *kapytal.RefundTransaction:
		return "Refund"
	case *kapytal.CashTransfer:
		return "Transfer"
	case *kapytal.SecurityTransaction:
		switch t.Type() {
		case kapytal.Buy:
			return "Buy"
		case kapytal.Sell:
			return "Sell"
		}
		return "Dividend"
	case *kapytal.SecurityTransfer:
		return "Share transfer"
	}
	return fmt.Sprintf("%T", t)
}

func details(t kapytal.Transaction) string {
	switch t := t.(type) {
	case *kapytal.CashTransaction:
		return t.Account().Path() + " · " + t.Payee().Name() + " · " + splits(t.Categories())
	case *kapytal.RefundTransaction:
		return t.Account().Path() + " · " + t.Payee().Name() + " · " + splits(t.Categories())
	case *kapytal.CashTransfer:
		return t.Sender().Path() + " → " + t.Recipient().Path()
	case *kapytal.SecurityTransaction:
		return fmt.Sprintf("%s %s @ %s · %s", t.Shares(), t.Security().Name(), t.PricePerShare(), t.SecurityAccount().Path())
	case *kapytal.SecurityTransfer:
		return fmt.Sprintf("%s %s · %s → %s", t.Shares(), t.Security().Name(), t.Sender().Path(), t.Recipient().Path())
	}
	return ""
}

func splits(categories []kapytal.CategoryAmount) string {
	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = c.Category.Path()
		if len(categories) > 1 {
			parts[i] += " " + c.Amount.String()
		}
	}
	return strings.Join(parts, ", ")
}

// amount returns the cash moved by t, signed from the point of view of its account.
func amount(t kapytal.Transaction) string {
	switch t := t.(type) {
	case *kapytal.CashTransaction:
		if t.Type() == kapytal.ExpenseTransaction {
			return t.Amount().Neg().String()
		}
		return t.Amount().String()
	case *kapytal.RefundTransaction:
		return t.Amount().String()
	case *kapytal.CashTransfer:
		if t.AmountSent().Currency() == t.AmountReceived().Currency() {
			return t.AmountSent().String()
		}
		return t.AmountSent().String() + " → " + t.AmountReceived().String()
	case *kapytal.SecurityTransaction:
		if t.Type() == kapytal.Buy {
			return t.Amount().Neg().String()
		}
		return t.Amount().String()
	}
	return ""
}

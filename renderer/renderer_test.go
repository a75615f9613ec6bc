package renderer

import (
	"strings"
	"testing"
	"time"

	"github.com/etnz/kapytal"
	"github.com/etnz/kapytal/date"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// newLedger returns a ledger with a CZK account "Bank/Current", an EUR
// account "Bank/Euro", a CZK account "Wallet" and three transactions.
func newLedger(t *testing.T) *kapytal.RecordKeeper {
	t.Helper()
	rk := kapytal.New(kapytal.WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }))
	check := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("fixture: %v", err)
		}
	}
	_, err := rk.AddCurrency("CZK", 2)
	check(err)
	_, err = rk.AddCurrency("EUR", 2)
	check(err)
	_, err = rk.AddExchangeRate("EUR", "CZK")
	check(err)
	check(rk.SetExchangeRate("EUR/CZK", date.New(2024, 1, 1), decimal.NewFromInt(25)))
	_, err = rk.AddAccountGroup("Bank")
	check(err)
	_, err = rk.AddCashAccount("Bank/Current", "CZK", decimal.NewFromInt(1000))
	check(err)
	_, err = rk.AddCashAccount("Bank/Euro", "EUR", decimal.NewFromInt(10))
	check(err)
	_, err = rk.AddCashAccount("Wallet", "CZK", decimal.Zero)
	check(err)

	czk, err := rk.Currency("CZK")
	check(err)
	amount := func(v int64) kapytal.CashAmount { return kapytal.NewCashAmount(decimal.NewFromInt(v), czk) }
	_, err = rk.AddCashTransaction(kapytal.CashTransactionInput{
		Description: "lunch",
		Timestamp:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Type:        kapytal.ExpenseTransaction,
		Account:     "Bank/Current",
		Payee:       "Shop",
		Categories:  []kapytal.CategorySplit{{Path: "Food/Restaurant", Amount: amount(100)}},
		Tags:        []kapytal.TagSplit{{Name: "trip", Amount: amount(40)}},
	})
	check(err)
	_, err = rk.AddCashTransaction(kapytal.CashTransactionInput{
		Description: "pocket money",
		Timestamp:   time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
		Type:        kapytal.IncomeTransaction,
		Account:     "Wallet",
		Payee:       "Mum",
		Categories:  []kapytal.CategorySplit{{Path: "Gifts", Amount: amount(50)}},
		Tags:        []kapytal.TagSplit{{Name: "family", Amount: amount(50)}},
	})
	check(err)
	_, err = rk.AddCashTransfer(kapytal.CashTransferInput{
		Description:    "withdrawal",
		Timestamp:      time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC),
		Sender:         "Bank/Current",
		Recipient:      "Wallet",
		AmountSent:     amount(200),
		AmountReceived: amount(200),
		Tags:           []string{"move"},
	})
	check(err)
	return rk
}

// outline parses md and returns one line per heading, paragraph, list item
// and table row, with the plain text of each.
func outline(md string) []string {
	src := []byte(md)
	doc := goldmark.New(goldmark.WithExtensions(extension.Table)).Parser().Parse(text.NewReader(src))
	var lines []string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Heading:
			lines = append(lines, strings.Repeat("#", n.Level)+" "+textOf(n, src))
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			depth := 0
			for p := n.Parent(); p != nil; p = p.Parent() {
				if _, ok := p.(*ast.ListItem); ok {
					depth++
				}
			}
			lines = append(lines, strings.Repeat("  ", depth)+"- "+textOf(n.FirstChild(), src))
		case *ast.Paragraph:
			lines = append(lines, textOf(n, src))
			return ast.WalkSkipChildren, nil
		case *east.TableHeader, *east.TableRow:
			var cells []string
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				cells = append(cells, textOf(c, src))
			}
			lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return lines
}

func textOf(n ast.Node, src []byte) string {
	var b strings.Builder
	ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Text:
			b.Write(n.Segment.Value(src))
			if n.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(n.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func TestRenderAccounts(t *testing.T) {
	rk := newLedger(t)
	czk, _ := rk.Currency("CZK")

	t.Run("latest", func(t *testing.T) {
		got := outline(RenderAccounts(NewAccounts(rk, czk, nil)))
		want := []string{
			"# Accounts",
			"Latest balances, in CZK.",
			"- Bank: 950.00 CZK",
			"  - Current: 700.00 CZK",
			"  - Euro: 250.00 CZK (10.00 EUR)",
			"- Wallet: 250.00 CZK",
			"Total: 1200.00 CZK",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("RenderAccounts() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("on a day", func(t *testing.T) {
		day := date.New(2024, 3, 1)
		got := outline(RenderAccounts(NewAccounts(rk, czk, &day)))
		want := []string{
			"# Accounts",
			"Balances on 2024-03-01, in CZK.",
			"- Bank: 1150.00 CZK",
			"  - Current: 900.00 CZK",
			"  - Euro: 250.00 CZK (10.00 EUR)",
			"- Wallet: 0.00 CZK",
			"Total: 1150.00 CZK",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("RenderAccounts() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing conversion", func(t *testing.T) {
		if _, err := rk.AddCurrency("USD", 2); err != nil {
			t.Fatal(err)
		}
		if _, err := rk.AddCashAccount("Dollars", "USD", decimal.NewFromInt(5)); err != nil {
			t.Fatal(err)
		}
		accounts := NewAccounts(rk, czk, nil)
		if diff := cmp.Diff([]string{"Dollars"}, accounts.Unconverted); diff != "" {
			t.Errorf("Unconverted mismatch (-want +got):\n%s", diff)
		}
		got := outline(RenderAccounts(accounts))
		want := []string{
			"- Dollars: n/a (5.00 USD)",
			"Total: 1200.00 CZK",
			"Not valued, a conversion is missing: Dollars.",
		}
		if diff := cmp.Diff(want, got[len(got)-3:]); diff != "" {
			t.Errorf("RenderAccounts() mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestRenderHistory(t *testing.T) {
	rk := newLedger(t)
	current, err := rk.CashAccount("Bank/Current")
	if err != nil {
		t.Fatal(err)
	}
	got := outline(RenderHistory(NewHistory(current)))
	want := []string{
		"# Bank/Current",
		"Initial balance: 1000.00 CZK, current balance: 700.00 CZK.",
		"| Time | Kind | Description | Details | Amount | Balance |",
		"| 2024-03-01 10:00 | Expense | lunch | Bank/Current · Shop · Food/Restaurant | -100.00 CZK | 900.00 CZK |",
		"| 2024-03-03 10:00 | Transfer | withdrawal | Bank/Current → Wallet | -200.00 CZK | 700.00 CZK |",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RenderHistory() mismatch (-want +got):\n%s", diff)
	}

	euro, err := rk.CashAccount("Bank/Euro")
	if err != nil {
		t.Fatal(err)
	}
	got = outline(RenderHistory(NewHistory(euro)))
	want = []string{
		"# Bank/Euro",
		"Initial balance: 10.00 EUR, current balance: 10.00 EUR.",
		"No transactions.",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RenderHistory() mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderTransactions(t *testing.T) {
	rk := newLedger(t)
	txs := rk.Transactions()
	got := outline(RenderTransactions(NewTransactions("Latest", txs, 2)))
	want := []string{
		"# Latest",
		"| Time | Kind | Description | Details | Amount | Tags | ID |",
		"| 2024-03-03 10:00 | Transfer | withdrawal | Bank/Current → Wallet | 200.00 CZK | move | " + txs[0].ID().String() + " |",
		"| 2024-03-02 10:00 | Income | pocket money | Wallet · Mum · Gifts | 50.00 CZK | family | " + txs[1].ID().String() + " |",
		"1 older transactions are not shown.",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RenderTransactions() mismatch (-want +got):\n%s", diff)
	}

	got = outline(RenderTransactions(NewTransactions("Nothing", nil, 0)))
	if diff := cmp.Diff([]string{"# Nothing", "No transactions."}, got); diff != "" {
		t.Errorf("RenderTransactions(empty) mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderCategories(t *testing.T) {
	rk := newLedger(t)
	got := outline(RenderCategories(NewCategories(rk)))
	want := []string{
		"# Categories",
		"- Food (expense)",
		"  - Restaurant",
		"- Gifts (income)",
		"# Payees",
		"Mum, Shop",
		"# Tags",
		"family, move, trip",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RenderCategories() mismatch (-want +got):\n%s", diff)
	}
}

func TestCell(t *testing.T) {
	if got, want := cell("a|b\nc"), `a\|b c`; got != want {
		t.Errorf("cell() = %q want %q", got, want)
	}
}

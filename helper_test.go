package kapytal

import (
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// epoch is the fixed clock of test record keepers.
var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// newTestKeeper returns an empty RecordKeeper with a fixed clock and predictable ids.
func newTestKeeper() *RecordKeeper {
	n := 0
	return New(
		WithClock(func() time.Time { return epoch }),
		WithIDs(func() uuid.UUID {
			n++
			return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strconv.Itoa(n)))
		}),
	)
}

// must is a test helper that panics on error.
func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// at parses a "2006-01-02T15:04" timestamp in UTC.
func at(s string) time.Time {
	return must(time.Parse("2006-01-02T15:04", s))
}

// dec parses a decimal.
func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// czk returns an amount in the CZK currency of rk.
func czk(rk *RecordKeeper, s string) CashAmount {
	return NewCashAmount(dec(s), must(rk.Currency("CZK")))
}

// newCZKKeeper returns a RecordKeeper with a CZK cash account "Group A/Acc1",
// a second one "Group A/Acc2", two expense categories "Food" and "Drinks", an
// income category "Salary" and a payee "Shop".
func newCZKKeeper(t *testing.T) *RecordKeeper {
	t.Helper()
	rk := newTestKeeper()
	steps := []error{
		second(rk.AddCurrency("CZK", 2)),
		second(rk.AddAccountGroup("Group A")),
		second(rk.AddCashAccount("Group A/Acc1", "CZK", decimal.Zero)),
		second(rk.AddCashAccount("Group A/Acc2", "CZK", decimal.Zero)),
		second(rk.AddCategory("Food", Expense)),
		second(rk.AddCategory("Drinks", Expense)),
		second(rk.AddCategory("Salary", Income)),
		second(rk.AddPayee("Shop")),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatalf("fixture: %v", err)
		}
	}
	return rk
}

func second[T any](_ T, err error) error { return err }

// addExpense adds a 60/40 CZK expense on Food and Drinks to Acc1.
func addExpense(t *testing.T, rk *RecordKeeper, when time.Time, tags ...TagSplit) *CashTransaction {
	t.Helper()
	tx, err := rk.AddCashTransaction(CashTransactionInput{
		Description: "groceries",
		Timestamp:   when,
		Type:        ExpenseTransaction,
		Account:     "Group A/Acc1",
		Payee:       "Shop",
		Categories: []CategorySplit{
			{Path: "Food", Amount: czk(rk, "60")},
			{Path: "Drinks", Amount: czk(rk, "40")},
		},
		Tags: tags,
	})
	if err != nil {
		t.Fatalf("AddCashTransaction() unexpected error: %v", err)
	}
	return tx
}

// refund returns a RefundInput of food and drinks against tx.
func refund(rk *RecordKeeper, tx *CashTransaction, when time.Time, food, drinks string, tags ...TagSplit) RefundInput {
	return RefundInput{
		Timestamp: when,
		Refunded:  tx.ID(),
		Account:   "Group A/Acc1",
		Payee:     "Shop",
		Categories: []CategorySplit{
			{Path: "Food", Amount: czk(rk, food)},
			{Path: "Drinks", Amount: czk(rk, drinks)},
		},
		Tags: tags,
	}
}

// balances returns the balance values of a's history.
func balances(a *CashAccount) []string {
	var got []string
	for _, p := range a.BalanceHistory() {
		got = append(got, p.Balance.Value().String())
	}
	return got
}

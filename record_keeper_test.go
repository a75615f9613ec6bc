package kapytal

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestAddCashTransaction_Balance(t *testing.T) {
	rk := newCZKKeeper(t)
	tx := addExpense(t, rk, at("2024-03-01T10:00"))

	if got := tx.Amount().String(); got != "100.00 CZK" {
		t.Errorf("Amount() = %v want 100.00 CZK", got)
	}
	acc := must(rk.CashAccount("Group A/Acc1"))
	if diff := cmp.Diff([]string{"0", "-100"}, balances(acc)); diff != "" {
		t.Errorf("balance history mismatch (-want +got):\n%s", diff)
	}
	if got, want := acc.BalanceHistory()[0].Time, at("2024-03-01T10:00").Add(-1e9); !got.Equal(want) {
		t.Errorf("seed time = %v want %v", got, want)
	}
	if got := rk.Descriptions()["groceries"]; got != 1 {
		t.Errorf("Descriptions()[groceries] = %d want 1", got)
	}
	if _, err := rk.Transaction(tx.ID()); err != nil {
		t.Errorf("Transaction(%s) unexpected error: %v", tx.ID(), err)
	}
}

func TestAddCashTransaction_Validation(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(rk *RecordKeeper, in *CashTransactionInput)
		wantErr error
	}{
		{
			name:    "no category",
			edit:    func(rk *RecordKeeper, in *CashTransactionInput) { in.Categories = nil },
			wantErr: ErrInvalidValue,
		},
		{
			name: "repeated category",
			edit: func(rk *RecordKeeper, in *CashTransactionInput) {
				in.Categories = append(in.Categories, CategorySplit{Path: "Food", Amount: czk(rk, "1")})
			},
			wantErr: ErrInvalidValue,
		},
		{
			name: "income category on an expense",
			edit: func(rk *RecordKeeper, in *CashTransactionInput) {
				in.Categories = []CategorySplit{{Path: "Salary", Amount: czk(rk, "1")}}
			},
			wantErr: ErrInvalidValue,
		},
		{
			name: "zero amount",
			edit: func(rk *RecordKeeper, in *CashTransactionInput) {
				in.Categories[0].Amount = czk(rk, "0")
			},
			wantErr: ErrInvalidValue,
		},
		{
			name: "omitted amount",
			edit: func(rk *RecordKeeper, in *CashTransactionInput) {
				in.Categories = []CategorySplit{{Path: "Food"}}
			},
			wantErr: ErrInvalidValue,
		},
		{
			name: "other currency",
			edit: func(rk *RecordKeeper, in *CashTransactionInput) {
				eur := must(rk.AddCurrency("EUR", 2))
				in.Categories[0].Amount = NewCashAmount(dec("60"), eur)
			},
			wantErr: ErrCurrency,
		},
		{
			name: "tag above total",
			edit: func(rk *RecordKeeper, in *CashTransactionInput) {
				in.Tags = []TagSplit{{Name: "trip", Amount: czk(rk, "100.01")}}
			},
			wantErr: ErrInvalidValue,
		},
		{
			name: "long description",
			edit: func(rk *RecordKeeper, in *CashTransactionInput) {
				in.Description = strings.Repeat("x", DescriptionMaxLength+1)
			},
			wantErr: ErrInvalidValue,
		},
		{
			name:    "unknown account",
			edit:    func(rk *RecordKeeper, in *CashTransactionInput) { in.Account = "Nope" },
			wantErr: ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rk := newCZKKeeper(t)
			in := CashTransactionInput{
				Timestamp: at("2024-03-01T10:00"),
				Type:      ExpenseTransaction,
				Account:   "Group A/Acc1",
				Payee:     "Grocer",
				Categories: []CategorySplit{
					{Path: "Food", Amount: czk(rk, "60")},
					{Path: "Drinks/Soda", Amount: czk(rk, "40")},
				},
			}
			tt.edit(rk, &in)
			_, err := rk.AddCashTransaction(in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AddCashTransaction() error = %v want %v", err, tt.wantErr)
			}
			// Nothing created on the way survives a failure.
			if _, err := rk.Payee("Grocer"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Payee(Grocer) error = %v want %v", err, ErrNotFound)
			}
			if _, err := rk.Category("Drinks/Soda"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Category(Drinks/Soda) error = %v want %v", err, ErrNotFound)
			}
			if n := len(rk.Transactions()); n != 0 {
				t.Errorf("len(Transactions()) = %d want 0", n)
			}
		})
	}
}

func TestAddCashTransaction_CreatesAttributes(t *testing.T) {
	rk := newCZKKeeper(t)
	_, err := rk.AddCashTransaction(CashTransactionInput{
		Timestamp:  at("2024-03-01T10:00"),
		Type:       ExpenseTransaction,
		Account:    "Group A/Acc1",
		Payee:      "Grocer",
		Categories: []CategorySplit{{Path: "Drinks/Soda/Cola", Amount: czk(rk, "10")}},
		Tags:       []TagSplit{{Name: "trip", Amount: czk(rk, "5")}},
	})
	if err != nil {
		t.Fatalf("AddCashTransaction() unexpected error: %v", err)
	}
	cola, err := rk.Category("Drinks/Soda/Cola")
	if err != nil {
		t.Fatalf("Category() unexpected error: %v", err)
	}
	if cola.Type() != Expense {
		t.Errorf("Category().Type() = %v want %v", cola.Type(), Expense)
	}
	if got := rk.ParentCategory(cola).Path(); got != "Drinks/Soda" {
		t.Errorf("ParentCategory() = %q want Drinks/Soda", got)
	}
	if _, err := rk.Tag("trip"); err != nil {
		t.Errorf("Tag(trip) unexpected error: %v", err)
	}
}

func TestTransactionsOrder(t *testing.T) {
	rk := newCZKKeeper(t)
	second := addExpense(t, rk, at("2024-03-02T10:00"))
	first := addExpense(t, rk, at("2024-03-01T10:00"))
	tie := addExpense(t, rk, at("2024-03-02T10:00"))

	var got []uuid.UUID
	for _, tx := range rk.Transactions() {
		got = append(got, tx.ID())
	}
	want := []uuid.UUID{tie.ID(), second.ID(), first.ID()}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Transactions() order mismatch (-want +got):\n%s", diff)
	}
}

// TestRecompute checks that the incremental balance history always equals the
// initial balance folded with every transaction in chronological order.
func TestRecompute(t *testing.T) {
	rk := newCZKKeeper(t)
	acc1 := must(rk.CashAccount("Group A/Acc1"))
	acc2 := must(rk.CashAccount("Group A/Acc2"))
	must(rk.EditCashAccount("Group A/Acc1", CashAccountEdit{InitialBalance: ptr(dec("1000"))}))

	var ids []uuid.UUID
	for i, when := range []string{"2024-03-05T10:00", "2024-03-01T10:00", "2024-03-03T10:00", "2024-03-02T10:00"} {
		if i%2 == 0 {
			ids = append(ids, addExpense(t, rk, at(when)).ID())
			continue
		}
		tx, err := rk.AddCashTransfer(CashTransferInput{
			Timestamp:      at(when),
			Sender:         "Group A/Acc2",
			Recipient:      "Group A/Acc1",
			AmountSent:     czk(rk, "30"),
			AmountReceived: czk(rk, "25"),
		})
		if err != nil {
			t.Fatalf("AddCashTransfer() unexpected error: %v", err)
		}
		ids = append(ids, tx.ID())
	}
	must(0, rk.RemoveTransactions(ids[2:3]))

	for _, acc := range []*CashAccount{acc1, acc2} {
		want := []string{acc.InitialBalance().Value().String()}
		balance := acc.InitialBalance().Value()
		for _, tx := range acc.Transactions() {
			balance = balance.Add(cashContribution(tx, acc))
			want = append(want, balance.String())
		}
		got := balances(acc)
		acc.recompute()
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s incremental history mismatch (-want +got):\n%s", acc.Path(), diff)
		}
		if diff := cmp.Diff(want, balances(acc)); diff != "" {
			t.Errorf("%s recomputed history mismatch (-want +got):\n%s", acc.Path(), diff)
		}
	}
	if got := acc1.Balance().Value(); !got.Equal(dec("950")) {
		t.Errorf("Acc1.Balance() = %v want 950", got)
	}
	if got := acc2.Balance().Value(); !got.Equal(dec("-60")) {
		t.Errorf("Acc2.Balance() = %v want -60", got)
	}
}

func TestCashTransfer(t *testing.T) {
	rk := newCZKKeeper(t)
	_, err := rk.AddCashTransfer(CashTransferInput{
		Timestamp:      at("2024-03-01T10:00"),
		Sender:         "Group A/Acc1",
		Recipient:      "Group A/Acc2",
		AmountSent:     czk(rk, "100"),
		AmountReceived: czk(rk, "100"),
	})
	if err != nil {
		t.Fatalf("AddCashTransfer() unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"0", "-100"}, balances(must(rk.CashAccount("Group A/Acc1")))); diff != "" {
		t.Errorf("sender history mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"0", "100"}, balances(must(rk.CashAccount("Group A/Acc2")))); diff != "" {
		t.Errorf("recipient history mismatch (-want +got):\n%s", diff)
	}

	_, err = rk.AddCashTransfer(CashTransferInput{
		Timestamp:      at("2024-03-01T10:00"),
		Sender:         "Group A/Acc1",
		Recipient:      "Group A/Acc1",
		AmountSent:     czk(rk, "100"),
		AmountReceived: czk(rk, "100"),
	})
	if !errors.Is(err, ErrTransferSameAccount) || !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("AddCashTransfer(same account) error = %v want %v", err, ErrTransferSameAccount)
	}
}

func TestEditCashTransactions(t *testing.T) {
	rk := newCZKKeeper(t)
	tx1 := addExpense(t, rk, at("2024-03-01T10:00"))
	tx2 := addExpense(t, rk, at("2024-03-02T10:00"))
	acc2 := must(rk.CashAccount("Group A/Acc2"))

	// Collapsing the split to a single category keeps the total.
	err := rk.EditCashTransactions([]uuid.UUID{tx1.ID(), tx2.ID()}, CashTransactionEdit{
		Account:    ptr("Group A/Acc2"),
		Categories: []CategorySplit{{Path: "Food"}},
	})
	if err != nil {
		t.Fatalf("EditCashTransactions() unexpected error: %v", err)
	}
	for _, tx := range []*CashTransaction{tx1, tx2} {
		if got := tx.CategoryAmount(must(rk.Category("Food"))).String(); got != "100.00 CZK" {
			t.Errorf("CategoryAmount(Food) = %v want 100.00 CZK", got)
		}
	}
	if diff := cmp.Diff([]string{"0", "-100", "-200"}, balances(acc2)); diff != "" {
		t.Errorf("Acc2 history mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"0"}, balances(must(rk.CashAccount("Group A/Acc1")))); diff != "" {
		t.Errorf("Acc1 history mismatch (-want +got):\n%s", diff)
	}

	// A repeated id is edited once.
	if err := rk.EditCashTransactions([]uuid.UUID{tx1.ID(), tx1.ID()}, CashTransactionEdit{Description: ptr("groceries")}); err != nil {
		t.Fatalf("EditCashTransactions(repeated id) unexpected error: %v", err)
	}

	// One invalid transaction fails the batch.
	err = rk.EditCashTransactions([]uuid.UUID{tx1.ID(), tx2.ID(), uuid.New()}, CashTransactionEdit{Description: ptr("edited")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("EditCashTransactions() error = %v want %v", err, ErrNotFound)
	}
	if tx1.Description() != "groceries" {
		t.Errorf("Description() = %q want unchanged", tx1.Description())
	}

	// Changing the type needs compatible categories.
	err = rk.EditCashTransactions([]uuid.UUID{tx1.ID()}, CashTransactionEdit{Type: ptr(IncomeTransaction)})
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("EditCashTransactions(income) error = %v want %v", err, ErrInvalidValue)
	}
}

func TestEditAttribute_Merge(t *testing.T) {
	rk := newCZKKeeper(t)
	onlyA := addExpense(t, rk, at("2024-03-01T10:00"), TagSplit{Name: "A", Amount: czk(rk, "30")})
	both := addExpense(t, rk, at("2024-03-02T10:00"),
		TagSplit{Name: "A", Amount: czk(rk, "20")},
		TagSplit{Name: "B", Amount: czk(rk, "50")},
	)
	transfer, err := rk.AddCashTransfer(CashTransferInput{
		Timestamp:      at("2024-03-03T10:00"),
		Sender:         "Group A/Acc1",
		Recipient:      "Group A/Acc2",
		AmountSent:     czk(rk, "1"),
		AmountReceived: czk(rk, "1"),
		Tags:           []string{"A"},
	})
	if err != nil {
		t.Fatalf("AddCashTransfer() unexpected error: %v", err)
	}

	if _, err := rk.EditAttribute("A", Tag, "B", false); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("EditAttribute(merge=false) error = %v want %v", err, ErrAlreadyExists)
	}
	b, err := rk.EditAttribute("A", Tag, "B", true)
	if err != nil {
		t.Fatalf("EditAttribute(merge=true) unexpected error: %v", err)
	}
	if _, err := rk.Tag("A"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Tag(A) error = %v want %v", err, ErrNotFound)
	}
	if got := onlyA.TagAmount(b).String(); got != "30.00 CZK" {
		t.Errorf("TagAmount(B) = %v want 30.00 CZK", got)
	}
	if got := both.TagAmount(b).String(); got != "50.00 CZK" || len(both.Tags()) != 1 {
		t.Errorf("TagAmount(B) = %v, %d tags want 50.00 CZK, 1 tag", got, len(both.Tags()))
	}
	if !slices.Equal(transfer.Tags(), []*Attribute{b}) {
		t.Errorf("transfer Tags() = %v want [B]", transfer.Tags())
	}
}

func TestEditAttribute_Rename(t *testing.T) {
	rk := newCZKKeeper(t)
	tx := addExpense(t, rk, at("2024-03-01T10:00"))
	p, err := rk.EditAttribute("Shop", Payee, "Market", false)
	if err != nil {
		t.Fatalf("EditAttribute() unexpected error: %v", err)
	}
	if tx.Payee() != p || p.Name() != "Market" {
		t.Errorf("Payee() = %v want Market", tx.Payee())
	}
}

func TestBulkTags(t *testing.T) {
	rk := newCZKKeeper(t)
	tx := addExpense(t, rk, at("2024-03-01T10:00"))
	transfer := must(rk.AddCashTransfer(CashTransferInput{
		Timestamp:      at("2024-03-01T10:00"),
		Sender:         "Group A/Acc1",
		Recipient:      "Group A/Acc2",
		AmountSent:     czk(rk, "1"),
		AmountReceived: czk(rk, "1"),
	}))
	ids := []uuid.UUID{tx.ID(), transfer.ID()}

	if err := rk.AddTagsToTransactions(ids, []string{"trip", "trip"}); err != nil {
		t.Fatalf("AddTagsToTransactions() unexpected error: %v", err)
	}
	trip := must(rk.Tag("trip"))
	if got := tx.TagAmount(trip).String(); got != "100.00 CZK" {
		t.Errorf("TagAmount(trip) = %v want 100.00 CZK", got)
	}
	if !slices.Equal(tx.Tags(), []*Attribute{trip}) || !slices.Equal(transfer.Tags(), []*Attribute{trip}) {
		t.Errorf("Tags() = %v, %v want trip once", tx.Tags(), transfer.Tags())
	}
	// Adding a tag again keeps a single annotation.
	if err := rk.AddTagsToTransactions(ids, []string{"trip"}); err != nil {
		t.Fatalf("AddTagsToTransactions(again) unexpected error: %v", err)
	}
	if len(tx.Tags()) != 1 || len(transfer.Tags()) != 1 {
		t.Errorf("Tags() = %v, %v want trip once", tx.Tags(), transfer.Tags())
	}
	if err := rk.RemoveTag("trip"); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("RemoveTag(trip) error = %v want %v", err, ErrInvalidOperation)
	}
	if err := rk.RemoveTagsFromTransactions(ids, []string{"trip"}); err != nil {
		t.Fatalf("RemoveTagsFromTransactions() unexpected error: %v", err)
	}
	if len(tx.Tags()) != 0 || len(transfer.Tags()) != 0 {
		t.Errorf("Tags() = %v, %v want none", tx.Tags(), transfer.Tags())
	}
	if err := rk.RemoveTag("trip"); err != nil {
		t.Errorf("RemoveTag(trip) unexpected error: %v", err)
	}
}

// TestRemove_Referenced checks that an entity referenced by a transaction
// cannot be removed until the transaction is.
func TestRemove_Referenced(t *testing.T) {
	rk := newCZKKeeper(t)
	tx := addExpense(t, rk, at("2024-03-01T10:00"), TagSplit{Name: "trip", Amount: czk(rk, "10")})

	removals := map[string]func() error{
		"account":  func() error { return rk.RemoveAccount("Group A/Acc1") },
		"category": func() error { return rk.RemoveCategory("Food") },
		"payee":    func() error { return rk.RemovePayee("Shop") },
		"tag":      func() error { return rk.RemoveTag("trip") },
		"currency": func() error { return rk.RemoveCurrency("CZK") },
		"group":    func() error { return rk.RemoveAccountGroup("Group A") },
	}
	for name, remove := range removals {
		if err := remove(); !errors.Is(err, ErrInvalidOperation) {
			t.Errorf("remove %s error = %v want %v", name, err, ErrInvalidOperation)
		}
	}

	must(0, rk.RemoveTransactions([]uuid.UUID{tx.ID()}))
	for _, name := range []string{"category", "payee", "tag", "account"} {
		if err := removals[name](); err != nil {
			t.Errorf("remove %s unexpected error: %v", name, err)
		}
	}
	must(0, rk.RemoveAccount("Group A/Acc2"))
	for _, name := range []string{"group", "currency"} {
		if err := removals[name](); err != nil {
			t.Errorf("remove %s unexpected error: %v", name, err)
		}
	}
	if len(rk.Transactions()) != 0 || len(rk.TransactionIndex()) != 0 {
		t.Errorf("transactions = %d, index = %d want 0, 0", len(rk.Transactions()), len(rk.TransactionIndex()))
	}
	if rk.BaseCurrency() != nil {
		t.Errorf("BaseCurrency() = %v want nil", rk.BaseCurrency())
	}
}

func TestBaseCurrency(t *testing.T) {
	rk := newTestKeeper()
	must(rk.AddCurrency("CZK", 2))
	must(rk.AddCurrency("EUR", 2))
	if got := rk.BaseCurrency().Code(); got != "CZK" {
		t.Errorf("BaseCurrency() = %s want CZK", got)
	}
	if _, err := rk.AddCurrency("czk", 2); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("AddCurrency(czk) error = %v want %v", err, ErrAlreadyExists)
	}
	must(0, rk.RemoveCurrency("CZK"))
	if got := rk.BaseCurrency().Code(); got != "EUR" {
		t.Errorf("BaseCurrency() after removal = %s want EUR", got)
	}
}

func TestEditCashAccount(t *testing.T) {
	rk := newCZKKeeper(t)
	addExpense(t, rk, at("2024-03-01T10:00"))
	acc := must(rk.CashAccount("Group A/Acc1"))

	must(rk.EditCashAccount("Group A/Acc1", CashAccountEdit{InitialBalance: ptr(decimal.Zero)}))
	if diff := cmp.Diff([]string{"0", "-100"}, balances(acc)); diff != "" {
		t.Errorf("history after a no-op edit mismatch (-want +got):\n%s", diff)
	}

	must(rk.EditCashAccount("Group A/Acc1", CashAccountEdit{
		TreeEdit:       TreeEdit{Name: ptr("Main")},
		InitialBalance: ptr(dec("500")),
	}))
	if acc.Path() != "Group A/Main" {
		t.Errorf("Path() = %q want Group A/Main", acc.Path())
	}
	if diff := cmp.Diff([]string{"500", "400"}, balances(acc)); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	if _, err := rk.EditCashAccount("Group A/Main", CashAccountEdit{TreeEdit: TreeEdit{Name: ptr("Acc2")}}); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("EditCashAccount(Acc2) error = %v want %v", err, ErrAlreadyExists)
	}
}

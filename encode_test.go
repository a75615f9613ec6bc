package kapytal

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/etnz/kapytal/date"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// newFullKeeper returns a RecordKeeper using every kind of entity and transaction.
func newFullKeeper(t *testing.T) *RecordKeeper {
	t.Helper()
	rk := newCZKKeeper(t)
	steps := []error{
		second(rk.AddCurrency("USD", 2)),
		second(rk.AddExchangeRate("USD", "CZK")),
		rk.SetExchangeRate("USD/CZK", date.New(2024, 1, 1), dec("23.5")),
		rk.SetExchangeRate("USD/CZK", date.New(2024, 2, 1), dec("22")),
		second(rk.AddSecurity(SecurityInput{Name: "Apple", Symbol: "AAPL", Type: "STOCK", Currency: "USD", SharesDecimals: 1})),
		rk.SetSecurityPrice("Apple", date.New(2024, 3, 1), dec("170.5")),
		second(rk.AddAccountGroup("Broker")),
		second(rk.AddCashAccount("Broker/Cash", "USD", dec("1000"))),
		second(rk.AddSecurityAccount("Broker/Shares")),
		second(rk.AddSecurityAccount("Pension")),
		second(rk.AddCategory("Food/Restaurant", Expense)),
		second(rk.AddCategory("Gifts", IncomeAndExpense)),
		second(rk.AddTag("unused")),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatalf("fixture: %v", err)
		}
	}
	tx := addExpense(t, rk, at("2024-03-01T10:00"), TagSplit{Name: "trip", Amount: czk(rk, "50")})
	usd := must(rk.Currency("USD"))
	add := []error{
		second(rk.AddRefund(refund(rk, tx, at("2024-03-02T10:00"), "60", "0", TagSplit{Name: "trip", Amount: czk(rk, "20")}))),
		second(rk.AddCashTransaction(CashTransactionInput{
			Description: "pay",
			Timestamp:   at("2024-03-01T10:00"),
			Type:        IncomeTransaction,
			Account:     "Group A/Acc2",
			Payee:       "Employer",
			Categories: []CategorySplit{
				{Path: "Salary", Amount: czk(rk, "30000")},
				{Path: "Gifts", Amount: czk(rk, "0.5")},
			},
		})),
		second(rk.AddCashTransfer(CashTransferInput{
			Timestamp:      at("2024-03-03T10:00"),
			Sender:         "Group A/Acc2",
			Recipient:      "Broker/Cash",
			AmountSent:     czk(rk, "2300"),
			AmountReceived: NewCashAmount(dec("99.5"), usd),
			Tags:           []string{"invest"},
		})),
		second(rk.AddSecurityTransaction(SecurityTransactionInput{
			Timestamp:       at("2024-03-04T10:00"),
			Type:            Buy,
			Security:        "Apple",
			Shares:          dec("2.5"),
			PricePerShare:   NewCashAmount(dec("170"), usd),
			SecurityAccount: "Broker/Shares",
			CashAccount:     "Broker/Cash",
			Tags:            []string{"invest"},
		})),
		second(rk.AddSecurityTransfer(SecurityTransferInput{
			Timestamp: at("2024-03-05T10:00"),
			Security:  "Apple",
			Shares:    dec("0.5"),
			Sender:    "Broker/Shares",
			Recipient: "Pension",
		})),
	}
	for _, err := range add {
		if err != nil {
			t.Fatalf("fixture: %v", err)
		}
	}
	return rk
}

func encode(t *testing.T, rk *RecordKeeper) string {
	t.Helper()
	var buf bytes.Buffer
	if err := rk.Encode(&buf, nil); err != nil {
		t.Fatalf("Encode() unexpected error: %v", err)
	}
	return buf.String()
}

func TestEncode_RoundTrip(t *testing.T) {
	rk := newFullKeeper(t)
	want := encode(t, rk)

	got, err := Decode(strings.NewReader(want), nil, WithClock(rk.clock))
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	if diff := cmp.Diff(want, encode(t, got)); diff != "" {
		t.Errorf("re-encoded document mismatch (-want +got):\n%s", diff)
	}

	for _, path := range []string{"Group A/Acc1", "Group A/Acc2", "Broker/Cash"} {
		a, b := must(rk.CashAccount(path)), must(got.CashAccount(path))
		if diff := cmp.Diff(balances(a), balances(b)); diff != "" {
			t.Errorf("%s history mismatch (-want +got):\n%s", path, diff)
		}
	}
	apple := must(got.Security("Apple"))
	if got := must(got.SecurityAccount("Broker/Shares")).Shares(apple); !got.Equal(dec("2")) {
		t.Errorf("Shares(Apple) = %v want 2", got)
	}
	if got.BaseCurrency().Code() != "CZK" {
		t.Errorf("BaseCurrency() = %v want CZK", got.BaseCurrency())
	}

	// Refunds are linked back even though they come first in the document.
	var refunded *CashTransaction
	for _, tx := range got.Transactions() {
		if r, ok := tx.(*RefundTransaction); ok {
			refunded = r.Refunded()
		}
	}
	if refunded == nil || len(refunded.Refunds()) != 1 {
		t.Fatalf("decoded refund is not linked to its refunded transaction")
	}
	if !refunded.AmountAfterRefunds().Value().Equal(dec("40")) {
		t.Errorf("AmountAfterRefunds() = %v want 40", refunded.AmountAfterRefunds())
	}

	// Insertion order survives for transactions sharing a timestamp.
	var ids, decoded []uuid.UUID
	for _, tx := range rk.Transactions() {
		ids = append(ids, tx.ID())
	}
	for _, tx := range got.Transactions() {
		decoded = append(decoded, tx.ID())
	}
	if diff := cmp.Diff(ids, decoded); diff != "" {
		t.Errorf("Transactions() order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(rk.Descriptions(), got.Descriptions()); diff != "" {
		t.Errorf("Descriptions() mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery(t *testing.T) {
	rk := newFullKeeper(t)
	tests := []struct {
		path string
		want any
	}{
		{path: "$.datatype", want: "RecordKeeper"},
		{path: "$.version", want: float64(DocumentVersion)},
		{path: "$.baseCurrency", want: "CZK"},
		{path: "$.transactions[0].datatype", want: "SecurityTransfer"},
		{path: "$.accounts[*].path", want: []any{"Group A", "Group A/Acc1", "Group A/Acc2", "Broker", "Broker/Cash", "Broker/Shares", "Pension"}},
		{path: "$.categories[*].path", want: []any{"Food", "Food/Restaurant", "Drinks", "Salary", "Gifts"}},
		{path: `$.transactions[?(@.datatype=="RefundTransaction")].categories[0].amount`, want: []any{"60 CZK"}},
		{path: `$.transactions[?(@.datatype=="CashTransfer")].amountReceived`, want: []any{"99.5 USD"}},
		{path: `$.accounts[?(@.path=="Broker/Cash")].initialBalance`, want: []any{"1000 USD"}},
		{path: "$.exchangeRates[0].rates[1].value", want: "22"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := rk.Query(tt.path)
			if err != nil {
				t.Fatalf("Query() unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Query() mismatch (-want +got):\n%s", diff)
			}
		})
	}
	if _, err := rk.Query("$.[["); err == nil {
		t.Errorf("Query(invalid) want an error")
	}
}

func TestDecode_Errors(t *testing.T) {
	valid := encode(t, newFullKeeper(t))
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{name: "wrong datatype", doc: `{"datatype":"Ledger","version":1}`, wantErr: ErrInvalidValue},
		{name: "newer version", doc: `{"datatype":"RecordKeeper","version":99}`, wantErr: ErrInvalidValue},
		{
			name:    "unknown account",
			doc:     strings.Replace(valid, `"account": "Group A/Acc2"`, `"account": "Group A/Acc3"`, 1),
			wantErr: ErrNotFound,
		},
		{
			name:    "unknown currency",
			doc:     strings.Replace(valid, `"amountReceived": "99.5 USD"`, `"amountReceived": "99.5 XXX"`, 1),
			wantErr: ErrNotFound,
		},
		{
			name:    "duplicate payee",
			doc:     strings.Replace(valid, `"name": "Employer"`, `"name": "Shop"`, 1),
			wantErr: ErrAlreadyExists,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.doc == valid {
				t.Fatalf("the document was not altered")
			}
			if _, err := Decode(strings.NewReader(tt.doc), nil); !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v want %v", err, tt.wantErr)
			}
		})
	}
	if _, err := Decode(strings.NewReader("{"), nil); err == nil {
		t.Errorf("Decode(truncated) want an error")
	}
}

func TestDecode_DuplicateIDs(t *testing.T) {
	rk := newFullKeeper(t)
	tesla := must(rk.AddSecurity(SecurityInput{Name: "Tesla", Currency: "USD"}))
	apple := must(rk.Security("Apple"))
	pension := must(rk.AccountItem("Pension"))
	gifts := must(rk.Category("Gifts"))
	transfer := rk.Transactions()[0]
	valid := encode(t, rk)

	tests := []struct {
		name     string
		from, to uuid.UUID
	}{
		{name: "securities", from: tesla.ID(), to: apple.ID()},
		{name: "category and account", from: gifts.ID(), to: pension.ID()},
		{name: "transaction and security", from: transfer.ID(), to: apple.ID()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := strings.ReplaceAll(valid, tt.from.String(), tt.to.String())
			if doc == valid {
				t.Fatalf("the document was not altered")
			}
			if _, err := Decode(strings.NewReader(doc), nil); !errors.Is(err, ErrAlreadyExists) {
				t.Errorf("Decode() error = %v want %v", err, ErrAlreadyExists)
			}
		})
	}
}

func TestProgress(t *testing.T) {
	rk := newCZKKeeper(t)
	for i := range 40 {
		addExpense(t, rk, epoch.AddDate(0, 0, i+1))
	}
	check := func(t *testing.T, got []int) {
		t.Helper()
		if len(got) < 4 || got[0] != 0 || got[1] != 33 || got[2] != 66 || got[len(got)-1] != 100 {
			t.Fatalf("progress = %v want 0, 33, 66, ..., 100", got)
		}
		for i := 3; i < len(got); i++ {
			if got[i] <= got[i-1] {
				t.Fatalf("progress = %v is not increasing", got)
			}
			if got[i] < 100 && got[i]/5 == got[i-1]/5 {
				t.Errorf("progress = %v reports twice within 5%%", got)
			}
		}
	}

	var encoded []int
	var buf bytes.Buffer
	if err := rk.Encode(&buf, func(p int) { encoded = append(encoded, p) }); err != nil {
		t.Fatalf("Encode() unexpected error: %v", err)
	}
	t.Run("encode", func(t *testing.T) { check(t, encoded) })

	var decoded []int
	if _, err := Decode(&buf, func(p int) { decoded = append(decoded, p) }); err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	t.Run("decode", func(t *testing.T) { check(t, decoded) })
}

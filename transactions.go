package kapytal

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is one of *CashTransaction, *CashTransfer, *RefundTransaction,
// *SecurityTransaction or *SecurityTransfer.
type Transaction interface {
	ID() uuid.UUID
	Description() string
	Timestamp() time.Time
	Created() time.Time
	// Tags returns the tags attached to the transaction.
	Tags() []*Attribute
	base() *txBase
}

// txBase is the part shared by every transaction variant.
type txBase struct {
	id          uuid.UUID
	description string
	timestamp   time.Time
	created     time.Time
	seq         uint64 // insertion order, breaks timestamp ties
}

// ID returns the transaction identifier.
func (b *txBase) ID() uuid.UUID { return b.id }

// Description returns the free text description.
func (b *txBase) Description() string { return b.description }

// Timestamp returns when the transaction happened.
func (b *txBase) Timestamp() time.Time { return b.timestamp }

// Created returns when the transaction was recorded.
func (b *txBase) Created() time.Time { return b.created }

func (b *txBase) base() *txBase { return b }

// compareChronological orders transactions by timestamp then by insertion order.
func compareChronological(a, b Transaction) int {
	if c := a.Timestamp().Compare(b.Timestamp()); c != 0 {
		return c
	}
	return cmp.Compare(a.base().seq, b.base().seq)
}

// chronological returns a sorted copy of txs, oldest first.
func chronological(txs []Transaction) []Transaction {
	sorted := slices.Clone(txs)
	slices.SortFunc(sorted, compareChronological)
	return sorted
}

// header is the mutable part common to every variant state.
type header struct {
	description string
	timestamp   time.Time
}

func (h *header) validate() error {
	d, err := normalizeDescription(h.description)
	if err != nil {
		return err
	}
	h.description = d
	return validateTimestamp(h.timestamp)
}

func (b *txBase) applyHeader(h header) {
	b.description = h.description
	b.timestamp = h.timestamp
}

func (b *txBase) currentHeader() header { return header{description: b.description, timestamp: b.timestamp} }

// RelatedAccounts returns the accounts a transaction settles, each once.
func RelatedAccounts(t Transaction) []Account {
	var accounts []Account
	switch t := t.(type) {
	case *CashTransaction:
		accounts = append(accounts, t.account)
	case *RefundTransaction:
		accounts = append(accounts, t.account)
	case *CashTransfer:
		accounts = append(accounts, t.sender, t.recipient)
	case *SecurityTransaction:
		accounts = append(accounts, t.cashAccount, t.securityAccount)
	case *SecurityTransfer:
		accounts = append(accounts, t.sender, t.recipient)
	default:
		panic(fmt.Sprintf("unknown transaction type %T", t))
	}
	return accounts
}

// IsRelated reports whether a settles t.
func IsRelated(t Transaction, a Account) bool { return slices.Contains(RelatedAccounts(t), a) }

// cashContribution returns the signed amount t adds to the balance of a.
func cashContribution(t Transaction, a *CashAccount) decimal.Decimal {
	switch t := t.(type) {
	case *CashTransaction:
		if t.typ == ExpenseTransaction {
			return t.Amount().value.Neg()
		}
		return t.Amount().value
	case *RefundTransaction:
		return t.Amount().value
	case *CashTransfer:
		var d decimal.Decimal
		if a == t.sender {
			d = d.Sub(t.sent.value)
		}
		if a == t.recipient {
			d = d.Add(t.received.value)
		}
		return d
	case *SecurityTransaction:
		if t.typ == Buy {
			return t.Amount().value.Neg()
		}
		return t.Amount().value
	case *SecurityTransfer:
		return decimal.Zero
	default:
		panic(fmt.Sprintf("unknown transaction type %T", t))
	}
}

// shareContribution returns the security and the signed number of shares t adds to a.
func shareContribution(t Transaction, a *SecurityAccount) (*Security, decimal.Decimal) {
	switch t := t.(type) {
	case *SecurityTransaction:
		switch t.typ {
		case Buy:
			return t.security, t.shares
		case Sell:
			return t.security, t.shares.Neg()
		default:
			return t.security, decimal.Zero
		}
	case *SecurityTransfer:
		if a == t.sender {
			return t.security, t.shares.Neg()
		}
		return t.security, t.shares
	case *CashTransaction, *RefundTransaction, *CashTransfer:
		return nil, decimal.Zero
	default:
		panic(fmt.Sprintf("unknown transaction type %T", t))
	}
}

// payeeOf returns the payee of a transaction, if it has one.
func payeeOf(t Transaction) *Attribute {
	switch t := t.(type) {
	case *CashTransaction:
		return t.payee
	case *RefundTransaction:
		return t.payee
	}
	return nil
}

// categoriesOf returns the categories a transaction uses.
func categoriesOf(t Transaction) []*Category {
	var splits []CategoryAmount
	switch t := t.(type) {
	case *CashTransaction:
		splits = t.categories
	case *RefundTransaction:
		splits = t.categories
	}
	cats := make([]*Category, len(splits))
	for i, s := range splits {
		cats[i] = s.Category
	}
	return cats
}

// securityOf returns the security a transaction trades, if any.
func securityOf(t Transaction) *Security {
	switch t := t.(type) {
	case *SecurityTransaction:
		return t.security
	case *SecurityTransfer:
		return t.security
	}
	return nil
}

// tagSetOf returns the plain tag set of t, nil for transactions carrying tag amounts.
func tagSetOf(t Transaction) *tagSet {
	switch t := t.(type) {
	case *CashTransfer:
		return &t.tagSet
	case *SecurityTransaction:
		return &t.tagSet
	case *SecurityTransfer:
		return &t.tagSet
	}
	return nil
}

// tagSet is the plain set of tags carried by transfers and security transactions.
type tagSet []*Attribute

// Tags returns the tags attached to the transaction.
func (s tagSet) Tags() []*Attribute { return slices.Clone(s) }

func (s tagSet) validate() error {
	for i, t := range s {
		if t == nil || t.role != Tag {
			return invalidf("%v is not a tag", t)
		}
		if slices.Index(s, t) != i {
			return invalidf("tag %q is repeated", t.name)
		}
	}
	return nil
}

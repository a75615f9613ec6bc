package kapytal

import (
	"fmt"
	"slices"
	"strings"
)

// CashTransactionType is the direction of a CashTransaction.
type CashTransactionType int

const (
	IncomeTransaction CashTransactionType = iota
	ExpenseTransaction
)

func (t CashTransactionType) String() string {
	switch t {
	case IncomeTransaction:
		return "INCOME"
	case ExpenseTransaction:
		return "EXPENSE"
	default:
		return fmt.Sprintf("CashTransactionType(%d)", int(t))
	}
}

// ParseCashTransactionType parses the String form of a type, case insensitive.
func ParseCashTransactionType(s string) (CashTransactionType, error) {
	switch strings.ToUpper(s) {
	case "INCOME":
		return IncomeTransaction, nil
	case "EXPENSE":
		return ExpenseTransaction, nil
	}
	return 0, invalidf("unknown cash transaction type %q", s)
}

// CategoryAmount is the part of a transaction amount classified in a category.
type CategoryAmount struct {
	Category *Category
	Amount   CashAmount
}

// TagAmount is the part of a transaction amount annotated with a tag.
type TagAmount struct {
	Tag    *Attribute
	Amount CashAmount
}

// cashTransactionState is the complete mutable state of a CashTransaction.
type cashTransactionState struct {
	header
	typ        CashTransactionType
	account    *CashAccount
	payee      *Attribute
	categories []CategoryAmount
	tags       []TagAmount
}

// validate checks s as a whole. It normalizes the description.
func (s *cashTransactionState) validate() error {
	if err := s.header.validate(); err != nil {
		return err
	}
	if s.typ != IncomeTransaction && s.typ != ExpenseTransaction {
		return invalidf("unknown cash transaction type %v", s.typ)
	}
	if s.payee == nil || s.payee.role != Payee {
		return invalidf("%v is not a payee", s.payee)
	}
	if s.account == nil {
		return invalidf("cash transaction needs a cash account")
	}
	total, err := validateCategoryAmounts(s.categories, s.account.currency, func(c *Category, a CashAmount) error {
		if !c.accepts(s.typ) {
			return invalidf("category %q of type %v cannot classify an %v transaction", c.path, c.typ, s.typ)
		}
		if !a.IsPositive() {
			return invalidf("amount of category %q must be positive, got %v", c.path, a)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return validateTagAmounts(s.tags, s.account.currency, func(t *Attribute, a CashAmount) error {
		if !a.IsPositive() {
			return invalidf("amount of tag %q must be positive, got %v", t.name, a)
		}
		if a.value.GreaterThan(total.value) {
			return invalidf("amount of tag %q %v exceeds the transaction amount %v", t.name, a, total)
		}
		return nil
	})
}

// validateCategoryAmounts checks the split common rules, check, and returns the total.
func validateCategoryAmounts(splits []CategoryAmount, c *Currency, check func(*Category, CashAmount) error) (CashAmount, error) {
	if len(splits) == 0 {
		return CashAmount{}, invalidf("at least one category is required")
	}
	total := c.Zero()
	for i, s := range splits {
		if s.Category == nil {
			return CashAmount{}, invalidf("category is required")
		}
		if slices.IndexFunc(splits, func(x CategoryAmount) bool { return x.Category == s.Category }) != i {
			return CashAmount{}, invalidf("category %q is repeated", s.Category.path)
		}
		if s.Amount.currency != c {
			return CashAmount{}, fmt.Errorf("amount of category %q in %v, want %v: %w", s.Category.path, s.Amount.currency, c, ErrCurrency)
		}
		if err := check(s.Category, s.Amount); err != nil {
			return CashAmount{}, err
		}
		total.value = total.value.Add(s.Amount.value)
	}
	return total, nil
}

// validateTagAmounts checks the tag common rules and check.
func validateTagAmounts(tags []TagAmount, c *Currency, check func(*Attribute, CashAmount) error) error {
	for i, t := range tags {
		if t.Tag == nil || t.Tag.role != Tag {
			return invalidf("%v is not a tag", t.Tag)
		}
		if slices.IndexFunc(tags, func(x TagAmount) bool { return x.Tag == t.Tag }) != i {
			return invalidf("tag %q is repeated", t.Tag.name)
		}
		if t.Amount.currency != c {
			return fmt.Errorf("amount of tag %q in %v, want %v: %w", t.Tag.name, t.Amount.currency, c, ErrCurrency)
		}
		if err := check(t.Tag, t.Amount); err != nil {
			return err
		}
	}
	return nil
}

// CashTransaction is an income or an expense of a cash account, split across categories.
type CashTransaction struct {
	txBase
	typ        CashTransactionType
	account    *CashAccount
	payee      *Attribute
	categories []CategoryAmount
	tags       []TagAmount
	amount     CashAmount
	refunds    []*RefundTransaction
}

// Type returns whether the transaction is an income or an expense.
func (t *CashTransaction) Type() CashTransactionType { return t.typ }

// Account returns the settled account.
func (t *CashTransaction) Account() *CashAccount { return t.account }

// Payee returns the counterparty.
func (t *CashTransaction) Payee() *Attribute { return t.payee }

// Categories returns the category split.
func (t *CashTransaction) Categories() []CategoryAmount { return slices.Clone(t.categories) }

// TagAmounts returns the tagged portions of the amount.
func (t *CashTransaction) TagAmounts() []TagAmount { return slices.Clone(t.tags) }

// Tags returns the tags attached to the transaction.
func (t *CashTransaction) Tags() []*Attribute { return tagsOfAmounts(t.tags) }

// Amount returns the sum of the category amounts.
func (t *CashTransaction) Amount() CashAmount { return t.amount }

// Refunds returns the refunds of this transaction.
func (t *CashTransaction) Refunds() []*RefundTransaction { return slices.Clone(t.refunds) }

// AmountAfterRefunds returns the amount minus every refunded amount.
func (t *CashTransaction) AmountAfterRefunds() CashAmount {
	a := t.amount
	for _, r := range t.refunds {
		a.value = a.value.Sub(r.amount.value)
	}
	return a
}

// CategoryAmount returns the amount classified in c, zero when c is not used.
func (t *CashTransaction) CategoryAmount(c *Category) CashAmount {
	return amountOfCategory(t.categories, c, t.account.currency)
}

// TagAmount returns the amount annotated with tag, zero when tag is not used.
func (t *CashTransaction) TagAmount(tag *Attribute) CashAmount {
	return amountOfTag(t.tags, tag, t.account.currency)
}

func (t *CashTransaction) state() cashTransactionState {
	return cashTransactionState{
		header:     t.currentHeader(),
		typ:        t.typ,
		account:    t.account,
		payee:      t.payee,
		categories: slices.Clone(t.categories),
		tags:       slices.Clone(t.tags),
	}
}

// apply commits a validated state.
func (t *CashTransaction) apply(s cashTransactionState) {
	t.applyHeader(s.header)
	t.typ = s.typ
	t.account = s.account
	t.payee = s.payee
	t.categories = s.categories
	t.tags = s.tags
	t.amount = totalOf(s.categories, s.account.currency)
}

func totalOf(splits []CategoryAmount, c *Currency) CashAmount {
	total := c.Zero()
	for _, s := range splits {
		total.value = total.value.Add(s.Amount.value)
	}
	return total
}

func amountOfCategory(splits []CategoryAmount, c *Category, cur *Currency) CashAmount {
	for _, s := range splits {
		if s.Category == c {
			return s.Amount
		}
	}
	return cur.Zero()
}

func amountOfTag(tags []TagAmount, tag *Attribute, cur *Currency) CashAmount {
	for _, t := range tags {
		if t.Tag == tag {
			return t.Amount
		}
	}
	return cur.Zero()
}

func tagsOfAmounts(tags []TagAmount) []*Attribute {
	attrs := make([]*Attribute, len(tags))
	for i, t := range tags {
		attrs[i] = t.Tag
	}
	return attrs
}

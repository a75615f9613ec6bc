package kapytal

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// refundState is the complete mutable state of a RefundTransaction.
type refundState struct {
	header
	account    *CashAccount
	payee      *Attribute
	categories []CategoryAmount
	tags       []TagAmount
}

// validate checks s against the refunded transaction and the states of its
// other refunds.
func (s *refundState) validate(refunded *CashTransaction, siblings []refundState) error {
	if err := s.header.validate(); err != nil {
		return err
	}
	if refunded == nil {
		return invalidf("refund needs a refunded transaction")
	}
	if refunded.typ != ExpenseTransaction {
		return forbiddenf("only expenses can be refunded, %s is an %v", refunded.id, refunded.typ)
	}
	if s.payee == nil || s.payee.role != Payee {
		return invalidf("%v is not a payee", s.payee)
	}
	if s.account == nil {
		return invalidf("refund needs a cash account")
	}
	cur := refunded.account.currency
	if s.account.currency != cur {
		return fmt.Errorf("refund account %q in %v, refunded transaction in %v: %w", s.account.path, s.account.currency, cur, ErrCurrency)
	}
	if s.timestamp.Before(refunded.timestamp) {
		return fmt.Errorf("refund on %v, refunded transaction on %v: %w", s.timestamp, refunded.timestamp, ErrRefundPrecedesTransaction)
	}

	if len(s.categories) != len(refunded.categories) {
		return invalidf("refund must list the %d categories of the refunded transaction, got %d", len(refunded.categories), len(s.categories))
	}
	total, err := validateCategoryAmounts(s.categories, cur, func(c *Category, a CashAmount) error {
		if !slices.Contains(categoriesOf(refunded), c) {
			return invalidf("category %q is not used by the refunded transaction", c.path)
		}
		if a.IsNegative() {
			return invalidf("refund amount of category %q must not be negative, got %v", c.path, a)
		}
		used := a.value
		for _, r := range siblings {
			used = used.Add(amountOfCategory(r.categories, c, cur).value)
		}
		if spent := refunded.CategoryAmount(c); used.GreaterThan(spent.value) {
			return invalidf("refunds of category %q would total %s %s, more than the %v spent", c.path, used, cur.code, spent)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !total.IsPositive() {
		return invalidf("refund total must be positive, got %v", total)
	}

	if len(s.tags) != len(refunded.tags) {
		return invalidf("refund must list the %d tags of the refunded transaction, got %d", len(refunded.tags), len(s.tags))
	}
	remaining := refunded.amount.value
	for _, r := range siblings {
		remaining = remaining.Sub(totalOf(r.categories, cur).value)
	}
	return validateTagAmounts(s.tags, cur, func(tag *Attribute, a CashAmount) error {
		if !slices.Contains(refunded.Tags(), tag) {
			return invalidf("tag %q is not used by the refunded transaction", tag.name)
		}
		if a.IsNegative() {
			return invalidf("refund amount of tag %q must not be negative, got %v", tag.name, a)
		}
		lo, hi := refundTagBounds(refunded, siblings, tag, total.value, remaining)
		if a.value.LessThan(lo) || a.value.GreaterThan(hi) {
			return invalidf("refund amount of tag %q must be within %s and %s %s, got %v", tag.name, lo, hi, cur.code, a)
		}
		return nil
	})
}

// refundTagBounds returns the range a refund of total can allocate to tag.
//
// The tag can take at most what is left of it, and at most the refund total.
// It must take at least what would be left of it if the rest of the
// unrefunded amount were all refunded untagged.
func refundTagBounds(refunded *CashTransaction, siblings []refundState, tag *Attribute, total, remaining decimal.Decimal) (lo, hi decimal.Decimal) {
	cur := refunded.account.currency
	left := refunded.TagAmount(tag).value
	for _, r := range siblings {
		left = left.Sub(amountOfTag(r.tags, tag, cur).value)
	}
	hi = decimal.Min(left, total)
	lo = decimal.Max(decimal.Zero, left.Sub(remaining.Sub(total)))
	return lo, hi
}

// refundStates returns the states of the refunds of t other than self.
// A refund with a pending state in edits counts with that state.
func (t *CashTransaction) refundStates(self *RefundTransaction, edits map[*RefundTransaction]*refundState) []refundState {
	var states []refundState
	for _, r := range t.refunds {
		if r == self {
			continue
		}
		if s, ok := edits[r]; ok {
			states = append(states, *s)
			continue
		}
		states = append(states, r.state())
	}
	return states
}

// RefundTransaction returns money of a CashTransaction expense.
type RefundTransaction struct {
	txBase
	refunded   *CashTransaction
	account    *CashAccount
	payee      *Attribute
	categories []CategoryAmount
	tags       []TagAmount
	amount     CashAmount
}

// Refunded returns the refunded expense.
func (t *RefundTransaction) Refunded() *CashTransaction { return t.refunded }

// Account returns the account credited.
func (t *RefundTransaction) Account() *CashAccount { return t.account }

// Payee returns the counterparty.
func (t *RefundTransaction) Payee() *Attribute { return t.payee }

// Categories returns the refunded amount per category.
func (t *RefundTransaction) Categories() []CategoryAmount { return slices.Clone(t.categories) }

// TagAmounts returns the refunded amount per tag.
func (t *RefundTransaction) TagAmounts() []TagAmount { return slices.Clone(t.tags) }

// Tags returns the tags attached to the transaction.
func (t *RefundTransaction) Tags() []*Attribute { return tagsOfAmounts(t.tags) }

// Amount returns the refunded total.
func (t *RefundTransaction) Amount() CashAmount { return t.amount }

// CategoryAmount returns the amount refunded for c.
func (t *RefundTransaction) CategoryAmount(c *Category) CashAmount {
	return amountOfCategory(t.categories, c, t.account.currency)
}

// TagAmount returns the amount refunded for tag.
func (t *RefundTransaction) TagAmount(tag *Attribute) CashAmount {
	return amountOfTag(t.tags, tag, t.account.currency)
}

func (t *RefundTransaction) state() refundState {
	return refundState{
		header:     t.currentHeader(),
		account:    t.account,
		payee:      t.payee,
		categories: slices.Clone(t.categories),
		tags:       slices.Clone(t.tags),
	}
}

func (t *RefundTransaction) apply(s refundState) {
	t.applyHeader(s.header)
	t.account = s.account
	t.payee = s.payee
	t.categories = s.categories
	t.tags = s.tags
	t.amount = totalOf(s.categories, s.account.currency)
}

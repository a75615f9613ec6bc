package kapytal

import (
	"errors"
	"fmt"
	"slices"

	"github.com/etnz/kapytal/date"
	"github.com/google/uuid"
)

// RemoveTransactions removes every transaction of ids. A refunded transaction
// can only be removed together with all its refunds.
func (rk *RecordKeeper) RemoveTransactions(ids []uuid.UUID) error {
	batch := make(map[Transaction]bool)
	var order []Transaction
	for _, id := range ids {
		t, err := rk.Transaction(id)
		if err != nil {
			return err
		}
		if !batch[t] {
			batch[t] = true
			order = append(order, t)
		}
	}
	for _, t := range order {
		c, ok := t.(*CashTransaction)
		if !ok {
			continue
		}
		for _, r := range c.refunds {
			if !batch[r] {
				return forbiddenf("transaction %s is refunded by %s", c.id, r.id)
			}
		}
	}
	// Refunds go first, they unlink from their refunded transaction.
	slices.SortStableFunc(order, func(a, b Transaction) int {
		_, ra := a.(*RefundTransaction)
		_, rb := b.(*RefundTransaction)
		switch {
		case ra && !rb:
			return -1
		case rb && !ra:
			return 1
		}
		return 0
	})
	for _, t := range order {
		rk.deleteTransaction(t)
		rk.log.Debug().Stringer("id", t.ID()).Msg("transaction removed")
	}
	return nil
}

// RemoveAccount removes the account at path. It must have no transactions.
func (rk *RecordKeeper) RemoveAccount(path string) error {
	a, err := rk.Account(path)
	if err != nil {
		return err
	}
	if n := len(*a.related()); n > 0 {
		return forbiddenf("account %q has %d transactions", path, n)
	}
	rk.removeAccountItem(a)
	rk.accounts = slices.DeleteFunc(rk.accounts, func(x Account) bool { return x == a })
	return nil
}

// RemoveAccountGroup removes the group at path. It must be empty.
func (rk *RecordKeeper) RemoveAccountGroup(path string) error {
	g, err := rk.AccountGroup(path)
	if err != nil {
		return err
	}
	if n := len(rk.accountTree.Children(g.id)); n > 0 {
		return forbiddenf("account group %q has %d children", path, n)
	}
	rk.removeAccountItem(g)
	rk.groups = slices.DeleteFunc(rk.groups, func(x *AccountGroup) bool { return x == g })
	return nil
}

func (rk *RecordKeeper) removeAccountItem(item AccountItem) {
	rk.accountTree.Remove(item.ID())
	delete(rk.items, item.ID())
	rk.log.Debug().Str("path", item.Path()).Msg("account item removed")
}

// RemoveCategory removes the category at path. It must have no sub-categories
// and no transaction can use it.
func (rk *RecordKeeper) RemoveCategory(path string) error {
	c, err := rk.Category(path)
	if err != nil {
		return err
	}
	if n := len(rk.categoryTree.Children(c.id)); n > 0 {
		return forbiddenf("category %q has %d sub-categories", path, n)
	}
	if t := rk.firstReference(func(t Transaction) bool { return slices.Contains(categoriesOf(t), c) }); t != nil {
		return forbiddenf("category %q is used by transaction %s", path, t.ID())
	}
	rk.categoryTree.Remove(c.id)
	delete(rk.categories, c.id)
	rk.log.Debug().Str("path", path).Msg("category removed")
	return nil
}

// firstReference returns the first transaction matching uses, or nil.
func (rk *RecordKeeper) firstReference(uses func(Transaction) bool) Transaction {
	for _, t := range rk.transactions {
		if uses(t) {
			return t
		}
	}
	return nil
}

// RemovePayee removes a payee no transaction references.
func (rk *RecordKeeper) RemovePayee(name string) error { return rk.removeAttribute(name, Payee) }

// RemoveTag removes a tag no transaction references.
func (rk *RecordKeeper) RemoveTag(name string) error { return rk.removeAttribute(name, Tag) }

func (rk *RecordKeeper) removeAttribute(name string, role AttributeRole) error {
	a, err := rk.attribute(name, role)
	if err != nil {
		return err
	}
	if t := rk.firstReference(func(t Transaction) bool { return payeeOf(t) == a || slices.Contains(t.Tags(), a) }); t != nil {
		return forbiddenf("%v %q is used by transaction %s", role, name, t.ID())
	}
	attrs := rk.attributes(role)
	*attrs = slices.DeleteFunc(*attrs, func(x *Attribute) bool { return x == a })
	rk.log.Debug().Str("name", name).Stringer("role", role).Msg("attribute removed")
	return nil
}

// RemoveSecurity removes a security no transaction references.
func (rk *RecordKeeper) RemoveSecurity(name string) error {
	s, err := rk.Security(name)
	if err != nil {
		return err
	}
	if t := rk.firstReference(func(t Transaction) bool { return securityOf(t) == s }); t != nil {
		return forbiddenf("security %q is used by transaction %s", name, t.ID())
	}
	rk.securities = slices.DeleteFunc(rk.securities, func(x *Security) bool { return x == s })
	rk.log.Debug().Str("name", name).Msg("security removed")
	return nil
}

// RemoveExchangeRate removes the exchange rate "PRIMARY/SECONDARY" and its history.
func (rk *RecordKeeper) RemoveExchangeRate(code string) error {
	r, err := rk.ExchangeRate(code)
	if err != nil {
		return err
	}
	r.invalidate()
	r.unlink()
	rk.rates = slices.DeleteFunc(rk.rates, func(x *ExchangeRate) bool { return x == r })
	rk.log.Debug().Str("code", code).Msg("exchange rate removed")
	return nil
}

// DeleteExchangeRate removes the rate of "PRIMARY/SECONDARY" set on day.
// The exchange rate itself stays, even with no rate left.
func (rk *RecordKeeper) DeleteExchangeRate(code string, day date.Date) error {
	r, err := rk.ExchangeRate(code)
	if err != nil {
		return err
	}
	if !r.DeleteRate(day) {
		return fmt.Errorf("exchange rate %s on %s: %w", code, day, ErrNotFound)
	}
	rk.log.Debug().Str("code", code).Stringer("day", day).Msg("exchange rate deleted")
	return nil
}

// RemoveCurrency removes a currency no account, security or exchange rate uses.
// Removing the base currency makes the first remaining currency the base.
func (rk *RecordKeeper) RemoveCurrency(code string) error {
	c, err := rk.Currency(code)
	if err != nil {
		return err
	}
	var errs []error
	for _, a := range rk.CashAccounts() {
		if a.currency == c {
			errs = append(errs, fmt.Errorf("cash account %q", a.path))
		}
	}
	for _, s := range rk.securities {
		if s.currency == c {
			errs = append(errs, fmt.Errorf("security %q", s.name))
		}
	}
	for _, r := range c.rates {
		errs = append(errs, fmt.Errorf("exchange rate %q", r.Code()))
	}
	if len(errs) > 0 {
		return forbiddenf("currency %s is used by %v", code, errors.Join(errs...))
	}
	rk.currencies = slices.DeleteFunc(rk.currencies, func(x *Currency) bool { return x == c })
	if rk.base == c {
		rk.base = nil
		if len(rk.currencies) > 0 {
			rk.base = rk.currencies[0]
		}
	}
	rk.log.Debug().Str("code", code).Msg("currency removed")
	return nil
}

// retag applies change to every transaction of ids, validating them all before committing.
func (rk *RecordKeeper) retag(ids []uuid.UUID, st *staging, change func(t Transaction) (func(), error)) error {
	var commits []func()
	var errs []error
	for _, id := range ids {
		t, err := rk.Transaction(id)
		if err == nil {
			var c func()
			if c, err = change(t); c != nil {
				commits = append(commits, c)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("transaction %s: %w", id, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	st.commit()
	for _, c := range commits {
		c()
	}
	return nil
}

// checkRetaggable rejects refunds and refunded transactions, their tag amounts are bound together.
func checkRetaggable(t Transaction) error {
	switch t := t.(type) {
	case *RefundTransaction:
		return forbiddenf("tags of refund %s cannot change", t.id)
	case *CashTransaction:
		if len(t.refunds) > 0 {
			return forbiddenf("tags of refunded transaction %s cannot change", t.id)
		}
	}
	return nil
}

// AddTagsToTransactions adds tags to every transaction of ids, creating missing tags.
// A cash transaction gets its whole amount annotated with each new tag.
func (rk *RecordKeeper) AddTagsToTransactions(ids []uuid.UUID, names []string) error {
	st := rk.stage()
	tags, err := st.tagSet(names)
	if err != nil {
		return err
	}
	err = rk.retag(ids, st, func(t Transaction) (func(), error) {
		if err := checkRetaggable(t); err != nil {
			return nil, err
		}
		if c, ok := t.(*CashTransaction); ok {
			next := slices.Clone(c.tags)
			for _, tag := range tags {
				if !slices.ContainsFunc(next, func(x TagAmount) bool { return x.Tag == tag }) {
					next = append(next, TagAmount{Tag: tag, Amount: c.amount})
				}
			}
			s := c.state()
			s.tags = next
			if err := s.validate(); err != nil {
				return nil, err
			}
			return func() { c.tags = next }, nil
		}
		set := tagSetOf(t)
		next := slices.Clone(*set)
		for _, tag := range tags {
			if !slices.Contains(next, tag) {
				next = append(next, tag)
			}
		}
		return func() { *set = next }, nil
	})
	if err == nil {
		rk.log.Debug().Strs("tags", names).Int("transactions", len(ids)).Msg("tags added")
	}
	return err
}

// RemoveTagsFromTransactions removes existing tags from every transaction of ids.
func (rk *RecordKeeper) RemoveTagsFromTransactions(ids []uuid.UUID, names []string) error {
	st := rk.stage()
	tags := make([]*Attribute, len(names))
	for i, name := range names {
		tag, err := st.existingAttribute(name, Tag)
		if err != nil {
			return err
		}
		tags[i] = tag
	}
	err := rk.retag(ids, st, func(t Transaction) (func(), error) {
		if err := checkRetaggable(t); err != nil {
			return nil, err
		}
		if c, ok := t.(*CashTransaction); ok {
			next := slices.DeleteFunc(slices.Clone(c.tags), func(x TagAmount) bool { return slices.Contains(tags, x.Tag) })
			return func() { c.tags = next }, nil
		}
		set := tagSetOf(t)
		next := slices.DeleteFunc(slices.Clone(*set), func(x *Attribute) bool { return slices.Contains(tags, x) })
		return func() { *set = next }, nil
	})
	if err == nil {
		rk.log.Debug().Strs("tags", names).Int("transactions", len(ids)).Msg("tags removed")
	}
	return err
}

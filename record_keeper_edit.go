package kapytal

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// editTransactions runs a batch edit: resolve builds the target state of every
// transaction, validate checks it knowing the whole batch, then apply commits
// them all. Nothing is committed unless every transaction passes.
func editTransactions[T interface {
	Transaction
	comparable
}, S any](
	rk *RecordKeeper,
	ids []uuid.UUID,
	resolve func(st *staging, t T) (S, error),
	validate func(t T, s *S, batch map[T]*S) error,
	apply func(t T, s S),
) error {
	st := rk.stage()
	var order []T
	batch := make(map[T]*S)
	var errs []error
	for _, id := range ids {
		t, err := lookupTransaction[T](rk, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := batch[t]; dup {
			continue
		}
		s, err := resolve(st, t)
		if err != nil {
			errs = append(errs, fmt.Errorf("transaction %s: %w", id, err))
			continue
		}
		order = append(order, t)
		batch[t] = &s
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	for _, t := range order {
		if err := validate(t, batch[t], batch); err != nil {
			errs = append(errs, fmt.Errorf("transaction %s: %w", t.ID(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	st.commit()
	for _, t := range order {
		rk.updateTransaction(t, func() { apply(t, *batch[t]) })
		rk.log.Debug().Stringer("id", t.ID()).Msg("transaction edited")
	}
	return nil
}

// editHeader applies the header fields of an edit.
func editHeader(h *header, description *string, timestamp *time.Time) {
	if description != nil {
		h.description = *description
	}
	if timestamp != nil {
		h.timestamp = *timestamp
	}
}

// CashTransactionEdit is a partial update of CashTransactions.
// Nil fields keep the current value; a non nil empty Tags removes every tag.
type CashTransactionEdit struct {
	Description *string
	Timestamp   *time.Time
	Type        *CashTransactionType
	Account     *string
	Payee       *string
	Categories  []CategorySplit
	Tags        []TagSplit
}

// EditCashTransactions applies edit to every transaction of ids.
// A transaction with refunds cannot be edited.
func (rk *RecordKeeper) EditCashTransactions(ids []uuid.UUID, edit CashTransactionEdit) error {
	return editTransactions(rk, ids,
		func(st *staging, t *CashTransaction) (cashTransactionState, error) {
			if len(t.refunds) > 0 {
				return cashTransactionState{}, forbiddenf("transaction %s has %d refunds", t.id, len(t.refunds))
			}
			s := t.state()
			editHeader(&s.header, edit.Description, edit.Timestamp)
			if edit.Type != nil {
				s.typ = *edit.Type
			}
			var err error
			if edit.Account != nil {
				if s.account, err = rk.CashAccount(*edit.Account); err != nil {
					return s, err
				}
			}
			if edit.Payee != nil {
				if s.payee, err = st.attribute(*edit.Payee, Payee); err != nil {
					return s, err
				}
			}
			if edit.Categories != nil {
				if s.categories, err = st.categorySplits(edit.Categories, s.typ, t.amount); err != nil {
					return s, err
				}
			}
			if edit.Tags != nil {
				if s.tags, err = st.tagSplits(edit.Tags); err != nil {
					return s, err
				}
			}
			return s, nil
		},
		func(_ *CashTransaction, s *cashTransactionState, _ map[*CashTransaction]*cashTransactionState) error {
			return s.validate()
		},
		(*CashTransaction).apply,
	)
}

// RefundEdit is a partial update of RefundTransactions. The refunded transaction never changes.
type RefundEdit struct {
	Description *string
	Timestamp   *time.Time
	Account     *string
	Payee       *string
	Categories  []CategorySplit
	Tags        []TagSplit
}

// EditRefunds applies edit to every refund of ids. Each refund is validated
// against the edited state of its siblings.
func (rk *RecordKeeper) EditRefunds(ids []uuid.UUID, edit RefundEdit) error {
	return editTransactions(rk, ids,
		func(st *staging, t *RefundTransaction) (refundState, error) {
			s := t.state()
			editHeader(&s.header, edit.Description, edit.Timestamp)
			var err error
			if edit.Account != nil {
				if s.account, err = rk.CashAccount(*edit.Account); err != nil {
					return s, err
				}
			}
			if edit.Payee != nil {
				if s.payee, err = st.attribute(*edit.Payee, Payee); err != nil {
					return s, err
				}
			}
			if edit.Categories != nil {
				if s.categories, err = rk.existingCategorySplits(edit.Categories); err != nil {
					return s, err
				}
			}
			if edit.Tags != nil {
				if s.tags, err = rk.existingTagSplits(edit.Tags); err != nil {
					return s, err
				}
			}
			return s, nil
		},
		func(t *RefundTransaction, s *refundState, batch map[*RefundTransaction]*refundState) error {
			return s.validate(t.refunded, t.refunded.refundStates(t, batch))
		},
		(*RefundTransaction).apply,
	)
}

// CashTransferEdit is a partial update of CashTransfers.
type CashTransferEdit struct {
	Description    *string
	Timestamp      *time.Time
	Sender         *string
	Recipient      *string
	AmountSent     *CashAmount
	AmountReceived *CashAmount
	Tags           []string
}

// EditCashTransfers applies edit to every transfer of ids.
func (rk *RecordKeeper) EditCashTransfers(ids []uuid.UUID, edit CashTransferEdit) error {
	return editTransactions(rk, ids,
		func(st *staging, t *CashTransfer) (cashTransferState, error) {
			s := t.state()
			editHeader(&s.header, edit.Description, edit.Timestamp)
			var err error
			if edit.Sender != nil {
				if s.sender, err = rk.CashAccount(*edit.Sender); err != nil {
					return s, err
				}
			}
			if edit.Recipient != nil {
				if s.recipient, err = rk.CashAccount(*edit.Recipient); err != nil {
					return s, err
				}
			}
			if edit.AmountSent != nil {
				s.sent = *edit.AmountSent
			}
			if edit.AmountReceived != nil {
				s.received = *edit.AmountReceived
			}
			if edit.Tags != nil {
				if s.tags, err = st.tagSet(edit.Tags); err != nil {
					return s, err
				}
			}
			return s, nil
		},
		func(_ *CashTransfer, s *cashTransferState, _ map[*CashTransfer]*cashTransferState) error {
			return s.validate()
		},
		(*CashTransfer).apply,
	)
}

// SecurityTransactionEdit is a partial update of SecurityTransactions.
type SecurityTransactionEdit struct {
	Description     *string
	Timestamp       *time.Time
	Type            *SecurityTransactionType
	Security        *string
	Shares          *decimal.Decimal
	PricePerShare   *CashAmount
	SecurityAccount *string
	CashAccount     *string
	Tags            []string
}

// EditSecurityTransactions applies edit to every security transaction of ids.
func (rk *RecordKeeper) EditSecurityTransactions(ids []uuid.UUID, edit SecurityTransactionEdit) error {
	return editTransactions(rk, ids,
		func(st *staging, t *SecurityTransaction) (securityTransactionState, error) {
			s := t.state()
			editHeader(&s.header, edit.Description, edit.Timestamp)
			if edit.Type != nil {
				s.typ = *edit.Type
			}
			var err error
			if edit.Security != nil {
				if s.security, err = rk.Security(*edit.Security); err != nil {
					return s, err
				}
			}
			if edit.Shares != nil {
				s.shares = *edit.Shares
			}
			if edit.PricePerShare != nil {
				s.price = *edit.PricePerShare
			}
			if edit.SecurityAccount != nil {
				if s.securityAccount, err = rk.SecurityAccount(*edit.SecurityAccount); err != nil {
					return s, err
				}
			}
			if edit.CashAccount != nil {
				if s.cashAccount, err = rk.CashAccount(*edit.CashAccount); err != nil {
					return s, err
				}
			}
			if edit.Tags != nil {
				if s.tags, err = st.tagSet(edit.Tags); err != nil {
					return s, err
				}
			}
			return s, nil
		},
		func(_ *SecurityTransaction, s *securityTransactionState, _ map[*SecurityTransaction]*securityTransactionState) error {
			return s.validate()
		},
		(*SecurityTransaction).apply,
	)
}

// SecurityTransferEdit is a partial update of SecurityTransfers.
type SecurityTransferEdit struct {
	Description *string
	Timestamp   *time.Time
	Security    *string
	Shares      *decimal.Decimal
	Sender      *string
	Recipient   *string
	Tags        []string
}

// EditSecurityTransfers applies edit to every security transfer of ids.
func (rk *RecordKeeper) EditSecurityTransfers(ids []uuid.UUID, edit SecurityTransferEdit) error {
	return editTransactions(rk, ids,
		func(st *staging, t *SecurityTransfer) (securityTransferState, error) {
			s := t.state()
			editHeader(&s.header, edit.Description, edit.Timestamp)
			var err error
			if edit.Security != nil {
				if s.security, err = rk.Security(*edit.Security); err != nil {
					return s, err
				}
			}
			if edit.Shares != nil {
				s.shares = *edit.Shares
			}
			if edit.Sender != nil {
				if s.sender, err = rk.SecurityAccount(*edit.Sender); err != nil {
					return s, err
				}
			}
			if edit.Recipient != nil {
				if s.recipient, err = rk.SecurityAccount(*edit.Recipient); err != nil {
					return s, err
				}
			}
			if edit.Tags != nil {
				if s.tags, err = st.tagSet(edit.Tags); err != nil {
					return s, err
				}
			}
			return s, nil
		},
		func(_ *SecurityTransfer, s *securityTransferState, _ map[*SecurityTransfer]*securityTransferState) error {
			return s.validate()
		},
		(*SecurityTransfer).apply,
	)
}

// TreeEdit moves or renames an item of the account tree or of the category tree.
// Parent is the path of the new parent, "" for the top level.
// Index is the position among the new siblings, out of bounds appends.
type TreeEdit struct {
	Name   *string
	Parent *string
	Index  *int
}

// treeMove is the resolved destination of a TreeEdit.
type treeMove struct {
	name   string
	parent uuid.UUID
	index  int
	path   string
}

// resolveTreeEdit computes where edit moves id in f. parentOf resolves a parent path.
func resolveTreeEdit(f *forest, n *node, kind string, edit TreeEdit, parentOf func(path string) (uuid.UUID, string, error)) (treeMove, error) {
	m := treeMove{name: n.name, parent: f.Parent(n.id), index: f.Index(n.id)}
	if edit.Name != nil {
		if err := validateName(kind, *edit.Name, NameMaxLength, false); err != nil {
			return m, err
		}
		m.name = *edit.Name
	}
	parentPath, _ := splitPath(n.path)
	if edit.Parent != nil && *edit.Parent != parentPath {
		parentPath = *edit.Parent
		m.parent, m.index = uuid.Nil, -1
		if parentPath != "" {
			p, path, err := parentOf(parentPath)
			if err != nil {
				return m, err
			}
			if f.IsAncestor(n.id, p) {
				return m, forbiddenf("%s %q cannot move under %q", kind, n.path, path)
			}
			m.parent = p
		}
	}
	if edit.Index != nil {
		m.index = *edit.Index
	}
	m.path = joinPath(parentPath, m.name)
	return m, nil
}

func (m treeMove) commit(f *forest, n *node, now time.Time, lookup func(uuid.UUID) *node) {
	if m.name != n.name {
		n.rename(m.name, now)
	}
	f.Move(n.id, m.parent, m.index)
	refreshPaths(f, n.id, lookup)
}

// EditCategory renames or moves the category at path. Its type never changes:
// the new parent must have the same type.
func (rk *RecordKeeper) EditCategory(path string, edit TreeEdit) (*Category, error) {
	c, err := rk.Category(path)
	if err != nil {
		return nil, err
	}
	m, err := resolveTreeEdit(rk.categoryTree, &c.node, "category", edit, func(path string) (uuid.UUID, string, error) {
		p, err := rk.Category(path)
		if err != nil {
			return uuid.Nil, "", err
		}
		if p.typ != c.typ {
			return uuid.Nil, "", invalidf("category %q of type %v cannot be under %q of type %v", c.path, c.typ, p.path, p.typ)
		}
		return p.id, p.path, nil
	})
	if err != nil {
		return nil, err
	}
	if x := rk.findCategory(m.path); x != nil && x != c {
		return nil, alreadyExists("category", m.path)
	}
	m.commit(rk.categoryTree, &c.node, rk.now(), rk.categoryNode)
	rk.log.Debug().Str("from", path).Str("to", c.path).Msg("category edited")
	return c, nil
}

// editAccountItem renames or moves an item of the account tree. Parents must be groups.
func (rk *RecordKeeper) editAccountItem(item AccountItem, edit TreeEdit) (func(), error) {
	n := item.treeNode()
	m, err := resolveTreeEdit(rk.accountTree, n, "account", edit, func(path string) (uuid.UUID, string, error) {
		g, err := rk.AccountGroup(path)
		if err != nil {
			return uuid.Nil, "", err
		}
		return g.id, g.path, nil
	})
	if err != nil {
		return nil, err
	}
	if x, err := rk.AccountItem(m.path); err == nil && x != item {
		return nil, alreadyExists("account item", m.path)
	}
	from := n.path
	return func() {
		m.commit(rk.accountTree, n, rk.now(), rk.accountNode)
		rk.log.Debug().Str("from", from).Str("to", n.path).Msg("account item edited")
	}, nil
}

// EditAccountGroup renames or moves the group at path, with its descendants.
func (rk *RecordKeeper) EditAccountGroup(path string, edit TreeEdit) (*AccountGroup, error) {
	g, err := rk.AccountGroup(path)
	if err != nil {
		return nil, err
	}
	commit, err := rk.editAccountItem(g, edit)
	if err != nil {
		return nil, err
	}
	commit()
	return g, nil
}

// EditSecurityAccount renames or moves the security account at path.
func (rk *RecordKeeper) EditSecurityAccount(path string, edit TreeEdit) (*SecurityAccount, error) {
	a, err := rk.SecurityAccount(path)
	if err != nil {
		return nil, err
	}
	commit, err := rk.editAccountItem(a, edit)
	if err != nil {
		return nil, err
	}
	commit()
	return a, nil
}

// CashAccountEdit is a partial update of a CashAccount.
type CashAccountEdit struct {
	TreeEdit
	InitialBalance *decimal.Decimal
}

// EditCashAccount renames, moves or changes the initial balance of the cash account at path.
// Setting the current initial balance again does not recompute the balance history.
func (rk *RecordKeeper) EditCashAccount(path string, edit CashAccountEdit) (*CashAccount, error) {
	a, err := rk.CashAccount(path)
	if err != nil {
		return nil, err
	}
	commit, err := rk.editAccountItem(a, edit.TreeEdit)
	if err != nil {
		return nil, err
	}
	commit()
	if edit.InitialBalance != nil && !edit.InitialBalance.Equal(a.initial.value) {
		a.initial = NewCashAmount(*edit.InitialBalance, a.currency)
		a.edited = rk.now()
		a.recompute()
		rk.log.Debug().Str("path", a.path).Stringer("initial", a.initial).Msg("initial balance edited")
	}
	return a, nil
}

// SecurityEdit is a partial update of a Security. Its currency never changes.
type SecurityEdit struct {
	Name           *string
	Symbol         *string
	Type           *string
	SharesDecimals *int
}

// EditSecurity updates the security name. Fewer shares decimals must still
// fit every transaction of the security.
func (rk *RecordKeeper) EditSecurity(name string, edit SecurityEdit) (*Security, error) {
	s, err := rk.Security(name)
	if err != nil {
		return nil, err
	}
	next := *s
	if edit.Name != nil {
		next.name = *edit.Name
	}
	if edit.Symbol != nil {
		next.symbol = *edit.Symbol
	}
	if edit.Type != nil {
		next.typ = *edit.Type
	}
	if edit.SharesDecimals != nil {
		next.sharesDecimals = int32(*edit.SharesDecimals)
	}
	checked, err := newSecurity(s.id, next.name, next.symbol, next.typ, s.currency, int(next.sharesDecimals), s.created)
	if err != nil {
		return nil, err
	}
	if err := rk.checkSecurityUnique(s.id, checked.name, checked.symbol); err != nil {
		return nil, err
	}
	for _, t := range rk.transactions {
		if securityOf(t) != s {
			continue
		}
		if err := checked.validShares(sharesOf(t)); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID(), err)
		}
	}
	s.rename(checked.name, rk.now())
	s.symbol = checked.symbol
	s.typ = checked.typ
	s.sharesDecimals = checked.sharesDecimals
	rk.log.Debug().Str("from", name).Str("to", s.name).Msg("security edited")
	return s, nil
}

// sharesOf returns the number of shares a security transaction or transfer moves.
func sharesOf(t Transaction) decimal.Decimal {
	switch t := t.(type) {
	case *SecurityTransaction:
		return t.shares
	case *SecurityTransfer:
		return t.shares
	}
	return decimal.Zero
}

// EditAttribute renames the payee or tag name to newName.
//
// When newName is already used, merge must be set: every transaction
// referencing name then references newName, and name is removed. A
// transaction carrying both tags keeps the larger tag amount.
func (rk *RecordKeeper) EditAttribute(name string, role AttributeRole, newName string, merge bool) (*Attribute, error) {
	a, err := rk.attribute(name, role)
	if err != nil {
		return nil, err
	}
	if err := validateName(role.String(), newName, NameMaxLength, true); err != nil {
		return nil, err
	}
	if newName == name {
		return a, nil
	}
	into := rk.findAttribute(newName, role)
	if into == nil {
		a.rename(newName, rk.now())
		rk.log.Debug().Str("from", name).Str("to", newName).Stringer("role", role).Msg("attribute renamed")
		return a, nil
	}
	if !merge {
		return nil, alreadyExists(role.String(), newName)
	}

	var commits []func()
	for _, t := range rk.transactions {
		c, err := mergeAttribute(t, a, into)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID(), err)
		}
		if c != nil {
			commits = append(commits, c)
		}
	}
	for _, c := range commits {
		c()
	}
	attrs := rk.attributes(role)
	*attrs = slices.DeleteFunc(*attrs, func(x *Attribute) bool { return x == a })
	rk.log.Debug().Str("from", name).Str("into", newName).Stringer("role", role).Int("transactions", len(commits)).Msg("attribute merged")
	return into, nil
}

// mergeAttribute returns the change replacing from by into in t, nil when t does not reference from.
func mergeAttribute(t Transaction, from, into *Attribute) (func(), error) {
	if from.role == Payee {
		switch t := t.(type) {
		case *CashTransaction:
			if t.payee == from {
				return func() { t.payee = into }, nil
			}
		case *RefundTransaction:
			if t.payee == from {
				return func() { t.payee = into }, nil
			}
		}
		return nil, nil
	}
	switch t := t.(type) {
	case *CashTransaction:
		if !slices.Contains(t.Tags(), from) {
			return nil, nil
		}
		if len(t.refunds) > 0 && slices.Contains(t.Tags(), into) {
			return nil, forbiddenf("refunded transaction carries both %q and %q", from.name, into.name)
		}
		tags := mergeTagAmounts(t.tags, from, into)
		return func() { t.tags = tags }, nil
	case *RefundTransaction:
		if !slices.Contains(t.Tags(), from) {
			return nil, nil
		}
		if slices.Contains(t.Tags(), into) {
			return nil, forbiddenf("refund carries both %q and %q", from.name, into.name)
		}
		tags := mergeTagAmounts(t.tags, from, into)
		return func() { t.tags = tags }, nil
	default:
		set := tagSetOf(t)
		if set == nil || !slices.Contains(*set, from) {
			return nil, nil
		}
		merged := slices.Clone(*set)
		if slices.Contains(merged, into) {
			merged = slices.DeleteFunc(merged, func(x *Attribute) bool { return x == from })
		} else {
			merged[slices.Index(merged, from)] = into
		}
		return func() { *set = merged }, nil
	}
}

// mergeTagAmounts replaces from by into, keeping the larger amount when both are present.
func mergeTagAmounts(tags []TagAmount, from, into *Attribute) []TagAmount {
	merged := slices.Clone(tags)
	i := slices.IndexFunc(merged, func(x TagAmount) bool { return x.Tag == from })
	j := slices.IndexFunc(merged, func(x TagAmount) bool { return x.Tag == into })
	if j < 0 {
		merged[i].Tag = into
		return merged
	}
	if merged[i].Amount.value.GreaterThan(merged[j].Amount.value) {
		merged[j].Amount = merged[i].Amount
	}
	return slices.Delete(merged, i, i+1)
}

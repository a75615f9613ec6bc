package kapytal

import (
	"fmt"
	"time"

	"github.com/etnz/kapytal/date"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddCurrency creates a currency. The first currency becomes the base currency.
func (rk *RecordKeeper) AddCurrency(code string, places int) (*Currency, error) {
	c, err := NewCurrency(code, places)
	if err != nil {
		return nil, err
	}
	if _, err := rk.Currency(c.code); err == nil {
		return nil, alreadyExists("currency", c.code)
	}
	rk.currencies = append(rk.currencies, c)
	if rk.base == nil {
		rk.base = c
	}
	rk.log.Debug().Str("code", c.code).Int("places", places).Msg("currency added")
	return c, nil
}

// SetBaseCurrency changes the base currency.
func (rk *RecordKeeper) SetBaseCurrency(code string) error {
	c, err := rk.Currency(code)
	if err != nil {
		return err
	}
	rk.base = c
	return nil
}

// AddExchangeRate creates the exchange rate between two currencies, with no rate yet.
func (rk *RecordKeeper) AddExchangeRate(primary, secondary string) (*ExchangeRate, error) {
	p, err := rk.Currency(primary)
	if err != nil {
		return nil, err
	}
	s, err := rk.Currency(secondary)
	if err != nil {
		return nil, err
	}
	for _, r := range rk.rates {
		if (r.primary == p && r.secondary == s) || (r.primary == s && r.secondary == p) {
			return nil, alreadyExists("exchange rate", r.Code())
		}
	}
	r, err := newExchangeRate(p, s)
	if err != nil {
		return nil, err
	}
	r.link()
	rk.rates = append(rk.rates, r)
	rk.log.Debug().Str("code", r.Code()).Msg("exchange rate added")
	return r, nil
}

// SetExchangeRate sets the rate of "PRIMARY/SECONDARY" on a given day.
func (rk *RecordKeeper) SetExchangeRate(code string, day date.Date, rate decimal.Decimal) error {
	r, err := rk.ExchangeRate(code)
	if err != nil {
		return err
	}
	return r.SetRate(day, rate)
}

// SecurityInput describes a new security.
type SecurityInput struct {
	Name           string
	Symbol         string
	Type           string
	Currency       string
	SharesDecimals int
}

// AddSecurity creates a security. Names are unique, and so are non empty symbols.
func (rk *RecordKeeper) AddSecurity(in SecurityInput) (*Security, error) {
	return rk.addSecurity(in, origin{})
}

func (rk *RecordKeeper) addSecurity(in SecurityInput, o origin) (*Security, error) {
	if err := rk.checkOrigin(o); err != nil {
		return nil, err
	}
	c, err := rk.Currency(in.Currency)
	if err != nil {
		return nil, err
	}
	if o.id == uuid.Nil {
		o.id = rk.newID()
	}
	if o.created.IsZero() {
		o.created = rk.now()
	}
	s, err := newSecurity(o.id, in.Name, in.Symbol, in.Type, c, in.SharesDecimals, o.created)
	if err != nil {
		return nil, err
	}
	if err := rk.checkSecurityUnique(s.id, s.name, s.symbol); err != nil {
		return nil, err
	}
	rk.securities = append(rk.securities, s)
	rk.log.Debug().Str("name", s.name).Str("symbol", s.symbol).Msg("security added")
	return s, nil
}

func (rk *RecordKeeper) checkSecurityUnique(id uuid.UUID, name, symbol string) error {
	for _, x := range rk.securities {
		if x.id == id {
			continue
		}
		if x.name == name {
			return alreadyExists("security", name)
		}
		if symbol != "" && x.symbol == symbol {
			return alreadyExists("security symbol", symbol)
		}
	}
	return nil
}

// SetSecurityPrice sets the price of one share of the named security on a given day.
func (rk *RecordKeeper) SetSecurityPrice(name string, day date.Date, price decimal.Decimal) error {
	s, err := rk.Security(name)
	if err != nil {
		return err
	}
	return s.SetPrice(day, NewCashAmount(price, s.currency))
}

// accountParent resolves the group a new item at path goes under, and checks the path is free.
func (rk *RecordKeeper) accountParent(path string) (uuid.UUID, string, error) {
	parentPath, name := splitPath(path)
	if err := validateName("account", name, NameMaxLength, false); err != nil {
		return uuid.Nil, "", err
	}
	if _, err := rk.AccountItem(path); err == nil {
		return uuid.Nil, "", alreadyExists("account item", path)
	}
	if parentPath == "" {
		return uuid.Nil, name, nil
	}
	g, err := rk.AccountGroup(parentPath)
	if err != nil {
		return uuid.Nil, "", err
	}
	return g.id, name, nil
}

func (rk *RecordKeeper) insertAccountItem(item AccountItem, parent uuid.UUID, index int) {
	rk.items[item.ID()] = item
	rk.accountTree.Insert(item.ID(), parent, index)
	switch item := item.(type) {
	case *AccountGroup:
		rk.groups = append(rk.groups, item)
	case Account:
		rk.accounts = append(rk.accounts, item)
	}
}

func (rk *RecordKeeper) newNode(name, path string, o origin) node {
	if o.id == uuid.Nil {
		o.id = rk.newID()
	}
	if o.created.IsZero() {
		o.created = rk.now()
	}
	return node{identity: newIdentity(name, o.created), id: o.id, path: path}
}

// AddAccountGroup creates a group at path, its parent group must exist.
func (rk *RecordKeeper) AddAccountGroup(path string) (*AccountGroup, error) {
	return rk.addAccountGroup(path, -1, origin{})
}

func (rk *RecordKeeper) addAccountGroup(path string, index int, o origin) (*AccountGroup, error) {
	if err := rk.checkOrigin(o); err != nil {
		return nil, err
	}
	parent, name, err := rk.accountParent(path)
	if err != nil {
		return nil, err
	}
	g := &AccountGroup{node: rk.newNode(name, path, o)}
	rk.insertAccountItem(g, parent, index)
	rk.log.Debug().Str("path", path).Msg("account group added")
	return g, nil
}

// AddCashAccount creates a cash account at path, with an initial balance in its currency.
func (rk *RecordKeeper) AddCashAccount(path, currency string, initialBalance decimal.Decimal) (*CashAccount, error) {
	return rk.addCashAccount(path, currency, initialBalance, -1, origin{})
}

func (rk *RecordKeeper) addCashAccount(path, currency string, initialBalance decimal.Decimal, index int, o origin) (*CashAccount, error) {
	if err := rk.checkOrigin(o); err != nil {
		return nil, err
	}
	c, err := rk.Currency(currency)
	if err != nil {
		return nil, err
	}
	parent, name, err := rk.accountParent(path)
	if err != nil {
		return nil, err
	}
	a := &CashAccount{node: rk.newNode(name, path, o), currency: c, initial: NewCashAmount(initialBalance, c)}
	a.hold = rk.loading
	a.recompute()
	rk.insertAccountItem(a, parent, index)
	rk.log.Debug().Str("path", path).Str("currency", c.code).Msg("cash account added")
	return a, nil
}

// AddSecurityAccount creates a security account at path.
func (rk *RecordKeeper) AddSecurityAccount(path string) (*SecurityAccount, error) {
	return rk.addSecurityAccount(path, -1, origin{})
}

func (rk *RecordKeeper) addSecurityAccount(path string, index int, o origin) (*SecurityAccount, error) {
	if err := rk.checkOrigin(o); err != nil {
		return nil, err
	}
	parent, name, err := rk.accountParent(path)
	if err != nil {
		return nil, err
	}
	a := &SecurityAccount{node: rk.newNode(name, path, o), hold: rk.loading}
	rk.insertAccountItem(a, parent, index)
	rk.log.Debug().Str("path", path).Msg("security account added")
	return a, nil
}

// AddCategory creates a category at path. A sub-category must have the type of its parent, that must exist.
func (rk *RecordKeeper) AddCategory(path string, t CategoryType) (*Category, error) {
	return rk.addCategory(path, t, -1, origin{})
}

func (rk *RecordKeeper) addCategory(path string, t CategoryType, index int, o origin) (*Category, error) {
	if t < Income || t > IncomeAndExpense {
		return nil, invalidf("unknown category type %v", t)
	}
	if err := rk.checkOrigin(o); err != nil {
		return nil, err
	}
	parentPath, name := splitPath(path)
	if err := validateName("category", name, NameMaxLength, false); err != nil {
		return nil, err
	}
	if rk.findCategory(path) != nil {
		return nil, alreadyExists("category", path)
	}
	parent := uuid.Nil
	if parentPath != "" {
		p, err := rk.Category(parentPath)
		if err != nil {
			return nil, err
		}
		if p.typ != t {
			return nil, invalidf("category %q of type %v cannot be under %q of type %v", path, t, p.path, p.typ)
		}
		parent = p.id
	}
	c := &Category{node: rk.newNode(name, path, o), typ: t}
	rk.categories[c.id] = c
	rk.categoryTree.Insert(c.id, parent, index)
	rk.log.Debug().Str("path", path).Stringer("type", t).Msg("category added")
	return c, nil
}

// CategoryOrCreate returns the category at path, creating it and its missing ancestors with type t.
func (rk *RecordKeeper) CategoryOrCreate(path string, t CategoryType) (*Category, error) {
	st := rk.stage()
	c, err := st.category(path, t)
	if err != nil {
		return nil, err
	}
	st.commit()
	return c, nil
}

// AddPayee creates a payee.
func (rk *RecordKeeper) AddPayee(name string) (*Attribute, error) { return rk.addAttribute(name, Payee, time.Time{}) }

// AddTag creates a tag.
func (rk *RecordKeeper) AddTag(name string) (*Attribute, error) { return rk.addAttribute(name, Tag, time.Time{}) }

func (rk *RecordKeeper) addAttribute(name string, role AttributeRole, created time.Time) (*Attribute, error) {
	if rk.findAttribute(name, role) != nil {
		return nil, alreadyExists(role.String(), name)
	}
	if created.IsZero() {
		created = rk.now()
	}
	a, err := newAttribute(name, role, created)
	if err != nil {
		return nil, err
	}
	attrs := rk.attributes(role)
	*attrs = append(*attrs, a)
	return a, nil
}

// AttributeOrCreate returns the payee or tag name, creating it when missing.
func (rk *RecordKeeper) AttributeOrCreate(name string, role AttributeRole) (*Attribute, error) {
	st := rk.stage()
	a, err := st.attribute(name, role)
	if err != nil {
		return nil, err
	}
	st.commit()
	return a, nil
}

// CategorySplit is the input form of a CategoryAmount.
//
// An Amount with no currency stands for the transaction's current total,
// which is only allowed when editing a transaction down to a single category.
type CategorySplit struct {
	Path   string
	Amount CashAmount
}

// TagSplit is the input form of a TagAmount.
type TagSplit struct {
	Name   string
	Amount CashAmount
}

// CashTransactionInput describes a new CashTransaction. Missing payees,
// tags and categories are created.
type CashTransactionInput struct {
	Description string
	Timestamp   time.Time
	Type        CashTransactionType
	Account     string
	Payee       string
	Categories  []CategorySplit
	Tags        []TagSplit
}

// AddCashTransaction records an income or an expense.
func (rk *RecordKeeper) AddCashTransaction(in CashTransactionInput) (*CashTransaction, error) {
	return rk.addCashTransaction(in, origin{})
}

func (rk *RecordKeeper) addCashTransaction(in CashTransactionInput, o origin) (*CashTransaction, error) {
	base, err := rk.newTxBase(o)
	if err != nil {
		return nil, err
	}
	st := rk.stage()
	s := cashTransactionState{header: header{description: in.Description, timestamp: in.Timestamp}, typ: in.Type}
	if s.account, err = rk.CashAccount(in.Account); err != nil {
		return nil, err
	}
	if s.payee, err = st.attribute(in.Payee, Payee); err != nil {
		return nil, err
	}
	if s.categories, err = st.categorySplits(in.Categories, in.Type, CashAmount{}); err != nil {
		return nil, err
	}
	if s.tags, err = st.tagSplits(in.Tags); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	st.commit()
	t := &CashTransaction{txBase: base}
	t.apply(s)
	rk.register(&t.txBase)
	rk.insertTransaction(t)
	rk.log.Debug().Stringer("id", t.id).Stringer("type", t.typ).Stringer("amount", t.amount).Msg("cash transaction added")
	return t, nil
}

// categorySplits resolves splits, creating missing categories with the type matching t.
// A single split with no amount takes current.
func (st *staging) categorySplits(splits []CategorySplit, t CashTransactionType, current CashAmount) ([]CategoryAmount, error) {
	typ := Income
	if t == ExpenseTransaction {
		typ = Expense
	}
	res := make([]CategoryAmount, len(splits))
	for i, s := range splits {
		c, err := st.category(s.Path, typ)
		if err != nil {
			return nil, err
		}
		amount := s.Amount
		if !amount.IsSet() {
			if len(splits) != 1 || !current.IsSet() {
				return nil, invalidf("amount of category %q is required", s.Path)
			}
			amount = current
		}
		res[i] = CategoryAmount{Category: c, Amount: amount}
	}
	return res, nil
}

// existingCategorySplits resolves splits against existing categories only.
func (rk *RecordKeeper) existingCategorySplits(splits []CategorySplit) ([]CategoryAmount, error) {
	res := make([]CategoryAmount, len(splits))
	for i, s := range splits {
		c, err := rk.Category(s.Path)
		if err != nil {
			return nil, err
		}
		res[i] = CategoryAmount{Category: c, Amount: s.Amount}
	}
	return res, nil
}

func (st *staging) tagSplits(splits []TagSplit) ([]TagAmount, error) {
	res := make([]TagAmount, len(splits))
	for i, s := range splits {
		tag, err := st.attribute(s.Name, Tag)
		if err != nil {
			return nil, err
		}
		res[i] = TagAmount{Tag: tag, Amount: s.Amount}
	}
	return res, nil
}

func (st *staging) tagSet(names []string) (tagSet, error) {
	res := make(tagSet, len(names))
	for i, name := range names {
		tag, err := st.attribute(name, Tag)
		if err != nil {
			return nil, err
		}
		res[i] = tag
	}
	return res, nil
}

// RefundInput describes a new RefundTransaction. Categories and tags must be
// exactly the ones of the refunded transaction.
type RefundInput struct {
	Description string
	Timestamp   time.Time
	Refunded    uuid.UUID
	Account     string
	Payee       string
	Categories  []CategorySplit
	Tags        []TagSplit
}

// AddRefund records a refund of an expense.
func (rk *RecordKeeper) AddRefund(in RefundInput) (*RefundTransaction, error) {
	return rk.addRefund(in, origin{})
}

func (rk *RecordKeeper) addRefund(in RefundInput, o origin) (*RefundTransaction, error) {
	base, err := rk.newTxBase(o)
	if err != nil {
		return nil, err
	}
	refunded, err := lookupTransaction[*CashTransaction](rk, in.Refunded)
	if err != nil {
		return nil, fmt.Errorf("refunded transaction: %w", err)
	}
	st := rk.stage()
	s := refundState{header: header{description: in.Description, timestamp: in.Timestamp}}
	if s.account, err = rk.CashAccount(in.Account); err != nil {
		return nil, err
	}
	if s.payee, err = st.attribute(in.Payee, Payee); err != nil {
		return nil, err
	}
	if s.categories, err = rk.existingCategorySplits(in.Categories); err != nil {
		return nil, err
	}
	if s.tags, err = rk.existingTagSplits(in.Tags); err != nil {
		return nil, err
	}
	if err := s.validate(refunded, refunded.refundStates(nil, nil)); err != nil {
		return nil, err
	}
	st.commit()
	t := &RefundTransaction{txBase: base, refunded: refunded}
	t.apply(s)
	rk.register(&t.txBase)
	rk.insertTransaction(t)
	rk.log.Debug().Stringer("id", t.id).Stringer("refunded", refunded.id).Stringer("amount", t.amount).Msg("refund added")
	return t, nil
}

func (rk *RecordKeeper) existingTagSplits(splits []TagSplit) ([]TagAmount, error) {
	res := make([]TagAmount, len(splits))
	for i, s := range splits {
		tag, err := rk.Tag(s.Name)
		if err != nil {
			return nil, err
		}
		res[i] = TagAmount{Tag: tag, Amount: s.Amount}
	}
	return res, nil
}

// CashTransferInput describes a new CashTransfer.
type CashTransferInput struct {
	Description    string
	Timestamp      time.Time
	Sender         string
	Recipient      string
	AmountSent     CashAmount
	AmountReceived CashAmount
	Tags           []string
}

// AddCashTransfer records a transfer between two cash accounts.
func (rk *RecordKeeper) AddCashTransfer(in CashTransferInput) (*CashTransfer, error) {
	return rk.addCashTransfer(in, origin{})
}

func (rk *RecordKeeper) addCashTransfer(in CashTransferInput, o origin) (*CashTransfer, error) {
	base, err := rk.newTxBase(o)
	if err != nil {
		return nil, err
	}
	st := rk.stage()
	s := cashTransferState{
		header:   header{description: in.Description, timestamp: in.Timestamp},
		sent:     in.AmountSent,
		received: in.AmountReceived,
	}
	if s.sender, err = rk.CashAccount(in.Sender); err != nil {
		return nil, err
	}
	if s.recipient, err = rk.CashAccount(in.Recipient); err != nil {
		return nil, err
	}
	if s.tags, err = st.tagSet(in.Tags); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	st.commit()
	t := &CashTransfer{txBase: base}
	t.apply(s)
	rk.register(&t.txBase)
	rk.insertTransaction(t)
	rk.log.Debug().Stringer("id", t.id).Str("from", t.sender.path).Str("to", t.recipient.path).Msg("cash transfer added")
	return t, nil
}

// SecurityTransactionInput describes a new SecurityTransaction.
type SecurityTransactionInput struct {
	Description     string
	Timestamp       time.Time
	Type            SecurityTransactionType
	Security        string
	Shares          decimal.Decimal
	PricePerShare   CashAmount
	SecurityAccount string
	CashAccount     string
	Tags            []string
}

// AddSecurityTransaction records a buy, a sell or a dividend.
func (rk *RecordKeeper) AddSecurityTransaction(in SecurityTransactionInput) (*SecurityTransaction, error) {
	return rk.addSecurityTransaction(in, origin{})
}

func (rk *RecordKeeper) addSecurityTransaction(in SecurityTransactionInput, o origin) (*SecurityTransaction, error) {
	base, err := rk.newTxBase(o)
	if err != nil {
		return nil, err
	}
	st := rk.stage()
	s := securityTransactionState{
		header: header{description: in.Description, timestamp: in.Timestamp},
		typ:    in.Type,
		shares: in.Shares,
		price:  in.PricePerShare,
	}
	if s.security, err = rk.Security(in.Security); err != nil {
		return nil, err
	}
	if s.securityAccount, err = rk.SecurityAccount(in.SecurityAccount); err != nil {
		return nil, err
	}
	if s.cashAccount, err = rk.CashAccount(in.CashAccount); err != nil {
		return nil, err
	}
	if s.tags, err = st.tagSet(in.Tags); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	st.commit()
	t := &SecurityTransaction{txBase: base}
	t.apply(s)
	rk.register(&t.txBase)
	rk.insertTransaction(t)
	rk.log.Debug().Stringer("id", t.id).Stringer("type", t.typ).Str("security", t.security.name).Msg("security transaction added")
	return t, nil
}

// SecurityTransferInput describes a new SecurityTransfer.
type SecurityTransferInput struct {
	Description string
	Timestamp   time.Time
	Security    string
	Shares      decimal.Decimal
	Sender      string
	Recipient   string
	Tags        []string
}

// AddSecurityTransfer records shares moving between two security accounts.
func (rk *RecordKeeper) AddSecurityTransfer(in SecurityTransferInput) (*SecurityTransfer, error) {
	return rk.addSecurityTransfer(in, origin{})
}

func (rk *RecordKeeper) addSecurityTransfer(in SecurityTransferInput, o origin) (*SecurityTransfer, error) {
	base, err := rk.newTxBase(o)
	if err != nil {
		return nil, err
	}
	st := rk.stage()
	s := securityTransferState{
		header: header{description: in.Description, timestamp: in.Timestamp},
		shares: in.Shares,
	}
	if s.security, err = rk.Security(in.Security); err != nil {
		return nil, err
	}
	if s.sender, err = rk.SecurityAccount(in.Sender); err != nil {
		return nil, err
	}
	if s.recipient, err = rk.SecurityAccount(in.Recipient); err != nil {
		return nil, err
	}
	if s.tags, err = st.tagSet(in.Tags); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	st.commit()
	t := &SecurityTransfer{txBase: base}
	t.apply(s)
	rk.register(&t.txBase)
	rk.insertTransaction(t)
	rk.log.Debug().Stringer("id", t.id).Str("security", t.security.name).Msg("security transfer added")
	return t, nil
}

package kapytal

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RecordKeeper owns every entity of a ledger and is its only mutation entry point.
//
// Every mutation validates the complete resulting state before committing
// anything: a failed operation leaves the RecordKeeper unchanged.
// A RecordKeeper is not safe for concurrent use.
type RecordKeeper struct {
	log   zerolog.Logger
	clock func() time.Time
	newID func() uuid.UUID

	currencies []*Currency
	base       *Currency
	rates      []*ExchangeRate
	securities []*Security

	accountTree *forest
	items       map[uuid.UUID]AccountItem
	groups      []*AccountGroup
	accounts    []Account

	payees []*Attribute
	tags   []*Attribute

	categoryTree *forest
	categories   map[uuid.UUID]*Category

	transactions []Transaction // newest first
	index        map[uuid.UUID]Transaction
	descriptions map[string]int
	seq          uint64
	loading      bool
}

// Option configures a RecordKeeper.
type Option func(*RecordKeeper)

// WithLogger sets the logger receiving one debug event per committed mutation.
func WithLogger(l zerolog.Logger) Option { return func(rk *RecordKeeper) { rk.log = l } }

// WithClock sets the source of creation and edition timestamps.
func WithClock(now func() time.Time) Option { return func(rk *RecordKeeper) { rk.clock = now } }

// WithIDs sets the source of new identifiers.
func WithIDs(next func() uuid.UUID) Option { return func(rk *RecordKeeper) { rk.newID = next } }

// New returns an empty RecordKeeper.
func New(opts ...Option) *RecordKeeper {
	rk := &RecordKeeper{
		log:          zerolog.Nop(),
		clock:        time.Now,
		newID:        uuid.New,
		accountTree:  newForest(),
		items:        make(map[uuid.UUID]AccountItem),
		categoryTree: newForest(),
		categories:   make(map[uuid.UUID]*Category),
		index:        make(map[uuid.UUID]Transaction),
		descriptions: make(map[string]int),
	}
	for _, opt := range opts {
		opt(rk)
	}
	return rk
}

func (rk *RecordKeeper) now() time.Time { return rk.clock() }

// Currencies returns the currencies in creation order.
func (rk *RecordKeeper) Currencies() []*Currency { return slices.Clone(rk.currencies) }

// BaseCurrency returns the currency reports are expressed in, nil when there is no currency.
func (rk *RecordKeeper) BaseCurrency() *Currency { return rk.base }

// ExchangeRates returns the exchange rates in creation order.
func (rk *RecordKeeper) ExchangeRates() []*ExchangeRate { return slices.Clone(rk.rates) }

// Securities returns the securities in creation order.
func (rk *RecordKeeper) Securities() []*Security { return slices.Clone(rk.securities) }

// AccountGroups returns the account groups in creation order.
func (rk *RecordKeeper) AccountGroups() []*AccountGroup { return slices.Clone(rk.groups) }

// Accounts returns the accounts in creation order.
func (rk *RecordKeeper) Accounts() []Account { return slices.Clone(rk.accounts) }

// CashAccounts returns the cash accounts in creation order.
func (rk *RecordKeeper) CashAccounts() []*CashAccount { return accountsOf[*CashAccount](rk.accounts) }

// SecurityAccounts returns the security accounts in creation order.
func (rk *RecordKeeper) SecurityAccounts() []*SecurityAccount {
	return accountsOf[*SecurityAccount](rk.accounts)
}

func accountsOf[T Account](accounts []Account) []T {
	var res []T
	for _, a := range accounts {
		if a, ok := a.(T); ok {
			res = append(res, a)
		}
	}
	return res
}

// RootAccountItems returns the top level groups and accounts in tree order.
func (rk *RecordKeeper) RootAccountItems() []AccountItem { return rk.accountItems(uuid.Nil) }

// Children returns the ordered children of a group.
func (rk *RecordKeeper) Children(g *AccountGroup) []AccountItem { return rk.accountItems(g.id) }

func (rk *RecordKeeper) accountItems(parent uuid.UUID) []AccountItem {
	ids := rk.accountTree.Children(parent)
	items := make([]AccountItem, len(ids))
	for i, id := range ids {
		items[i] = rk.items[id]
	}
	return items
}

// Parent returns the group holding item, nil at the top level.
func (rk *RecordKeeper) Parent(item AccountItem) *AccountGroup {
	if g, ok := rk.items[rk.accountTree.Parent(item.ID())].(*AccountGroup); ok {
		return g
	}
	return nil
}

// WalkAccounts visits the account tree depth first, parents before children.
func (rk *RecordKeeper) WalkAccounts(visit func(item AccountItem, depth int)) {
	rk.accountTree.Walk(uuid.Nil, func(id uuid.UUID, depth int) { visit(rk.items[id], depth) })
}

// Payees returns the payees sorted by name.
func (rk *RecordKeeper) Payees() []*Attribute { return sortedAttributes(rk.payees) }

// Tags returns the tags sorted by name.
func (rk *RecordKeeper) Tags() []*Attribute { return sortedAttributes(rk.tags) }

func sortedAttributes(attrs []*Attribute) []*Attribute {
	s := slices.Clone(attrs)
	slices.SortFunc(s, func(a, b *Attribute) int { return cmp.Compare(a.name, b.name) })
	return s
}

// Categories returns every category in tree order.
func (rk *RecordKeeper) Categories() []*Category {
	var cats []*Category
	rk.WalkCategories(func(c *Category, _ int) { cats = append(cats, c) })
	return cats
}

// CategoriesOfType returns the categories of type t in tree order.
func (rk *RecordKeeper) CategoriesOfType(t CategoryType) []*Category {
	var cats []*Category
	rk.WalkCategories(func(c *Category, _ int) {
		if c.typ == t {
			cats = append(cats, c)
		}
	})
	return cats
}

// RootCategories returns the top level categories of type t in tree order.
func (rk *RecordKeeper) RootCategories(t CategoryType) []*Category {
	var cats []*Category
	for _, c := range rk.categoriesUnder(uuid.Nil) {
		if c.typ == t {
			cats = append(cats, c)
		}
	}
	return cats
}

// SubCategories returns the ordered children of c.
func (rk *RecordKeeper) SubCategories(c *Category) []*Category { return rk.categoriesUnder(c.id) }

// ParentCategory returns the parent of c, nil for a top level category.
func (rk *RecordKeeper) ParentCategory(c *Category) *Category {
	return rk.categories[rk.categoryTree.Parent(c.id)]
}

func (rk *RecordKeeper) categoriesUnder(parent uuid.UUID) []*Category {
	ids := rk.categoryTree.Children(parent)
	cats := make([]*Category, len(ids))
	for i, id := range ids {
		cats[i] = rk.categories[id]
	}
	return cats
}

// WalkCategories visits the category tree depth first, parents before children.
func (rk *RecordKeeper) WalkCategories(visit func(c *Category, depth int)) {
	rk.categoryTree.Walk(uuid.Nil, func(id uuid.UUID, depth int) { visit(rk.categories[id], depth) })
}

// Transactions returns every transaction, newest first.
func (rk *RecordKeeper) Transactions() []Transaction { return slices.Clone(rk.transactions) }

// TransactionIndex returns a copy of the identifier to transaction index.
func (rk *RecordKeeper) TransactionIndex() map[uuid.UUID]Transaction { return maps.Clone(rk.index) }

// Transaction returns the transaction with that identifier.
func (rk *RecordKeeper) Transaction(id uuid.UUID) (Transaction, error) {
	t, ok := rk.index[id]
	if !ok {
		return nil, notFound("transaction", id.String())
	}
	return t, nil
}

// Descriptions returns how many transactions use each non empty description.
func (rk *RecordKeeper) Descriptions() map[string]int { return maps.Clone(rk.descriptions) }

// Currency returns the currency with that code.
func (rk *RecordKeeper) Currency(code string) (*Currency, error) {
	for _, c := range rk.currencies {
		if c.code == code {
			return c, nil
		}
	}
	return nil, notFound("currency", code)
}

// ExchangeRate returns the exchange rate with that "PRIMARY/SECONDARY" code.
func (rk *RecordKeeper) ExchangeRate(code string) (*ExchangeRate, error) {
	for _, r := range rk.rates {
		if r.Code() == code {
			return r, nil
		}
	}
	return nil, notFound("exchange rate", code)
}

// Security returns the security with that name.
func (rk *RecordKeeper) Security(name string) (*Security, error) {
	for _, s := range rk.securities {
		if s.name == name {
			return s, nil
		}
	}
	return nil, notFound("security", name)
}

// SecurityByID returns the security with that identifier.
func (rk *RecordKeeper) SecurityByID(id uuid.UUID) (*Security, error) {
	for _, s := range rk.securities {
		if s.id == id {
			return s, nil
		}
	}
	return nil, notFound("security", id.String())
}

// AccountItem returns the group or account at path.
func (rk *RecordKeeper) AccountItem(path string) (AccountItem, error) {
	for _, item := range rk.items {
		if item.Path() == path {
			return item, nil
		}
	}
	return nil, notFound("account item", path)
}

// AccountGroup returns the group at path.
func (rk *RecordKeeper) AccountGroup(path string) (*AccountGroup, error) {
	return itemAt[*AccountGroup](rk, "account group", path)
}

// Account returns the account at path.
func (rk *RecordKeeper) Account(path string) (Account, error) { return itemAt[Account](rk, "account", path) }

// CashAccount returns the cash account at path.
func (rk *RecordKeeper) CashAccount(path string) (*CashAccount, error) {
	return itemAt[*CashAccount](rk, "cash account", path)
}

// SecurityAccount returns the security account at path.
func (rk *RecordKeeper) SecurityAccount(path string) (*SecurityAccount, error) {
	return itemAt[*SecurityAccount](rk, "security account", path)
}

func itemAt[T AccountItem](rk *RecordKeeper, kind, path string) (T, error) {
	var zero T
	item, err := rk.AccountItem(path)
	if err != nil {
		return zero, notFound(kind, path)
	}
	t, ok := item.(T)
	if !ok {
		return zero, fmt.Errorf("%q is not a %s: %w", path, kind, ErrNotFound)
	}
	return t, nil
}

// Category returns the category at path.
func (rk *RecordKeeper) Category(path string) (*Category, error) {
	if c := rk.findCategory(path); c != nil {
		return c, nil
	}
	return nil, notFound("category", path)
}

func (rk *RecordKeeper) findCategory(path string) *Category {
	for _, c := range rk.categories {
		if c.path == path {
			return c
		}
	}
	return nil
}

// Payee returns the payee with that name.
func (rk *RecordKeeper) Payee(name string) (*Attribute, error) { return rk.attribute(name, Payee) }

// Tag returns the tag with that name.
func (rk *RecordKeeper) Tag(name string) (*Attribute, error) { return rk.attribute(name, Tag) }

func (rk *RecordKeeper) attribute(name string, role AttributeRole) (*Attribute, error) {
	if a := rk.findAttribute(name, role); a != nil {
		return a, nil
	}
	return nil, notFound(strings.ToLower(role.String()), name)
}

func (rk *RecordKeeper) attributes(role AttributeRole) *[]*Attribute {
	if role == Payee {
		return &rk.payees
	}
	return &rk.tags
}

func (rk *RecordKeeper) findAttribute(name string, role AttributeRole) *Attribute {
	for _, a := range *rk.attributes(role) {
		if a.name == name {
			return a
		}
	}
	return nil
}

// refreshPaths recomputes the path of id and of all its descendants.
func refreshPaths(f *forest, id uuid.UUID, lookup func(uuid.UUID) *node) {
	set := func(x uuid.UUID) {
		n := lookup(x)
		parent := ""
		if p := f.Parent(x); p != uuid.Nil {
			parent = lookup(p).path
		}
		n.path = joinPath(parent, n.name)
	}
	set(id)
	f.Walk(id, func(x uuid.UUID, _ int) { set(x) })
}

func (n *node) treeNode() *node { return n }

func (rk *RecordKeeper) accountNode(id uuid.UUID) *node {
	return rk.items[id].treeNode()
}

func (rk *RecordKeeper) categoryNode(id uuid.UUID) *node { return &rk.categories[id].node }

// insertTransaction registers a validated transaction.
func (rk *RecordKeeper) insertTransaction(t Transaction) {
	b := t.base()
	rk.transactions = append(rk.transactions, t)
	rk.index[b.id] = t
	if r, ok := t.(*RefundTransaction); ok {
		r.refunded.refunds = append(r.refunded.refunds, r)
	}
	for _, a := range RelatedAccounts(t) {
		attach(a, t)
		recompute(a)
	}
	rk.countDescription(b.description, 1)
	rk.sortTransactions()
}

// updateTransaction commits a validated change to t, made by apply.
func (rk *RecordKeeper) updateTransaction(t Transaction, apply func()) {
	before := RelatedAccounts(t)
	rk.countDescription(t.Description(), -1)
	apply()
	rk.countDescription(t.Description(), 1)
	after := RelatedAccounts(t)
	for _, a := range before {
		if !slices.Contains(after, a) {
			detach(a, t)
		}
	}
	for _, a := range after {
		if !slices.Contains(before, a) {
			attach(a, t)
		}
	}
	for _, a := range before {
		recompute(a)
	}
	for _, a := range after {
		if !slices.Contains(before, a) {
			recompute(a)
		}
	}
	rk.sortTransactions()
}

// deleteTransaction unregisters t.
func (rk *RecordKeeper) deleteTransaction(t Transaction) {
	if r, ok := t.(*RefundTransaction); ok {
		refunds := r.refunded.refunds
		if i := slices.Index(refunds, r); i >= 0 {
			r.refunded.refunds = slices.Delete(slices.Clone(refunds), i, i+1)
		}
	}
	for _, a := range RelatedAccounts(t) {
		detach(a, t)
		recompute(a)
	}
	if i := slices.Index(rk.transactions, t); i >= 0 {
		rk.transactions = slices.Delete(rk.transactions, i, i+1)
	}
	delete(rk.index, t.ID())
	rk.countDescription(t.Description(), -1)
}

func (rk *RecordKeeper) sortTransactions() {
	if rk.loading {
		return
	}
	slices.SortFunc(rk.transactions, func(a, b Transaction) int { return compareChronological(b, a) })
}

func (rk *RecordKeeper) countDescription(d string, delta int) {
	if d == "" {
		return
	}
	rk.descriptions[d] += delta
	if rk.descriptions[d] <= 0 {
		delete(rk.descriptions, d)
	}
}

// origin carries the identity of an entity being restored, zero values mean new.
type origin struct {
	id      uuid.UUID
	created time.Time
}

// checkOrigin rejects a restored id already used by any entity.
func (rk *RecordKeeper) checkOrigin(o origin) error {
	if o.id == uuid.Nil {
		return nil
	}
	_, item := rk.items[o.id]
	_, category := rk.categories[o.id]
	_, tx := rk.index[o.id]
	security := slices.ContainsFunc(rk.securities, func(s *Security) bool { return s.id == o.id })
	if item || category || tx || security {
		return alreadyExists("id", o.id.String())
	}
	return nil
}

func (rk *RecordKeeper) newTxBase(o origin) (txBase, error) {
	if err := rk.checkOrigin(o); err != nil {
		return txBase{}, err
	}
	if o.id == uuid.Nil {
		o.id = rk.newID()
	}
	if o.created.IsZero() {
		o.created = rk.now()
	}
	return txBase{id: o.id, created: o.created}, nil
}

// register assigns the insertion order of a new transaction.
func (rk *RecordKeeper) register(b *txBase) {
	rk.seq++
	b.seq = rk.seq
}

// lookupTransaction returns the transaction id as a T.
func lookupTransaction[T Transaction](rk *RecordKeeper, id uuid.UUID) (T, error) {
	var zero T
	t, err := rk.Transaction(id)
	if err != nil {
		return zero, err
	}
	v, ok := t.(T)
	if !ok {
		return zero, fmt.Errorf("transaction %s is a %T not a %T: %w", id, t, zero, ErrInvalidOperation)
	}
	return v, nil
}

// staging holds the payees, tags and categories created while resolving an
// operation input. They join the RecordKeeper only when the operation commits.
type staging struct {
	rk         *RecordKeeper
	attributes []*Attribute
	categories []*Category
	parents    []uuid.UUID
}

func (rk *RecordKeeper) stage() *staging { return &staging{rk: rk} }

// attribute returns the attribute name, creating it when missing.
func (st *staging) attribute(name string, role AttributeRole) (*Attribute, error) {
	if a := st.rk.findAttribute(name, role); a != nil {
		return a, nil
	}
	for _, a := range st.attributes {
		if a.name == name && a.role == role {
			return a, nil
		}
	}
	a, err := newAttribute(name, role, st.rk.now())
	if err != nil {
		return nil, err
	}
	st.attributes = append(st.attributes, a)
	return a, nil
}

// existingAttribute returns the attribute name, that must exist.
func (st *staging) existingAttribute(name string, role AttributeRole) (*Attribute, error) {
	return st.rk.attribute(name, role)
}

// category returns the category at path, creating it and its missing ancestors with type t.
func (st *staging) category(path string, t CategoryType) (*Category, error) {
	if c := st.rk.findCategory(path); c != nil {
		return c, nil
	}
	for _, c := range st.categories {
		if c.path == path {
			return c, nil
		}
	}
	parentPath, name := splitPath(path)
	if err := validateName("category", name, NameMaxLength, false); err != nil {
		return nil, err
	}
	parent := uuid.Nil
	if parentPath != "" {
		p, err := st.category(parentPath, t)
		if err != nil {
			return nil, err
		}
		parent, t = p.id, p.typ
	}
	c := &Category{node: node{identity: newIdentity(name, st.rk.now()), id: st.rk.newID(), path: path}, typ: t}
	st.categories = append(st.categories, c)
	st.parents = append(st.parents, parent)
	return c, nil
}

// commit registers the staged entities, parents first.
func (st *staging) commit() {
	for _, a := range st.attributes {
		attrs := st.rk.attributes(a.role)
		*attrs = append(*attrs, a)
		st.rk.log.Debug().Str("name", a.name).Stringer("role", a.role).Msg("attribute created")
	}
	for i, c := range st.categories {
		st.rk.categories[c.id] = c
		st.rk.categoryTree.Insert(c.id, st.parents[i], -1)
		st.rk.log.Debug().Str("path", c.path).Stringer("type", c.typ).Msg("category created")
	}
}

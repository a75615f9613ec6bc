package kapytal

import (
	"cmp"
	"slices"
	"sort"
	"time"

	"github.com/etnz/kapytal/date"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountItem is an item of the account tree: an AccountGroup or an Account.
type AccountItem interface {
	ID() uuid.UUID
	Name() string
	Path() string
	treeNode() *node
}

// Account is a CashAccount or a SecurityAccount.
type Account interface {
	AccountItem
	// Transactions returns the related transactions in ascending timestamp order.
	Transactions() []Transaction
	related() *[]Transaction
}

// AccountGroup is an inner node of the account tree.
type AccountGroup struct {
	node
}

// BalancePoint is the balance of a cash account right after a transaction.
type BalancePoint struct {
	Time    time.Time
	Balance CashAmount
}

// CashAccount holds money in a single currency.
type CashAccount struct {
	node
	currency     *Currency
	initial      CashAmount
	transactions []Transaction
	history      []BalancePoint
	hold         bool // no recompute until released
}

// Currency returns the account currency.
func (a *CashAccount) Currency() *Currency { return a.currency }

// InitialBalance returns the balance before any transaction.
func (a *CashAccount) InitialBalance() CashAmount { return a.initial }

func (a *CashAccount) related() *[]Transaction { return &a.transactions }

// Transactions returns the related transactions in ascending timestamp order.
func (a *CashAccount) Transactions() []Transaction { return chronological(a.transactions) }

// BalanceHistory returns a copy of the balance history.
//
// The first point is the initial balance, one second before the earliest
// transaction. Then there is one point per transaction.
func (a *CashAccount) BalanceHistory() []BalancePoint { return slices.Clone(a.history) }

// Balance returns the latest balance.
func (a *CashAccount) Balance() CashAmount {
	if len(a.history) == 0 {
		return a.initial
	}
	return a.history[len(a.history)-1].Balance
}

// BalanceOn returns the balance at the end of a given day.
func (a *CashAccount) BalanceOn(day date.Date) CashAmount {
	i := sort.Search(len(a.history), func(i int) bool { return date.Of(a.history[i].Time).After(day) })
	if i == 0 {
		return a.initial
	}
	return a.history[i-1].Balance
}

// ConvertedBalance returns the balance in currency c, the latest one when day is nil.
func (a *CashAccount) ConvertedBalance(c *Currency, day *date.Date) (CashAmount, error) {
	b := a.Balance()
	if day != nil {
		b = a.BalanceOn(*day)
	}
	return b.Convert(c, day)
}

// recompute rebuilds the balance history from the initial balance and the related transactions.
func (a *CashAccount) recompute() {
	if a.hold {
		return
	}
	txs := chronological(a.transactions)
	balance := a.initial.value
	seed := a.created
	if len(txs) > 0 {
		seed = txs[0].Timestamp().Add(-time.Second)
	}
	history := make([]BalancePoint, 0, len(txs)+1)
	history = append(history, BalancePoint{Time: seed, Balance: a.initial})
	for _, t := range txs {
		balance = balance.Add(cashContribution(t, a))
		history = append(history, BalancePoint{Time: t.Timestamp(), Balance: NewCashAmount(balance, a.currency)})
	}
	a.history = history
}

// Position is the number of shares held per security right after a transaction.
type Position struct {
	Time   time.Time
	Shares map[*Security]decimal.Decimal
}

// SecurityAccount holds shares of securities.
type SecurityAccount struct {
	node
	transactions []Transaction
	positions    []Position
	hold         bool
}

func (a *SecurityAccount) related() *[]Transaction { return &a.transactions }

// Transactions returns the related transactions in ascending timestamp order.
func (a *SecurityAccount) Transactions() []Transaction { return chronological(a.transactions) }

// Positions returns a copy of the position history.
func (a *SecurityAccount) Positions() []Position { return slices.Clone(a.positions) }

// Holdings returns the latest non zero number of shares per security.
func (a *SecurityAccount) Holdings() map[*Security]decimal.Decimal {
	if len(a.positions) == 0 {
		return map[*Security]decimal.Decimal{}
	}
	return cloneShares(a.positions[len(a.positions)-1].Shares)
}

// HoldingsOn returns the holdings at the end of a given day.
func (a *SecurityAccount) HoldingsOn(day date.Date) map[*Security]decimal.Decimal {
	i := sort.Search(len(a.positions), func(i int) bool { return date.Of(a.positions[i].Time).After(day) })
	if i == 0 {
		return map[*Security]decimal.Decimal{}
	}
	return cloneShares(a.positions[i-1].Shares)
}

// Shares returns the latest number of shares of s.
func (a *SecurityAccount) Shares(s *Security) decimal.Decimal { return a.Holdings()[s] }

// Securities returns the securities currently held, by name.
func (a *SecurityAccount) Securities() []*Security {
	held := a.Holdings()
	secs := make([]*Security, 0, len(held))
	for s := range held {
		secs = append(secs, s)
	}
	slices.SortFunc(secs, func(x, y *Security) int { return cmp.Compare(x.name, y.name) })
	return secs
}

// Balance returns the value of the holdings in currency c, using the latest prices and rates when day is nil.
// A security with no price yet is valued zero.
func (a *SecurityAccount) Balance(c *Currency, day *date.Date) (CashAmount, error) {
	held := a.Holdings()
	if day != nil {
		held = a.HoldingsOn(*day)
	}
	total := c.Zero()
	for s, shares := range held {
		price, ok := s.Price(day)
		if !ok {
			continue
		}
		v, err := price.Mul(shares).Convert(c, day)
		if err != nil {
			return CashAmount{}, err
		}
		total, _ = total.Add(v)
	}
	return total, nil
}

func (a *SecurityAccount) recompute() {
	if a.hold {
		return
	}
	txs := chronological(a.transactions)
	positions := make([]Position, 0, len(txs))
	current := map[*Security]decimal.Decimal{}
	for _, t := range txs {
		s, delta := shareContribution(t, a)
		next := cloneShares(current)
		if v := next[s].Add(delta); v.IsZero() {
			delete(next, s)
		} else {
			next[s] = v
		}
		positions = append(positions, Position{Time: t.Timestamp(), Shares: next})
		current = next
	}
	a.positions = positions
}

func cloneShares(m map[*Security]decimal.Decimal) map[*Security]decimal.Decimal {
	c := make(map[*Security]decimal.Decimal, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// recompute refreshes the derived values of any account.
func recompute(a Account) {
	switch a := a.(type) {
	case *CashAccount:
		a.recompute()
	case *SecurityAccount:
		a.recompute()
	}
}

// hold suspends or resumes the derived values computation of any account.
func hold(a Account, on bool) {
	switch a := a.(type) {
	case *CashAccount:
		a.hold = on
	case *SecurityAccount:
		a.hold = on
	}
}

func attach(a Account, t Transaction) {
	txs := a.related()
	*txs = append(*txs, t)
}

func detach(a Account, t Transaction) {
	txs := a.related()
	if i := slices.Index(*txs, t); i >= 0 {
		*txs = slices.Delete(*txs, i, i+1)
	}
}

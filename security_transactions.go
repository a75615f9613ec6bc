package kapytal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SecurityTransactionType is the kind of a SecurityTransaction.
type SecurityTransactionType int

const (
	Buy SecurityTransactionType = iota
	Sell
	Dividend
)

func (t SecurityTransactionType) String() string {
	switch t {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case Dividend:
		return "DIVIDEND"
	default:
		return fmt.Sprintf("SecurityTransactionType(%d)", int(t))
	}
}

// ParseSecurityTransactionType parses the String form of a type, case insensitive.
func ParseSecurityTransactionType(s string) (SecurityTransactionType, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	case "DIVIDEND":
		return Dividend, nil
	}
	return 0, invalidf("unknown security transaction type %q", s)
}

type securityTransactionState struct {
	header
	typ             SecurityTransactionType
	security        *Security
	shares          decimal.Decimal
	price           CashAmount // per share
	securityAccount *SecurityAccount
	cashAccount     *CashAccount
	tags            tagSet
}

func (s *securityTransactionState) validate() error {
	if err := s.header.validate(); err != nil {
		return err
	}
	if s.typ < Buy || s.typ > Dividend {
		return invalidf("unknown security transaction type %v", s.typ)
	}
	if s.security == nil || s.securityAccount == nil || s.cashAccount == nil {
		return invalidf("security transaction needs a security, a security account and a cash account")
	}
	if err := s.security.validShares(s.shares); err != nil {
		return err
	}
	if s.cashAccount.currency != s.security.currency {
		return fmt.Errorf("cash account %q in %v, security %q in %v: %w", s.cashAccount.path, s.cashAccount.currency, s.security.name, s.security.currency, ErrCurrency)
	}
	if s.price.currency != s.cashAccount.currency {
		return fmt.Errorf("price in %v, cash account %q in %v: %w", s.price.currency, s.cashAccount.path, s.cashAccount.currency, ErrCurrency)
	}
	if s.price.IsNegative() {
		return invalidf("price per share must not be negative, got %v", s.price)
	}
	return s.tags.validate()
}

// SecurityTransaction buys, sells, or collects the dividend of a security.
// The cash side is settled on a cash account in the security currency.
type SecurityTransaction struct {
	txBase
	tagSet
	typ             SecurityTransactionType
	security        *Security
	shares          decimal.Decimal
	price           CashAmount
	securityAccount *SecurityAccount
	cashAccount     *CashAccount
}

// Type returns whether this is a buy, a sell or a dividend.
func (t *SecurityTransaction) Type() SecurityTransactionType { return t.typ }

// Security returns the traded security.
func (t *SecurityTransaction) Security() *Security { return t.security }

// Shares returns the number of shares traded, or held for a dividend.
func (t *SecurityTransaction) Shares() decimal.Decimal { return t.shares }

// PricePerShare returns the price, or the dividend, per share.
func (t *SecurityTransaction) PricePerShare() CashAmount { return t.price }

// Amount returns shares times price.
func (t *SecurityTransaction) Amount() CashAmount { return t.price.Mul(t.shares) }

// SecurityAccount returns the account holding the shares.
func (t *SecurityTransaction) SecurityAccount() *SecurityAccount { return t.securityAccount }

// CashAccount returns the account settling the cash side.
func (t *SecurityTransaction) CashAccount() *CashAccount { return t.cashAccount }

func (t *SecurityTransaction) state() securityTransactionState {
	return securityTransactionState{
		header:          t.currentHeader(),
		typ:             t.typ,
		security:        t.security,
		shares:          t.shares,
		price:           t.price,
		securityAccount: t.securityAccount,
		cashAccount:     t.cashAccount,
		tags:            t.tagSet.Tags(),
	}
}

func (t *SecurityTransaction) apply(s securityTransactionState) {
	t.applyHeader(s.header)
	t.typ = s.typ
	t.security = s.security
	t.shares = s.shares
	t.price = s.price
	t.securityAccount = s.securityAccount
	t.cashAccount = s.cashAccount
	t.tagSet = s.tags
}

type securityTransferState struct {
	header
	security  *Security
	shares    decimal.Decimal
	sender    *SecurityAccount
	recipient *SecurityAccount
	tags      tagSet
}

func (s *securityTransferState) validate() error {
	if err := s.header.validate(); err != nil {
		return err
	}
	if s.security == nil || s.sender == nil || s.recipient == nil {
		return invalidf("security transfer needs a security, a sender and a recipient")
	}
	if s.sender == s.recipient {
		return fmt.Errorf("%q: %w", s.sender.path, ErrTransferSameAccount)
	}
	if err := s.security.validShares(s.shares); err != nil {
		return err
	}
	return s.tags.validate()
}

// SecurityTransfer moves shares between two security accounts.
type SecurityTransfer struct {
	txBase
	tagSet
	security  *Security
	shares    decimal.Decimal
	sender    *SecurityAccount
	recipient *SecurityAccount
}

// Security returns the transferred security.
func (t *SecurityTransfer) Security() *Security { return t.security }

// Shares returns the number of shares transferred.
func (t *SecurityTransfer) Shares() decimal.Decimal { return t.shares }

// Sender returns the account giving the shares.
func (t *SecurityTransfer) Sender() *SecurityAccount { return t.sender }

// Recipient returns the account receiving the shares.
func (t *SecurityTransfer) Recipient() *SecurityAccount { return t.recipient }

func (t *SecurityTransfer) state() securityTransferState {
	return securityTransferState{
		header:    t.currentHeader(),
		security:  t.security,
		shares:    t.shares,
		sender:    t.sender,
		recipient: t.recipient,
		tags:      t.tagSet.Tags(),
	}
}

func (t *SecurityTransfer) apply(s securityTransferState) {
	t.applyHeader(s.header)
	t.security = s.security
	t.shares = s.shares
	t.sender = s.sender
	t.recipient = s.recipient
	t.tagSet = s.tags
}

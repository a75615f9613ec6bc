package kapytal

import "fmt"

// cashTransferState is the complete mutable state of a CashTransfer.
type cashTransferState struct {
	header
	sender    *CashAccount
	recipient *CashAccount
	sent      CashAmount
	received  CashAmount
	tags      tagSet
}

func (s *cashTransferState) validate() error {
	if err := s.header.validate(); err != nil {
		return err
	}
	if s.sender == nil || s.recipient == nil {
		return invalidf("cash transfer needs a sender and a recipient")
	}
	if s.sender == s.recipient {
		return fmt.Errorf("%q: %w", s.sender.path, ErrTransferSameAccount)
	}
	if s.sent.currency != s.sender.currency {
		return fmt.Errorf("amount sent in %v, sender %q in %v: %w", s.sent.currency, s.sender.path, s.sender.currency, ErrCurrency)
	}
	if s.received.currency != s.recipient.currency {
		return fmt.Errorf("amount received in %v, recipient %q in %v: %w", s.received.currency, s.recipient.path, s.recipient.currency, ErrCurrency)
	}
	if !s.sent.IsPositive() || !s.received.IsPositive() {
		return invalidf("transfer amounts must be positive, got %v and %v", s.sent, s.received)
	}
	return s.tags.validate()
}

// CashTransfer moves money between two cash accounts.
//
// The amount received can differ from the amount sent, because of a currency
// change or of fees.
type CashTransfer struct {
	txBase
	tagSet
	sender    *CashAccount
	recipient *CashAccount
	sent      CashAmount
	received  CashAmount
}

// Sender returns the debited account.
func (t *CashTransfer) Sender() *CashAccount { return t.sender }

// Recipient returns the credited account.
func (t *CashTransfer) Recipient() *CashAccount { return t.recipient }

// AmountSent returns the amount debited, in the sender currency.
func (t *CashTransfer) AmountSent() CashAmount { return t.sent }

// AmountReceived returns the amount credited, in the recipient currency.
func (t *CashTransfer) AmountReceived() CashAmount { return t.received }

func (t *CashTransfer) state() cashTransferState {
	return cashTransferState{
		header:    t.currentHeader(),
		sender:    t.sender,
		recipient: t.recipient,
		sent:      t.sent,
		received:  t.received,
		tags:      t.tagSet.Tags(),
	}
}

func (t *CashTransfer) apply(s cashTransferState) {
	t.applyHeader(s.header)
	t.sender = s.sender
	t.recipient = s.recipient
	t.sent = s.sent
	t.received = s.received
	t.tagSet = s.tags
}

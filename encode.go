package kapytal

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/etnz/kapytal/date"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentVersion is the version of the Document layout written by Serialize.
const DocumentVersion = 1

// Datatypes discriminate the records of a Document.
const (
	datatypeRecordKeeper        = "RecordKeeper"
	datatypeCurrency            = "Currency"
	datatypeExchangeRate        = "ExchangeRate"
	datatypeSecurity            = "Security"
	datatypeAccountGroup        = "AccountGroup"
	datatypeCashAccount         = "CashAccount"
	datatypeSecurityAccount     = "SecurityAccount"
	datatypeAttribute           = "Attribute"
	datatypeCategory            = "Category"
	datatypeCashTransaction     = "CashTransaction"
	datatypeRefundTransaction   = "RefundTransaction"
	datatypeCashTransfer        = "CashTransfer"
	datatypeSecurityTransaction = "SecurityTransaction"
	datatypeSecurityTransfer    = "SecurityTransfer"
)

// Document is the persisted form of a RecordKeeper.
//
// Entities reference each other by path (account items, categories), name
// (payees, tags), code (currencies) or identifier (securities, transactions).
// Account items and categories are listed parents first, in tree order.
// Transactions are listed newest first.
type Document struct {
	Datatype      string               `json:"datatype"`
	Version       int                  `json:"version"`
	Currencies    []currencyRecord     `json:"currencies"`
	BaseCurrency  string               `json:"baseCurrency,omitempty"`
	ExchangeRates []exchangeRateRecord `json:"exchangeRates"`
	Securities    []securityRecord     `json:"securities"`
	Accounts      []accountRecord      `json:"accounts"`
	Payees        []attributeRecord    `json:"payees"`
	Tags          []attributeRecord    `json:"tags"`
	Categories    []categoryRecord     `json:"categories"`
	Transactions  []json.RawMessage    `json:"transactions"`
}

type currencyRecord struct {
	Datatype string `json:"datatype"`
	Code     string `json:"code"`
	Places   int    `json:"places"`
}

type datedValue struct {
	Date  date.Date       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

type exchangeRateRecord struct {
	Datatype  string       `json:"datatype"`
	Primary   string       `json:"primary"`
	Secondary string       `json:"secondary"`
	Rates     []datedValue `json:"rates,omitempty"`
}

type securityRecord struct {
	Datatype       string       `json:"datatype"`
	ID             uuid.UUID    `json:"id"`
	Name           string       `json:"name"`
	Symbol         string       `json:"symbol,omitempty"`
	Type           string       `json:"type"`
	Currency       string       `json:"currency"`
	SharesDecimals int          `json:"sharesDecimals"`
	Created        time.Time    `json:"created"`
	Edited         time.Time    `json:"edited"`
	Prices         []datedValue `json:"prices,omitempty"`
}

type accountRecord struct {
	Datatype       string    `json:"datatype"`
	ID             uuid.UUID `json:"id"`
	Path           string    `json:"path"`
	Currency       string    `json:"currency,omitempty"`
	InitialBalance string    `json:"initialBalance,omitempty"`
	Created        time.Time `json:"created"`
	Edited         time.Time `json:"edited"`
}

type attributeRecord struct {
	Datatype string    `json:"datatype"`
	Name     string    `json:"name"`
	Created  time.Time `json:"created"`
	Edited   time.Time `json:"edited"`
}

type categoryRecord struct {
	Datatype string    `json:"datatype"`
	ID       uuid.UUID `json:"id"`
	Path     string    `json:"path"`
	Type     string    `json:"type"`
	Created  time.Time `json:"created"`
	Edited   time.Time `json:"edited"`
}

type categoryAmountRecord struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

type tagAmountRecord struct {
	Tag    string `json:"tag"`
	Amount string `json:"amount"`
}

// transactionHeader is the part of a transaction record common to all datatypes.
type transactionHeader struct {
	Datatype    string    `json:"datatype"`
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Created     time.Time `json:"created"`
}

// Progress receives the completion percentage of a long operation.
type Progress func(percent int)

func (p Progress) report(percent int) {
	if p != nil {
		p(percent)
	}
}

// transactionsProgress reports i out of n transactions in the last third, at
// most every 5%. Completion is left to the caller.
func transactionsProgress(p Progress) func(i, n int) {
	last := 66
	return func(i, n int) {
		if n == 0 {
			return
		}
		percent := 66 + 34*i/n
		if percent/5 != last/5 && percent < 100 {
			last = percent
			p.report(percent)
		}
	}
}

// Serialize returns the Document of the RecordKeeper.
func (rk *RecordKeeper) Serialize(progress Progress) (*Document, error) {
	progress.report(0)
	doc := &Document{Datatype: datatypeRecordKeeper, Version: DocumentVersion}
	for _, c := range rk.currencies {
		doc.Currencies = append(doc.Currencies, currencyRecord{Datatype: datatypeCurrency, Code: c.code, Places: int(c.places)})
	}
	if rk.base != nil {
		doc.BaseCurrency = rk.base.code
	}
	for _, r := range rk.rates {
		rec := exchangeRateRecord{Datatype: datatypeExchangeRate, Primary: r.primary.code, Secondary: r.secondary.code}
		for day, v := range r.Rates() {
			rec.Rates = append(rec.Rates, datedValue{Date: day, Value: v})
		}
		doc.ExchangeRates = append(doc.ExchangeRates, rec)
	}
	progress.report(33)

	for _, s := range rk.securities {
		rec := securityRecord{
			Datatype:       datatypeSecurity,
			ID:             s.id,
			Name:           s.name,
			Symbol:         s.symbol,
			Type:           s.typ,
			Currency:       s.currency.code,
			SharesDecimals: int(s.sharesDecimals),
			Created:        s.created,
			Edited:         s.edited,
		}
		for day, v := range s.prices.Values() {
			rec.Prices = append(rec.Prices, datedValue{Date: day, Value: v})
		}
		doc.Securities = append(doc.Securities, rec)
	}
	rk.WalkAccounts(func(item AccountItem, _ int) {
		n := item.treeNode()
		rec := accountRecord{ID: n.id, Path: n.path, Created: n.created, Edited: n.edited}
		switch item := item.(type) {
		case *AccountGroup:
			rec.Datatype = datatypeAccountGroup
		case *CashAccount:
			rec.Datatype = datatypeCashAccount
			rec.Currency = item.currency.code
			rec.InitialBalance = item.initial.Normalized()
		case *SecurityAccount:
			rec.Datatype = datatypeSecurityAccount
		}
		doc.Accounts = append(doc.Accounts, rec)
	})
	for _, a := range rk.payees {
		doc.Payees = append(doc.Payees, attributeRecord{Datatype: datatypeAttribute, Name: a.name, Created: a.created, Edited: a.edited})
	}
	for _, a := range rk.tags {
		doc.Tags = append(doc.Tags, attributeRecord{Datatype: datatypeAttribute, Name: a.name, Created: a.created, Edited: a.edited})
	}
	rk.WalkCategories(func(c *Category, _ int) {
		doc.Categories = append(doc.Categories, categoryRecord{
			Datatype: datatypeCategory,
			ID:       c.id,
			Path:     c.path,
			Type:     c.typ.String(),
			Created:  c.created,
			Edited:   c.edited,
		})
	})
	progress.report(66)

	step := transactionsProgress(progress)
	for i, t := range rk.transactions {
		raw, err := encodeTransaction(t)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID(), err)
		}
		doc.Transactions = append(doc.Transactions, raw)
		step(i+1, len(rk.transactions))
	}
	progress.report(100)
	return doc, nil
}

func encodeCategoryAmounts(splits []CategoryAmount) []categoryAmountRecord {
	recs := make([]categoryAmountRecord, len(splits))
	for i, s := range splits {
		recs[i] = categoryAmountRecord{Category: s.Category.path, Amount: s.Amount.Normalized()}
	}
	return recs
}

func encodeTagAmounts(tags []TagAmount) []tagAmountRecord {
	recs := make([]tagAmountRecord, len(tags))
	for i, t := range tags {
		recs[i] = tagAmountRecord{Tag: t.Tag.name, Amount: t.Amount.Normalized()}
	}
	return recs
}

func tagNames(tags []*Attribute) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.name
	}
	return names
}

// encodeTransaction writes the record of t: its header first then its own fields.
func encodeTransaction(t Transaction) (json.RawMessage, error) {
	var w jsonObjectWriter
	b := t.base()
	h := transactionHeader{ID: b.id, Description: b.description, Timestamp: b.timestamp, Created: b.created}
	switch t := t.(type) {
	case *CashTransaction:
		h.Datatype = datatypeCashTransaction
		w.EmbedValue(h).
			Append("type", t.typ.String()).
			Append("account", t.account.path).
			Append("payee", t.payee.name).
			Append("categories", encodeCategoryAmounts(t.categories)).
			Optional("tags", encodeTagAmounts(t.tags))
	case *RefundTransaction:
		h.Datatype = datatypeRefundTransaction
		w.EmbedValue(h).
			Append("refunded", t.refunded.id).
			Append("account", t.account.path).
			Append("payee", t.payee.name).
			Append("categories", encodeCategoryAmounts(t.categories)).
			Optional("tags", encodeTagAmounts(t.tags))
	case *CashTransfer:
		h.Datatype = datatypeCashTransfer
		w.EmbedValue(h).
			Append("sender", t.sender.path).
			Append("recipient", t.recipient.path).
			Append("amountSent", t.sent.Normalized()).
			Append("amountReceived", t.received.Normalized()).
			Optional("tags", tagNames(t.tagSet))
	case *SecurityTransaction:
		h.Datatype = datatypeSecurityTransaction
		w.EmbedValue(h).
			Append("type", t.typ.String()).
			Append("security", t.security.id).
			Append("shares", t.shares).
			Append("pricePerShare", t.price.Normalized()).
			Append("securityAccount", t.securityAccount.path).
			Append("cashAccount", t.cashAccount.path).
			Optional("tags", tagNames(t.tagSet))
	case *SecurityTransfer:
		h.Datatype = datatypeSecurityTransfer
		w.EmbedValue(h).
			Append("security", t.security.id).
			Append("shares", t.shares).
			Append("sender", t.sender.path).
			Append("recipient", t.recipient.path).
			Optional("tags", tagNames(t.tagSet))
	default:
		return nil, fmt.Errorf("unknown transaction type %T", t)
	}
	return w.MarshalJSON()
}

// Encode writes the Document of the RecordKeeper as indented JSON.
func (rk *RecordKeeper) Encode(w io.Writer, progress Progress) error {
	doc, err := rk.Serialize(progress)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Decode reads a Document and rebuilds its RecordKeeper.
func Decode(r io.Reader, progress Progress, opts ...Option) (*RecordKeeper, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("cannot decode ledger: %w", err)
	}
	return Deserialize(&doc, progress, opts...)
}

// Deserialize rebuilds the RecordKeeper of a Document.
//
// Entities are restored in dependency order. Balances are computed once, after
// every transaction is loaded.
func Deserialize(doc *Document, progress Progress, opts ...Option) (*RecordKeeper, error) {
	if doc.Datatype != datatypeRecordKeeper {
		return nil, invalidf("document datatype %q, want %q", doc.Datatype, datatypeRecordKeeper)
	}
	if doc.Version > DocumentVersion {
		return nil, invalidf("document version %d is newer than %d", doc.Version, DocumentVersion)
	}
	progress.report(0)
	rk := New(opts...)
	rk.loading = true

	for _, rec := range doc.Currencies {
		if _, err := rk.AddCurrency(rec.Code, rec.Places); err != nil {
			return nil, err
		}
	}
	if doc.BaseCurrency != "" {
		if err := rk.SetBaseCurrency(doc.BaseCurrency); err != nil {
			return nil, err
		}
	}
	for _, rec := range doc.ExchangeRates {
		r, err := rk.AddExchangeRate(rec.Primary, rec.Secondary)
		if err != nil {
			return nil, err
		}
		for _, p := range rec.Rates {
			if err := r.SetRate(p.Date, p.Value); err != nil {
				return nil, fmt.Errorf("exchange rate %s: %w", r.Code(), err)
			}
		}
	}
	progress.report(33)

	if err := rk.loadEntities(doc); err != nil {
		return nil, err
	}
	progress.report(66)

	if err := rk.loadTransactions(doc.Transactions, transactionsProgress(progress)); err != nil {
		return nil, err
	}

	rk.loading = false
	for _, a := range rk.accounts {
		hold(a, false)
		recompute(a)
	}
	rk.sortTransactions()
	rk.log.Info().
		Int("accounts", len(rk.accounts)).
		Int("transactions", len(rk.transactions)).
		Msg("ledger loaded")
	progress.report(100)
	return rk, nil
}

// loadEntities restores securities, account items, payees, tags and categories.
func (rk *RecordKeeper) loadEntities(doc *Document) error {
	for _, rec := range doc.Securities {
		s, err := rk.addSecurity(SecurityInput{
			Name:           rec.Name,
			Symbol:         rec.Symbol,
			Type:           rec.Type,
			Currency:       rec.Currency,
			SharesDecimals: rec.SharesDecimals,
		}, origin{id: rec.ID, created: rec.Created})
		if err != nil {
			return err
		}
		s.edited = rec.Edited
		for _, p := range rec.Prices {
			if err := s.SetPrice(p.Date, NewCashAmount(p.Value, s.currency)); err != nil {
				return err
			}
		}
	}

	for _, rec := range doc.Accounts {
		o := origin{id: rec.ID, created: rec.Created}
		var item AccountItem
		var err error
		switch rec.Datatype {
		case datatypeAccountGroup:
			item, err = rk.addAccountGroup(rec.Path, -1, o)
		case datatypeCashAccount:
			var initial CashAmount
			if initial, err = parseNormalized(rec.InitialBalance, rk.Currency); err != nil {
				return fmt.Errorf("account %q: %w", rec.Path, err)
			}
			item, err = rk.addCashAccount(rec.Path, rec.Currency, initial.value, -1, o)
		case datatypeSecurityAccount:
			item, err = rk.addSecurityAccount(rec.Path, -1, o)
		default:
			return invalidf("unexpected account datatype %q", rec.Datatype)
		}
		if err != nil {
			return err
		}
		item.treeNode().edited = rec.Edited
	}

	if err := rk.loadAttributes(doc.Payees, Payee); err != nil {
		return err
	}
	if err := rk.loadAttributes(doc.Tags, Tag); err != nil {
		return err
	}

	for _, rec := range doc.Categories {
		t, err := ParseCategoryType(rec.Type)
		if err != nil {
			return fmt.Errorf("category %q: %w", rec.Path, err)
		}
		c, err := rk.addCategory(rec.Path, t, -1, origin{id: rec.ID, created: rec.Created})
		if err != nil {
			return err
		}
		c.edited = rec.Edited
	}
	return nil
}

func (rk *RecordKeeper) loadAttributes(recs []attributeRecord, role AttributeRole) error {
	for _, rec := range recs {
		a, err := rk.addAttribute(rec.Name, role, rec.Created)
		if err != nil {
			return err
		}
		a.edited = rec.Edited
	}
	return nil
}

// loadTransactions restores the transactions, refunds after every other one.
// Insertion order is then renumbered so that equal timestamps keep the document order.
func (rk *RecordKeeper) loadTransactions(raws []json.RawMessage, step func(i, n int)) error {
	n := len(raws)
	position := make(map[uuid.UUID]int, n)
	var refunds []json.RawMessage
	done := 0
	for i, raw := range raws {
		var h transactionHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return fmt.Errorf("cannot identify transaction %q: %w", raw, err)
		}
		position[h.ID] = i
		if h.Datatype == datatypeRefundTransaction {
			refunds = append(refunds, raw)
			continue
		}
		if err := rk.decodeTransaction(h, raw); err != nil {
			return fmt.Errorf("transaction %s: %w", h.ID, err)
		}
		done++
		step(done, n)
	}
	for _, raw := range refunds {
		var h transactionHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return err
		}
		if err := rk.decodeTransaction(h, raw); err != nil {
			return fmt.Errorf("transaction %s: %w", h.ID, err)
		}
		done++
		step(done, n)
	}
	for _, t := range rk.transactions {
		t.base().seq = uint64(n - position[t.ID()])
	}
	rk.seq = uint64(n)
	return nil
}

func (rk *RecordKeeper) decodeCategorySplits(recs []categoryAmountRecord) ([]CategorySplit, error) {
	splits := make([]CategorySplit, len(recs))
	for i, rec := range recs {
		a, err := parseNormalized(rec.Amount, rk.Currency)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", rec.Category, err)
		}
		splits[i] = CategorySplit{Path: rec.Category, Amount: a}
	}
	return splits, nil
}

func (rk *RecordKeeper) decodeTagSplits(recs []tagAmountRecord) ([]TagSplit, error) {
	splits := make([]TagSplit, len(recs))
	for i, rec := range recs {
		a, err := parseNormalized(rec.Amount, rk.Currency)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", rec.Tag, err)
		}
		splits[i] = TagSplit{Name: rec.Tag, Amount: a}
	}
	return splits, nil
}

// decodeTransaction restores the transaction of raw, identified by h.
func (rk *RecordKeeper) decodeTransaction(h transactionHeader, raw json.RawMessage) error {
	o := origin{id: h.ID, created: h.Created}
	switch h.Datatype {
	case datatypeCashTransaction, datatypeRefundTransaction:
		var temp struct {
			Type       string                 `json:"type"`
			Refunded   uuid.UUID              `json:"refunded"`
			Account    string                 `json:"account"`
			Payee      string                 `json:"payee"`
			Categories []categoryAmountRecord `json:"categories"`
			Tags       []tagAmountRecord      `json:"tags"`
		}
		if err := json.Unmarshal(raw, &temp); err != nil {
			return err
		}
		categories, err := rk.decodeCategorySplits(temp.Categories)
		if err != nil {
			return err
		}
		tags, err := rk.decodeTagSplits(temp.Tags)
		if err != nil {
			return err
		}
		if h.Datatype == datatypeRefundTransaction {
			_, err = rk.addRefund(RefundInput{
				Description: h.Description,
				Timestamp:   h.Timestamp,
				Refunded:    temp.Refunded,
				Account:     temp.Account,
				Payee:       temp.Payee,
				Categories:  categories,
				Tags:        tags,
			}, o)
			return err
		}
		typ, err := ParseCashTransactionType(temp.Type)
		if err != nil {
			return err
		}
		_, err = rk.addCashTransaction(CashTransactionInput{
			Description: h.Description,
			Timestamp:   h.Timestamp,
			Type:        typ,
			Account:     temp.Account,
			Payee:       temp.Payee,
			Categories:  categories,
			Tags:        tags,
		}, o)
		return err

	case datatypeCashTransfer:
		var temp struct {
			Sender         string   `json:"sender"`
			Recipient      string   `json:"recipient"`
			AmountSent     string   `json:"amountSent"`
			AmountReceived string   `json:"amountReceived"`
			Tags           []string `json:"tags"`
		}
		if err := json.Unmarshal(raw, &temp); err != nil {
			return err
		}
		sent, err := parseNormalized(temp.AmountSent, rk.Currency)
		if err != nil {
			return err
		}
		received, err := parseNormalized(temp.AmountReceived, rk.Currency)
		if err != nil {
			return err
		}
		_, err = rk.addCashTransfer(CashTransferInput{
			Description:    h.Description,
			Timestamp:      h.Timestamp,
			Sender:         temp.Sender,
			Recipient:      temp.Recipient,
			AmountSent:     sent,
			AmountReceived: received,
			Tags:           temp.Tags,
		}, o)
		return err

	case datatypeSecurityTransaction:
		var temp struct {
			Type            string          `json:"type"`
			Security        uuid.UUID       `json:"security"`
			Shares          decimal.Decimal `json:"shares"`
			PricePerShare   string          `json:"pricePerShare"`
			SecurityAccount string          `json:"securityAccount"`
			CashAccount     string          `json:"cashAccount"`
			Tags            []string        `json:"tags"`
		}
		if err := json.Unmarshal(raw, &temp); err != nil {
			return err
		}
		typ, err := ParseSecurityTransactionType(temp.Type)
		if err != nil {
			return err
		}
		s, err := rk.SecurityByID(temp.Security)
		if err != nil {
			return err
		}
		price, err := parseNormalized(temp.PricePerShare, rk.Currency)
		if err != nil {
			return err
		}
		_, err = rk.addSecurityTransaction(SecurityTransactionInput{
			Description:     h.Description,
			Timestamp:       h.Timestamp,
			Type:            typ,
			Security:        s.name,
			Shares:          temp.Shares,
			PricePerShare:   price,
			SecurityAccount: temp.SecurityAccount,
			CashAccount:     temp.CashAccount,
			Tags:            temp.Tags,
		}, o)
		return err

	case datatypeSecurityTransfer:
		var temp struct {
			Security  uuid.UUID       `json:"security"`
			Shares    decimal.Decimal `json:"shares"`
			Sender    string          `json:"sender"`
			Recipient string          `json:"recipient"`
			Tags      []string        `json:"tags"`
		}
		if err := json.Unmarshal(raw, &temp); err != nil {
			return err
		}
		s, err := rk.SecurityByID(temp.Security)
		if err != nil {
			return err
		}
		_, err = rk.addSecurityTransfer(SecurityTransferInput{
			Description: h.Description,
			Timestamp:   h.Timestamp,
			Security:    s.name,
			Shares:      temp.Shares,
			Sender:      temp.Sender,
			Recipient:   temp.Recipient,
			Tags:        temp.Tags,
		}, o)
		return err
	}
	return invalidf("unknown transaction datatype %q", h.Datatype)
}

package renderer

import (
	"github.com/etnz/kapytal"
)

// TimeFormat is the layout of transaction timestamps in every view.
const TimeFormat = "2006-01-02 15:04"

// HistoryRow is a transaction and the balance right after it.
type HistoryRow struct {
	Time        string
	Kind        string
	Description string
	Details     string
	Amount      string
	Balance     string
}

// History is the balance history of a cash account.
type History struct {
	Account  string
	Currency string
	Initial  string
	Balance  string
	Rows     []HistoryRow
}

// NewHistory builds the balance history of a.
func NewHistory(a *kapytal.CashAccount) *History {
	h := &History{
		Account:  a.Path(),
		Currency: a.Currency().Code(),
		Initial:  a.InitialBalance().String(),
		Balance:  a.Balance().String(),
	}
	points := a.BalanceHistory()
	for i, t := range a.Transactions() {
		// points[0] is the initial balance.
		before, after := points[i].Balance, points[i+1].Balance
		amount, _ := after.Sub(before)
		h.Rows = append(h.Rows, HistoryRow{
			Time:        t.Timestamp().Format(TimeFormat),
			Kind:        kind(t),
			Description: cell(t.Description()),
			Details:     cell(details(t)),
			Amount:      amount.String(),
			Balance:     after.String(),
		})
	}
	return h
}

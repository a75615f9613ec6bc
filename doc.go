// Package kapytal keeps the records of personal finances: cash and security
// accounts, multi-currency transactions, categories, payees and tags, and the
// balances derived from them.
//
// The RecordKeeper is the single entry point. It owns every entity and is the
// only way to change them:
//   - Money: currencies, exchange rates and amounts that never mix currencies
//     unless converted through the exchange rates graph.
//   - Classification: payees, tags and a typed forest of categories.
//   - Accounts: an ordered forest of groups, cash accounts holding a balance
//     history, and security accounts holding share positions.
//   - Transactions: incomes and expenses, refunds of expenses, cash transfers,
//     security trades and transfers.
//   - Persistence: a self-describing JSON document, written and read with
//     progress reporting.
//
// Every mutation validates the complete resulting state before changing
// anything, so that a failed operation leaves the RecordKeeper unchanged.
//
// This package is the foundation of the `kpt` command-line tool.
package kapytal

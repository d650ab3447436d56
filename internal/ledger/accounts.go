// Package ledger implements the two saga participants. Each owns a
// bounded resource behind a single coarse lock, so guarded debits,
// compensations and the background replenishment are all linearized
// against the whole book.
package ledger

import (
	"fmt"
	"sync"

	"github.com/govalues/decimal"

	"github.com/appdevgbb/event-driven-architecture/internal/message"
)

// Defaults mirroring the demo topology: five known accounts, each opened
// at its credit limit.
const DefaultAccountCount = 5

// DefaultCreditLimit is 5000.00.
var DefaultCreditLimit = decimal.MustNew(500000, 2)

// AccountGuard decides whether a proposed balance may be committed. It
// runs under the book lock. A nil guard always commits, which is what
// makes compensations unconditional.
type AccountGuard func(next decimal.Decimal) bool

// NonNegativeBalance is the debit guard: the balance may not go below
// zero.
func NonNegativeBalance(next decimal.Decimal) bool {
	return !next.IsNeg()
}

// Accounts is the account ledger participant's state: one balance per
// known account number.
type Accounts struct {
	mu       sync.Mutex
	limit    decimal.Decimal
	balances map[int]decimal.Decimal
}

// NewAccounts opens accounts numbered 1..count at the given credit limit.
func NewAccounts(count int, limit decimal.Decimal) *Accounts {
	balances := make(map[int]decimal.Decimal, count)
	for n := 1; n <= count; n++ {
		balances[n] = limit
	}
	return &Accounts{limit: limit, balances: balances}
}

// Adjust applies amount to one account if the guard admits the resulting
// balance. Unknown account numbers report INVALID_ACCOUNT_NUMBER and a
// rejected guard reports INSUFFICIENT_CREDIT; neither mutates anything.
func (a *Accounts) Adjust(accountNumber int, amount decimal.Decimal, guard AccountGuard) (message.AccountStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	balance, ok := a.balances[accountNumber]
	if !ok {
		return message.InvalidAccountNumber, nil
	}

	next, err := balance.Add(amount)
	if err != nil {
		return "", fmt.Errorf("adjust account %d by %s: %w", accountNumber, amount, err)
	}
	if guard != nil && !guard(next) {
		return message.InsufficientCredit, nil
	}

	a.balances[accountNumber] = next
	return message.AccountSuccess, nil
}

// Balance returns one account's current balance.
func (a *Accounts) Balance(accountNumber int) (decimal.Decimal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.balances[accountNumber]
	return b, ok
}

// Balances returns a snapshot of all balances.
func (a *Accounts) Balances() map[int]decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	snapshot := make(map[int]decimal.Decimal, len(a.balances))
	for n, b := range a.balances {
		snapshot[n] = b
	}
	return snapshot
}

// Limit returns the credit limit accounts were opened at.
func (a *Accounts) Limit() decimal.Decimal {
	return a.limit
}

package ledger

import (
	"context"
	"sync"

	lockuperrors "github.com/mirkobrombin/go-lockup/v1/errors"
)

// Ledger abstracts the fungible balance ledger the lockup core moves tokens
// through. Balances reported by BalanceOf are transferable balances; tokens
// held in custody do not appear in their holder's balance.
type Ledger interface {
	// BalanceOf returns the transferable balance of an identity. Unknown
	// identities have a zero balance.
	BalanceOf(ctx context.Context, id string) (uint64, error)
	// Transfer moves amount from one identity to another. It fails with
	// ErrInsufficientBalance when amount exceeds the balance of from, in
	// which case no balance changes.
	Transfer(ctx context.Context, from, to string, amount uint64) error
	// TotalSupply returns the sum of all balances.
	TotalSupply(ctx context.Context) (uint64, error)
}

// Minter is implemented by ledgers that can create new tokens.
type Minter interface {
	Mint(ctx context.Context, to string, amount uint64) error
}

// InMemory is a Ledger implementation backed by a map. It is the default
// collaborator for standalone use and tests.
type InMemory struct {
	mu       sync.RWMutex
	balances map[string]uint64
	supply   uint64
}

// NewInMemory returns a new empty in-memory ledger.
func NewInMemory() *InMemory {
	return &InMemory{balances: make(map[string]uint64)}
}

// BalanceOf implements Ledger.BalanceOf.
func (l *InMemory) BalanceOf(ctx context.Context, id string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	b := l.balances[id]
	l.mu.RUnlock()
	return b, nil
}

// Transfer implements Ledger.Transfer.
func (l *InMemory) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return lockuperrors.ErrInsufficientBalance
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// TotalSupply implements Ledger.TotalSupply.
func (l *InMemory) TotalSupply(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	s := l.supply
	l.mu.RUnlock()
	return s, nil
}

// Mint credits amount to an identity and grows the total supply. It is meant
// for deployment setup, not part of the lockup contract surface.
func (l *InMemory) Mint(ctx context.Context, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	l.balances[to] += amount
	l.supply += amount
	l.mu.Unlock()
	return nil
}

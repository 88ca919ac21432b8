package ledger

import (
	"context"
	"errors"
	"testing"

	lockuperrors "github.com/mirkobrombin/go-lockup/v1/errors"
)

func TestInMemoryMintAndTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewInMemory()

	if err := l.Mint(ctx, "alice", 500); err != nil {
		t.Fatalf("mint: %v", err)
	}
	supply, err := l.TotalSupply(ctx)
	if err != nil {
		t.Fatalf("total supply: %v", err)
	}
	if supply != 500 {
		t.Fatalf("expected supply 500, got %d", supply)
	}

	if err := l.Transfer(ctx, "alice", "bob", 200); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	a, _ := l.BalanceOf(ctx, "alice")
	b, _ := l.BalanceOf(ctx, "bob")
	if a != 300 || b != 200 {
		t.Fatalf("unexpected balances: alice=%d bob=%d", a, b)
	}
}

func TestInMemoryInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l := NewInMemory()
	if err := l.Mint(ctx, "alice", 100); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(ctx, "alice", "bob", 101); !errors.Is(err, lockuperrors.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	// a failed transfer changes nothing
	a, _ := l.BalanceOf(ctx, "alice")
	b, _ := l.BalanceOf(ctx, "bob")
	if a != 100 || b != 0 {
		t.Fatalf("unexpected balances after failed transfer: alice=%d bob=%d", a, b)
	}
}

func TestInMemoryUnknownIdentityReadsZero(t *testing.T) {
	ctx := context.Background()
	l := NewInMemory()
	b, err := l.BalanceOf(ctx, "nobody")
	if err != nil {
		t.Fatalf("balance of: %v", err)
	}
	if b != 0 {
		t.Fatalf("expected 0, got %d", b)
	}
	if err := l.Transfer(ctx, "nobody", "bob", 1); !errors.Is(err, lockuperrors.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

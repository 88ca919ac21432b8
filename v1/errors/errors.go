package errors

import "errors"

var (
	// ErrAlreadyLocked is returned when a live lock already exists for the
	// (holder, reason) pair.
	ErrAlreadyLocked = errors.New("lockup: tokens already locked")
	// ErrZeroAmount is returned when a lock is requested for zero tokens.
	ErrZeroAmount = errors.New("lockup: amount cannot be zero")
	// ErrNotLocked is returned when extending or increasing a lock that does
	// not exist or was already claimed.
	ErrNotLocked = errors.New("lockup: no tokens locked")
	// ErrInsufficientBalance is returned by a ledger when a transfer exceeds
	// the transferable balance of the debited identity.
	ErrInsufficientBalance = errors.New("lockup: insufficient balance")

	ErrTimeout          = errors.New("lockup: timeout")
	ErrConnectionClosed = errors.New("lockup: connection closed")
)

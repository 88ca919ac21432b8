package lockup

import (
	"context"
	"time"
)

// Queries never fail on absent keys: a holder or reason with no lock record
// reads as zero, mirroring how the balance ledger treats unknown identities.

// TokensLocked returns the amount held under an unclaimed lock for the pair,
// regardless of expiry. Claimed or absent locks read as zero.
func (l *Lockup) TokensLocked(holder, reason string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.liveAmount(holder, reason)
}

// TokensLockedAt returns the amount that was, or will be, locked for the
// pair as of t, assuming no claim occurs: the stored amount while the lock's
// validity lies strictly after t. The claimed flag is ignored, which makes
// the query usable for both historical and forward-looking views.
func (l *Lockup) TokensLockedAt(holder, reason string, t time.Time) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec := l.record(holder, reason)
	if rec == nil || !rec.ValidUntil.After(t) {
		return 0
	}
	return rec.Amount
}

// TokensUnlockable returns the amount claimable right now for the pair: the
// stored amount when the lock has expired and was not claimed yet.
func (l *Lockup) TokensUnlockable(holder, reason string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.unlockable(holder, reason, l.clock())
}

func (l *Lockup) unlockable(holder, reason string, now time.Time) uint64 {
	rec := l.record(holder, reason)
	if rec == nil || rec.Claimed || rec.ValidUntil.After(now) {
		return 0
	}
	return rec.Amount
}

// UnlockableTokens returns the total amount claimable right now across all
// of the holder's reasons.
func (l *Lockup) UnlockableTokens(holder string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	now := l.clock()
	var total uint64
	seen := make(map[string]struct{})
	for _, reason := range l.reasons[holder] {
		if _, ok := seen[reason]; ok {
			continue
		}
		seen[reason] = struct{}{}
		total += l.unlockable(holder, reason, now)
	}
	return total
}

// TotalBalanceOf returns the holder's transferable balance plus every
// unclaimed locked amount.
func (l *Lockup) TotalBalanceOf(ctx context.Context, holder string) (uint64, error) {
	balance, err := l.ledger.BalanceOf(ctx, holder)
	if err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, reason := range l.reasons[holder] {
		if _, ok := seen[reason]; ok {
			continue
		}
		seen[reason] = struct{}{}
		balance += l.liveAmount(holder, reason)
	}
	return balance, nil
}

// Reasons returns the holder's reason registry in first-use order.
func (l *Lockup) Reasons(holder string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.reasons[holder]...)
}

// LockInfo returns the stored lock record for the pair, claimed or not.
// The boolean return indicates whether a record exists.
func (l *Lockup) LockInfo(holder, reason string) (Lock, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec := l.record(holder, reason)
	if rec == nil {
		return Lock{}, false
	}
	return *rec, true
}

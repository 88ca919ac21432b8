// Package lockup implements reason-keyed token locking on top of a fungible
// balance ledger. Holders lock part of their balance under a named reason
// for a fixed duration; locked tokens move into a custodial identity and
// stop being transferable while still counting toward the holder's total
// balance. Locks can be extended and increased, and expired locks are
// released back to the holder in a single idempotent claim.
package lockup

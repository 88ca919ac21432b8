package lockup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	lockuperrors "github.com/mirkobrombin/go-lockup/v1/errors"
	"github.com/mirkobrombin/go-lockup/v1/eventbus"
	"github.com/mirkobrombin/go-lockup/v1/ledger"
	"github.com/mirkobrombin/go-lockup/v1/metrics"
	"github.com/mirkobrombin/go-lockup/v1/store"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-lockup/v1/lockup")

// DefaultCustodian is the identity that holds tokens while they are locked.
const DefaultCustodian = "lockup:custody"

// Lock is one locked-token commitment. Claimed records are retained for
// history; only the Claimed flag gates balance-affecting queries, the
// amount is never reset.
type Lock struct {
	Amount     uint64    `json:"amount"`
	ValidUntil time.Time `json:"valid_until"`
	Claimed    bool      `json:"claimed"`
}

// HolderRecord is the snapshot of one holder's locks and reason registry,
// as persisted by the optional snapshot store.
type HolderRecord struct {
	Locks   map[string]Lock `json:"locks"`
	Reasons []string        `json:"reasons"`
}

// Lockup is the lock ledger. It keeps per-holder lock records keyed by
// reason and an append-only registry of reasons ever used, and moves tokens
// between holders and the custodial identity through the balance ledger.
//
// All mutations are serialized by an internal mutex; the balance ledger
// transfer is the atomicity anchor of every mutation — if it fails, no
// record, registry entry or event is committed.
type Lockup struct {
	ledger    ledger.Ledger
	bus       eventbus.Bus
	snapshots store.Store[HolderRecord]
	custodian string
	clock     func() time.Time

	traceEnabled bool

	mu      sync.RWMutex
	locks   map[string]map[string]*Lock
	reasons map[string][]string
	seq     atomic.Uint64
}

// Option configures a Lockup.
type Option func(*Lockup)

// WithClock overrides the time source used for lock validity.
func WithClock(clock func() time.Time) Option {
	return func(l *Lockup) {
		l.clock = clock
	}
}

// WithCustodian overrides the custodial identity.
func WithCustodian(id string) Option {
	return func(l *Lockup) {
		l.custodian = id
	}
}

// WithSnapshots enables write-through persistence of holder records. Use
// Warmup to restore state from the store on start.
func WithSnapshots(s store.Store[HolderRecord]) Option {
	return func(l *Lockup) {
		l.snapshots = s
	}
}

// WithTracing enables OpenTelemetry spans on mutating operations.
func WithTracing() Option {
	return func(l *Lockup) {
		l.traceEnabled = true
	}
}

// New creates a new Lockup over the given balance ledger. A nil bus falls
// back to an in-memory bus whose journal retains the full event history.
func New(lg ledger.Ledger, bus eventbus.Bus, opts ...Option) *Lockup {
	if bus == nil {
		bus = eventbus.NewInMemoryBus()
	}
	l := &Lockup{
		ledger:    lg,
		bus:       bus,
		custodian: DefaultCustodian,
		clock:     time.Now,
		locks:     make(map[string]map[string]*Lock),
		reasons:   make(map[string][]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Bus returns the event bus the lockup emits on.
func (l *Lockup) Bus() eventbus.Bus {
	return l.bus
}

// Custodian returns the custodial identity.
func (l *Lockup) Custodian() string {
	return l.custodian
}

func (l *Lockup) startSpan(ctx context.Context, name string, holder, reason string, amount uint64) (context.Context, trace.Span) {
	if !l.traceEnabled {
		return ctx, nil
	}
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("lockup.holder", holder),
		attribute.String("lockup.reason", reason),
		attribute.Int64("lockup.amount", int64(amount)),
	)
	return ctx, span
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// record returns the stored lock for a key, or nil. Callers hold l.mu.
func (l *Lockup) record(holder, reason string) *Lock {
	return l.locks[holder][reason]
}

// liveAmount is TokensLocked without locking. Callers hold l.mu.
func (l *Lockup) liveAmount(holder, reason string) uint64 {
	rec := l.record(holder, reason)
	if rec == nil || rec.Claimed {
		return 0
	}
	return rec.Amount
}

// commit stores a fresh lock record, appending the reason to the registry
// when no record exists yet or the stored amount is zero. Callers hold l.mu.
func (l *Lockup) commit(holder, reason string, rec Lock) {
	if l.locks[holder] == nil {
		l.locks[holder] = make(map[string]*Lock)
	}
	if prev := l.locks[holder][reason]; prev == nil || prev.Amount == 0 {
		l.reasons[holder] = append(l.reasons[holder], reason)
	}
	l.locks[holder][reason] = &rec
}

// persist writes the holder's record through the snapshot store, if one is
// configured. Callers hold l.mu.
func (l *Lockup) persist(ctx context.Context, holder string) error {
	if l.snapshots == nil {
		return nil
	}
	rec := HolderRecord{
		Locks:   make(map[string]Lock, len(l.locks[holder])),
		Reasons: append([]string(nil), l.reasons[holder]...),
	}
	for r, lk := range l.locks[holder] {
		rec.Locks[r] = *lk
	}
	return l.snapshots.Set(ctx, holder, rec)
}

func (l *Lockup) emit(ctx context.Context, typ eventbus.Type, holder, reason string, amount uint64, validUntil time.Time) error {
	ev := eventbus.Event{
		ID:         uuid.NewString(),
		Seq:        l.seq.Add(1),
		Type:       typ,
		Holder:     holder,
		Reason:     reason,
		Amount:     amount,
		ValidUntil: validUntil,
		EmittedAt:  l.clock(),
	}
	return l.bus.Publish(ctx, ev)
}

// Lock locks amount tokens of holder under reason until duration from now.
// It fails with ErrAlreadyLocked when an unclaimed lock exists for the pair,
// ErrZeroAmount when amount is zero, and propagates ErrInsufficientBalance
// from the ledger when the holder's transferable balance is too small.
func (l *Lockup) Lock(ctx context.Context, holder, reason string, amount uint64, duration time.Duration) error {
	ctx, span := l.startSpan(ctx, "Lockup.Lock", holder, reason, amount)
	defer endSpan(span)
	return l.createLock(ctx, holder, holder, reason, amount, duration)
}

// TransferWithLock sends amount tokens from the caller to a recipient,
// pre-locked under reason. The caller's balance is debited while the lock is
// recorded against the recipient. Failure conditions match Lock, with the
// insufficient-balance check applying to the caller.
func (l *Lockup) TransferWithLock(ctx context.Context, from, to, reason string, amount uint64, duration time.Duration) error {
	ctx, span := l.startSpan(ctx, "Lockup.TransferWithLock", to, reason, amount)
	defer endSpan(span)
	return l.createLock(ctx, from, to, reason, amount, duration)
}

func (l *Lockup) createLock(ctx context.Context, payer, holder, reason string, amount uint64, duration time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.liveAmount(holder, reason) > 0 {
		return lockuperrors.ErrAlreadyLocked
	}
	if amount == 0 {
		return lockuperrors.ErrZeroAmount
	}
	if err := l.ledger.Transfer(ctx, payer, l.custodian, amount); err != nil {
		return err
	}
	validUntil := l.clock().Add(duration)
	l.commit(holder, reason, Lock{Amount: amount, ValidUntil: validUntil})
	metrics.LockCounter.Inc()
	metrics.TokensLockedCounter.Add(float64(amount))
	metrics.ActiveLocksGauge.Inc()
	if err := l.persist(ctx, holder); err != nil {
		return err
	}
	return l.emit(ctx, eventbus.TypeLocked, holder, reason, amount, validUntil)
}

// ExtendLock pushes the validity of the caller's lock under reason further
// into the future by duration. The extension is additive to the current
// validity, not to now. It fails with ErrNotLocked when no live lock exists.
func (l *Lockup) ExtendLock(ctx context.Context, holder, reason string, duration time.Duration) error {
	ctx, span := l.startSpan(ctx, "Lockup.ExtendLock", holder, reason, 0)
	defer endSpan(span)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.liveAmount(holder, reason) == 0 {
		return lockuperrors.ErrNotLocked
	}
	rec := l.record(holder, reason)
	rec.ValidUntil = rec.ValidUntil.Add(duration)
	metrics.ExtendCounter.Inc()
	if err := l.persist(ctx, holder); err != nil {
		return err
	}
	return l.emit(ctx, eventbus.TypeLocked, holder, reason, rec.Amount, rec.ValidUntil)
}

// IncreaseLockAmount locks amount additional tokens under an existing lock.
// It fails with ErrNotLocked when no live lock exists and propagates
// ErrInsufficientBalance from the ledger.
func (l *Lockup) IncreaseLockAmount(ctx context.Context, holder, reason string, amount uint64) error {
	ctx, span := l.startSpan(ctx, "Lockup.IncreaseLockAmount", holder, reason, amount)
	defer endSpan(span)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.liveAmount(holder, reason) == 0 {
		return lockuperrors.ErrNotLocked
	}
	if err := l.ledger.Transfer(ctx, holder, l.custodian, amount); err != nil {
		return err
	}
	rec := l.record(holder, reason)
	rec.Amount += amount
	metrics.IncreaseCounter.Inc()
	metrics.TokensLockedCounter.Add(float64(amount))
	if err := l.persist(ctx, holder); err != nil {
		return err
	}
	return l.emit(ctx, eventbus.TypeLocked, holder, reason, rec.Amount, rec.ValidUntil)
}

// Unlock releases every expired, unclaimed lock of holder back to their
// transferable balance in one custody payout and returns the released total.
// Anyone may trigger the release for any holder; the tokens always go to
// holder. Calling it again with nothing to release returns zero and is a
// no-op.
func (l *Lockup) Unlock(ctx context.Context, holder string) (uint64, error) {
	ctx, span := l.startSpan(ctx, "Lockup.Unlock", holder, "", 0)
	defer endSpan(span)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	var total uint64
	var claimable []string
	seen := make(map[string]struct{})
	for _, reason := range l.reasons[holder] {
		if _, ok := seen[reason]; ok {
			continue
		}
		seen[reason] = struct{}{}
		rec := l.record(holder, reason)
		if rec == nil || rec.Claimed || rec.ValidUntil.After(now) {
			continue
		}
		total += rec.Amount
		claimable = append(claimable, reason)
	}
	if total == 0 {
		return 0, nil
	}
	if err := l.ledger.Transfer(ctx, l.custodian, holder, total); err != nil {
		return 0, err
	}
	for _, reason := range claimable {
		rec := l.record(holder, reason)
		rec.Claimed = true
		metrics.ActiveLocksGauge.Dec()
		if err := l.emit(ctx, eventbus.TypeUnlocked, holder, reason, rec.Amount, time.Time{}); err != nil {
			return total, err
		}
	}
	metrics.UnlockCounter.Inc()
	metrics.TokensReleasedCounter.Add(float64(total))
	if err := l.persist(ctx, holder); err != nil {
		return total, err
	}
	return total, nil
}

// Warmup restores holder records from the snapshot store. It is meant to be
// called once on start, before the lockup serves operations.
func (l *Lockup) Warmup(ctx context.Context) error {
	if l.snapshots == nil {
		return nil
	}
	holders, err := l.snapshots.Keys(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, holder := range holders {
		rec, ok, err := l.snapshots.Get(ctx, holder)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		locks := make(map[string]*Lock, len(rec.Locks))
		for r, lk := range rec.Locks {
			cp := lk
			locks[r] = &cp
			if !cp.Claimed {
				metrics.ActiveLocksGauge.Inc()
			}
		}
		l.locks[holder] = locks
		l.reasons[holder] = append([]string(nil), rec.Reasons...)
	}
	return nil
}

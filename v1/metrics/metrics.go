package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LockCounter tracks the number of locks created.
	LockCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lockup_locks_total",
		Help: "Total number of locks created",
	})
	// UnlockCounter tracks the number of unlock scans that released tokens.
	UnlockCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lockup_unlocks_total",
		Help: "Total number of unlock operations that released tokens",
	})
	// ExtendCounter tracks the number of lock extensions.
	ExtendCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lockup_extends_total",
		Help: "Total number of lock extensions",
	})
	// IncreaseCounter tracks the number of lock amount increases.
	IncreaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lockup_increases_total",
		Help: "Total number of lock amount increases",
	})
	// TokensLockedCounter tracks tokens moved into custody.
	TokensLockedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lockup_tokens_locked_total",
		Help: "Total tokens moved into custody",
	})
	// TokensReleasedCounter tracks tokens released from custody.
	TokensReleasedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lockup_tokens_released_total",
		Help: "Total tokens released from custody",
	})
	// ActiveLocksGauge reports the number of live, unclaimed locks.
	ActiveLocksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lockup_active_locks",
		Help: "Current number of unclaimed locks",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers lockup core metrics on the provided registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		LockCounter,
		UnlockCounter,
		ExtendCounter,
		IncreaseCounter,
		TokensLockedCounter,
		TokensReleasedCounter,
		ActiveLocksGauge,
	)
}

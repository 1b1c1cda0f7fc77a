package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "solugarde_client"

// Refresh outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDiscarded = "discarded"
	OutcomeSkipped   = "no_refresh_token"
)

// Metrics counts session lifecycle events. A nil *Metrics is valid and records nothing.
type Metrics struct {
	refreshes     *prometheus.CounterVec
	retries       prometheus.Counter
	forcedLogouts prometheus.Counter
}

// New registers the client counters on reg. Collectors already registered by another
// client in the same process are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Token refresh exchanges by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Requests resent after a successful refresh.",
		}),
		forcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_logouts_total",
			Help:      "Sessions ended because the API rejected them.",
		}),
	}

	var err error
	if m.refreshes, err = register(reg, m.refreshes); err != nil {
		return nil, err
	}
	if m.retries, err = register(reg, m.retries); err != nil {
		return nil, err
	}
	if m.forcedLogouts, err = register(reg, m.forcedLogouts); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RequestRetried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) ForcedLogout() {
	if m == nil {
		return
	}
	m.forcedLogouts.Inc()
}

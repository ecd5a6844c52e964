package smsgate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the gateway. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	transactions   *prometheus.CounterVec
	txDuration     prometheus.Histogram
	bridgeRejected prometheus.Counter
	notifications  prometheus.Counter
	dropped        prometheus.Counter
	triggers       prometheus.Counter
	denied         prometheus.Counter
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smsgate_modem_transactions_total",
			Help: "Modem transactions by terminal state",
		}, []string{"state"}),
		txDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smsgate_modem_transaction_duration_seconds",
			Help:    "Duration of modem transactions in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		}),
		bridgeRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smsgate_bridge_rejected_total",
			Help: "Command submissions rejected because the bridge was busy",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smsgate_notifications_total",
			Help: "Inbound message notifications decoded",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smsgate_notifications_dropped_total",
			Help: "Notification headers dropped as malformed",
		}),
		triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smsgate_relay_triggers_total",
			Help: "Relay pulses fired by authorized messages",
		}),
		denied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smsgate_auth_denied_total",
			Help: "Notifications that failed authorization",
		}),
	}
}

// Register adds all collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.transactions,
		m.txDuration,
		m.bridgeRejected,
		m.notifications,
		m.dropped,
		m.triggers,
		m.denied,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observeTransaction(state TxState, d time.Duration) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(state.String()).Inc()
	m.txDuration.Observe(d.Seconds())
}

func (m *Metrics) bridgeRejectedInc() {
	if m != nil {
		m.bridgeRejected.Inc()
	}
}

func (m *Metrics) notificationInc() {
	if m != nil {
		m.notifications.Inc()
	}
}

func (m *Metrics) droppedInc() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) authResult(triggered bool) {
	if m == nil {
		return
	}
	if triggered {
		m.triggers.Inc()
	} else {
		m.denied.Inc()
	}
}

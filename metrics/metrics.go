package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks lifecycle, settlement and notification outcomes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Transitions          *prometheus.CounterVec
	SettlementOutcomes   *prometheus.CounterVec
	SellerRecordMissing  prometheus.Counter
	NotificationsDropped *prometheus.CounterVec
	RelayMessages        *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "title_transitions_total",
			Help: "Ownership record status transitions by source and target status",
		}, []string{"from", "to"}),

		SettlementOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "title_settlement_outcomes_total",
			Help: "Transaction settlement operations by operation and result",
		}, []string{"operation", "result"}), // result: "ok", "conflict", "denied", "error"

		SellerRecordMissing: factory.NewCounter(prometheus.CounterOpts{
			Name: "title_settlement_seller_record_missing_total",
			Help: "Confirmations that completed without locating the seller-side record",
		}),

		NotificationsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "title_notifications_dropped_total",
			Help: "Notification intents that could not be written to the outbox",
		}, []string{"type"}),

		RelayMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "title_relay_messages_total",
			Help: "Outbox messages processed by the relay by result",
		}, []string{"result"}), // result: "delivered", "retry", "dead"
	}
}

// IncTransition records one status change.
func (m *Metrics) IncTransition(from, to string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to).Inc()
	}
}

// IncSettlement records the result of a settlement operation.
func (m *Metrics) IncSettlement(operation, result string) {
	if m != nil {
		m.SettlementOutcomes.WithLabelValues(operation, result).Inc()
	}
}

// IncSellerRecordMissing records a confirmation that skipped the seller side.
func (m *Metrics) IncSellerRecordMissing() {
	if m != nil {
		m.SellerRecordMissing.Inc()
	}
}

// IncNotificationDropped records a swallowed outbox write.
func (m *Metrics) IncNotificationDropped(notificationType string) {
	if m != nil {
		m.NotificationsDropped.WithLabelValues(notificationType).Inc()
	}
}

// IncRelay records one relay outcome.
func (m *Metrics) IncRelay(result string) {
	if m != nil {
		m.RelayMessages.WithLabelValues(result).Inc()
	}
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the chat flow.
type ConversationMetrics struct {
	messagesTotal *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
	llmFailures   prometheus.Counter
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studio",
			Subsystem: "conversation",
			Name:      "messages_total",
			Help:      "Total chat messages processed",
		}, []string{"action"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "studio",
			Subsystem: "conversation",
			Name:      "llm_latency_seconds",
			Help:      "Latency of LLM completions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		llmFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "studio",
			Subsystem: "conversation",
			Name:      "llm_failures_total",
			Help:      "LLM completions that exhausted all retries",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.llmLatency, m.llmFailures)
	return m
}

func (m *ConversationMetrics) ObserveMessage(action string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(action).Inc()
}

func (m *ConversationMetrics) ObserveLLMLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *ConversationMetrics) ObserveLLMFailure() {
	if m == nil {
		return
	}
	m.llmFailures.Inc()
}

// BookingMetrics exposes counters for the booking flow.
type BookingMetrics struct {
	transitionsTotal *prometheus.CounterVec
	deliveriesTotal  *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studio",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Booking state machine transitions",
		}, []string{"to"}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studio",
			Subsystem: "booking",
			Name:      "deliveries_total",
			Help:      "Booking notification deliveries",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.deliveriesTotal)
	return m
}

func (m *BookingMetrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(to).Inc()
}

func (m *BookingMetrics) ObserveDelivery(status string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(status).Inc()
}

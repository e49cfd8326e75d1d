package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "concierge"

// MessagingMetrics exposes counters/histograms for channel webhooks and outbound delivery.
type MessagingMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound channel webhooks",
		}, []string{"channel", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound replies by channel",
		}, []string{"channel", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook acknowledgement",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(channel, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *MessagingMetrics) ObserveOutbound(channel, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(channel).Observe(seconds)
}

// ConversationMetrics tracks orchestrated guest messages.
type ConversationMetrics struct {
	processedTotal  *prometheus.CounterVec
	responseSeconds *prometheus.HistogramVec
	leadsTotal      *prometheus.CounterVec
	handoffsTotal   *prometheus.CounterVec
	rejectedTotal   *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		processedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "messages_processed_total",
			Help:      "Guest messages processed by channel and resulting mode",
		}, []string{"channel", "mode"}),
		responseSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "response_seconds",
			Help:      "End-to-end time to produce a reply",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"channel"}),
		leadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "leads_created_total",
			Help:      "Leads captured by priority",
		}, []string{"priority"}),
		handoffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "handoffs_total",
			Help:      "Conversations escalated to staff",
		}, []string{"channel"}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "rejected_inputs_total",
			Help:      "Guest messages rejected by the sanitizer",
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.processedTotal, m.responseSeconds, m.leadsTotal, m.handoffsTotal, m.rejectedTotal)
	return m
}

func (m *ConversationMetrics) ObserveProcessed(channel, mode string, seconds float64) {
	if m == nil {
		return
	}
	m.processedTotal.WithLabelValues(channel, mode).Inc()
	m.responseSeconds.WithLabelValues(channel).Observe(seconds)
}

func (m *ConversationMetrics) ObserveLead(priority string) {
	if m == nil {
		return
	}
	m.leadsTotal.WithLabelValues(priority).Inc()
}

func (m *ConversationMetrics) ObserveHandoff(channel string) {
	if m == nil {
		return
	}
	m.handoffsTotal.WithLabelValues(channel).Inc()
}

func (m *ConversationMetrics) ObserveRejected(channel string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(channel).Inc()
}

// ProviderMetrics tracks language model provider calls and circuit state.
type ProviderMetrics struct {
	callsTotal       *prometheus.CounterVec
	callLatency      *prometheus.HistogramVec
	templateTotal    *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	retrievalResults *prometheus.CounterVec
}

func NewProviderMetrics(reg prometheus.Registerer) *ProviderMetrics {
	m := &ProviderMetrics{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "provider_calls_total",
			Help:      "Provider calls by outcome (success, error, empty, skipped)",
		}, []string{"provider", "outcome"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "provider_latency_seconds",
			Help:      "Latency of provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		templateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "fallback_template_total",
			Help:      "Replies served from the static template after every provider failed",
		}, []string{"chain"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit state per service (0 closed, 1 half-open, 2 open)",
		}, []string{"service"}),
		retrievalResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "knowledge",
			Name:      "searches_total",
			Help:      "Knowledge searches by the stage that answered",
		}, []string{"stage"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsTotal, m.callLatency, m.templateTotal, m.breakerState, m.retrievalResults)
	return m
}

func (m *ProviderMetrics) ObserveCall(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(provider, outcome).Inc()
	if outcome != "skipped" {
		m.callLatency.WithLabelValues(provider).Observe(seconds)
	}
}

func (m *ProviderMetrics) ObserveTemplate(chain string) {
	if m == nil {
		return
	}
	m.templateTotal.WithLabelValues(chain).Inc()
}

// SetBreakerState records the numeric circuit state for a service.
func (m *ProviderMetrics) SetBreakerState(service string, value float64) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(service).Set(value)
}

func (m *ProviderMetrics) ObserveRetrieval(stage string) {
	if m == nil {
		return
	}
	m.retrievalResults.WithLabelValues(stage).Inc()
}

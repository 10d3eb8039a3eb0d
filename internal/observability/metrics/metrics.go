package metrics

import "github.com/prometheus/client_golang/prometheus"

// Follow-up lifecycle events.
const (
	FollowUpScheduled = "scheduled"
	FollowUpCancelled = "cancelled"
	FollowUpDeferred  = "deferred"
	FollowUpAborted   = "aborted"
	FollowUpFired     = "fired"
	FollowUpRestored  = "restored"
)

// LeadMetrics exposes counters/histograms for the lead conversation flow.
type LeadMetrics struct {
	inboundTotal        *prometheus.CounterVec
	outboundTotal       *prometheus.CounterVec
	classificationTotal *prometheus.CounterVec
	followUpTotal       *prometheus.CounterVec
	webhookTotal        *prometheus.CounterVec
	webhookLatency      *prometheus.HistogramVec
}

func NewLeadMetrics(reg prometheus.Registerer) *LeadMetrics {
	m := &LeadMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "conversation",
			Name:      "inbound_total",
			Help:      "Inbound lead messages by outcome",
		}, []string{"outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound gateway deliveries by source and status",
		}, []string{"source", "status"}),
		classificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "conversation",
			Name:      "classification_total",
			Help:      "Classifier decisions by rule",
		}, []string{"rule"}),
		followUpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "followup",
			Name:      "events_total",
			Help:      "Follow-up timer lifecycle events",
		}, []string{"event"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "webhooks",
			Name:      "parsed_total",
			Help:      "Inbound webhooks by provider and matching extractor",
		}, []string{"provider", "strategy"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadflow",
			Subsystem: "webhooks",
			Name:      "latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.classificationTotal, m.followUpTotal, m.webhookTotal, m.webhookLatency)
	return m
}

func (m *LeadMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

func (m *LeadMetrics) ObserveOutbound(source, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(source, status).Inc()
}

func (m *LeadMetrics) ObserveClassification(rule string) {
	if m == nil {
		return
	}
	m.classificationTotal.WithLabelValues(rule).Inc()
}

func (m *LeadMetrics) ObserveFollowUp(event string) {
	if m == nil {
		return
	}
	m.followUpTotal.WithLabelValues(event).Inc()
}

func (m *LeadMetrics) ObserveWebhook(provider, strategy string) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "none"
	}
	m.webhookTotal.WithLabelValues(provider, strategy).Inc()
}

func (m *LeadMetrics) ObserveWebhookLatency(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(provider).Observe(seconds)
}

package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentRequestTotal counts signed payment requests built for checkout.
	PaymentRequestTotal *prometheus.CounterVec
	// PaymentReconcileTotal counts reconciliation decisions by inbound channel.
	PaymentReconcileTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// PaymentReturnTotal counts browser return outcomes.
	PaymentReturnTotal *prometheus.CounterVec
	// PaymentEnquiryTotal counts status enquiry outcomes.
	PaymentEnquiryTotal *prometheus.CounterVec
	// PaymentEnquiryLatency records status enquiry round trips in milliseconds.
	PaymentEnquiryLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentRequestTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_request_total",
			Help:      "Count of payment request builds by outcome.",
		}, []string{"environment", "result"}))
		PaymentReconcileTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reconcile_total",
			Help:      "Count of reconciliation decisions by channel.",
		}, []string{"channel", "decision"}))
		PaymentWebhookTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"}))
		PaymentReturnTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_return_total",
			Help:      "Count of customer returns from the hosted checkout by outcome.",
		}, []string{"result"}))
		PaymentEnquiryTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_enquiry_total",
			Help:      "Count of status enquiries by outcome.",
		}, []string{"result"}))
		PaymentEnquiryLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_enquiry_duration_ms",
			Help:      "Latency for status enquiry calls in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"result"}))
	})
}

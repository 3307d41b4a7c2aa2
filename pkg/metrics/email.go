package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EmailMetrics records outcomes of the notification dispatcher.
type EmailMetrics struct {
	sent     *prometheus.CounterVec
	failed   *prometheus.CounterVec
	dead     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewEmailMetrics registers the email dispatch metrics on the provided
// registerer. A nil registerer yields a no-op instance.
func NewEmailMetrics(reg prometheus.Registerer) *EmailMetrics {
	if reg == nil {
		return &EmailMetrics{}
	}
	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "email_sent_total",
		Help: "Emails delivered to the provider.",
	}, []string{"template"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "email_failed_total",
		Help: "Email delivery attempts that failed and will retry.",
	}, []string{"template"})
	dead := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "email_dead_total",
		Help: "Emails dead-lettered after exhausting retries.",
	}, []string{"template"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "email_dispatch_duration_seconds",
		Help:    "Duration of email dispatch attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"template"})
	reg.MustRegister(sent, failed, dead, duration)
	return &EmailMetrics{
		sent:     sent,
		failed:   failed,
		dead:     dead,
		duration: duration,
	}
}

// IncSent increments the delivered counter for the template.
func (e *EmailMetrics) IncSent(template string) {
	if e == nil || e.sent == nil {
		return
	}
	e.sent.WithLabelValues(normalizeLabel(template)).Inc()
}

// IncFailed increments the retryable-failure counter for the template.
func (e *EmailMetrics) IncFailed(template string) {
	if e == nil || e.failed == nil {
		return
	}
	e.failed.WithLabelValues(normalizeLabel(template)).Inc()
}

// IncDead increments the dead-letter counter for the template.
func (e *EmailMetrics) IncDead(template string) {
	if e == nil || e.dead == nil {
		return
	}
	e.dead.WithLabelValues(normalizeLabel(template)).Inc()
}

// ObserveDispatch records the duration of one dispatch attempt.
func (e *EmailMetrics) ObserveDispatch(template string, duration time.Duration) {
	if e == nil || e.duration == nil {
		return
	}
	e.duration.WithLabelValues(normalizeLabel(template)).Observe(duration.Seconds())
}

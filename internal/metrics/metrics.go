package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total failed emails",
		},
	)

	BatchesRun = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_batches_total",
			Help: "Total bulk dispatch runs",
		},
	)

	OpensRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_opens_total",
			Help: "Total tracking beacon hits recorded",
		},
	)
)

func Init() {
	prometheus.MustRegister(EmailsSent)
	prometheus.MustRegister(EmailFailures)
	prometheus.MustRegister(BatchesRun)
	prometheus.MustRegister(OpensRecorded)
}

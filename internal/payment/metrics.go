package payment

import "github.com/prometheus/client_golang/prometheus"

var (
	chargesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinpulse_charges_created_total",
			Help: "Coinbase charges opened, by sponsorship type.",
		},
		[]string{"type"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinpulse_webhook_events_total",
			Help: "Webhook events received, by event type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	sponsorshipsActivated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinpulse_sponsorships_activated_total",
			Help: "Listings activated by confirmed payments, by sponsorship type.",
		},
		[]string{"type"},
	)

	paymentsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinpulse_payments_expired_total",
			Help: "Pending payments marked expired by the sweeper.",
		},
	)
)

func init() {
	prometheus.MustRegister(chargesCreated, webhookEvents, sponsorshipsActivated, paymentsExpired)
}

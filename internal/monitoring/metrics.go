package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pepe_credits_total",
			Help: "Balance credits acknowledged by the store",
		},
		[]string{"source"},
	)

	CreditedUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pepe_credited_units_total",
			Help: "Currency units credited",
		},
		[]string{"source"},
	)

	CommissionPayouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pepe_commission_payouts_total",
		Help: "Referral commissions paid to referrers",
	})

	CommissionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pepe_commission_failures_total",
		Help: "Referral commission payouts that failed",
	})

	CommissionDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pepe_commission_dropped_total",
		Help: "Commission tasks dropped because the queue was full or closed",
	})

	QuotaExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pepe_quota_exceeded_total",
		Help: "Ad rewards rejected by the daily quota",
	})

	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pepe_withdrawals_total",
			Help: "Withdrawal submissions by result",
		},
		[]string{"result"},
	)
)

package efw

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fwsnd_efw_transactions",
		Help: "The total number of transactions by result",
	}, []string{"result"})

	transactionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fwsnd_efw_transaction_time",
		Help:    "Time from request transmission to response delivery",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	requestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fwsnd_efw_requests_sent",
		Help: "The total number of request frames transmitted",
	})

	inflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fwsnd_efw_transactions_inflight",
		Help: "The number of transactions waiting for a response",
	})

	responsesUnmatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fwsnd_efw_responses_unmatched",
		Help: "Responses that matched no waiting transaction",
	})

	responsesLate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fwsnd_efw_responses_late",
		Help: "Responses that arrived after their transaction timed out",
	})

	framesMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fwsnd_efw_frames_malformed",
		Help: "Response buffers rejected by the frame decoder",
	})
)

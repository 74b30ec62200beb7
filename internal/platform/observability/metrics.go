package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backup_events_received_total",
		Help: "The total number of inbound media events by media kind",
	}, []string{"kind"})

	EventsIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backup_events_ignored_total",
		Help: "The total number of events dropped because the source chat is ignored",
	})

	ForwardOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backup_forward_outcomes_total",
		Help: "Terminal forwarding outcomes by result",
	}, []string{"outcome"})

	ForwardRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backup_forward_retries_total",
		Help: "The total number of retried forwarding attempts",
	})

	ForwardDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backup_forward_duration_seconds",
		Help:    "Duration of handling one media event end to end",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	TopicsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backup_topics_created_total",
		Help: "The total number of forum topics created",
	})

	TopicsMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backup_topics_matched_total",
		Help: "The total number of sources bound to an existing topic by similarity",
	})

	TopicsKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backup_topics_known",
		Help: "Current number of topics in the registry",
	})

	ActiveChatWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backup_active_chat_workers",
		Help: "Number of per-chat workers currently running",
	})

	RateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backup_rate_limit_hits_total",
		Help: "The total number of rate limit responses from the transport",
	})
)

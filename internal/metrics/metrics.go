package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "commentary_http_requests_total", Help: "Total HTTP requests"},
		[]string{"route", "method", "status"},
	)
	ReqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commentary_http_request_duration_seconds",
			Help:    "Request duration seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	// ThreadTransitions counts successful lifecycle changes by transition
	// (close, reopen, clear, delete).
	ThreadTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "commentary_thread_transitions_total", Help: "Thread lifecycle transitions"},
		[]string{"transition"},
	)
	SubscriptionChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "commentary_subscription_changes_total", Help: "Subscription changes"},
		[]string{"change"},
	)
	CommentsPosted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "commentary_comments_posted_total", Help: "Comments posted"},
	)
	NotificationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "commentary_notification_failures_total", Help: "Notification deliveries that failed"},
		[]string{"sink"},
	)
	// SearchQueries counts comment searches by the backend that answered
	// (meili, pgfts) or "error" when neither did.
	SearchQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "commentary_search_queries_total", Help: "Comment search queries"},
		[]string{"backend"},
	)
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		RequestsTotal,
		ReqDuration,
		ThreadTransitions,
		SubscriptionChanges,
		CommentsPosted,
		NotificationFailures,
		SearchQueries,
	)
}

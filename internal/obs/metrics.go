package obs

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomeNoMatch       = "no_match"
	OutcomeCoercionError = "coercion_error"
	OutcomeUnfurled      = "unfurled"
	OutcomeOmitted       = "omitted"
)

var (
	UnfurlLinksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "issue_unfurl_links_total", Help: "Links seen in link_shared events by outcome"},
		[]string{"type", "outcome"},
	)
	SlackRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "issue_unfurl_slack_requests_total", Help: "Slack Web API calls by method and result"},
		[]string{"method", "result"},
	)
	RegressionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "issue_unfurl_regressions_total", Help: "Regression occurrences ingested"},
		[]string{"result"},
	)
	EventsPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "issue_unfurl_events_purged_total", Help: "Events removed by the retention job"},
	)
)

func init() {
	prometheus.MustRegister(UnfurlLinksTotal, SlackRequestsTotal, RegressionsTotal, EventsPurgedTotal)
}

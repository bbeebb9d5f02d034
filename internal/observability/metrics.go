package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	challengesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_challenges_total",
			Help: "Challenge lifecycle outcomes",
		},
		[]string{"outcome"},
	)

	bansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_bans_total",
			Help: "Users banned, by reason",
		},
		[]string{"reason"},
	)

	spamDeletionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spam_deletions_total",
			Help: "First messages deleted as spam",
		},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(challengesTotal, bansTotal, spamDeletionsTotal)
	})
}

// RecordChallenge counts a lifecycle outcome: issued, passed, failed, expired.
func RecordChallenge(outcome string) {
	challengesTotal.WithLabelValues(outcome).Inc()
}

// RecordBan counts a ban by reason: blacklist, reputation, flood, dispatch,
// challenge, expiry, spam.
func RecordBan(reason string) {
	bansTotal.WithLabelValues(reason).Inc()
}

func RecordSpamDeletion() {
	spamDeletionsTotal.Inc()
}

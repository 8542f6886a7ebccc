package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"askia-quiz-service/internal/domain"
)

const namespace = "askia"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	SessionsStarted  *prometheus.CounterVec
	SessionsFinished *prometheus.CounterVec
	Answers          *prometheus.CounterVec
	FocusTokensSpent prometheus.Counter
	LeagueScores     prometheus.Counter
	PoolLoadDuration *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quiz",
				Name:      "sessions_started_total",
				Help:      "Quiz sessions that reached the first question",
			},
			[]string{"mode"},
		),
		SessionsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quiz",
				Name:      "sessions_finished_total",
				Help:      "Quiz sessions that reached a terminal state",
			},
			[]string{"mode", "lifecycle"},
		),
		Answers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quiz",
				Name:      "answers_total",
				Help:      "Evaluated answers by question kind and result",
			},
			[]string{"kind", "result"},
		),
		FocusTokensSpent: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quiz",
				Name:      "focus_tokens_spent_total",
				Help:      "Focus tokens consumed",
			},
		),
		LeagueScores: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "league",
				Name:      "scores_recorded_total",
				Help:      "League scores appended to the ledger",
			},
		),
		PoolLoadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "quiz",
				Name:      "pool_load_duration_seconds",
				Help:      "Time spent assembling a question pool",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) SessionStarted(mode domain.Mode) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) SessionFinished(mode domain.Mode, lifecycle domain.Lifecycle) {
	if m == nil {
		return
	}
	m.SessionsFinished.WithLabelValues(mode.String(), lifecycle.String()).Inc()
}

// Answer records one evaluated answer; timedOut wins over correct.
func (m *Metrics) Answer(kind domain.QuestionKind, correct, timedOut bool) {
	if m == nil {
		return
	}
	result := "incorrect"
	switch {
	case timedOut:
		result = "timeout"
	case correct:
		result = "correct"
	}
	m.Answers.WithLabelValues(kind.String(), result).Inc()
}

func (m *Metrics) FocusTokenSpent() {
	if m == nil {
		return
	}
	m.FocusTokensSpent.Inc()
}

func (m *Metrics) LeagueScoreRecorded() {
	if m == nil {
		return
	}
	m.LeagueScores.Inc()
}

func (m *Metrics) PoolLoaded(start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.PoolLoadDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

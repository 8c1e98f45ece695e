// Package metrics exposes Prometheus instruments for the triage pipeline.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshsymonds/mailsort/internal/classify"
)

// Pipeline metrics
var (
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsort_messages_processed_total",
			Help: "Messages taken through the rule chain, by ingestion phase and outcome",
		},
		[]string{"phase", "outcome"},
	)

	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsort_actions_total",
			Help: "Actions handed to the executor, by kind, destination label and status",
		},
		[]string{"kind", "destination", "status"},
	)

	LabelsMissing = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsort_labels_missing_total",
			Help: "Actions skipped because a label did not resolve",
		},
		[]string{"label"},
	)

	PollTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsort_poll_ticks_total",
			Help: "Event polls, by result",
		},
		[]string{"result"},
	)
)

// Classifier metrics
var (
	ClassifierInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsort_classifier_invocations_total",
			Help: "Classifier calls, by classifier name and result",
		},
		[]string{"classifier", "result"},
	)

	ClassifierDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailsort_classifier_duration_seconds",
			Help:    "Classifier latency in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"classifier"},
	)
)

// Classifications records classifier calls; pass it to classify.NewObservedSet.
var Classifications classify.Observer = classify.ObserverFunc(observeClassification)

func observeClassification(name string, verdict bool, err error, elapsed time.Duration) {
	ClassifierInvocations.WithLabelValues(name, ClassifierResult(verdict, err)).Inc()
	ClassifierDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// ClassifierResult maps one classifier outcome to its metric label.
func ClassifierResult(verdict bool, err error) string {
	switch {
	case errors.Is(err, classify.ErrContract):
		return "contract_error"
	case err != nil:
		return "error"
	case verdict:
		return "true"
	default:
		return "false"
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

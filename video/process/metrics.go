package process

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	offersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xray",
		Name:      "classifier_offers_total",
		Help:      "Frames offered to the classifier gate, by outcome.",
	}, []string{"outcome"})

	predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xray",
		Name:      "predictions_total",
		Help:      "Predictions appended, split by whether the fallback label was used.",
	}, []string{"fallback"})

	normalizeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xray",
		Name:      "normalize_failures_total",
		Help:      "Frames skipped for classification because normalization failed.",
	})

	inferenceSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "xray",
		Name:      "inference_seconds",
		Help:      "Time spent normalizing and classifying one frame.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})
)

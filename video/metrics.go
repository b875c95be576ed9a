package video

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xray",
		Name:      "frames_captured_total",
		Help:      "Frames delivered by the capture source.",
	})

	framesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xray",
		Name:      "frames_recorded_total",
		Help:      "Frames appended to the movie encoder.",
	})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xray",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped before reaching the encoder, by reason.",
	}, []string{"reason"})

	recordingState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "xray",
		Name:      "recording_state",
		Help:      "State of the current recording: 0 unknown, 1 writing, 2 finished, 3 failed.",
	})

	handoffsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xray",
		Name:      "handoffs_total",
		Help:      "Recordings stopped, by outcome.",
	}, []string{"outcome"})
)

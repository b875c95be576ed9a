package process

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"xray/video/source"
)

const DefaultFallbackLabel = "Unknown"

// Prediction is one classified frame. Time is the capture offset from the
// start of the recording.
type Prediction struct {
	Time       time.Duration
	Label      string
	Confidence float32
	// Thumb is a JPEG of the normalized classifier input, if enabled.
	Thumb []byte
}

// Result is the outcome of one background classification, delivered on
// Gate.Results.
type Result struct {
	Prediction
	// Err is set when the frame could not be normalized; no prediction is
	// recorded for it.
	Err     error
	Elapsed time.Duration

	gen int
}

// Gate runs at most one classification at a time. Frames offered while a
// classification is in flight are dropped.
//
// Offer, Complete and the other methods must all be called from a single
// goroutine, the owner. Background work reports back through Results and
// only the owner mutates the prediction list, so no locking is needed.
type Gate struct {
	Normalizer    *Normalizer
	Classifier    Classifier
	FallbackLabel string
	Thumbnails    bool

	// Dispatch runs classification work off the owner goroutine. It
	// defaults to starting a new goroutine.
	Dispatch func(func())

	pool    *source.MatPool
	results chan Result

	busy        bool
	closed      bool
	released    bool
	gen         int
	predictions []Prediction
}

func NewGate(n *Normalizer, c Classifier) *Gate {
	return &Gate{
		Normalizer:    n,
		Classifier:    c,
		FallbackLabel: DefaultFallbackLabel,
		Dispatch:      func(f func()) { go f() },

		pool: source.NewMatPool(),
		// At most one task is in flight, so one slot never blocks it.
		results: make(chan Result, 1),
	}
}

// Offer starts classifying img unless a classification is already in
// flight. The frame is copied before Offer returns. start is the capture
// time the prediction offset is measured from.
func (g *Gate) Offer(img source.Image, start time.Time) bool {
	if g.closed {
		offersTotal.WithLabelValues("closed").Inc()
		return false
	}
	if g.busy {
		offersTotal.WithLabelValues("busy").Inc()
		return false
	}
	g.busy = true
	offersTotal.WithLabelValues("accepted").Inc()

	m := g.pool.NewMat()
	img.Mat.CopyTo(&m)
	offset := img.Time.Sub(start)
	gen := g.gen

	g.Dispatch(func() {
		r := g.classify(m, offset)
		r.gen = gen
		g.results <- r
	})
	return true
}

func (g *Gate) classify(m gocv.Mat, offset time.Duration) (r Result) {
	defer g.pool.ReleaseMat(m)
	start := time.Now()
	defer func() {
		r.Elapsed = time.Since(start)
		inferenceSeconds.Observe(r.Elapsed.Seconds())
	}()

	r.Time = offset
	input, err := g.Normalizer.Normalize(m)
	if err != nil {
		r.Err = fmt.Errorf("normalizing frame at %v: %w", offset, err)
		return r
	}
	defer input.Close()

	c, err := g.classifySafe(input)
	if err != nil {
		log.Debugf("Classification at %v failed: %v", offset, err)
	}
	r.Label = c.Label
	r.Confidence = c.Confidence

	if g.Thumbnails {
		if b, err := EncodeThumb(input); err != nil {
			log.Debugf("Failed to encode thumbnail: %v", err)
		} else {
			r.Thumb = b
		}
	}
	return r
}

// classifySafe turns a classifier panic into an error so the gate is
// always released.
func (g *Gate) classifySafe(input gocv.Mat) (c Classification, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("classifier panic: %v", p)
		}
	}()
	return g.Classifier.Classify(input)
}

// Results delivers finished classifications. The owner must pass each one
// to Complete.
func (g *Gate) Results() <-chan Result {
	return g.results
}

// Complete records r and frees the gate. It returns the index of the new
// prediction, or false if nothing was recorded.
func (g *Gate) Complete(r Result) (int, bool) {
	defer func() { g.busy = false }()

	if r.gen != g.gen || g.closed {
		// Left over from a recording that has since been closed or reset.
		return -1, false
	}
	if r.Err != nil {
		normalizeFailures.Inc()
		log.Debugf("Skipping classification: %v", r.Err)
		return -1, false
	}

	p := r.Prediction
	fallback := p.Label == ""
	if fallback {
		p.Label = g.fallbackLabel()
		p.Confidence = 0
	}
	predictionsTotal.WithLabelValues(fmt.Sprint(fallback)).Inc()

	g.predictions = append(g.predictions, p)
	return len(g.predictions) - 1, true
}

func (g *Gate) fallbackLabel() string {
	if g.FallbackLabel == "" {
		return DefaultFallbackLabel
	}
	return g.FallbackLabel
}

func (g *Gate) Busy() bool {
	return g.busy
}

// At returns prediction i.
func (g *Gate) At(i int) Prediction {
	return g.predictions[i]
}

func (g *Gate) Len() int {
	return len(g.predictions)
}

// Predictions returns a copy of the predictions recorded so far.
func (g *Gate) Predictions() []Prediction {
	out := make([]Prediction, len(g.predictions))
	copy(out, g.predictions)
	return out
}

// Discard stops accepting frames. A classification still in flight is
// discarded when it completes. Reset reopens the gate.
func (g *Gate) Discard() {
	g.closed = true
}

// Close discards like Discard and releases the frame pool for good.
func (g *Gate) Close() {
	g.closed = true
	if !g.released {
		g.released = true
		g.pool.Close()
	}
}

// Reset clears the predictions and reopens the gate for a new recording.
// An in-flight classification from before the reset keeps the gate busy
// until it completes, but is not recorded. A closed gate stays closed.
func (g *Gate) Reset() {
	g.gen++
	g.closed = g.released
	g.predictions = nil
}

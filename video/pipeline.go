package video

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"xray/config"
	"xray/video/process"
	"xray/video/sink"
	"xray/video/source"
)

var (
	ErrStopInProgress = errors.New("stop already in progress")
	ErrNotRecording   = errors.New("not recording")
	ErrClosed         = errors.New("pipeline closed")
)

// Listener receives recording events. Methods are called on the pipeline
// goroutine and must return quickly.
type Listener interface {
	RecordingStarted(id string)
	PredictionAdded(id string, index int, p process.Prediction)
}

// Handoff receives the results of every successfully finalized recording.
type Handoff interface {
	ResultsReady(r *Results)
}

type PipelineOptions struct {
	Filesystem     *Filesystem
	Encoder        sink.EncoderFactory
	EncoderOptions sink.EncoderOptions
	Gate           *process.Gate

	// Settings returns the live configuration. Defaults to config.Get.
	Settings func() *config.Config
	// Probe reads the duration of the finished movie. Optional.
	Probe func(path string) (time.Duration, error)

	Listeners []Listener
	Handoffs  []Handoff
	// Previews receive every frame after it has been recorded.
	Previews []sink.Sink
}

// Status is a snapshot of the pipeline for display.
type Status struct {
	SessionID   string
	Recording   bool
	Stopping    bool
	State       string
	Start       time.Time
	Predictions int
	Stats       RecordingStats
}

type stopReply struct {
	results *Results
	err     error
}

// Pipeline fans captured frames out to the recording and the classifier
// gate. One goroutine owns all of its state; requests and background
// completions reach it over channels.
type Pipeline struct {
	src  source.Source
	opts PipelineOptions

	start  chan chan error
	stop   chan chan stopReply
	status chan chan Status
	close  chan chan bool
	done   chan struct{}

	// Owned by loop.
	rec       *RecordingSink
	gate      *process.Gate
	active    bool
	pending   chan stopReply
	finishc   <-chan error
	finished  bool
	drain     <-chan time.Time
	lastLabel string
}

// NewPipeline configures the first recording, which removes any movie left
// from a previous run, and starts the pipeline goroutine. The source is
// not started until Start.
func NewPipeline(src source.Source, opts PipelineOptions) (*Pipeline, error) {
	switch {
	case src == nil:
		return nil, errors.New("pipeline needs a source")
	case opts.Filesystem == nil:
		return nil, errors.New("pipeline needs a filesystem")
	case opts.Encoder == nil:
		return nil, errors.New("pipeline needs an encoder")
	case opts.Gate == nil:
		return nil, errors.New("pipeline needs a classifier gate")
	}
	if opts.Settings == nil {
		opts.Settings = config.Get
	}

	p := &Pipeline{
		src:  src,
		opts: opts,
		gate: opts.Gate,

		start:  make(chan chan error),
		stop:   make(chan chan stopReply),
		status: make(chan chan Status),
		close:  make(chan chan bool),
		done:   make(chan struct{}),
	}
	rec, err := p.newRecording()
	if err != nil {
		return nil, err
	}
	p.rec = rec

	go p.loop()
	return p, nil
}

func (p *Pipeline) newRecording() (*RecordingSink, error) {
	rec := NewRecordingSink(p.opts.Filesystem.MoviePath(), p.opts.Encoder, p.opts.EncoderOptions)
	if err := rec.Configure(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *Pipeline) loop() {
	defer close(p.done)
	frames := p.src.Get()
	for {
		select {
		case img := <-frames:
			p.handleFrame(img)

		case r := <-p.gate.Results():
			p.handleResult(r)

		case c := <-p.start:
			c <- p.handleStart()

		case c := <-p.stop:
			p.handleStop(c)

		case err := <-p.finishc:
			p.handleFinished(err)

		case <-p.drain:
			log.WithField("session", p.rec.ID()).Warnf("Classification still running, handing off results without it")
			p.gate.Discard()
			p.handoff()

		case c := <-p.status:
			c <- p.snapshot()

		case c := <-p.close:
			p.shutdown()
			c <- true
			return
		}
	}
}

func (p *Pipeline) handleFrame(img source.Image) {
	framesCaptured.Inc()
	if !img.Valid() {
		// Transient capture condition, not worth surfacing.
		framesDropped.WithLabelValues("invalid").Inc()
		return
	}

	p.rec.Accept(img)

	if p.active {
		if start := p.rec.Start(); !start.IsZero() {
			p.gate.Offer(img, start)
		}
	}

	p.preview(img)
}

// preview runs last: the overlay draws into the frame itself, after the
// encoder and the gate have taken their copies.
func (p *Pipeline) preview(img source.Image) {
	if len(p.opts.Previews) == 0 {
		return
	}
	if p.active && p.opts.Settings().PreviewOverlay {
		elapsed := img.Time.Sub(p.rec.Start())
		process.DrawOverlay(&img.Mat, process.OverlayText(elapsed, p.lastLabel), true)
	}
	for _, s := range p.opts.Previews {
		s.Put(img)
	}
}

func (p *Pipeline) handleResult(r process.Result) {
	idx, ok := p.gate.Complete(r)
	if ok {
		pred := p.gate.At(idx)
		p.lastLabel = pred.Label
		log.WithField("session", p.rec.ID()).Infof("%d: %s", idx, pred.Label)
		for _, l := range p.opts.Listeners {
			l.PredictionAdded(p.rec.ID(), idx, pred)
		}
	}
	p.maybeHandoff()
}

func (p *Pipeline) handleStart() error {
	if p.pending != nil {
		return ErrStopInProgress
	}
	if p.active {
		return nil
	}
	if p.rec.Done() {
		// A new recording replaces the previous movie.
		rec, err := p.newRecording()
		if err != nil {
			return err
		}
		p.rec = rec
		p.gate.Reset()
		p.lastLabel = ""
	}
	if err := p.src.Start(); err != nil {
		return err
	}
	p.active = true
	log.WithField("session", p.rec.ID()).Info("Recording started")
	for _, l := range p.opts.Listeners {
		l.RecordingStarted(p.rec.ID())
	}
	return nil
}

func (p *Pipeline) handleStop(c chan stopReply) {
	if p.pending != nil {
		c <- stopReply{err: ErrStopInProgress}
		return
	}
	if p.rec.Done() {
		c <- stopReply{err: ErrNotRecording}
		return
	}
	p.active = false
	p.pending = c
	p.finished = false
	p.finishc = p.rec.Finish()
}

func (p *Pipeline) handleFinished(err error) {
	p.finishc = nil
	clog := log.WithField("session", p.rec.ID())
	if err != nil {
		clog.Errorf("Creating movie file failed: %v", err)
		handoffsTotal.WithLabelValues("failed").Inc()
		p.reply(nil, err)
		return
	}
	clog.Infof("Creating movie file was a success. %+v", p.rec.Stats())
	p.finished = true
	p.maybeHandoff()
}

// maybeHandoff hands off results once the movie is finalized and no
// classification is in flight.
func (p *Pipeline) maybeHandoff() {
	if p.pending == nil || !p.finished {
		return
	}
	if !p.gate.Busy() {
		p.handoff()
		return
	}
	if p.drain == nil {
		timeout := p.opts.Settings().DrainTimeout()
		if timeout <= 0 {
			p.gate.Discard()
			p.handoff()
			return
		}
		p.drain = time.After(timeout)
	}
}

func (p *Pipeline) handoff() {
	p.drain = nil
	results := &Results{
		SessionID:   p.rec.ID(),
		MoviePath:   p.rec.Path(),
		ContentType: p.opts.Filesystem.ContentType(),
		Start:       p.rec.Start(),
		Predictions: p.gate.Predictions(),
	}
	if p.opts.Probe != nil {
		if d, err := p.opts.Probe(results.MoviePath); err != nil {
			log.WithField("session", results.SessionID).Warnf("Failed to probe movie duration: %v", err)
		} else {
			results.Duration = d
		}
	}
	for _, h := range p.opts.Handoffs {
		h.ResultsReady(results)
	}
	handoffsTotal.WithLabelValues("ok").Inc()
	p.reply(results, nil)
}

func (p *Pipeline) reply(r *Results, err error) {
	if p.pending != nil {
		p.pending <- stopReply{results: r, err: err}
	}
	p.pending = nil
	p.finished = false
	p.drain = nil
}

func (p *Pipeline) snapshot() Status {
	return Status{
		SessionID:   p.rec.ID(),
		Recording:   p.active,
		Stopping:    p.pending != nil,
		State:       p.rec.State().String(),
		Start:       p.rec.Start(),
		Predictions: p.gate.Len(),
		Stats:       p.rec.Stats(),
	}
}

func (p *Pipeline) shutdown() {
	p.active = false
	if !p.rec.Done() {
		if err := <-p.rec.Finish(); err != nil && !errors.Is(err, sink.ErrNotStarted) {
			log.WithField("session", p.rec.ID()).Errorf("Failed to finalize movie on shutdown: %v", err)
		}
	}
	if p.finishc != nil {
		<-p.finishc
		p.finishc = nil
	}
	if p.pending != nil {
		p.pending <- stopReply{err: ErrClosed}
		p.pending = nil
	}
	p.gate.Discard()
	p.awaitInference()
	p.gate.Close()
	p.src.Close()
}

// awaitInference waits, up to the drain timeout, for a classification
// still running so that nothing uses the classifier after Close returns.
func (p *Pipeline) awaitInference() {
	if !p.gate.Busy() {
		return
	}
	timer := time.NewTimer(p.opts.Settings().DrainTimeout())
	defer timer.Stop()
	select {
	case r := <-p.gate.Results():
		p.gate.Complete(r)
	case <-timer.C:
		log.Warn("Classification still running at shutdown")
	}
}

// Start begins a recording. If the previous recording has finished, a new
// one is configured and the previous movie is removed.
func (p *Pipeline) Start() error {
	c := make(chan error, 1)
	select {
	case p.start <- c:
	case <-p.done:
		return ErrClosed
	}
	return <-c
}

// Stop ends the recording, waits for the movie to be finalized and for any
// in-flight classification to drain, and returns the results. Results are
// only handed off when the movie was finalized successfully.
func (p *Pipeline) Stop(ctx context.Context) (*Results, error) {
	c := make(chan stopReply, 1)
	select {
	case p.stop <- c:
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-c:
		return r.results, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pipeline) Status() Status {
	c := make(chan Status, 1)
	select {
	case p.status <- c:
	case <-p.done:
		return Status{}
	}
	return <-c
}

// Close finalizes any active recording and releases the source.
func (p *Pipeline) Close() {
	c := make(chan bool)
	select {
	case p.close <- c:
		<-c
	case <-p.done:
	}
}

package video

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"xray/video/sink"
	"xray/video/source"
)

type RecordingState int

const (
	StateUnknown RecordingState = iota
	StateWriting
	StateFinished
	StateFailed
)

func (s RecordingState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateWriting:
		return "writing"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("RecordingState(%d)", int(s))
}

var (
	ErrNotConfigured   = errors.New("recording not configured")
	ErrAlreadyFinished = errors.New("recording already finished")
)

// RecordingStats counts frames seen by a recording.
type RecordingStats struct {
	Accepted int
	Dropped  int
}

// RecordingSink feeds one recording session to an encoder.
//
// The session starts Unknown. The first accepted frame opens the encoder at
// that frame's timestamp and moves it to Writing. Finish moves it to
// Finished or Failed, after which it ignores frames.
type RecordingSink struct {
	id      string
	path    string
	factory sink.EncoderFactory
	opts    sink.EncoderOptions

	l         sync.Mutex
	enc       sink.Encoder
	state     RecordingState
	start     time.Time
	finishing bool
	err       error
	stats     RecordingStats
}

func NewRecordingSink(path string, factory sink.EncoderFactory, opts sink.EncoderOptions) *RecordingSink {
	return &RecordingSink{
		id:      uuid.NewString(),
		path:    path,
		factory: factory,
		opts:    opts,
	}
}

// Configure removes any previous movie at the sink's path and creates the
// encoder.
func (r *RecordingSink) Configure() error {
	r.l.Lock()
	defer r.l.Unlock()
	if r.enc != nil || r.finishing {
		return fmt.Errorf("recording %v already configured", r.id)
	}
	if err := removeIfExists(r.path); err != nil {
		return fmt.Errorf("removing previous movie: %w", err)
	}
	enc, err := r.factory(r.path, r.opts)
	if err != nil {
		return fmt.Errorf("creating encoder for %v: %w", r.path, err)
	}
	r.enc = enc
	recordingState.Set(float64(StateUnknown))
	return nil
}

// Accept offers a frame to the recording. The first frame always starts
// the session. Later frames are appended only if the encoder is ready and
// are dropped otherwise; nothing is queued.
func (r *RecordingSink) Accept(img source.Image) bool {
	r.l.Lock()
	defer r.l.Unlock()
	if r.enc == nil || r.finishing {
		return false
	}

	switch r.state {
	case StateUnknown:
		if err := r.enc.Begin(img.Time); err != nil {
			log.WithField("session", r.id).Errorf("Failed to start encoder: %v", err)
			r.err = err
			r.setState(StateFailed)
			return false
		}
		r.start = img.Time
		r.setState(StateWriting)
		log.WithField("session", r.id).Infof("Recording to %v", r.path)
	case StateWriting:
	default:
		return false
	}

	if !r.enc.Ready() {
		r.stats.Dropped++
		framesDropped.WithLabelValues("encoder_busy").Inc()
		return false
	}
	if err := r.enc.Append(img); err != nil {
		log.WithField("session", r.id).Debugf("Dropping frame: %v", err)
		r.stats.Dropped++
		framesDropped.WithLabelValues("encoder_error").Inc()
		return false
	}
	r.stats.Accepted++
	framesRecorded.Inc()
	return true
}

// Finish stops accepting frames and finalizes the movie in the background.
// The returned channel receives the outcome. Finishing a session that
// never received a frame fails with sink.ErrNotStarted.
func (r *RecordingSink) Finish() <-chan error {
	c := make(chan error, 1)

	r.l.Lock()
	if r.finishing {
		r.l.Unlock()
		c <- ErrAlreadyFinished
		return c
	}
	r.finishing = true
	enc, state, prior := r.enc, r.state, r.err
	r.l.Unlock()

	go func() {
		var err error
		switch {
		case enc == nil:
			err = ErrNotConfigured
		default:
			err = enc.Finish()
			if state == StateFailed && prior != nil {
				err = prior
			} else if state == StateUnknown && err == nil {
				err = sink.ErrNotStarted
			}
		}

		r.l.Lock()
		r.err = err
		if err != nil {
			r.setState(StateFailed)
		} else {
			r.setState(StateFinished)
		}
		r.l.Unlock()
		c <- err
	}()
	return c
}

func (r *RecordingSink) setState(s RecordingState) {
	r.state = s
	recordingState.Set(float64(s))
}

func (r *RecordingSink) ID() string {
	return r.id
}

func (r *RecordingSink) Path() string {
	return r.path
}

func (r *RecordingSink) State() RecordingState {
	r.l.Lock()
	defer r.l.Unlock()
	return r.state
}

// Start returns the capture time of the first recorded frame.
func (r *RecordingSink) Start() time.Time {
	r.l.Lock()
	defer r.l.Unlock()
	return r.start
}

// Done reports whether Finish has been called.
func (r *RecordingSink) Done() bool {
	r.l.Lock()
	defer r.l.Unlock()
	return r.finishing
}

func (r *RecordingSink) Err() error {
	r.l.Lock()
	defer r.l.Unlock()
	return r.err
}

func (r *RecordingSink) Stats() RecordingStats {
	r.l.Lock()
	defer r.l.Unlock()
	return r.stats
}

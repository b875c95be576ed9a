package video

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"xray/video/sink"
	"xray/video/source"
)

type fakeEncoder struct {
	l         sync.Mutex
	begun     time.Time
	frames    []time.Time
	readies   int
	finished  bool
	notReady  func(n int) bool
	beginErr  error
	finishErr error
}

func (e *fakeEncoder) Begin(t time.Time) error {
	e.l.Lock()
	defer e.l.Unlock()
	if e.beginErr != nil {
		return e.beginErr
	}
	e.begun = t
	return nil
}

func (e *fakeEncoder) Ready() bool {
	e.l.Lock()
	defer e.l.Unlock()
	e.readies++
	return e.notReady == nil || !e.notReady(e.readies)
}

func (e *fakeEncoder) Append(img source.Image) error {
	e.l.Lock()
	defer e.l.Unlock()
	e.frames = append(e.frames, img.Time)
	return nil
}

func (e *fakeEncoder) Finish() error {
	e.l.Lock()
	defer e.l.Unlock()
	e.finished = true
	if e.begun.IsZero() && e.finishErr == nil {
		return sink.ErrNotStarted
	}
	return e.finishErr
}

func (e *fakeEncoder) count() int {
	e.l.Lock()
	defer e.l.Unlock()
	return len(e.frames)
}

// fakeFactory hands out one fakeEncoder per recording, shaped by setup.
type fakeFactory struct {
	l        sync.Mutex
	setup    func(e *fakeEncoder)
	encoders []*fakeEncoder
}

func (f *fakeFactory) create(path string, opts sink.EncoderOptions) (sink.Encoder, error) {
	f.l.Lock()
	defer f.l.Unlock()
	e := &fakeEncoder{}
	if f.setup != nil {
		f.setup(e)
	}
	f.encoders = append(f.encoders, e)
	return e, nil
}

func (f *fakeFactory) last(t *testing.T) *fakeEncoder {
	t.Helper()
	f.l.Lock()
	defer f.l.Unlock()
	if len(f.encoders) == 0 {
		t.Fatal("no encoder created")
	}
	return f.encoders[len(f.encoders)-1]
}

func newFrame(t *testing.T, at time.Time) source.Image {
	t.Helper()
	m := gocv.NewMatWithSize(12, 16, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	m.SetTo(gocv.NewScalar(40, 80, 120, 0))
	return source.Image{Mat: m, Time: at}
}

func newTestRecording(t *testing.T, setup func(e *fakeEncoder)) (*RecordingSink, *fakeFactory) {
	t.Helper()
	f := &fakeFactory{setup: setup}
	r := NewRecordingSink(filepath.Join(t.TempDir(), "movie.mp4"), f.create, sink.EncoderOptions{})
	if err := r.Configure(); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return r, f
}

func TestRecordingFirstFrameStartsSession(t *testing.T) {
	r, f := newTestRecording(t, nil)
	if got := r.State(); got != StateUnknown {
		t.Fatalf("state before first frame = %v", got)
	}

	start := time.Now()
	if !r.Accept(newFrame(t, start)) {
		t.Fatal("first frame rejected")
	}
	if got := r.State(); got != StateWriting {
		t.Errorf("state = %v, want writing", got)
	}
	if !r.Start().Equal(start) {
		t.Errorf("Start() = %v, want %v", r.Start(), start)
	}
	if e := f.last(t); !e.begun.Equal(start) || e.count() != 1 {
		t.Errorf("encoder begun at %v with %d frames", e.begun, e.count())
	}
}

func TestRecordingDropsWhenNotReady(t *testing.T) {
	r, f := newTestRecording(t, func(e *fakeEncoder) {
		e.notReady = func(n int) bool { return n == 2 || n == 4 }
	})

	start := time.Now()
	accepted := 0
	for i := 0; i < 5; i++ {
		if r.Accept(newFrame(t, start.Add(time.Duration(i)*33*time.Millisecond))) {
			accepted++
		}
	}
	if accepted != 3 {
		t.Errorf("accepted %d frames, want 3", accepted)
	}
	if got := r.Stats(); got != (RecordingStats{Accepted: 3, Dropped: 2}) {
		t.Errorf("Stats() = %+v", got)
	}
	if got := f.last(t).count(); got != 3 {
		t.Errorf("encoder saw %d frames, want 3", got)
	}
}

func TestRecordingFinish(t *testing.T) {
	r, _ := newTestRecording(t, nil)
	r.Accept(newFrame(t, time.Now()))

	if err := <-r.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got := r.State(); got != StateFinished {
		t.Errorf("state = %v, want finished", got)
	}
	if r.Accept(newFrame(t, time.Now())) {
		t.Error("frame accepted after finish")
	}
	if err := <-r.Finish(); !errors.Is(err, ErrAlreadyFinished) {
		t.Errorf("second Finish = %v, want ErrAlreadyFinished", err)
	}
}

func TestRecordingFinishWithoutFrames(t *testing.T) {
	r, f := newTestRecording(t, nil)
	if err := <-r.Finish(); !errors.Is(err, sink.ErrNotStarted) {
		t.Fatalf("Finish = %v, want ErrNotStarted", err)
	}
	if got := r.State(); got != StateFailed {
		t.Errorf("state = %v, want failed", got)
	}
	if !f.last(t).finished {
		t.Error("encoder was not released")
	}
}

func TestRecordingFailures(t *testing.T) {
	beginErr := errors.New("no disk")
	finishErr := errors.New("moov atom")

	for _, tc := range []struct {
		name  string
		setup func(e *fakeEncoder)
		want  error
	}{
		{"begin", func(e *fakeEncoder) { e.beginErr = beginErr }, beginErr},
		{"finish", func(e *fakeEncoder) { e.finishErr = finishErr }, finishErr},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newTestRecording(t, tc.setup)
			r.Accept(newFrame(t, time.Now()))
			if err := <-r.Finish(); !errors.Is(err, tc.want) {
				t.Errorf("Finish = %v, want %v", err, tc.want)
			}
			if got := r.State(); got != StateFailed {
				t.Errorf("state = %v, want failed", got)
			}
		})
	}
}

func TestRecordingConfigureRemovesPreviousMovie(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movie.mp4")
	if err := os.WriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	f := &fakeFactory{}
	r := NewRecordingSink(path, f.create, sink.EncoderOptions{})
	if err := r.Configure(); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("previous movie still present: %v", err)
	}
	if err := r.Configure(); err == nil {
		t.Error("second Configure succeeded")
	}
}

func TestRecordingStateString(t *testing.T) {
	if got := RecordingState(9).String(); got != "RecordingState(9)" {
		t.Errorf("String() = %q", got)
	}
}

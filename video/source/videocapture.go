package source

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"xray/util"
)

var (
	ErrNoVideoDevice     = errors.New("no video device")
	ErrVideoInputFailed  = errors.New("video input failed")
	ErrVideoOutputFailed = errors.New("video output failed")
)

// SetupError is returned when the capture session cannot be configured.
// Kind is one of ErrNoVideoDevice, ErrVideoInputFailed or
// ErrVideoOutputFailed.
type SetupError struct {
	Kind error
	URI  string
	Err  error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture %q: %v: %v", e.URI, e.Kind, e.Err)
	}
	return fmt.Sprintf("capture %q: %v", e.URI, e.Kind)
}

func (e *SetupError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

type VideoCapture struct {
	URI string

	cap  *gocv.VideoCapture
	size image.Point
	fps  int

	c       chan Image
	quit    chan struct{}
	done    chan struct{}
	started *util.Event

	l       sync.Mutex
	running bool
}

func deviceFor(uri string) interface{} {
	if uri == "" {
		return 0
	}
	if id, err := strconv.Atoi(uri); err == nil {
		return id
	}
	return uri
}

// OpenVideoCapture opens the capture device at uri and reads one probe
// frame to learn its size. Frames are not delivered until Start.
func OpenVideoCapture(uri string, fps int) (*VideoCapture, error) {
	cap, err := gocv.OpenVideoCapture(deviceFor(uri))
	if err != nil {
		return nil, &SetupError{Kind: ErrNoVideoDevice, URI: uri, Err: err}
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, &SetupError{Kind: ErrNoVideoDevice, URI: uri}
	}
	if fps > 0 {
		cap.Set(gocv.VideoCaptureFPS, float64(fps))
	}

	probe := gocv.NewMat()
	defer probe.Close()
	if ok := cap.Read(&probe); !ok {
		cap.Close()
		return nil, &SetupError{Kind: ErrVideoInputFailed, URI: uri}
	}
	if probe.Empty() || probe.Channels() != 3 {
		cap.Close()
		return nil, &SetupError{Kind: ErrVideoOutputFailed, URI: uri,
			Err: fmt.Errorf("unusable probe frame %dx%d with %d channels", probe.Cols(), probe.Rows(), probe.Channels())}
	}

	if got := int(cap.Get(gocv.VideoCaptureFPS)); got > 0 {
		fps = got
	}
	if fps <= 0 {
		fps = 30
	}

	v := &VideoCapture{
		URI:     uri,
		cap:     cap,
		size:    image.Point{X: probe.Cols(), Y: probe.Rows()},
		fps:     fps,
		c:       make(chan Image),
		started: util.NewEvent(),
	}
	log.WithField("uri", uri).Infof("Opened capture %dx%d at %d fps", v.size.X, v.size.Y, v.fps)
	return v, nil
}

func (v *VideoCapture) Get() <-chan Image {
	return v.c
}

func (v *VideoCapture) Size() image.Point {
	return v.size
}

func (v *VideoCapture) FPS() int {
	return v.fps
}

// Started is notified once the first frame has been delivered.
func (v *VideoCapture) Started() *util.Event {
	return v.started
}

func (v *VideoCapture) Start() error {
	v.l.Lock()
	defer v.l.Unlock()
	if v.running {
		return nil
	}
	if v.cap == nil {
		return &SetupError{Kind: ErrVideoInputFailed, URI: v.URI, Err: errors.New("capture closed")}
	}
	v.running = true
	v.quit = make(chan struct{})
	v.done = make(chan struct{})
	go v.loop(v.quit, v.done)
	return nil
}

func (v *VideoCapture) loop(quit, done chan struct{}) {
	defer close(done)

	// Two Mats alternate: one is held by the consumer while the other is
	// being filled. The unbuffered send guarantees the consumer is done
	// with a Mat before it is read into again.
	mats := [2]gocv.Mat{gocv.NewMat(), gocv.NewMat()}
	defer func() {
		mats[0].Close()
		mats[1].Close()
	}()

	cur := 0
	for {
		select {
		case <-quit:
			return
		default:
		}

		t := time.Now()
		if ok := v.cap.Read(&mats[cur]); !ok {
			log.WithField("uri", v.URI).Debug("Read failure.")
			time.Sleep(time.Millisecond)
			continue
		}

		select {
		case v.c <- Image{Mat: mats[cur], Time: t}:
			v.started.Notify()
		case <-quit:
			return
		}
		cur ^= 1
	}
}

// Close stops frame delivery and releases the device. It must not be
// called while the consumer still holds a delivered frame.
func (v *VideoCapture) Close() {
	v.l.Lock()
	defer v.l.Unlock()
	if v.running {
		close(v.quit)
		<-v.done
		v.running = false
	}
	if v.cap != nil {
		v.cap.Close()
		v.cap = nil
	}
}

package sink

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"xray/video/source"
)

const defaultFourcc = "mp4v"

// VideoEncoder wraps OpenCV's VideoWriter. Writes are synchronous, so it is
// always ready; slow codecs slow down the capture loop instead of dropping
// frames.
type VideoEncoder struct {
	path string
	opts EncoderOptions

	l        sync.Mutex
	writer   *gocv.VideoWriter
	finished bool
}

func NewVideoEncoder(path string, o EncoderOptions) (*VideoEncoder, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.Codec == "" {
		o.Codec = defaultFourcc
	}
	if len(o.Codec) != 4 {
		return nil, fmt.Errorf("opencv codec must be a fourcc, got %q", o.Codec)
	}
	return &VideoEncoder{
		path: path,
		opts: o,
	}, nil
}

func (v *VideoEncoder) Begin(t time.Time) error {
	v.l.Lock()
	defer v.l.Unlock()
	if v.writer != nil || v.finished {
		return ErrFinished
	}
	w, err := gocv.VideoWriterFile(v.path, v.opts.Codec, float64(v.opts.FPS), v.opts.Size.X, v.opts.Size.Y, true)
	if err != nil {
		return err
	}
	if !w.IsOpened() {
		w.Close()
		return fmt.Errorf("opencv could not open %v with codec %v", v.path, v.opts.Codec)
	}
	v.writer = w
	return nil
}

func (v *VideoEncoder) Ready() bool {
	v.l.Lock()
	defer v.l.Unlock()
	return v.writer != nil && !v.finished
}

func (v *VideoEncoder) Append(input source.Image) error {
	if err := v.opts.checkFrame(input); err != nil {
		return err
	}
	v.l.Lock()
	defer v.l.Unlock()
	if v.finished {
		return ErrFinished
	}
	if v.writer == nil {
		return ErrNotStarted
	}
	return v.writer.Write(input.Mat)
}

func (v *VideoEncoder) Finish() error {
	v.l.Lock()
	defer v.l.Unlock()
	if v.finished {
		return ErrFinished
	}
	v.finished = true
	if v.writer == nil {
		return ErrNotStarted
	}
	return v.writer.Close()
}

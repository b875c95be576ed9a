package sink

import (
	"errors"
	"fmt"
	"image"
	"time"

	"xray/video/source"
)

// Sink defines a destination for a stream of images, such as a preview
// stream.
type Sink interface {
	// Put inserts an image to the sink. The caller *must not* modify this image
	// and it should not hold any references to the underlying Mat.
	Put(input source.Image)

	// Close should be called to finalize the Sink.
	Close()
}

var (
	// ErrNotStarted is returned when an encoder is finished without ever
	// having received a frame.
	ErrNotStarted = errors.New("encoder never started")
	ErrNotReady   = errors.New("encoder not ready for more data")
	ErrFrameSize  = errors.New("frame size does not match encoder")
	ErrFinished   = errors.New("encoder already finished")
)

// Encoder turns a stream of frames into a movie file.
type Encoder interface {
	// Begin opens the encoding session; t is the timestamp of the first
	// frame.
	Begin(t time.Time) error

	// Ready reports whether Append would accept another frame right now.
	Ready() bool

	// Append copies the frame into the encoder. It never blocks; a frame
	// offered while not ready is rejected with ErrNotReady.
	Append(input source.Image) error

	// Finish marks the end of input and blocks until the file is finalized.
	// An encoder that never began releases its resources and returns
	// ErrNotStarted.
	Finish() error
}

type EncoderOptions struct {
	Size image.Point
	FPS  int

	// Codec is an ffmpeg codec name or an OpenCV fourcc.
	Codec     string
	Container string

	// ReadyWindow is how many frames may be pending inside the encoder
	// before Ready reports false.
	ReadyWindow int

	// FFmpegPath overrides the ffmpeg binary location.
	FFmpegPath string
}

func (o EncoderOptions) validate() error {
	if o.Size.X <= 0 || o.Size.Y <= 0 {
		return fmt.Errorf("invalid encoder size %v", o.Size)
	}
	if o.FPS <= 0 {
		return fmt.Errorf("invalid encoder fps %d", o.FPS)
	}
	return nil
}

func (o EncoderOptions) checkFrame(input source.Image) error {
	if input.Mat.Cols() != o.Size.X || input.Mat.Rows() != o.Size.Y {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameSize,
			input.Mat.Cols(), input.Mat.Rows(), o.Size.X, o.Size.Y)
	}
	return nil
}

// EncoderFactory creates the writer for a movie at path.
type EncoderFactory func(path string, opts EncoderOptions) (Encoder, error)

// EncoderFactoryFor returns the factory registered under name.
func EncoderFactoryFor(name string) (EncoderFactory, error) {
	switch name {
	case "", "ffmpeg":
		return func(path string, opts EncoderOptions) (Encoder, error) {
			return NewFFmpegEncoder(path, opts)
		}, nil
	case "opencv":
		return func(path string, opts EncoderOptions) (Encoder, error) {
			return NewVideoEncoder(path, opts)
		}, nil
	}
	return nil, fmt.Errorf("unknown encoder %q", name)
}

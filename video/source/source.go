package source

import (
	"image"
	"time"

	"gocv.io/x/gocv"
)

// Image is a single captured frame. Time is the capture timestamp and
// carries a monotonic clock reading, so offsets between frames are safe to
// compute with Sub.
type Image struct {
	Mat  gocv.Mat
	Time time.Time
}

// Clone copies the frame so that it can outlive the capture callback.
func (i *Image) Clone() Image {
	n := Image{
		Mat:  gocv.NewMat(),
		Time: i.Time,
	}
	i.Mat.CopyTo(&n.Mat)
	return n
}

func (i *Image) Close() {
	i.Mat.Close()
}

// Valid reports whether the frame carries pixel data.
func (i *Image) Valid() bool {
	return !i.Mat.Empty() && i.Mat.Cols() > 0 && i.Mat.Rows() > 0
}

// Source defines a stream of images, such as a camera.
type Source interface {
	// Get returns the channel images are delivered on, one at a time and in
	// capture order. The Mat of each image is only valid until the caller
	// receives the next one; the source recycles it afterwards.
	Get() <-chan Image

	// Size returns the frame size of the capture source.
	Size() image.Point

	// FPS returns the nominal frame rate of the capture source.
	FPS() int

	// Start begins delivering frames. Calling Start on a running source is a
	// no-op.
	Start() error

	// Close stops delivery and frees up all resources.
	Close()
}

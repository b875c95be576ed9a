package sink

import (
	"time"
)

// fpsNormalize converts variable-timed frames into the fixed-rate stream a
// raw video pipe expects. Frames are dropped or the previous frame repeated
// so that frame n of the output always shows capture time start+n/fps.
// This keeps movie time aligned with capture offsets even when frames were
// dropped upstream.
type fpsNormalize struct {
	frameDur time.Duration

	start time.Time
	// next is the index of the next output frame to be written.
	next int64
	last []byte
}

func newFPSNormalize(fps int) *fpsNormalize {
	return &fpsNormalize{
		frameDur: time.Second / time.Duration(fps),
	}
}

// frames returns the output frames to write for an input captured at t.
func (f *fpsNormalize) frames(b []byte, t time.Time) [][]byte {
	if f.start.IsZero() {
		f.start = t
	}
	slot := int64((t.Sub(f.start) + f.frameDur/2) / f.frameDur)
	if slot < f.next {
		// Don't need a new frame yet. Ignore.
		return nil
	}

	var out [][]byte
	for ; f.next < slot && f.last != nil; f.next++ {
		// Missed a frame. Rewrite last frame.
		out = append(out, f.last)
	}
	f.next = slot + 1
	f.last = b
	return append(out, b)
}

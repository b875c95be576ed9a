package process

import (
	"gocv.io/x/gocv"
)

// EncodeThumb returns the JPEG encoding of img.
func EncodeThumb(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	// The native buffer is released on return.
	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

package process

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"gocv.io/x/gocv"
)

var (
	// ErrBufferAllocation means the destination image could not be
	// allocated at the requested size and format.
	ErrBufferAllocation = errors.New("buffer allocation failed")
	ErrEmptyFrame       = errors.New("empty frame")
)

// PixelFormat is the channel layout of a normalized image.
type PixelFormat string

const (
	FormatBGR  PixelFormat = "BGR"
	FormatRGB  PixelFormat = "RGB"
	FormatBGRA PixelFormat = "BGRA"
	FormatGray PixelFormat = "GRAY"
)

func ParsePixelFormat(s string) (PixelFormat, error) {
	switch f := PixelFormat(strings.ToUpper(s)); f {
	case FormatBGR, FormatRGB, FormatBGRA, FormatGray:
		return f, nil
	case "":
		return FormatBGR, nil
	}
	return "", fmt.Errorf("unknown pixel format %q", s)
}

// Normalizer converts frames of any size into classifier input of a fixed
// size and format.
type Normalizer struct {
	Size   image.Point
	Format PixelFormat
}

func NewNormalizer(size image.Point, format PixelFormat) *Normalizer {
	return &Normalizer{Size: size, Format: format}
}

func (n *Normalizer) Normalize(src gocv.Mat) (gocv.Mat, error) {
	return Normalize(src, n.Size, n.Format)
}

// Normalize scales src uniformly to the target width, then crops a
// size.X x size.Y window centered vertically. A frame too short to fill the
// window is letterboxed instead. src is not modified; the caller owns the
// returned Mat.
func Normalize(src gocv.Mat, size image.Point, format PixelFormat) (gocv.Mat, error) {
	if size.X <= 0 || size.Y <= 0 {
		return gocv.NewMat(), fmt.Errorf("%w: size %dx%d", ErrBufferAllocation, size.X, size.Y)
	}
	if src.Empty() || src.Cols() == 0 || src.Rows() == 0 {
		return gocv.NewMat(), ErrEmptyFrame
	}

	bgr, err := toBGR(src)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer bgr.Close()

	scale := float64(size.X) / float64(bgr.Cols())
	scaledH := int(math.Round(float64(bgr.Rows()) * scale))
	if scaledH < 1 {
		scaledH = 1
	}

	scaled := gocv.NewMat()
	defer scaled.Close()
	if bgr.Cols() == size.X && bgr.Rows() == scaledH {
		bgr.CopyTo(&scaled)
	} else {
		gocv.Resize(bgr, &scaled, image.Point{X: size.X, Y: scaledH}, 0, 0, gocv.InterpolationLinear)
	}

	dst := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3)
	if dst.Empty() {
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("%w: %dx%d", ErrBufferAllocation, size.X, size.Y)
	}

	if scaledH >= size.Y {
		// The window starting at yOffset is written at row 0 of dst, which
		// is the -yOffset translation.
		yOffset := (scaledH - size.Y) / 2
		win := scaled.Region(image.Rect(0, yOffset, size.X, yOffset+size.Y))
		win.CopyTo(&dst)
		win.Close()
	} else {
		dst.SetTo(gocv.NewScalar(0, 0, 0, 0))
		top := (size.Y - scaledH) / 2
		roi := dst.Region(image.Rect(0, top, size.X, top+scaledH))
		scaled.CopyTo(&roi)
		roi.Close()
	}

	return convertFormat(dst, format)
}

func toBGR(src gocv.Mat) (gocv.Mat, error) {
	out := gocv.NewMat()
	switch src.Channels() {
	case 3:
		src.CopyTo(&out)
	case 4:
		gocv.CvtColor(src, &out, gocv.ColorBGRAToBGR)
	case 1:
		gocv.CvtColor(src, &out, gocv.ColorGrayToBGR)
	default:
		out.Close()
		return gocv.NewMat(), fmt.Errorf("unsupported frame with %d channels", src.Channels())
	}
	return out, nil
}

// convertFormat converts a BGR Mat, consuming it.
func convertFormat(bgr gocv.Mat, format PixelFormat) (gocv.Mat, error) {
	var code gocv.ColorConversionCode
	switch format {
	case FormatBGR, "":
		return bgr, nil
	case FormatRGB:
		code = gocv.ColorBGRToRGB
	case FormatBGRA:
		code = gocv.ColorBGRToBGRA
	case FormatGray:
		code = gocv.ColorBGRToGray
	default:
		bgr.Close()
		return gocv.NewMat(), fmt.Errorf("unknown pixel format %q", format)
	}
	out := gocv.NewMat()
	gocv.CvtColor(bgr, &out, code)
	bgr.Close()
	if out.Empty() {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("%w: converting to %v", ErrBufferAllocation, format)
	}
	return out, nil
}

package process

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

var (
	colorText = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorBG   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	colorRec  = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// OverlayText formats the preview caption for a recording that has been
// running for elapsed, with the most recent label.
func OverlayText(elapsed time.Duration, label string) string {
	elapsed = elapsed.Truncate(100 * time.Millisecond)
	m := int(elapsed / time.Minute)
	s := (elapsed % time.Minute).Seconds()
	text := fmt.Sprintf("%02d:%04.1f", m, s)
	if label != "" {
		text += " - " + label
	}
	return text
}

// DrawOverlay draws text in the top left corner of img.
func DrawOverlay(img *gocv.Mat, text string, recording bool) {
	font := gocv.FontHersheySimplex
	scale := 0.5
	thickness := 1

	sz := gocv.GetTextSize(text, font, scale, thickness)

	pad := 2
	dot := 0
	if recording {
		dot = sz.Y + pad
	}

	gocv.Rectangle(img, image.Rectangle{Min: image.Point{X: 0, Y: 0}, Max: image.Point{X: dot + sz.X + pad*2, Y: sz.Y + pad*2}}, colorBG, -1)
	if recording {
		r := sz.Y / 2
		gocv.Circle(img, image.Point{X: pad + r, Y: pad + r}, r, colorRec, -1)
	}

	gocv.PutText(img, text, image.Point{X: dot + pad, Y: sz.Y + pad}, font, scale, colorText, thickness)
}

package process

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Classification is the top class of a single inference.
type Classification struct {
	Class      int
	Label      string
	Confidence float32
}

// Classifier is an image classifier taking normalized input.
type Classifier interface {
	Classify(input gocv.Mat) (Classification, error)
}

type NetOptions struct {
	// Model and Config are passed to gocv.ReadNet; Config may be empty for
	// formats that carry their own graph.
	Model  string
	Config string
	Labels []string

	// Blob preprocessing.
	Scale  float64
	Mean   gocv.Scalar
	SwapRB bool

	// Output is the layer to read probabilities from; empty means the last
	// layer.
	Output string
}

// NetClassifier runs a single-input classification network through
// OpenCV's DNN module.
type NetClassifier struct {
	net  gocv.Net
	opts NetOptions

	l      sync.Mutex
	closed bool
}

var ErrClassifierClosed = errors.New("classifier closed")

func NewNetClassifier(o NetOptions) (*NetClassifier, error) {
	net := gocv.ReadNet(o.Model, o.Config)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("failed to read model %v", o.Model)
	}
	if o.Scale == 0 {
		o.Scale = 1.0
	}
	return &NetClassifier{
		net:  net,
		opts: o,
	}, nil
}

func (cl *NetClassifier) Classify(input gocv.Mat) (Classification, error) {
	if input.Empty() {
		return Classification{}, ErrEmptyFrame
	}

	cl.l.Lock()
	defer cl.l.Unlock()
	if cl.closed {
		return Classification{}, ErrClassifierClosed
	}

	start := time.Now()
	defer func() {
		log.Debugf("Classifier ran in %v", time.Since(start))
	}()

	size := image.Point{X: input.Cols(), Y: input.Rows()}
	blob := gocv.BlobFromImage(input, cl.opts.Scale, size, cl.opts.Mean, cl.opts.SwapRB, false)
	defer blob.Close()

	cl.net.SetInput(blob, "")
	prob := cl.net.Forward(cl.opts.Output)
	defer prob.Close()
	if prob.Empty() {
		return Classification{}, fmt.Errorf("network produced no output")
	}

	flat := prob.Reshape(1, 1)
	defer flat.Close()
	_, maxVal, _, maxLoc := gocv.MinMaxLoc(flat)

	c := Classification{
		Class:      maxLoc.X,
		Confidence: maxVal,
	}
	if c.Class >= 0 && c.Class < len(cl.opts.Labels) {
		c.Label = cl.opts.Labels[c.Class]
	}
	return c, nil
}

func (cl *NetClassifier) Close() {
	cl.l.Lock()
	defer cl.l.Unlock()
	if cl.closed {
		return
	}
	cl.closed = true
	cl.net.Close()
}

var synsetRe = regexp.MustCompile(`^n\d{8}\s+`)

// LoadLabels reads one class label per line. ImageNet style synset ids at
// the start of a line ("n01440764 tench, Tinca tinca") are stripped.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var labels []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		labels = append(labels, synsetRe.ReplaceAllString(line, ""))
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels in %v", path)
	}
	return labels, nil
}

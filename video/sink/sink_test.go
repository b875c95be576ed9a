package sink

import (
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"xray/util"
	"xray/video/source"
)

func TestFPSNormalize(t *testing.T) {
	start := time.Now()
	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }

	f := newFPSNormalize(10) // 100ms per frame
	tests := []struct {
		name string
		b    string
		t    time.Time
		want []string
	}{
		{"first frame", "a", at(0), []string{"a"}},
		{"too early", "b", at(30), nil},
		{"on time", "c", at(100), []string{"c"}},
		{"gap repeats last", "d", at(400), []string{"c", "c", "d"}},
		{"jitter rounds to slot", "e", at(480), []string{"e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, b := range f.frames([]byte(tt.b), tt.t) {
				got = append(got, string(b))
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("frames() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFFmpegArgs(t *testing.T) {
	args := strings.Join(ffmpegArgs("/tmp/movie.mp4", EncoderOptions{
		Size:      image.Point{X: 640, Y: 480},
		FPS:       30,
		Container: "mp4",
	}), " ")

	for _, want := range []string{"-pix_fmt bgr24", "-s 640x480", "-i pipe:", "-c:v libx264", "-movflags +faststart", "/tmp/movie.mp4", "-y"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
	if strings.Index(args, "-i pipe:") > strings.Index(args, "/tmp/movie.mp4") {
		t.Errorf("input must precede output in %q", args)
	}
}

func TestEncoderOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    EncoderOptions
		wantErr bool
	}{
		{"valid", EncoderOptions{Size: image.Pt(64, 48), FPS: 15}, false},
		{"zero size", EncoderOptions{FPS: 15}, true},
		{"zero fps", EncoderOptions{Size: image.Pt(64, 48)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncoderFinishWithoutBegin(t *testing.T) {
	opts := EncoderOptions{Size: image.Pt(64, 48), FPS: 15, FFmpegPath: "/nonexistent/ffmpeg"}
	path := filepath.Join(t.TempDir(), "movie.mp4")

	ff, err := NewFFmpegEncoder(path, opts)
	if err != nil {
		t.Fatal(err)
	}
	if ff.Ready() {
		t.Error("encoder should not be ready before Begin")
	}
	if err := ff.Finish(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Finish() = %v, want ErrNotStarted", err)
	}
	if err := ff.Finish(); !errors.Is(err, ErrFinished) {
		t.Errorf("second Finish() = %v, want ErrFinished", err)
	}

	cv, err := NewVideoEncoder(path, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := cv.Finish(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Finish() = %v, want ErrNotStarted", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("no file expected before Begin, stat err = %v", err)
	}
}

func TestEncoderFactoryFor(t *testing.T) {
	for _, name := range []string{"", "ffmpeg", "opencv"} {
		if _, err := EncoderFactoryFor(name); err != nil {
			t.Errorf("EncoderFactoryFor(%q) error = %v", name, err)
		}
	}
	if _, err := EncoderFactoryFor("gstreamer"); err == nil {
		t.Error("expected error for unknown encoder")
	}
}

func TestFFmpegEncoderWritesFile(t *testing.T) {
	bin, err := util.LocateFFmpeg()
	if err != nil {
		t.Skip("ffmpeg not available")
	}

	path := filepath.Join(t.TempDir(), "movie.mp4")
	enc, err := NewFFmpegEncoder(path, EncoderOptions{
		Size:       image.Pt(64, 48),
		FPS:        10,
		Container:  "mp4",
		FFmpegPath: bin,
	})
	if err != nil {
		t.Fatal(err)
	}

	mat := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer mat.Close()
	mat.SetTo(gocv.NewScalar(0, 0, 255, 0))

	start := time.Now()
	if err := enc.Begin(start); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	wrong := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer wrong.Close()
	if err := enc.Append(source.Image{Mat: wrong, Time: start}); !errors.Is(err, ErrFrameSize) {
		t.Errorf("Append() with wrong size = %v, want ErrFrameSize", err)
	}

	for i := 0; i < 10; i++ {
		for !enc.Ready() {
			time.Sleep(time.Millisecond)
		}
		if err := enc.Append(source.Image{Mat: mat, Time: start.Add(time.Duration(i) * 100 * time.Millisecond)}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() == 0 {
		t.Error("movie file is empty")
	}
}

func TestMJPEGServerErrors(t *testing.T) {
	s := NewMJPEGServer()
	st := s.NewStream("preview")
	defer st.Close()

	for _, tc := range []struct {
		target string
		code   int
	}{
		{"/mjpeg", http.StatusBadRequest},
		{"/mjpeg?name=raw", http.StatusNotFound},
	} {
		w := httptest.NewRecorder()
		s.ServeHTTP(w, httptest.NewRequest("GET", tc.target, nil))
		if w.Code != tc.code {
			t.Errorf("%s: got %d, want %d", tc.target, w.Code, tc.code)
		}
	}
}

func TestMJPEGStreamMaxFPS(t *testing.T) {
	s := NewMJPEGServer()
	st := s.NewStream("preview")
	defer st.Close()
	st.MaxFPS = 10

	c := make(chan []byte, 10)
	st.lock.Lock()
	st.m[c] = true
	st.lock.Unlock()

	m := gocv.NewMatWithSize(12, 16, gocv.MatTypeCV8UC3)
	defer m.Close()
	start := time.Now()
	for _, ms := range []int{0, 30, 60, 100, 130, 210} {
		st.Put(source.Image{Mat: m, Time: start.Add(time.Duration(ms) * time.Millisecond)})
	}
	// 0, 100 and 210 are at least 100ms after the previous sent frame.
	if got := len(c); got != 3 {
		t.Errorf("sent %d frames, want 3", got)
	}
	frame := <-c
	if !strings.Contains(string(frame[:80]), "Content-Type: image/jpeg") {
		t.Errorf("frame header = %q", frame[:80])
	}
}

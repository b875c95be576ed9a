package video

import (
	"path/filepath"
	"testing"
	"time"

	"xray/video/process"
)

func TestSeek(t *testing.T) {
	r := &Results{
		Duration: 10 * time.Second,
		Predictions: []process.Prediction{
			{Time: 0},
			{Time: 1500 * time.Millisecond},
			{Time: 10400 * time.Millisecond},
			{Time: 12 * time.Second},
			{Time: -time.Millisecond},
		},
	}
	for _, tc := range []struct {
		i    int
		want time.Duration
		ok   bool
	}{
		{0, 0, true},
		{1, 1500 * time.Millisecond, true},
		{2, 10400 * time.Millisecond, true},
		{3, 10 * time.Second, true},
		{4, 0, true},
		{5, 0, false},
		{-1, 0, false},
	} {
		got, ok := r.Seek(tc.i)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Seek(%d) = %v, %v; want %v, %v", tc.i, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSeekUnknownDuration(t *testing.T) {
	r := &Results{Predictions: []process.Prediction{{Time: time.Hour}}}
	if got, _ := r.Seek(0); got != time.Hour {
		t.Errorf("Seek(0) = %v, want 1h", got)
	}
}

func TestFilesystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	f, err := NewFilesystem(dir, "movie", ".mov")
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	if got, want := f.MoviePath(), filepath.Join(dir, "movie.mov"); got != want {
		t.Errorf("MoviePath() = %q, want %q", got, want)
	}
	if got := f.ContentType(); got != "video/quicktime" {
		t.Errorf("ContentType() = %q", got)
	}

	for _, tc := range []struct{ name, ext string }{
		{"", "mp4"},
		{"a/b", "mp4"},
		{"movie", ""},
	} {
		if _, err := NewFilesystem(dir, tc.name, tc.ext); err == nil {
			t.Errorf("NewFilesystem(%q, %q) succeeded", tc.name, tc.ext)
		}
	}

	f.Ext = "webm"
	if got := f.ContentType(); got != "application/octet-stream" {
		t.Errorf("ContentType() = %q for unknown extension", got)
	}
}

func TestProbeDurationMissingFile(t *testing.T) {
	if _, err := ProbeDuration(filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Error("ProbeDuration succeeded on a missing file")
	}
}

package serve

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// VideoServer serves the finished movie. Range requests are supported so
// players can seek.
type VideoServer struct {
	Results *ResultsServer
}

func (s *VideoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := s.Results.Current()
	if res == nil {
		http.Error(w, "No recording has finished yet", http.StatusNotFound)
		return
	}
	// The movie is overwritten by every recording.
	if id := r.Form.Get("session"); id != "" && id != res.SessionID {
		http.Error(w, fmt.Sprintf("No movie for session %v", id), http.StatusNotFound)
		return
	}

	f, err := os.Open(res.MoviePath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, filepath.Base(res.MoviePath), st.ModTime(), f)
}

// ThumbServer serves the classifier input of a prediction as JPEG.
type ThumbServer struct {
	Results *ResultsServer
}

func (s *ThumbServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, i, code, err := lookup(s.Results, r)
	if err != nil {
		http.Error(w, err.Error(), code)
		return
	}
	thumb := res.Predictions[i].Thumb
	if len(thumb) == 0 {
		http.Error(w, fmt.Sprintf("No thumbnail for prediction %d", i), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, "", res.Start, bytes.NewReader(thumb))
}

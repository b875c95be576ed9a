package serve

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"

	"xray/video"
	"xray/video/process"
)

type ResultEntry struct {
	Index      int
	OffsetSec  float64
	Offset     string
	Label      string
	Confidence float32
	HaveThumb  bool
}

type ResultsResponse struct {
	SessionID   string
	Start       int64
	DurationSec float64
	Items       []*ResultEntry
}

func toResultEntry(i int, p process.Prediction) *ResultEntry {
	return &ResultEntry{
		Index:      i,
		OffsetSec:  p.Time.Seconds(),
		Offset:     process.OverlayText(p.Time, ""),
		Label:      p.Label,
		Confidence: p.Confidence,
		HaveThumb:  len(p.Thumb) > 0,
	}
}

func toResultsResponse(r *video.Results) *ResultsResponse {
	resp := &ResultsResponse{
		SessionID:   r.SessionID,
		Start:       r.Start.Unix(),
		DurationSec: r.Duration.Seconds(),
		Items:       []*ResultEntry{},
	}
	for i, p := range r.Predictions {
		resp.Items = append(resp.Items, toResultEntry(i, p))
	}
	return resp
}

// ResultsServer holds the results of the last finished recording and
// serves them as JSON. The results are never modified once handed off.
type ResultsServer struct {
	l       sync.RWMutex
	results *video.Results
}

func (s *ResultsServer) ResultsReady(r *video.Results) {
	s.l.Lock()
	defer s.l.Unlock()
	s.results = r
	log.WithField("session", r.SessionID).Infof("Results ready: %d predictions", len(r.Predictions))
}

// Current returns the latest results, or nil before the first handoff.
func (s *ResultsServer) Current() *video.Results {
	s.l.RLock()
	defer s.l.RUnlock()
	return s.results
}

func (s *ResultsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := s.Current()
	if res == nil {
		http.Error(w, "No recording has finished yet", http.StatusNotFound)
		return
	}
	writeJSON(w, toResultsResponse(res))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}

// lookup resolves the index form value against the current results.
func lookup(results *ResultsServer, r *http.Request) (*video.Results, int, int, error) {
	if err := r.ParseForm(); err != nil {
		return nil, 0, http.StatusBadRequest, err
	}
	res := results.Current()
	if res == nil {
		return nil, 0, http.StatusNotFound, fmt.Errorf("no recording has finished yet")
	}
	i, err := strconv.Atoi(r.Form.Get("index"))
	if err != nil {
		return nil, 0, http.StatusBadRequest, fmt.Errorf("invalid index %q", r.Form.Get("index"))
	}
	if i < 0 || i >= len(res.Predictions) {
		return nil, 0, http.StatusNotFound, fmt.Errorf("no prediction at index %d", i)
	}
	return res, i, 0, nil
}

// SeekServer redirects to the movie, seeked to the selected prediction
// with a media fragment.
type SeekServer struct {
	Results *ResultsServer
}

func (s *SeekServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, i, code, err := lookup(s.Results, r)
	if err != nil {
		http.Error(w, err.Error(), code)
		return
	}
	t, _ := res.Seek(i)
	log.WithField("addr", r.RemoteAddr).Debugf("Seeking to prediction %d at %v", i, t)
	http.Redirect(w, r, fmt.Sprintf("/video?session=%s#t=%.1f", res.SessionID, t.Seconds()), http.StatusFound)
}

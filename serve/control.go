package serve

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"xray/video"
)

const DefaultStopTimeout = 30 * time.Second

// Recorder is the part of the pipeline the controls drive.
type Recorder interface {
	Start() error
	Stop(ctx context.Context) (*video.Results, error)
	Status() video.Status
}

type StatusResponse struct {
	SessionID   string
	Recording   bool
	Stopping    bool
	State       string
	Start       int64
	Predictions int
	Accepted    int
	Dropped     int
}

func toStatusResponse(st video.Status) *StatusResponse {
	resp := &StatusResponse{
		SessionID:   st.SessionID,
		Recording:   st.Recording,
		Stopping:    st.Stopping,
		State:       st.State,
		Predictions: st.Predictions,
		Accepted:    st.Stats.Accepted,
		Dropped:     st.Stats.Dropped,
	}
	if !st.Start.IsZero() {
		resp.Start = st.Start.Unix()
	}
	return resp
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != "POST" {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// RecordServer starts a recording.
type RecordServer struct {
	Recorder Recorder
}

func (s *RecordServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.Recorder.Start(); err != nil {
		log.WithField("addr", r.RemoteAddr).Errorf("Failed to start recording: %v", err)
		code := http.StatusInternalServerError
		if errors.Is(err, video.ErrStopInProgress) {
			code = http.StatusConflict
		}
		http.Error(w, err.Error(), code)
		return
	}
	writeJSON(w, toStatusResponse(s.Recorder.Status()))
}

// StopServer stops the recording and answers with its results once the
// movie is finalized.
type StopServer struct {
	Recorder Recorder
	Timeout  time.Duration
}

func (s *StopServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	res, err := s.Recorder.Stop(ctx)
	if err != nil {
		log.WithField("addr", r.RemoteAddr).Errorf("Failed to stop recording: %v", err)
		code := http.StatusInternalServerError
		if errors.Is(err, video.ErrNotRecording) || errors.Is(err, video.ErrStopInProgress) {
			code = http.StatusConflict
		}
		http.Error(w, err.Error(), code)
		return
	}
	writeJSON(w, toResultsResponse(res))
}

type StatusServer struct {
	Recorder Recorder
}

func (s *StatusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, toStatusResponse(s.Recorder.Status()))
}

package video

import (
	"time"

	"github.com/pillash/mp4util"

	"xray/video/process"
)

// Results is handed to the results browser once a recording has been
// finalized.
type Results struct {
	SessionID   string
	MoviePath   string
	ContentType string
	Start       time.Time
	// Duration is the probed movie length, zero if unknown.
	Duration    time.Duration
	Predictions []process.Prediction
}

// Seek returns the playback offset of prediction i. Offsets past the end
// of the movie are clamped to its duration; since the duration is only
// known to the second, anything within a second of it is left alone.
func (r *Results) Seek(i int) (time.Duration, bool) {
	if i < 0 || i >= len(r.Predictions) {
		return 0, false
	}
	t := r.Predictions[i].Time
	if t < 0 {
		t = 0
	}
	if r.Duration > 0 && t >= r.Duration+time.Second {
		t = r.Duration
	}
	return t, true
}

// ProbeDuration reads the duration of an mp4 movie. mp4util reports whole
// seconds.
func ProbeDuration(path string) (time.Duration, error) {
	secs, err := mp4util.Duration(path)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

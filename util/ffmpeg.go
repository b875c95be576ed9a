package util

import (
	"fmt"
	"os"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

// FFmpegEnv may point at an ffmpeg binary outside of $PATH.
const FFmpegEnv = "FFMPEG"

// LocateFFmpeg finds the ffmpeg binary, preferring $FFMPEG.
func LocateFFmpeg() (string, error) {
	if p := os.Getenv(FFmpegEnv); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%s=%q: %w", FFmpegEnv, p, err)
		}
		return p, nil
	}
	return exec.LookPath("ffmpeg")
}

func LocateFFmpegOrDie() string {
	p, err := LocateFFmpeg()
	if err != nil {
		log.Fatalf("Unable to locate ffmpeg binary: %v", err)
	}
	return p
}

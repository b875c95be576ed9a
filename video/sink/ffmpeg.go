package sink

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"xray/util"
	"xray/video/source"
)

const defaultReadyWindow = 4

type rawFrame struct {
	b []byte
	t time.Time
}

// FFmpegEncoder pipes raw BGR frames into an ffmpeg process. Frames are
// retimed to a constant rate on the way in.
type FFmpegEncoder struct {
	path string
	opts EncoderOptions
	bin  string
	args []string

	b    chan rawFrame
	done chan error
	norm *fpsNormalize

	l        sync.Mutex
	cmd      *exec.Cmd
	finished bool
	err      error
}

func ffmpegArgs(path string, o EncoderOptions) []string {
	codec := o.Codec
	if codec == "" {
		codec = "libx264"
	}
	out := ffmpeg.KwArgs{
		"c:v": codec,
		// Yuv420p keeps the file playable on the widest range of players.
		"pix_fmt": "yuv420p",
	}
	if o.Container != "" {
		out["f"] = o.Container
	}
	if codec == "libx264" {
		// Note that "preset" can be adjusted if the system is too slow to
		// handle encoding.
		out["preset"] = "superfast"
		out["crf"] = 30
	}
	if o.Container == "mp4" || o.Container == "mov" {
		// Allows seeking before the whole file has been downloaded.
		out["movflags"] = "+faststart"
	}
	return ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"f":       "rawvideo",
		"pix_fmt": "bgr24",
		"s":       fmt.Sprintf("%dx%d", o.Size.X, o.Size.Y),
		"r":       o.FPS,
	}).Output(path, out).OverWriteOutput().GetArgs()
}

// NewFFmpegEncoder prepares an ffmpeg process writing to path. The process
// is not started until Begin.
func NewFFmpegEncoder(path string, o EncoderOptions) (*FFmpegEncoder, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.Container == "" {
		o.Container = "mp4"
	}
	if o.ReadyWindow <= 0 {
		o.ReadyWindow = defaultReadyWindow
	}
	bin := o.FFmpegPath
	if bin == "" {
		var err error
		if bin, err = util.LocateFFmpeg(); err != nil {
			return nil, fmt.Errorf("locating ffmpeg: %w", err)
		}
	}
	return &FFmpegEncoder{
		path: path,
		opts: o,
		bin:  bin,
		args: ffmpegArgs(path, o),
		b:    make(chan rawFrame, o.ReadyWindow),
		done: make(chan error, 1),
		norm: newFPSNormalize(o.FPS),
	}, nil
}

func (f *FFmpegEncoder) Begin(t time.Time) error {
	f.l.Lock()
	defer f.l.Unlock()
	if f.cmd != nil || f.finished {
		return ErrFinished
	}

	c := exec.Command(f.bin, f.args...)
	stderr := log.StandardLogger().WriterLevel(log.DebugLevel)
	c.Stderr = stderr

	pipe, err := c.StdinPipe()
	if err != nil {
		stderr.Close()
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	if err := c.Start(); err != nil {
		stderr.Close()
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	f.cmd = c
	f.norm.start = t
	log.WithField("path", f.path).Debugf("ffmpeg started at %v: %v", t.Format(time.RFC3339Nano), f.args)

	go f.pump(pipe, stderr)
	return nil
}

func (f *FFmpegEncoder) pump(pipe io.WriteCloser, stderr io.Closer) {
	var werr error
	for in := range f.b {
		if werr != nil {
			// Keep draining so Append never blocks on a dead process.
			continue
		}
		for _, b := range f.norm.frames(in.b, in.t) {
			if _, err := pipe.Write(b); err != nil {
				werr = fmt.Errorf("writing to ffmpeg: %w", err)
				f.l.Lock()
				f.err = werr
				f.l.Unlock()
				break
			}
		}
	}
	pipe.Close()

	log.WithField("path", f.path).Debug("Waiting for ffmpeg shutdown.")
	err := f.cmd.Wait()
	stderr.Close()
	if err != nil {
		err = fmt.Errorf("ffmpeg exited: %w", err)
	} else if werr != nil {
		err = werr
	}
	f.done <- err
}

func (f *FFmpegEncoder) Ready() bool {
	f.l.Lock()
	defer f.l.Unlock()
	return f.cmd != nil && !f.finished && f.err == nil && len(f.b) < cap(f.b)
}

func (f *FFmpegEncoder) Append(input source.Image) error {
	if err := f.opts.checkFrame(input); err != nil {
		return err
	}
	f.l.Lock()
	defer f.l.Unlock()
	switch {
	case f.finished:
		return ErrFinished
	case f.cmd == nil:
		return ErrNotStarted
	case f.err != nil:
		return f.err
	case len(f.b) == cap(f.b):
		return ErrNotReady
	}
	select {
	case f.b <- rawFrame{b: input.Mat.ToBytes(), t: input.Time}:
		return nil
	default:
		return ErrNotReady
	}
}

func (f *FFmpegEncoder) Finish() error {
	f.l.Lock()
	if f.finished {
		f.l.Unlock()
		return ErrFinished
	}
	f.finished = true
	if f.cmd == nil {
		f.l.Unlock()
		return ErrNotStarted
	}
	close(f.b)
	f.l.Unlock()

	return <-f.done
}

package config

import (
	"fmt"
	"image"
	"time"
)

type Config struct {
	// URI of the capture device. Empty or a number selects a local camera
	// by index; anything else is opened as a stream or file.
	URI string `json:"uri" toml:"uri"`
	FPS int    `json:"fps" toml:"fps"`

	OutputDir  string `json:"output_dir" toml:"output_dir"`
	OutputName string `json:"output_name" toml:"output_name"`

	// Encoder selects the recording backend, "ffmpeg" or "opencv".
	Encoder string `json:"encoder" toml:"encoder"`
	// Codec is an ffmpeg codec name or an OpenCV fourcc, depending on Encoder.
	Codec     string `json:"codec" toml:"codec"`
	Container string `json:"container" toml:"container"`
	// ReadyWindow is the number of frames the encoder may hold before it
	// reports not ready.
	ReadyWindow int `json:"ready_window" toml:"ready_window"`

	ModelPath   string    `json:"model_path" toml:"model_path"`
	ModelConfig string    `json:"model_config" toml:"model_config"`
	LabelsPath  string    `json:"labels_path" toml:"labels_path"`
	ModelScale  float64   `json:"model_scale" toml:"model_scale"`
	ModelMean   []float64 `json:"model_mean" toml:"model_mean"`
	ModelSwapRB bool      `json:"model_swap_rb" toml:"model_swap_rb"`

	InputWidth    int    `json:"input_width" toml:"input_width"`
	InputHeight   int    `json:"input_height" toml:"input_height"`
	InputFormat   string `json:"input_format" toml:"input_format"`
	FallbackLabel string `json:"fallback_label" toml:"fallback_label"`
	Thumbnails    bool   `json:"thumbnails" toml:"thumbnails"`

	// DrainTimeoutMs bounds how long stopping waits for an in-flight
	// classification before results are handed off.
	DrainTimeoutMs int  `json:"drain_timeout_ms" toml:"drain_timeout_ms"`
	PreviewOverlay bool `json:"preview_overlay" toml:"preview_overlay"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{
		Thumbnails:     true,
		PreviewOverlay: true,
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.FPS == 0 {
		c.FPS = 30
	}
	if c.OutputDir == "" {
		c.OutputDir = "/tmp/xray"
	}
	if c.OutputName == "" {
		c.OutputName = "movie"
	}
	if c.Encoder == "" {
		c.Encoder = "ffmpeg"
	}
	if c.Container == "" {
		c.Container = "mp4"
	}
	if c.ReadyWindow == 0 {
		c.ReadyWindow = 4
	}
	if c.ModelScale == 0 {
		c.ModelScale = 1.0
	}
	if c.InputWidth == 0 {
		c.InputWidth = 227
	}
	if c.InputHeight == 0 {
		c.InputHeight = 227
	}
	if c.InputFormat == "" {
		c.InputFormat = "BGR"
	}
	if c.FallbackLabel == "" {
		c.FallbackLabel = "Unknown"
	}
	if c.DrainTimeoutMs == 0 {
		c.DrainTimeoutMs = 5000
	}
}

func (c *Config) validate() error {
	if c.FPS < 0 {
		return fmt.Errorf("invalid fps %d", c.FPS)
	}
	if c.InputWidth < 0 || c.InputHeight < 0 {
		return fmt.Errorf("invalid input size %dx%d", c.InputWidth, c.InputHeight)
	}
	switch c.Encoder {
	case "ffmpeg", "opencv":
	default:
		return fmt.Errorf("unknown encoder %q", c.Encoder)
	}
	if n := len(c.ModelMean); n != 0 && n != 3 {
		return fmt.Errorf("model_mean needs 3 values, got %d", n)
	}
	return nil
}

func (c *Config) InputSize() image.Point {
	return image.Point{X: c.InputWidth, Y: c.InputHeight}
}

func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutMs) * time.Millisecond
}

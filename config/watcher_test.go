package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestConfigFromFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		check   func(t *testing.T, c *Config)
		wantErr bool
	}{
		{
			name:    "json with defaults",
			file:    "config.json",
			content: `{"uri": "1", "model_path": "squeezenet.caffemodel"}`,
			check: func(t *testing.T, c *Config) {
				if c.URI != "1" {
					t.Errorf("URI = %q", c.URI)
				}
				if c.InputWidth != 227 || c.InputHeight != 227 {
					t.Errorf("input size = %dx%d, want 227x227", c.InputWidth, c.InputHeight)
				}
				if c.FallbackLabel != "Unknown" {
					t.Errorf("FallbackLabel = %q", c.FallbackLabel)
				}
				if c.Encoder != "ffmpeg" {
					t.Errorf("Encoder = %q", c.Encoder)
				}
			},
		},
		{
			name: "toml",
			file: "config.toml",
			content: `
encoder = "opencv"
codec = "mp4v"
input_width = 224
input_height = 224
input_format = "RGB"
drain_timeout_ms = 250
`,
			check: func(t *testing.T, c *Config) {
				if c.Encoder != "opencv" || c.Codec != "mp4v" {
					t.Errorf("encoder = %q/%q", c.Encoder, c.Codec)
				}
				if got := c.InputSize(); got.X != 224 || got.Y != 224 {
					t.Errorf("InputSize() = %v", got)
				}
				if c.DrainTimeout() != 250*time.Millisecond {
					t.Errorf("DrainTimeout() = %v", c.DrainTimeout())
				}
			},
		},
		{
			name:    "unknown encoder",
			file:    "bad.json",
			content: `{"encoder": "gstreamer"}`,
			wantErr: true,
		},
		{
			name:    "bad mean",
			file:    "mean.json",
			content: `{"model_mean": [1, 2]}`,
			wantErr: true,
		},
		{
			name:    "malformed",
			file:    "broken.json",
			content: `{"uri":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			writeFile(t, path, tt.content)
			c, err := configFromFile(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("configFromFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, c)
			}
		})
	}
}

func TestLoadReloads(t *testing.T) {
	defer Set(nil)

	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"preview_overlay": false, "drain_timeout_ms": 100}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := Load(ctx, path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if Get().DrainTimeoutMs != 100 {
		t.Fatalf("DrainTimeoutMs = %d, want 100", Get().DrainTimeoutMs)
	}

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, `{"preview_overlay": true, "drain_timeout_ms": 200}`)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if Get().DrainTimeoutMs == 200 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("config was not reloaded, DrainTimeoutMs = %d", Get().DrainTimeoutMs)
}

func TestGetDefault(t *testing.T) {
	Set(nil)
	c := Get()
	if c == nil {
		t.Fatal("Get() returned nil")
	}
	if c.OutputName != "movie" || c.Container != "mp4" {
		t.Errorf("unexpected defaults: %+v", c)
	}
}

package video

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var contentTypes = map[string]string{
	"mp4": "video/mp4",
	"mov": "video/quicktime",
	"avi": "video/x-msvideo",
	"mkv": "video/x-matroska",
}

// Filesystem resolves the single movie file recordings are written to.
// Each new recording replaces the previous one.
type Filesystem struct {
	BasePath string
	Name     string
	Ext      string
}

func NewFilesystem(path, name, ext string) (*Filesystem, error) {
	if name == "" || strings.ContainsRune(name, filepath.Separator) {
		return nil, fmt.Errorf("invalid movie name %q", name)
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return nil, errors.New("missing movie extension")
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	return &Filesystem{
		BasePath: path,
		Name:     name,
		Ext:      ext,
	}, nil
}

func (f *Filesystem) MoviePath() string {
	return filepath.Join(f.BasePath, f.Name+"."+f.Ext)
}

func (f *Filesystem) ContentType() string {
	if t, ok := contentTypes[f.Ext]; ok {
		return t
	}
	return "application/octet-stream"
}

// removeIfExists deletes path, treating a missing file as success.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

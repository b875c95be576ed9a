package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "classify", "probe"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("command %q not registered: %v", name, err)
		}
	}
}

func TestProbeMissingMovie(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"probe", filepath.Join(t.TempDir(), "missing.mp4")})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "missing.mp4") {
		t.Errorf("Execute = %v", err)
	}
}

func TestClassifyArgs(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"classify"})
	if err := root.Execute(); err == nil {
		t.Error("classify without an image succeeded")
	}
}

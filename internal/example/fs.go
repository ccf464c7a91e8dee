package example

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"
)

// ArtifactName builds the stable, collision-free artifact file name for a
// signal bar. Repeated runs over the same data land on the same name, so
// re-extraction overwrites rather than accumulates.
func ArtifactName(symbol, interval string, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%d.png", symbol, interval, ts.Unix())
}

// FSSink writes artifacts into a directory and returns references under a
// URL prefix the API serves them from.
type FSSink struct {
	dir    string
	prefix string
}

// NewFSSink ensures dir exists. prefix is prepended to each returned
// reference, e.g. "/examples".
func NewFSSink(dir, prefix string) (*FSSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact dir: %w", err)
	}
	return &FSSink{dir: dir, prefix: prefix}, nil
}

// Dir returns the sink's directory for static file serving.
func (f *FSSink) Dir() string { return f.dir }

// Write persists one artifact atomically via a temp file rename.
func (f *FSSink) Write(name string, data []byte) (string, error) {
	final := filepath.Join(f.dir, name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publish artifact %s: %w", name, err)
	}
	return path.Join(f.prefix, name), nil
}

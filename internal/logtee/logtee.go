// Package logtee duplicates a process output stream into a per-rank log file.
package logtee

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Tee forwards every write to a primary sink first, then to a backing file.
// No buffering is added beyond what the underlying sinks perform; errors
// from either sink propagate to the caller unchanged.
type Tee struct {
	primary io.Writer
	file    *os.File
}

// New opens path in truncate-write mode and returns a tee over primary.
func New(primary io.Writer, path string) (*Tee, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("logtee: open sink: %w", err)
	}
	return &Tee{primary: primary, file: f}, nil
}

// Write forwards p to the primary sink, then to the file sink.
func (t *Tee) Write(p []byte) (int, error) {
	n, err := t.primary.Write(p)
	if err != nil {
		return n, err
	}
	return t.file.Write(p)
}

// Flush flushes both sinks, primary first.
func (t *Tee) Flush() error {
	if s, ok := t.primary.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return err
		}
	}
	return t.file.Sync()
}

// Close closes both sinks, primary first. Callers that must keep the
// primary stream open (the capture below does) close the file directly.
func (t *Tee) Close() error {
	if c, ok := t.primary.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return t.file.Close()
}

// StdoutPath returns the deterministic per-rank stdout log path under dir.
func StdoutPath(dir string, rank int) string {
	return filepath.Join(dir, fmt.Sprintf("stdout%d.log", rank))
}

// StderrPath returns the deterministic per-rank stderr log path under dir.
func StderrPath(dir string, rank int) string {
	return filepath.Join(dir, fmt.Sprintf("stderr%d.log", rank))
}

package logtee

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Capture redirects os.Stdout and os.Stderr through tees so that every byte
// written to either stream lands both on the original stream and in a
// per-rank log file. Release restores the originals, drains in-flight
// writes, and closes the log files.
//
// Installation is guarded: while a capture is active, CaptureStdio returns
// the active capture instead of wrapping the streams a second time.
type Capture struct {
	mu       sync.Mutex
	released bool

	origStdout *os.File
	origStderr *os.File

	stdoutPipe *os.File
	stderrPipe *os.File

	stdoutTee *Tee
	stderrTee *Tee

	done chan struct{}
}

var (
	installMu sync.Mutex
	active    *Capture
)

// CaptureStdio installs the redirection for the given rank, writing
// stdout<rank>.log and stderr<rank>.log under dir. Calling it while a
// capture is already active returns the active capture unchanged.
func CaptureStdio(dir string, rank int) (*Capture, error) {
	installMu.Lock()
	defer installMu.Unlock()
	if active != nil {
		return active, nil
	}

	c := &Capture{
		origStdout: os.Stdout,
		origStderr: os.Stderr,
		done:       make(chan struct{}, 2),
	}

	outTee, err := New(c.origStdout, StdoutPath(dir, rank))
	if err != nil {
		return nil, err
	}
	errTee, err := New(c.origStderr, StderrPath(dir, rank))
	if err != nil {
		outTee.file.Close()
		return nil, err
	}
	c.stdoutTee = outTee
	c.stderrTee = errTee

	outR, outW, err := os.Pipe()
	if err != nil {
		outTee.file.Close()
		errTee.file.Close()
		return nil, fmt.Errorf("logtee: stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		outTee.file.Close()
		errTee.file.Close()
		return nil, fmt.Errorf("logtee: stderr pipe: %w", err)
	}
	c.stdoutPipe = outW
	c.stderrPipe = errW

	go c.copyLoop(outR, outTee)
	go c.copyLoop(errR, errTee)

	os.Stdout = outW
	os.Stderr = errW

	active = c
	return c, nil
}

func (c *Capture) copyLoop(r *os.File, t *Tee) {
	// A single copier per stream keeps duplication order-preserving.
	io.Copy(t, r)
	r.Close()
	c.done <- struct{}{}
}

// Release restores the original streams, waits for buffered writes to reach
// both sinks, and closes the log files. Calling it again is a no-op.
func (c *Capture) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	c.released = true

	installMu.Lock()
	os.Stdout = c.origStdout
	os.Stderr = c.origStderr
	if active == c {
		active = nil
	}
	installMu.Unlock()

	// Closing the write ends unblocks the copiers at EOF.
	c.stdoutPipe.Close()
	c.stderrPipe.Close()
	<-c.done
	<-c.done

	if err := c.stdoutTee.file.Close(); err != nil {
		return err
	}
	return c.stderrTee.file.Close()
}

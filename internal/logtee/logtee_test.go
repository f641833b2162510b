package logtee

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeeDuplicatesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	primary := &bytes.Buffer{}

	tee, err := New(primary, path)
	require.NoError(t, err)

	writes := []string{"step=1 loss=0.91\n", "", "partial", " line\n", "done\n"}
	var want bytes.Buffer
	for _, w := range writes {
		n, err := tee.Write([]byte(w))
		require.NoError(t, err)
		require.Equal(t, len(w), n)
		want.WriteString(w)
	}
	require.NoError(t, tee.Flush())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want.String(), primary.String())
	assert.Equal(t, primary.String(), string(got), "file sink must receive the exact byte sequence of the primary sink")
}

func TestTeeTruncatesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	require.NoError(t, os.WriteFile(path, []byte("stale content"), 0o644))

	tee, err := New(&bytes.Buffer{}, path)
	require.NoError(t, err)
	_, err = tee.Write([]byte("fresh"))
	require.NoError(t, err)
	require.NoError(t, tee.file.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

func TestStreamPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("/logs", "stdout0.log"), StdoutPath("/logs", 0))
	assert.Equal(t, filepath.Join("/logs", "stderr3.log"), StderrPath("/logs", 3))
}

func TestCaptureStdioRoundTrip(t *testing.T) {
	dir := t.TempDir()
	origStdout := os.Stdout
	origStderr := os.Stderr

	capture, err := CaptureStdio(dir, 0)
	require.NoError(t, err)

	fmt.Fprintln(os.Stdout, "GPU relative performance check line")
	fmt.Fprintln(os.Stderr, "stderr check line")

	require.NoError(t, capture.Release())

	assert.Same(t, origStdout, os.Stdout, "stdout must be restored after release")
	assert.Same(t, origStderr, os.Stderr, "stderr must be restored after release")

	outContent, err := os.ReadFile(StdoutPath(dir, 0))
	require.NoError(t, err)
	errContent, err := os.ReadFile(StderrPath(dir, 0))
	require.NoError(t, err)
	assert.Contains(t, string(outContent), "GPU relative performance check line")
	assert.Contains(t, string(errContent), "stderr check line")
	assert.NotContains(t, string(outContent), "stderr check line")
}

func TestCaptureStdioIdempotentInstall(t *testing.T) {
	dir := t.TempDir()

	first, err := CaptureStdio(dir, 0)
	require.NoError(t, err)
	second, err := CaptureStdio(dir, 0)
	require.NoError(t, err)
	assert.Same(t, first, second, "a second install while active must return the active capture")

	require.NoError(t, first.Release())
	require.NoError(t, first.Release(), "release must be a no-op when called twice")
}

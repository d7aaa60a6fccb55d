package recorder

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/erg.report/internal/fsutil"
	"github.com/banshee-data/erg.report/internal/timeutil"
)

func writeRaw(t *testing.T, mem *fsutil.MemoryFileSystem, gzip bool, deltas ...float64) string {
	t.Helper()
	require.NoError(t, mem.MkdirAll("/data", 0o755))
	r := NewRawRecorder(gzip)
	for _, dt := range deltas {
		r.RecordImpulse(dt)
	}
	require.NoError(t, r.Write(mem, "/data/session"))
	return r.FileName("/data/session")
}

func writeFile(mem *fsutil.MemoryFileSystem, name, content string) error {
	w, err := mem.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, content); err != nil {
		return err
	}
	return w.Close()
}

func collect(t *testing.T, out chan float64, n int) []float64 {
	t.Helper()
	var got []float64
	for len(got) < n {
		select {
		case dt := <-out:
			got = append(got, dt)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %v", got)
		}
	}
	return got
}

func TestReplay(t *testing.T) {
	for _, gzip := range []bool{false, true} {
		mem := fsutil.NewMemoryFileSystem()
		path := writeRaw(t, mem, gzip, 4, 3.5, 2.75)
		clock := timeutil.NewMockClock(epoch)

		out := make(chan float64, 3)
		err := Replay(context.Background(), mem, path, ReplayOptions{Realtime: true, Clock: clock}, out)
		require.NoError(t, err)
		assert.Equal(t, []float64{4, 3.5, 2.75}, collect(t, out, 3))
		assert.Equal(t, []time.Duration{4 * time.Second, 3500 * time.Millisecond, 2750 * time.Millisecond}, clock.Sleeps())
	}
}

func TestReplay_Loop(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	path := writeRaw(t, mem, true, 6, 5)

	out := make(chan float64)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Replay(ctx, mem, path, ReplayOptions{Loop: true}, out) }()

	assert.Equal(t, []float64{6, 5, 6, 5, 6}, collect(t, out, 5))
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestReplay_Errors(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	out := make(chan float64, 1)

	err := Replay(context.Background(), mem, "/missing.csv", ReplayOptions{}, out)
	assert.ErrorContains(t, err, "failed to open recording")

	require.NoError(t, writeFile(mem, "/empty.csv", "# nothing\n"))
	err = Replay(context.Background(), mem, "/empty.csv", ReplayOptions{}, out)
	assert.ErrorIs(t, err, ErrEmptyRecording)

	require.NoError(t, writeFile(mem, "/bad.csv.gz", "not gzip"))
	err = Replay(context.Background(), mem, "/bad.csv.gz", ReplayOptions{}, out)
	assert.ErrorContains(t, err, "gzip")
}

package recorder

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tormoder/fit"

	"github.com/banshee-data/erg.report/internal/fsutil"
	"github.com/banshee-data/erg.report/internal/statistics"
	"github.com/banshee-data/erg.report/internal/testutil"
)

var epoch = testutil.Epoch

const base = "/data/2026-03-01_07.30.00"

func newMemManager(t *testing.T) (*Manager, *fsutil.MemoryFileSystem) {
	t.Helper()
	mem := fsutil.NewMemoryFileSystem()
	m := NewManager(Options{Directory: "/data", Raw: true, Gzip: true, Fit: true, Log: true, FS: mem})
	return m, mem
}

func TestManager_RecordsASession(t *testing.T) {
	run := testutil.RowPlan(t, testutil.SplitPiece())
	m, mem := newMemManager(t)

	for _, dt := range run.Deltas {
		m.RecordImpulse(dt)
	}
	for _, rec := range run.Records {
		require.NoError(t, m.RecordMetrics(rec))
	}

	got, ok := m.Base()
	require.True(t, ok)
	assert.Equal(t, base, got)

	names, err := mem.ReadDir("/data")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2026-03-01_07.30.00.fit",
		"2026-03-01_07.30.00.log",
		"2026-03-01_07.30.00_raw.csv.gz",
	}, names)

	t.Run("raw", func(t *testing.T) {
		data, err := mem.ReadFile(base + "_raw.csv.gz")
		require.NoError(t, err)
		zr, err := gzip.NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		plain, err := io.ReadAll(zr)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(plain)), "\n")
		assert.Len(t, lines, len(run.Deltas))
	})

	t.Run("fit", func(t *testing.T) {
		data, err := mem.ReadFile(base + ".fit")
		require.NoError(t, err)
		decoded, err := fit.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		activity, err := decoded.Activity()
		require.NoError(t, err)

		strokes := len(run.Strokes())
		require.Positive(t, strokes)
		assert.Len(t, activity.Records, strokes)
		require.Len(t, activity.Sessions, 1)
		summary := activity.Sessions[0]
		assert.Equal(t, fit.SportRowing, summary.Sport)
		assert.Equal(t, fit.SubSportIndoorRowing, summary.SubSport)
		assert.InDelta(t, 60, summary.GetTotalDistanceScaled(), 1)
		assert.Len(t, activity.Laps, 3)
		for _, lap := range activity.Laps {
			assert.InDelta(t, 20, lap.GetTotalDistanceScaled(), 1)
		}
	})

	t.Run("log", func(t *testing.T) {
		data, err := mem.ReadFile(base + ".log")
		require.NoError(t, err)
		log := string(data)
		assert.Contains(t, log, "session started (distance)")
		assert.Contains(t, log, "split 1 done")
		assert.Contains(t, log, "split 2 done")
		assert.Contains(t, log, "session stopped: 60 m")
		assert.Contains(t, log, "/500m")
	})
}

func TestManager_ResetClosesTheRecording(t *testing.T) {
	run := testutil.RowPlan(t, testutil.SplitPiece())
	m, mem := newMemManager(t)
	for _, dt := range run.Deltas {
		m.RecordImpulse(dt)
	}
	// everything but the stop, so the reset is what writes the files
	for _, rec := range run.Records {
		if rec.Context.IsSessionStop {
			break
		}
		require.NoError(t, m.RecordMetrics(rec))
	}
	require.False(t, mem.Exists(base+".fit"))

	reset := statistics.Metrics{SessionStatus: "WaitingForStart"}
	reset.Context.IsPauseStart = true
	require.NoError(t, m.RecordMetrics(reset))
	assert.True(t, mem.Exists(base+".fit"))
	_, ok := m.Base()
	assert.False(t, ok)

	// nothing left to write
	require.NoError(t, m.Flush())
}

func TestManager_ShortSessionsLeaveNoFiles(t *testing.T) {
	m, mem := newMemManager(t)
	require.NoError(t, m.Flush())
	assert.False(t, mem.Exists("/data"))

	start := statistics.Metrics{Timestamp: epoch, SessionStatus: "Rowing"}
	start.Context.IsSessionStart = true
	start.Context.IsMoving = true
	require.NoError(t, m.RecordMetrics(start))
	m.RecordImpulse(2.5)

	stop := statistics.Metrics{Timestamp: epoch.Add(3 * time.Second), TotalMovingTime: 3, SessionStatus: "Stopped"}
	stop.Context.IsSessionStop = true
	require.NoError(t, m.RecordMetrics(stop))

	names, err := mem.ReadDir("/data")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-01_07.30.00.log"}, names)
}

func TestManager_RunFlushesOnExit(t *testing.T) {
	run := testutil.RowPlan(t, testutil.SplitPiece())
	dir := t.TempDir()
	m := NewManager(Options{Directory: dir, Raw: true})

	impulses := make(chan float64, len(run.Deltas))
	metrics := make(chan statistics.Metrics, len(run.Records))
	for _, dt := range run.Deltas {
		impulses <- dt
	}
	close(impulses)
	for _, rec := range run.Records {
		if !rec.Context.IsSessionStop {
			metrics <- rec
		}
	}
	close(metrics)

	require.NoError(t, m.Run(context.Background(), impulses, metrics))
	data, err := fsutil.OSFileSystem{}.ReadFile(filepath.Join(dir, "2026-03-01_07.30.00_raw.csv"))
	require.NoError(t, err)
	assert.Equal(t, len(run.Deltas), strings.Count(string(data), "\n"))
}

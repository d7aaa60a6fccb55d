// Package recorder persists sessions to disk: the raw impulse stream, a FIT
// activity and a human readable log. Files are named after the session start
// and rewritten at every pause and stop so a crash loses little.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/erg.report/internal/fsutil"
	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/security"
	"github.com/banshee-data/erg.report/internal/statistics"
)

// fileTimeLayout names session files, e.g. 2026-03-01_07.30.00.
const fileTimeLayout = "2006-01-02_15.04.05"

// Recorder is one output format.
type Recorder interface {
	RecordImpulse(dt float64)
	RecordMetrics(m statistics.Metrics)
	// Write persists everything recorded so far to files starting with base,
	// replacing an earlier write.
	Write(fsys fsutil.FileSystem, base string) error
	Reset()
}

// Options selects the recorders a Manager runs.
type Options struct {
	Directory string
	Raw       bool
	Gzip      bool
	Fit       bool
	Log       bool
	FS        fsutil.FileSystem
}

// Manager feeds impulses and session records to its recorders and decides
// when their files are written.
type Manager struct {
	fsys      fsutil.FileSystem
	dir       string
	recorders []Recorder
	start     statistics.Metrics
	started   bool
}

// NewManager creates a Manager writing into opts.Directory.
func NewManager(opts Options) *Manager {
	m := &Manager{fsys: opts.FS, dir: opts.Directory}
	if m.fsys == nil {
		m.fsys = fsutil.OSFileSystem{}
	}
	if opts.Raw {
		m.recorders = append(m.recorders, NewRawRecorder(opts.Gzip))
	}
	if opts.Fit {
		m.recorders = append(m.recorders, NewFitRecorder())
	}
	if opts.Log {
		m.recorders = append(m.recorders, NewLogRecorder())
	}
	return m
}

// Run records until ctx is done or both channels are closed, then writes the
// files a final time.
func (m *Manager) Run(ctx context.Context, impulses <-chan float64, metrics <-chan statistics.Metrics) error {
	defer func() {
		if err := m.Flush(); err != nil {
			monitoring.Errorf("recorder: final write failed: %v", err)
		}
	}()
	for impulses != nil || metrics != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dt, ok := <-impulses:
			if !ok {
				impulses = nil
				continue
			}
			m.RecordImpulse(dt)
		case rec, ok := <-metrics:
			if !ok {
				metrics = nil
				continue
			}
			if err := m.RecordMetrics(rec); err != nil {
				monitoring.Errorf("recorder: %v", err)
			}
		}
	}
	return nil
}

func (m *Manager) RecordImpulse(dt float64) {
	for _, r := range m.recorders {
		r.RecordImpulse(dt)
	}
}

// RecordMetrics forwards a session record and writes the files on pauses,
// stops and resets. A reset is the only pause start while waiting for a
// start; it closes the current recording.
func (m *Manager) RecordMetrics(rec statistics.Metrics) error {
	isReset := rec.Context.IsPauseStart && rec.SessionStatus == "WaitingForStart"
	if isReset {
		err := m.Flush()
		m.Reset()
		return err
	}

	if rec.Context.IsSessionStart && !m.started {
		m.start = rec
		m.started = true
	}
	for _, r := range m.recorders {
		r.RecordMetrics(rec)
	}
	if rec.Context.IsPauseStart || rec.Context.IsSessionStop {
		return m.Flush()
	}
	return nil
}

// Flush writes every recorder's files. Nothing is written before a session
// has started.
func (m *Manager) Flush() error {
	base, ok := m.Base()
	if !ok {
		return nil
	}
	if err := m.fsys.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create recording directory: %w", err)
	}
	var errs []error
	for _, r := range m.recorders {
		if err := r.Write(m.fsys, base); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Base returns the path prefix of the current session's files.
func (m *Manager) Base() (string, bool) {
	if !m.started {
		return "", false
	}
	name := security.SanitizeFilename(m.start.Timestamp.Format(fileTimeLayout))
	return filepath.Join(m.dir, name), true
}

// Reset discards everything recorded so far.
func (m *Manager) Reset() {
	for _, r := range m.recorders {
		r.Reset()
	}
	m.start = statistics.Metrics{}
	m.started = false
}

package recorder

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/banshee-data/erg.report/internal/fsutil"
	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/statistics"
)

// minimumRawDuration keeps accidental pulls of the handle from leaving files
// behind.
const minimumRawDuration = 10.0

// RawRecorder keeps every impulse delta, one per line, in the same format the
// serial sensor sends and Replay reads.
type RawRecorder struct {
	gzip     bool
	deltas   []float64
	duration float64
}

func NewRawRecorder(gzip bool) *RawRecorder {
	return &RawRecorder{gzip: gzip}
}

func (r *RawRecorder) RecordImpulse(dt float64) {
	r.deltas = append(r.deltas, dt)
	r.duration += dt
}

func (r *RawRecorder) RecordMetrics(statistics.Metrics) {}

// FileName returns the raw file name for base.
func (r *RawRecorder) FileName(base string) string {
	if r.gzip {
		return base + "_raw.csv.gz"
	}
	return base + "_raw.csv"
}

func (r *RawRecorder) Write(fsys fsutil.FileSystem, base string) error {
	if r.duration < minimumRawDuration {
		monitoring.Debugf("recorder: %.1f s of impulses is too short for a raw file", r.duration)
		return nil
	}
	name := r.FileName(base)
	err := fsutil.WriteAtomic(fsys, name, func(w io.Writer) error {
		if !r.gzip {
			return r.writeLines(w)
		}
		zw := gzip.NewWriter(w)
		if err := r.writeLines(zw); err != nil {
			return err
		}
		return zw.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to write raw file: %w", err)
	}
	monitoring.Infof("recorder: wrote %d impulses to %s", len(r.deltas), name)
	return nil
}

func (r *RawRecorder) writeLines(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, dt := range r.deltas {
		bw.WriteString(strconv.FormatFloat(dt, 'f', -1, 64))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func (r *RawRecorder) Reset() {
	r.deltas = nil
	r.duration = 0
}

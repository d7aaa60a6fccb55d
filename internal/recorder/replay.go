package recorder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/banshee-data/erg.report/internal/fsutil"
	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/serialmux"
	"github.com/banshee-data/erg.report/internal/timeutil"
)

var ErrEmptyRecording = errors.New("recording holds no impulses")

// ReplayOptions control the pace of a replay.
type ReplayOptions struct {
	// Realtime sleeps each delta before sending it; otherwise impulses are
	// sent as fast as the receiver takes them.
	Realtime bool
	// Loop restarts the recording at its end until ctx is done.
	Loop  bool
	Clock timeutil.Clock
}

// Replay reads a raw recording, gzipped or not, and sends its impulses to out.
func Replay(ctx context.Context, fsys fsutil.FileSystem, path string, opts ReplayOptions, out chan<- float64) error {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	for {
		n, err := replayOnce(ctx, fsys, path, opts, out)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s: %w", path, ErrEmptyRecording)
		}
		monitoring.Infof("replay: sent %d impulses from %s", n, path)
		if !opts.Loop {
			return nil
		}
	}
}

func replayOnce(ctx context.Context, fsys fsutil.FileSystem, path string, opts ReplayOptions, out chan<- float64) (int, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if fsutil.HasExtension(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("failed to read gzip header of %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	n := 0
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		dt, err := serialmux.ParseImpulse(scan.Text())
		if err != nil {
			continue
		}
		if opts.Realtime {
			opts.Clock.Sleep(time.Duration(dt * float64(time.Second)))
		}
		select {
		case out <- dt:
			n++
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
	if err := scan.Err(); err != nil {
		return n, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return n, nil
}

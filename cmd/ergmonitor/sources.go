package main

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/erg.report/internal/config"
	"github.com/banshee-data/erg.report/internal/ergsim"
	"github.com/banshee-data/erg.report/internal/fsutil"
	"github.com/banshee-data/erg.report/internal/gpio"
	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/recorder"
	"github.com/banshee-data/erg.report/internal/serialmux"
	"github.com/banshee-data/erg.report/internal/timeutil"
)

// impulseSource sends impulse deltas in seconds to out until ctx is done or
// the source runs dry.
type impulseSource func(ctx context.Context, out chan<- float64) error

// sourceOptions are the resolved input settings.
type sourceOptions struct {
	Name       string
	SerialPort string
	BaudRate   int
	GPIOPin    string
	ReplayFile string
	Settings   config.RowerSettings
}

// newSource builds the named impulse source. The returned mux carries the
// serial admin routes; sources without a serial port get a disabled one.
func newSource(opts sourceOptions) (impulseSource, serialmux.SerialMuxInterface, error) {
	switch opts.Name {
	case "serial":
		mux, err := serialmux.NewRealSerialMux(opts.SerialPort, serialmux.PortOptions{BaudRate: opts.BaudRate})
		if err != nil {
			return nil, nil, err
		}
		return serialSource(mux), mux, nil

	case "gpio":
		pin, err := gpio.Open(opts.GPIOPin)
		if err != nil {
			return nil, nil, err
		}
		debounce := time.Duration(opts.Settings.MinimumTimeBetweenImpulses * float64(time.Second))
		w := gpio.NewWatcher(pin, timeutil.RealClock{}, debounce)
		return w.Run, serialmux.NewDisabledSerialMux(), nil

	case "replay":
		if opts.ReplayFile == "" {
			return nil, nil, fmt.Errorf("the replay source needs a recording (-replay)")
		}
		return replaySource(fsutil.OSFileSystem{}, opts.ReplayFile, timeutil.RealClock{}), serialmux.NewDisabledSerialMux(), nil

	case "simulate":
		return simulateSource(opts.Settings, timeutil.RealClock{}), serialmux.NewDisabledSerialMux(), nil
	}
	return nil, nil, fmt.Errorf("unknown input source %q (want serial, gpio, replay or simulate)", opts.Name)
}

// serialSource runs the port monitor and parses its lines.
func serialSource(mux serialmux.SerialMuxInterface) impulseSource {
	return func(ctx context.Context, out chan<- float64) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		errc := make(chan error, 1)
		go func() {
			errc <- mux.Monitor(ctx)
			cancel()
		}()
		err := serialmux.PumpImpulses(ctx, mux, out)
		cancel()
		if merr := <-errc; merr != nil && merr != context.Canceled {
			return fmt.Errorf("failed to monitor serial port: %w", merr)
		}
		return err
	}
}

func replaySource(fsys fsutil.FileSystem, path string, clock timeutil.Clock) impulseSource {
	return func(ctx context.Context, out chan<- float64) error {
		return recorder.Replay(ctx, fsys, path, recorder.ReplayOptions{Realtime: true, Clock: clock}, out)
	}
}

// simulated piece: steady strokes with a rest every strokesPerBlock strokes
const (
	simulatedDrag   = 100e-6
	strokesPerBlock = 100
	restSeconds     = 10
)

var simulatedStroke = ergsim.Stroke{DriveTime: 0.8, RecoveryTime: 1.6, PeakTorque: 5.7}

// simulateSource rows the flywheel simulator in real time: blocks of steady
// strokes separated by rests long enough to pause the session.
func simulateSource(s config.RowerSettings, clock timeutil.Clock) impulseSource {
	return func(ctx context.Context, out chan<- float64) error {
		sim := ergsim.New(s.FlywheelInertia, simulatedDrag, s.NumOfImpulsesPerRevolution)
		sim.SetAngularVelocity(120)
		monitoring.Infof("simulate: rowing at %.0f spm", 60/(simulatedStroke.DriveTime+simulatedStroke.RecoveryTime))

		send := func(deltas []float64) error {
			for _, dt := range deltas {
				clock.Sleep(time.Duration(dt * float64(time.Second)))
				select {
				case out <- dt:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		}
		for {
			for i := 0; i < strokesPerBlock; i++ {
				if err := send(sim.Row(simulatedStroke)); err != nil {
					return err
				}
			}
			if err := send(sim.Coast(restSeconds)); err != nil {
				return err
			}
			// a stopped flywheel sends nothing; wait out the rest of the pause
			rest := clock.NewTimer(restSeconds * time.Second)
			select {
			case <-ctx.Done():
				rest.Stop()
				return ctx.Err()
			case <-rest.C():
			}
			sim.SetAngularVelocity(120)
		}
	}
}

// tee copies every impulse to each output and closes them when in is closed
// or ctx is done. A slow output holds up the others.
func tee(ctx context.Context, in <-chan float64, outs ...chan<- float64) {
	defer func() {
		for _, out := range outs {
			close(out)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case dt, ok := <-in:
			if !ok {
				return
			}
			for _, out := range outs {
				select {
				case out <- dt:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

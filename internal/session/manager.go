// Package session runs one rowing session. A Manager owns the metrics
// aggregator and the workout segments, applies impulses, commands and timer
// expirations in arrival order, and fans every enriched record out to its
// subscribers.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/erg.report/internal/config"
	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/regression"
	"github.com/banshee-data/erg.report/internal/rower"
	"github.com/banshee-data/erg.report/internal/statistics"
	"github.com/banshee-data/erg.report/internal/timeutil"
	"github.com/banshee-data/erg.report/internal/workout"
)

const (
	// pauseTick is the resolution of the rest interval countdown.
	pauseTick = 100 * time.Millisecond

	defaultSubscriberBuffer = 256
)

// Options tune a Manager. The zero value is usable.
type Options struct {
	// Averaging is the number of phases displayed metrics are averaged over.
	Averaging int
	// RebroadcastInterval re-emits the last record on a ticker so idle
	// displays refresh. Zero disables it.
	RebroadcastInterval time.Duration
	Clock               timeutil.Clock
	// SubscriberBuffer is the capacity of each subscription channel.
	SubscriberBuffer int
}

// Manager is the single owner of a session's state. All methods except
// Subscribe, Unsubscribe and Last must be called from one goroutine, which is
// what Run does.
type Manager struct {
	clock               timeutil.Clock
	agg                 *statistics.Aggregator
	watchdogTimeout     time.Duration
	rebroadcastInterval time.Duration
	buffer              int

	state    State
	metrics  statistics.Metrics
	previous statistics.Metrics

	plan                  []workout.Interval
	intervalNumber        int
	interval              *workout.Segment
	intervalAndPause      *workout.Segment
	split                 *workout.Segment
	intervalAndPauseStart time.Time
	splitNumber           int
	// (moving time, distance) at phase boundaries
	distanceOverTime *regression.OLS

	pauseCountdown float64
	pauseTimer     timeutil.Timer
	watchdog       timeutil.Timer
	shutdown       bool

	mu          sync.Mutex
	subscribers map[string]chan statistics.Metrics
	last        statistics.Metrics
}

// NewManager creates a session for a machine and emits its initial record.
func NewManager(settings config.RowerSettings, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Averaging < 1 {
		opts.Averaging = 1
	}
	if opts.SubscriberBuffer < 1 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}

	m := &Manager{
		clock:               opts.Clock,
		agg:                 statistics.New(settings, opts.Averaging),
		watchdogTimeout:     seconds(settings.MaximumStrokeTimeBeforePause),
		rebroadcastInterval: opts.RebroadcastInterval,
		buffer:              opts.SubscriberBuffer,

		state:            WaitingForStart,
		intervalNumber:   -1,
		interval:         workout.NewSegment(),
		intervalAndPause: workout.NewSegment(),
		split:            workout.NewSegment(),
		distanceOverTime: regression.NewOLS(min(4, opts.Averaging)),
		subscribers:      make(map[string]chan statistics.Metrics),
	}
	m.intervalAndPauseStart = m.clock.Now()
	m.metrics = m.agg.Metrics()
	m.metrics.Context.ResetSession()
	m.interval.SetStart(m.metrics)
	m.intervalAndPause.SetStart(m.metrics)
	m.split.SetStart(m.metrics)
	m.previous = m.metrics
	m.emit(m.metrics)
	return m
}

// Run applies impulses and commands until ctx is done or a shutdown command
// has been handled. Closed input channels are ignored. Subscriber channels are
// closed when Run returns.
func (m *Manager) Run(ctx context.Context, impulses <-chan float64, commands <-chan Command) error {
	defer m.closeSubscribers()
	defer timeutil.StopTimer(m.watchdog)
	defer timeutil.StopTimer(m.pauseTimer)

	var rebroadcast <-chan time.Time
	if m.rebroadcastInterval > 0 {
		ticker := m.clock.NewTicker(m.rebroadcastInterval)
		defer ticker.Stop()
		rebroadcast = ticker.C()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dt, ok := <-impulses:
			if !ok {
				impulses = nil
				continue
			}
			m.HandleRotationImpulse(dt)
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			m.HandleCommand(cmd)
			if m.shutdown {
				return nil
			}
		case <-timerC(m.watchdog):
			m.onWatchdogTimeout()
		case <-timerC(m.pauseTimer):
			m.onPauseTimer()
		case <-rebroadcast:
			m.rebroadcast()
		}
	}
}

// HandleRotationImpulse processes one impulse delta in seconds and emits the
// resulting record, preceded by a synthetic boundary record when an interval
// or split target was crossed.
func (m *Manager) HandleRotationImpulse(dt float64) {
	if m.shutdown {
		return
	}
	timeutil.StopTimer(m.watchdog)

	m.metrics = m.agg.HandleRotationImpulse(dt)
	ctx := &m.metrics.Context
	ctx.ResetSession()
	if ctx.IsMoving && (ctx.IsDriveStart || ctx.IsRecoveryStart) {
		m.distanceOverTime.Push(m.metrics.TotalMovingTime, m.metrics.TotalLinearDistance)
	}

	strokeState := m.metrics.StrokeState
	switch {
	case m.state == WaitingForStart && ctx.IsMoving:
		m.startOrResume(m.metrics)
		m.state = Rowing
		ctx.IsIntervalStart = true
		ctx.IsSessionStart = true
	case m.state == WaitingForStart:
		// no drive yet
	case m.state == Paused && ctx.IsMoving:
		m.startOrResume(m.metrics)
		m.state = Rowing
		ctx.IsIntervalStart = true
		ctx.IsPauseEnd = true
	case m.state == Paused:
	case m.state != Stopped && strokeState == rower.Stopped:
		// the metrics are already zeroed by the aggregator
		m.stopTraining()
		m.state = Stopped
		ctx.IsSessionStop = true
	case m.state == Stopped:
	case m.state == Rowing && strokeState == rower.WaitingForDrive:
		m.pauseTraining()
		m.state = Paused
		ctx.IsPauseStart = true
	case m.state == Rowing && ctx.IsMoving && m.interval.IsEndReached(m.metrics) && m.isNextIntervalActive():
		// an interval boundary also closes the running split
		m.splitNumber++
		boundary := m.interval.InterpolateEnd(m.previous, m.metrics)
		if boundary.Modified {
			boundary.Context.ResetSession()
			m.activateNextInterval(boundary)
			boundary.Context.IsIntervalStart = true
			boundary.Context.IsSplitEnd = true
			m.emit(boundary)
		} else {
			m.activateNextInterval(m.metrics)
			ctx.IsIntervalStart = true
			ctx.IsSplitEnd = true
		}
	case m.state == Rowing && ctx.IsMoving && m.interval.IsEndReached(m.metrics) && m.isNextIntervalAvailable():
		// the next interval is a rest
		m.stopTraining()
		m.splitNumber++
		m.intervalNumber++
		m.state = Paused
		boundary := m.interval.InterpolateEnd(m.previous, m.metrics)
		flagged := &m.metrics
		if boundary.Modified {
			boundary.Context.ResetSession()
			flagged = &boundary
		}
		flagged.Context.IsIntervalStart = true
		flagged.Context.IsSplitEnd = true
		flagged.Context.IsPauseStart = true
		m.interval.SetStart(*flagged)
		m.interval.SetEnd(m.plan[m.intervalNumber])
		if boundary.Modified {
			m.emit(boundary)
		}
		m.pauseCountdown, _ = m.interval.TimeToEnd(m.metrics)
		m.armPauseTimer()
	case m.state == Rowing && ctx.IsMoving && m.interval.IsEndReached(m.metrics):
		// the metrics at the finish line are kept on display
		m.stopTraining()
		m.state = Stopped
		boundary := m.interval.InterpolateEnd(m.previous, m.metrics)
		if boundary.Modified {
			boundary.Context.ResetSession()
			boundary.Context.IsSessionStop = true
			m.emit(boundary)
		} else {
			ctx.IsSessionStop = true
		}
	case m.state == Rowing && ctx.IsMoving && m.split.IsEndReached(m.metrics):
		m.splitNumber++
		boundary := m.split.InterpolateEnd(m.previous, m.metrics)
		if boundary.Modified {
			m.split.SetStart(boundary)
			boundary.Context.ResetSession()
			boundary.Context.IsSplitEnd = true
			m.emit(boundary)
		} else {
			m.split.SetStart(m.metrics)
			ctx.IsSplitEnd = true
		}
		m.split.SetEnd(m.interval.Split().Interval())
	case m.state == Rowing && ctx.IsMoving:
	default:
		monitoring.Errorf("time: %.4f sec, combination of session state %s and stroke state %s is not captured by the session state machine",
			m.metrics.TotalMovingTime, m.state, strokeState)
	}
	m.emit(m.metrics)

	if m.state == Rowing && ctx.IsMoving {
		m.armWatchdog()
	}
	m.previous = m.metrics
}

// HandleCommand applies a control command and emits the resulting record.
func (m *Manager) HandleCommand(cmd Command) {
	if m.shutdown {
		monitoring.Warnf("session is shut down, ignoring command %s", cmd.Name)
		return
	}
	m.metrics = m.agg.Metrics()
	m.metrics.Context.ResetSession()

	switch cmd.Name {
	case CmdUpdateIntervalSettings:
		if m.state != Rowing {
			m.setIntervalParameters(cmd.Intervals)
		}
	case CmdStart, CmdStartOrResume:
		if m.state != Rowing {
			timeutil.StopTimer(m.pauseTimer)
			m.startOrResume(m.metrics)
			m.state = WaitingForStart
		}
	case CmdPause:
		m.pauseTraining()
		// a forced pause shows the zeroed cycle metrics
		m.metrics = m.agg.Metrics()
		m.metrics.Context.ResetSession()
		m.metrics.Context.IsPauseStart = true
		m.state = Paused
	case CmdStop:
		timeutil.StopTimer(m.pauseTimer)
		m.stopTraining()
		m.metrics.Context.IsSessionStop = true
		m.state = Stopped
	case CmdRequestControl:
	case CmdReset:
		timeutil.StopTimer(m.pauseTimer)
		m.resetTraining()
		m.metrics.Context.IsPauseStart = true
		m.state = WaitingForStart
	case CmdShutdown:
		timeutil.StopTimer(m.pauseTimer)
		m.stopTraining()
		m.metrics.Context.IsSessionStop = true
		m.state = Stopped
		m.shutdown = true
	default:
		monitoring.Errorf("received unknown command: %q", cmd.Name)
	}
	m.emit(m.metrics)
}

func (m *Manager) startOrResume(base statistics.Metrics) {
	m.agg.AllowStartOrResumeTraining()
	m.intervalAndPauseStart = m.clock.Now()
	m.intervalAndPause.SetStart(base)
	m.split.SetStart(base)
	m.split.SetEnd(m.interval.Split().Interval())
}

func (m *Manager) stopTraining() {
	timeutil.StopTimer(m.watchdog)
	m.distanceOverTime.Push(m.metrics.TotalMovingTime, m.metrics.TotalLinearDistance)
	m.agg.StopTraining()
}

func (m *Manager) pauseTraining() {
	timeutil.StopTimer(m.watchdog)
	m.distanceOverTime.Push(m.metrics.TotalMovingTime, m.metrics.TotalLinearDistance)
	m.agg.PauseTraining()
}

func (m *Manager) resetTraining() {
	m.stopTraining()
	m.agg.ResetTraining()
	m.agg.AllowStartOrResumeTraining()
	m.plan = nil
	m.intervalNumber = -1
	m.pauseCountdown = 0
	m.splitNumber = 0
	m.distanceOverTime.Reset()

	m.metrics = m.agg.Metrics()
	m.metrics.Context.ResetSession()
	m.state = WaitingForStart
	m.interval.SetStart(m.metrics)
	m.intervalAndPauseStart = m.clock.Now()
	m.intervalAndPause.SetStart(m.metrics)
	m.split.SetStart(m.metrics)
	m.previous = m.metrics
	m.emit(m.metrics)
}

func (m *Manager) setIntervalParameters(plan []workout.Interval) {
	if err := workout.ValidatePlan(plan); err != nil {
		monitoring.Errorf("received an unusable workout, keeping the current one: %v", err)
		return
	}
	m.plan = slices.Clone(plan)
	m.intervalNumber = -1
	monitoring.Infof("workout received with %d interval(s)", len(plan))
	m.activateNextInterval(m.metrics)
}

func (m *Manager) isNextIntervalAvailable() bool {
	return m.intervalNumber > -1 && len(m.plan) > m.intervalNumber+1
}

func (m *Manager) isNextIntervalActive() bool {
	return m.isNextIntervalAvailable() && m.plan[m.intervalNumber+1].Type != workout.Rest
}

// activateNextInterval rebases every segment on base and sets the next
// interval's targets as absolute finish lines from there.
func (m *Manager) activateNextInterval(base statistics.Metrics) {
	if len(m.plan) <= m.intervalNumber+1 {
		monitoring.Errorf("interval error: there is no next interval")
		return
	}
	m.interval.SetStart(base)
	m.intervalAndPauseStart = m.intervalAndPauseStart.Add(seconds(m.intervalAndPause.TimeSinceStart(base)))
	m.intervalAndPause.SetStart(base)

	m.intervalNumber++
	m.interval.SetEnd(m.plan[m.intervalNumber])
	distance, _ := m.interval.TargetDistance()
	duration, _ := m.interval.TargetTime()
	monitoring.Infof("interval %d of %d: distance target %.0f m, time target %s, split at %.0f m",
		m.intervalNumber+1, len(m.plan), distance, seconds(duration), m.interval.SplitDistance())

	m.split.SetStart(base)
	m.split.SetEnd(m.interval.Split().Interval())
}

func (m *Manager) armWatchdog() {
	if m.watchdog == nil {
		m.watchdog = m.clock.NewTimer(m.watchdogTimeout)
		return
	}
	timeutil.StopTimer(m.watchdog)
	m.watchdog.Reset(m.watchdogTimeout)
}

func (m *Manager) armPauseTimer() {
	if m.pauseTimer == nil {
		m.pauseTimer = m.clock.NewTimer(pauseTick)
		return
	}
	timeutil.StopTimer(m.pauseTimer)
	m.pauseTimer.Reset(pauseTick)
}

func (m *Manager) onWatchdogTimeout() {
	monitoring.Errorf("time: %.4f sec, forced a session stop as no impulses arrived for %s",
		m.metrics.TotalMovingTime, m.watchdogTimeout)
	m.stopTraining()
	m.metrics = m.agg.Metrics()
	m.metrics.Context.ResetSession()
	m.metrics.Context.IsSessionStop = true
	m.state = Stopped
	m.distanceOverTime.Push(m.metrics.TotalMovingTime, m.metrics.TotalLinearDistance)
	m.emit(m.metrics)
}

func (m *Manager) onPauseTimer() {
	m.metrics.Context.ResetSession()
	m.pauseCountdown -= pauseTick.Seconds()
	if m.pauseCountdown > 0 {
		m.armPauseTimer()
	} else {
		m.pauseTraining()
		m.state = Paused
		m.metrics = m.agg.Metrics()
		m.activateNextInterval(m.metrics)
		m.metrics.Context.ResetSession()
		m.pauseCountdown = 0
		monitoring.Debugf("time: %.4f sec, rest interval ended", m.metrics.TotalMovingTime)
	}
	m.emit(m.metrics)
}

func (m *Manager) enrich(rec *statistics.Metrics) {
	rec.Timestamp = m.intervalAndPauseStart.Add(seconds(m.intervalAndPause.TimeSinceStart(*rec)))
	rec.SessionType = string(m.interval.Type())
	rec.SessionStatus = m.state.String()
	rec.WorkoutStepNumber = max(m.intervalNumber, 0)
	rec.PauseCountdownTime = max(m.pauseCountdown, 0)
	rec.IntervalMovingTime = statistics.Float(m.interval.TimeSinceStart(*rec))
	rec.IntervalTargetTime = optional(m.interval.TargetTime())
	rec.IntervalLinearDistance = statistics.Float(m.interval.DistanceFromStart(*rec))
	rec.IntervalTargetDistance = optional(m.interval.TargetDistance())
	rec.IntervalAndPauseMovingTime = statistics.Float(m.intervalAndPause.TimeSinceStart(*rec))
	rec.IntervalAndPauseLinearDistance = statistics.Float(m.intervalAndPause.DistanceFromStart(*rec))

	// a split end carries the number and length of the split it closes
	if rec.Context.IsSplitEnd {
		rec.SplitNumber = m.splitNumber - 1
		rec.SplitLinearDistance = statistics.Float(m.interval.SplitDistance())
	} else {
		rec.SplitNumber = m.splitNumber
		rec.SplitLinearDistance = statistics.Float(m.split.DistanceFromStart(*rec))
	}

	rec.CycleProjectedEndTime = nil
	rec.CycleProjectedEndLinearDist = nil
	projectable := m.distanceOverTime.Len() >= 2 && m.distanceOverTime.Slope() != 0
	if end, ok := m.interval.EndDistance(); ok {
		if projectable {
			rec.CycleProjectedEndTime = statistics.Float(m.distanceOverTime.ProjectY(end))
		}
		rec.CycleProjectedEndLinearDist = statistics.Float(end)
	} else if end, ok := m.interval.EndTime(); ok {
		rec.CycleProjectedEndTime = statistics.Float(end)
		if projectable {
			rec.CycleProjectedEndLinearDist = statistics.Float(m.distanceOverTime.ProjectX(end))
		}
	}
}

func (m *Manager) emit(rec statistics.Metrics) {
	m.enrich(&rec)
	m.mu.Lock()
	m.last = rec
	m.mu.Unlock()
	m.publish(rec)
}

// rebroadcast repeats the last record for idle displays. Its event flags are
// cleared so subscribers never count the same stroke or transition twice.
func (m *Manager) rebroadcast() {
	rec := m.Last()
	rec.Context.ResetSession()
	rec.Context.IsDriveStart = false
	rec.Context.IsRecoveryStart = false
	m.publish(rec)
}

func (m *Manager) publish(rec statistics.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subscribers {
		select {
		case ch <- rec.Clone():
		default:
			// a slow subscriber must not stall the session
			monitoring.Debugf("subscriber %s is not keeping up, record dropped", id)
		}
	}
}

// Subscribe returns a channel receiving a copy of every emitted record. The
// id is used to Unsubscribe.
func (m *Manager) Subscribe() (string, <-chan statistics.Metrics) {
	id := uuid.NewString()
	ch := make(chan statistics.Metrics, m.buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscription.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

func (m *Manager) closeSubscribers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Last returns the most recently emitted record.
func (m *Manager) Last() statistics.Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.Clone()
}

func timerC(t timeutil.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

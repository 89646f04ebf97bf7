// Package engine runs the firing state machine: it owns the active profile,
// drives the setpoint along its segments, feeds the PID and hands the
// resulting duty to the safety supervisor. It is the sole producer of
// setpoints and the single consumer of the external command inbox.
package engine

import (
	"context"
	"sync"
	"time"

	"kilnfire"
	"kilnfire/internal/hal"
	"kilnfire/internal/logger"
	"kilnfire/internal/metrics"
	"kilnfire/internal/pid"
	"kilnfire/internal/repository"
	"kilnfire/internal/safety"
)

const (
	// TickPeriod is the engine cadence.
	TickPeriod = time.Second

	// cmdQueueCap bounds the external command inbox.
	cmdQueueCap = 4

	// enqueueTimeout is how long callers wait for inbox space before the
	// command surfaces ErrQueueFull.
	enqueueTimeout = 100 * time.Millisecond

	// Hold entry requires both the measurement and the ramped setpoint to
	// have converged on the segment target.
	holdTempBandC     = 2.0
	holdSetpointBandC = 0.5

	// Kiln-not-rising guard: within every window the temperature must rise
	// at least riseMinDeltaC while actively heating.
	riseWindowUS  = int64(15) * 60 * 1000 * 1000
	riseMinDeltaC = 10.0

	// Runaway guard: after the in-segment grace, the observed rate must not
	// exceed both twice the programmed ramp and the absolute floor.
	runawayGraceS        = 300.0
	runawayMinRampCH     = 0.1
	runawayFactor        = 2.0
	runawayMinObservedCH = 50.0

	// Element-hours are flushed to storage at most this often.
	elementFlushUS = int64(5) * 60 * 1000 * 1000

	// Trace samples land once per minute.
	traceSampleUS = int64(60) * 1000 * 1000
)

// readingSource is the sensor slice the engine needs.
type readingSource interface {
	Latest() kilnfire.ThermocoupleReading
}

// settingsSource yields a consistent settings snapshot each tick.
type settingsSource interface {
	Snapshot() kilnfire.KilnSettings
}

// historySink records firing outcomes and minute-resolution traces.
type historySink interface {
	StartFiring(profileID, profileName string) uint32
	RecordTemp(tempC float64)
	EndFiring(outcome kilnfire.FiringOutcome, peakTempC float64, durationS uint32, code kilnfire.FiringErrorCode)
}

// Notifier receives first-class firing transition events (webhook, chime).
// Implementations must not block the engine; sends happen on a goroutine.
type Notifier interface {
	FiringComplete(profileName string, peakTempC float64, durationS uint32)
	FiringFailed(profileName string, code kilnfire.FiringErrorCode, durationS uint32)
}

// Engine is the 1 Hz firing task.
type Engine struct {
	clock    hal.Clock
	sensor   readingSource
	sup      *safety.Supervisor
	history  historySink
	settings settingsSource
	tuning   repository.TuningRepo
	notify   Notifier
	metrics  *metrics.Metrics
	log      *logger.Logger

	cmds chan kilnfire.Command

	pid      *pid.Controller
	autotune pid.Autotune

	mu        sync.Mutex
	progress  kilnfire.FiringProgress
	lastError kilnfire.FiringErrorCode

	// Active-firing state, touched only from the tick goroutine.
	profile        kilnfire.FiringProfile
	segStartUS     int64
	segStartTempC  float64
	holding        bool
	holdStartUS    int64
	guardStartUS   int64
	guardStartTemp float64
	pauseStartUS   int64
	delayPending   bool
	delayDeadline  time.Time
	elapsedS       float64
	lastComputeUS  int64
	lastTraceUS    int64

	elementS        float64
	lastFlushUS     int64
	elementUnsynced bool
}

// Deps wires the engine's collaborators.
type Deps struct {
	Clock    hal.Clock
	Sensor   readingSource
	Safety   *safety.Supervisor
	History  historySink
	Settings settingsSource
	Tuning   repository.TuningRepo
	Notifier Notifier
	Metrics  *metrics.Metrics
	Log      *logger.Logger
}

func New(d Deps) *Engine {
	e := &Engine{
		clock:    d.Clock,
		sensor:   d.Sensor,
		sup:      d.Safety,
		history:  d.History,
		settings: d.Settings,
		tuning:   d.Tuning,
		notify:   d.Notifier,
		metrics:  d.Metrics,
		log:      d.Log,
		cmds:     make(chan kilnfire.Command, cmdQueueCap),
	}
	e.progress.Status = kilnfire.StatusIdle
	e.lastError = kilnfire.ErrCodeNone
	e.lastComputeUS = d.Clock.NowMicros()

	kp, ki, kd, err := d.Tuning.LoadGains(context.Background())
	if err != nil {
		e.log.Warnw("pid gains load failed, using defaults", "err", err)
		g := pid.DefaultGains()
		kp, ki, kd = g.Kp, g.Ki, g.Kd
	}
	e.pid = pid.NewController(pid.Gains{Kp: kp, Ki: ki, Kd: kd}, 0, 1)
	e.log.Infow("firing engine initialized", "kp", kp, "ki", ki, "kd", kd)

	if s, err := d.Tuning.LoadElementSeconds(context.Background()); err != nil {
		e.log.Warnw("element-hours load failed", "err", err)
	} else {
		e.elementS = float64(s)
	}
	e.lastFlushUS = e.lastComputeUS

	return e
}

// Enqueue places a command in the inbox. It fails with ErrQueueFull when the
// inbox stays full past the enqueue timeout and with ErrEmergencyLatched
// while the safety latch holds.
func (e *Engine) Enqueue(cmd kilnfire.Command) error {
	if e.sup.IsEmergency() {
		return kilnfire.ErrEmergencyLatched
	}

	t := time.NewTimer(enqueueTimeout)
	defer t.Stop()
	select {
	case e.cmds <- cmd:
		return nil
	case <-t.C:
		e.mu.Lock()
		e.lastError = kilnfire.ErrCodeQueueFull
		e.mu.Unlock()
		return kilnfire.ErrQueueFull
	}
}

// Progress returns a consistent snapshot.
func (e *Engine) Progress() kilnfire.FiringProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// ErrorCode returns the last non-cleared error code.
func (e *Engine) ErrorCode() kilnfire.FiringErrorCode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastError
}

// ElementSeconds returns the accumulated SSR-on seconds.
func (e *Engine) ElementSeconds() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint32(e.elementS)
}

// Run ticks the state machine every TickPeriod until the context ends. The
// final element-hours value is flushed on the way out.
func (e *Engine) Run(ctx context.Context) {
	t := time.NewTicker(TickPeriod)
	defer t.Stop()

	e.log.Infow("firing engine started", "period", TickPeriod)
	for {
		select {
		case <-ctx.Done():
			e.flushElementHours(true)
			return
		case <-t.C:
			e.Tick()
		}
	}
}

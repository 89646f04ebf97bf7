package engine

import (
	"context"
	"math"
	"time"

	"kilnfire"
	"kilnfire/internal/pid"
	"kilnfire/internal/safety"
)

// Tick runs one engine pass: drain commands, observe the plant and the
// safety latch, then advance the active mode. Exposed so tests and the dev
// loop can drive the engine off a manual clock.
func (e *Engine) Tick() {
	tickStart := time.Now()

	e.drainCommands()

	now := e.clock.NowMicros()
	dtS := float64(now-e.lastComputeUS) / 1e6
	e.lastComputeUS = now

	set := e.settings.Snapshot()
	reading := e.sensor.Latest()
	tempC := reading.TemperatureC
	if !reading.Faulted() {
		tempC += set.TCOffsetC
	}

	e.mu.Lock()
	e.progress.CurrentTempC = tempC
	status := e.progress.Status
	active := e.progress.Active
	segIdx := e.progress.CurrentSegment
	e.mu.Unlock()

	defer func() {
		e.metrics.ObserveTick(tempC, e.Progress().TargetTempC, e.sup.Duty(),
			e.Progress().Active, e.sup.IsEmergency(), segIdx, time.Since(tickStart))
	}()

	// Delayed start fires on wall-clock.
	if e.delayPending && !e.clock.Now().Before(e.delayDeadline) {
		e.delayPending = false
		e.beginFiring(tempC)
		return
	}

	// The supervisor may have latched an emergency at any point since the
	// last tick; fail the firing before anything else touches the SSR.
	if e.sup.IsEmergency() {
		if active {
			code := e.sup.TripReason()
			if code == kilnfire.ErrCodeNone {
				e.mu.Lock()
				code = e.lastError
				e.mu.Unlock()
				if code == kilnfire.ErrCodeNone {
					code = kilnfire.ErrCodeEmergencyStop
				}
			}
			e.failFiring(code, tempC)
		}
		e.sup.SetSSR(0)
		return
	}

	switch status {
	case kilnfire.StatusPaused:
		// Duty already zero; hold it there without resetting the window.
		return
	case kilnfire.StatusIdle, kilnfire.StatusComplete, kilnfire.StatusError:
		if !active {
			e.sup.SetSSR(0)
			return
		}
		if e.delayPending {
			return
		}
	case kilnfire.StatusAutotune:
		e.tickAutotune(now, tempC, dtS)
		return
	}

	if !active {
		e.sup.SetSSR(0)
		return
	}

	e.tickSegment(now, tempC, dtS, set)
}

// drainCommands empties the inbox without blocking.
func (e *Engine) drainCommands() {
	for {
		select {
		case cmd := <-e.cmds:
			e.handleCommand(cmd)
		default:
			return
		}
	}
}

func (e *Engine) handleCommand(cmd kilnfire.Command) {
	switch cmd.Type {
	case kilnfire.CmdStart:
		e.handleStart(cmd.Start)
	case kilnfire.CmdStop:
		e.handleStop()
	case kilnfire.CmdPause:
		e.handlePause()
	case kilnfire.CmdResume:
		e.handleResume()
	case kilnfire.CmdSkipSegment:
		e.handleSkip()
	case kilnfire.CmdAutotuneStart:
		e.handleAutotuneStart(cmd.Autotune)
	case kilnfire.CmdAutotuneStop:
		e.autotune.Cancel()
		e.doStop()
	}
}

func (e *Engine) handleStart(p *kilnfire.StartParams) {
	if p == nil {
		return
	}
	e.mu.Lock()
	if e.progress.Active {
		e.mu.Unlock()
		e.log.Warnw("start ignored: firing already active")
		return
	}
	e.lastError = kilnfire.ErrCodeNone
	e.mu.Unlock()

	e.sup.Events().Clear(safety.BitFiringDone)
	e.profile = p.Profile

	if p.DelayMinutes > 0 {
		e.delayPending = true
		e.delayDeadline = e.clock.Now().Add(time.Duration(p.DelayMinutes) * time.Minute)
		e.mu.Lock()
		e.progress.Active = true
		e.progress.Status = kilnfire.StatusIdle
		e.progress.ProfileID = e.profile.ID
		e.progress.TotalSegments = len(e.profile.Segments)
		e.progress.ElapsedS = 0
		e.mu.Unlock()
		e.log.Infow("firing scheduled", "profile", e.profile.Name, "delay_min", p.DelayMinutes)
		return
	}

	reading := e.sensor.Latest()
	e.beginFiring(reading.TemperatureC + e.settings.Snapshot().TCOffsetC)
}

// beginFiring transitions into segment 0 and opens the history record.
func (e *Engine) beginFiring(tempC float64) {
	e.pid.Reset()
	e.elapsedS = 0
	e.startSegment(0, tempC)
	e.lastTraceUS = e.clock.NowMicros()

	e.mu.Lock()
	e.progress.Active = true
	e.progress.Status = kilnfire.StatusHeating
	e.progress.ProfileID = e.profile.ID
	e.progress.CurrentSegment = 0
	e.progress.TotalSegments = len(e.profile.Segments)
	e.progress.ElapsedS = 0
	e.mu.Unlock()

	e.history.StartFiring(e.profile.ID, e.profile.Name)
	e.history.RecordTemp(tempC)
	e.log.Infow("firing started", "profile", e.profile.Name, "segments", len(e.profile.Segments))
}

func (e *Engine) startSegment(idx int, tempC float64) {
	now := e.clock.NowMicros()
	e.segStartUS = now
	e.segStartTempC = tempC
	e.holding = false
	e.guardStartUS = now
	e.guardStartTemp = tempC

	seg := e.profile.Segments[idx]
	e.mu.Lock()
	e.progress.CurrentSegment = idx
	e.mu.Unlock()
	e.log.Infow("segment started",
		"index", idx, "name", seg.Name,
		"ramp_c_per_h", seg.RampRateCH, "target_c", seg.TargetTempC, "hold_min", seg.HoldMinutes)
}

func (e *Engine) handleStop() {
	e.mu.Lock()
	active := e.progress.Active
	status := e.progress.Status
	elapsed := uint32(e.elapsedS)
	temp := e.progress.CurrentTempC
	e.mu.Unlock()

	if !active {
		return
	}
	if status == kilnfire.StatusAutotune {
		e.autotune.Cancel()
	} else if !e.delayPending {
		e.history.EndFiring(kilnfire.OutcomeAborted, temp, elapsed, kilnfire.ErrCodeNone)
	}
	e.doStop()
	e.log.Infow("firing stopped by command")
}

// doStop returns to idle with the element off.
func (e *Engine) doStop() {
	e.sup.SetSSR(0)
	e.sup.UpdateVent(false, 0)
	e.pid.Reset()
	e.holding = false
	e.delayPending = false
	e.flushElementHours(true)

	e.mu.Lock()
	e.progress.Active = false
	e.progress.Status = kilnfire.StatusIdle
	e.progress.TargetTempC = 0
	e.mu.Unlock()
}

func (e *Engine) handlePause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.progress.Status {
	case kilnfire.StatusHeating, kilnfire.StatusCooling, kilnfire.StatusHolding:
	default:
		return
	}
	if !e.progress.Active {
		return
	}
	e.pauseStartUS = e.clock.NowMicros()
	e.progress.Status = kilnfire.StatusPaused
	e.sup.SetSSR(0)
	e.log.Infow("firing paused")
}

// handleResume shifts every in-flight timer forward by the paused duration
// so paused time never counts toward segment progress or holds.
func (e *Engine) handleResume() {
	e.mu.Lock()
	if e.progress.Status != kilnfire.StatusPaused {
		e.mu.Unlock()
		return
	}
	pausedUS := e.clock.NowMicros() - e.pauseStartUS
	e.segStartUS += pausedUS
	e.holdStartUS += pausedUS
	e.guardStartUS += pausedUS

	if e.holding {
		e.progress.Status = kilnfire.StatusHolding
	} else if e.profile.Segments[e.progress.CurrentSegment].RampRateCH >= 0 {
		e.progress.Status = kilnfire.StatusHeating
	} else {
		e.progress.Status = kilnfire.StatusCooling
	}
	e.mu.Unlock()
	e.log.Infow("firing resumed", "paused_s", pausedUS/1e6)
}

func (e *Engine) handleSkip() {
	e.mu.Lock()
	status := e.progress.Status
	active := e.progress.Active
	temp := e.progress.CurrentTempC
	e.mu.Unlock()

	if !active || e.delayPending {
		return
	}
	switch status {
	case kilnfire.StatusHeating, kilnfire.StatusCooling, kilnfire.StatusHolding:
		e.log.Infow("segment skipped by command")
		e.advance(temp)
	}
}

func (e *Engine) handleAutotuneStart(p *kilnfire.AutotuneParams) {
	if p == nil {
		return
	}
	e.mu.Lock()
	active := e.progress.Active
	e.mu.Unlock()
	if active {
		e.log.Warnw("autotune ignored: firing active")
		return
	}
	if p.SetpointC > e.sup.MaxTemp() {
		e.log.Warnw("autotune rejected: setpoint above max safe temperature",
			"setpoint_c", p.SetpointC, "max_safe_c", e.sup.MaxTemp())
		return
	}
	if err := e.autotune.Start(e.clock.NowMicros(), p.SetpointC, p.HysteresisC); err != nil {
		e.log.Warnw("autotune rejected", "err", err)
		return
	}

	e.mu.Lock()
	e.lastError = kilnfire.ErrCodeNone
	e.progress.Active = true
	e.progress.Status = kilnfire.StatusAutotune
	e.progress.ProfileID = ""
	e.progress.CurrentSegment = 0
	e.progress.TotalSegments = 0
	e.progress.ElapsedS = 0
	e.mu.Unlock()
	e.elapsedS = 0
	e.log.Infow("autotune started", "setpoint_c", p.SetpointC, "hysteresis_c", p.HysteresisC)
}

// tickAutotune delegates one step to the relay tuner.
func (e *Engine) tickAutotune(nowUS int64, tempC, dtS float64) {
	output, done := e.autotune.Update(nowUS, tempC)
	e.sup.SetSSR(output)

	e.elapsedS += dtS
	e.mu.Lock()
	e.progress.ElapsedS = uint32(e.elapsedS)
	e.progress.TargetTempC = e.autotune.Setpoint()
	e.mu.Unlock()

	if !done {
		return
	}

	switch e.autotune.Phase() {
	case pid.AutotuneComplete:
		g := e.autotune.Result()
		if err := e.tuning.SaveGains(context.Background(), g.Kp, g.Ki, g.Kd); err != nil {
			e.log.Errorw("tuned gains save failed", "err", err)
		}
		e.pid = pid.NewController(g, 0, 1)
		e.log.Infow("autotune complete", "kp", g.Kp, "ki", g.Ki, "kd", g.Kd)
	case pid.AutotuneFailed:
		e.mu.Lock()
		e.lastError = kilnfire.ErrCodeAutotuneFailed
		e.mu.Unlock()
		e.log.Warnw("autotune failed: timeout or degenerate amplitude")
	}
	e.doStop()
}

// tickSegment runs the heating/cooling/holding logic for the active segment.
func (e *Engine) tickSegment(nowUS int64, tempC, dtS float64, set kilnfire.KilnSettings) {
	e.mu.Lock()
	segIdx := e.progress.CurrentSegment
	status := e.progress.Status
	e.mu.Unlock()

	if segIdx >= len(e.profile.Segments) {
		return
	}
	seg := e.profile.Segments[segIdx]
	segElapsedS := float64(nowUS-e.segStartUS) / 1e6

	if !e.holding {
		// Kiln-not-rising guard, only while actively heating a positive
		// ramp: each window must show a minimum rise.
		if status == kilnfire.StatusHeating && seg.RampRateCH > 0 {
			if nowUS-e.guardStartUS >= riseWindowUS {
				if tempC-e.guardStartTemp < riseMinDeltaC {
					e.trip(kilnfire.ErrCodeNotRising, tempC)
					return
				}
				e.guardStartUS = nowUS
				e.guardStartTemp = tempC
			}
		}

		// Runaway guard after the in-segment grace. Heating only: a cooling
		// segment has no element drive to run away with.
		if status == kilnfire.StatusHeating &&
			segElapsedS > runawayGraceS && math.Abs(seg.RampRateCH) > runawayMinRampCH {
			observedCH := (tempC - e.segStartTempC) / segElapsedS * 3600
			if observedCH > runawayFactor*math.Abs(seg.RampRateCH) && observedCH > runawayMinObservedCH {
				e.trip(kilnfire.ErrCodeRunaway, tempC)
				return
			}
		}
	}

	// Dynamic setpoint: ramp from the segment start temperature, clamped so
	// it never overshoots the target.
	setpoint := seg.TargetTempC
	if !e.holding {
		setpoint = e.segStartTempC + seg.RampRateCH/3600*segElapsedS
		if seg.RampRateCH >= 0 {
			if setpoint > seg.TargetTempC {
				setpoint = seg.TargetTempC
			}
		} else if setpoint < seg.TargetTempC {
			setpoint = seg.TargetTempC
		}
	}

	duty := e.pid.Compute(setpoint, tempC, dtS)
	e.sup.SetSSR(duty)
	e.sup.UpdateVent(true, tempC)

	if duty > 0 {
		e.mu.Lock()
		e.elementS += dtS
		e.mu.Unlock()
		e.elementUnsynced = true
	}
	e.flushElementHours(false)

	if nowUS-e.lastTraceUS >= traceSampleUS {
		e.history.RecordTemp(tempC)
		e.lastTraceUS += traceSampleUS
	}

	if !e.holding &&
		math.Abs(tempC-seg.TargetTempC) < holdTempBandC &&
		math.Abs(setpoint-seg.TargetTempC) < holdSetpointBandC {
		e.holding = true
		e.holdStartUS = nowUS
		e.mu.Lock()
		e.progress.Status = kilnfire.StatusHolding
		e.mu.Unlock()
		e.log.Infow("holding at target",
			"segment", segIdx, "target_c", seg.TargetTempC, "hold_min", seg.HoldMinutes)
	}

	// A zero-minute hold is indefinite; only SkipSegment or Stop leaves it.
	if e.holding && seg.HoldMinutes > 0 {
		holdElapsedS := float64(nowUS-e.holdStartUS) / 1e6
		if holdElapsedS >= float64(seg.HoldMinutes)*60 {
			e.advance(tempC)
			return
		}
	}

	e.elapsedS += dtS
	e.mu.Lock()
	e.progress.ElapsedS = uint32(e.elapsedS)
	e.progress.TargetTempC = setpoint
	if e.profile.EstimatedDurationMin > 0 {
		est := uint32(e.profile.EstimatedDurationMin) * 60
		if e.progress.ElapsedS < est {
			e.progress.EstimatedRemainingS = est - e.progress.ElapsedS
		} else {
			e.progress.EstimatedRemainingS = 0
		}
	}
	e.mu.Unlock()
}

// advance moves to the next segment, or finalizes the firing after the last.
func (e *Engine) advance(tempC float64) {
	e.mu.Lock()
	next := e.progress.CurrentSegment + 1
	elapsed := uint32(e.elapsedS)
	e.mu.Unlock()

	if next < len(e.profile.Segments) {
		e.startSegment(next, tempC)
		e.mu.Lock()
		if e.profile.Segments[next].RampRateCH >= 0 {
			e.progress.Status = kilnfire.StatusHeating
		} else {
			e.progress.Status = kilnfire.StatusCooling
		}
		e.mu.Unlock()
		return
	}

	// Firing complete.
	e.sup.SetSSR(0)
	e.sup.UpdateVent(false, tempC)
	e.flushElementHours(true)

	e.mu.Lock()
	e.progress.Active = false
	e.progress.Status = kilnfire.StatusComplete
	e.progress.EstimatedRemainingS = 0
	e.mu.Unlock()

	e.history.EndFiring(kilnfire.OutcomeComplete, tempC, elapsed, kilnfire.ErrCodeNone)
	e.sup.Events().Set(safety.BitFiringDone)
	if e.notify != nil {
		name, peak := e.profile.Name, tempC
		go e.notify.FiringComplete(name, peak, elapsed)
	}
	e.log.Infow("firing complete", "profile", e.profile.Name, "elapsed_s", elapsed)
}

// trip latches an engine-detected emergency and fails the active firing.
func (e *Engine) trip(code kilnfire.FiringErrorCode, tempC float64) {
	e.sup.EmergencyStop(code)
	e.metrics.RecordTrip(code)
	e.failFiring(code, tempC)
}

// failFiring records the Error outcome and parks the engine in StatusError.
func (e *Engine) failFiring(code kilnfire.FiringErrorCode, tempC float64) {
	e.mu.Lock()
	e.lastError = code
	e.progress.Active = false
	e.progress.Status = kilnfire.StatusError
	elapsed := uint32(e.elapsedS)
	e.mu.Unlock()

	e.sup.SetSSR(0)
	e.flushElementHours(true)
	e.history.EndFiring(kilnfire.OutcomeError, tempC, elapsed, code)
	if e.notify != nil {
		name := e.profile.Name
		go e.notify.FiringFailed(name, code, elapsed)
	}
	e.delayPending = false
	e.holding = false
	e.log.Errorw("firing failed", "code", code, "elapsed_s", elapsed)
}

// flushElementHours persists the SSR-on counter, rate-limited unless forced.
// Persistence failures are logged and never interrupt control.
func (e *Engine) flushElementHours(force bool) {
	now := e.clock.NowMicros()
	if !force && now-e.lastFlushUS < elementFlushUS {
		return
	}
	if !e.elementUnsynced {
		e.lastFlushUS = now
		return
	}

	e.mu.Lock()
	total := uint32(e.elementS)
	e.mu.Unlock()

	if err := e.tuning.SaveElementSeconds(context.Background(), total); err != nil {
		e.log.Warnw("element-hours flush failed", "err", err)
		return
	}
	e.lastFlushUS = now
	e.elementUnsynced = false
}

// Package safety owns the SSR output. Nothing else in the system is allowed
// to drive the heating element: the firing engine requests a duty and the
// supervisor translates it into time-proportional pulses, subject to the
// hard temperature ceiling, the sensor-fault deadline and the emergency
// latch.
package safety

import (
	"context"
	"sync"
	"time"

	"kilnfire"
	"kilnfire/internal/hal"
	"kilnfire/internal/logger"
)

const (
	// Period is the supervisor loop cadence.
	Period = 500 * time.Millisecond

	// ssrWindowUS is the time-proportional output window. Within a window
	// the SSR conducts while elapsed < duty*window.
	ssrWindowUS = int64(2000 * 1000)

	// faultDeadlineUS latches an emergency when no fault-free sample has
	// been seen for this long, and likewise when the sample timestamp
	// itself goes stale.
	faultDeadlineUS = int64(5 * 1000 * 1000)

	// ventMaxTempC keeps the vent relay energized during firing below this
	// temperature.
	ventMaxTempC = 700.0
)

// readingSource is the slice of the sensor the supervisor needs.
type readingSource interface {
	Latest() kilnfire.ThermocoupleReading
}

// Supervisor is the sole SSR writer.
type Supervisor struct {
	ssr    hal.OutputPin
	vent   hal.OutputPin
	clock  hal.Clock
	sensor readingSource
	events *EventGroup
	log    *logger.Logger

	mu            sync.Mutex
	duty          float64
	windowStartUS int64
	maxSafeTempC  float64
	tripReason    kilnfire.FiringErrorCode

	lastValidUS int64
}

func NewSupervisor(ssr, vent hal.OutputPin, clock hal.Clock, sensor readingSource,
	maxSafeTempC float64, log *logger.Logger) *Supervisor {

	if maxSafeTempC > kilnfire.HardwareMaxTempC {
		maxSafeTempC = kilnfire.HardwareMaxTempC
	}
	s := &Supervisor{
		ssr:          ssr,
		vent:         vent,
		clock:        clock,
		sensor:       sensor,
		events:       NewEventGroup(),
		log:          log,
		maxSafeTempC: maxSafeTempC,
		lastValidUS:  clock.NowMicros(),
	}
	ssr.Set(false)
	return s
}

// Events exposes the latched event bits for observers.
func (s *Supervisor) Events() *EventGroup { return s.events }

// SetMaxTemp updates the ceiling, clamped to the hardware maximum.
func (s *Supervisor) SetMaxTemp(tempC float64) {
	if tempC > kilnfire.HardwareMaxTempC {
		tempC = kilnfire.HardwareMaxTempC
	}
	s.mu.Lock()
	s.maxSafeTempC = tempC
	s.mu.Unlock()
}

// MaxTemp returns the active ceiling.
func (s *Supervisor) MaxTemp() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSafeTempC
}

// Duty returns the stored duty setpoint.
func (s *Supervisor) Duty() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duty
}

// SetSSR stores the duty and refreshes the pin. While the emergency latch
// holds, the duty is forced to zero and the pin stays low.
func (s *Supervisor) SetSSR(duty float64) {
	if s.IsEmergency() {
		s.ssr.Set(false)
		return
	}

	if duty < 0 {
		duty = 0
	} else if duty > 1 {
		duty = 1
	}

	s.mu.Lock()
	s.duty = duty
	s.mu.Unlock()

	s.refreshSSR()
}

// refreshSSR recomputes the pin level for the current point in the
// time-proportional window. The critical section covers only the duty and
// window bookkeeping; the pin write happens outside it.
func (s *Supervisor) refreshSSR() {
	now := s.clock.NowMicros()

	s.mu.Lock()
	if now-s.windowStartUS >= ssrWindowUS {
		s.windowStartUS = now
	}
	elapsed := now - s.windowStartUS
	onTime := int64(s.duty * float64(ssrWindowUS))
	s.mu.Unlock()

	s.ssr.Set(elapsed < onTime)
}

// EmergencyStop drives the SSR low immediately, zeros the duty, de-energizes
// the vent relay and latches the emergency bit with the given reason. Only
// ClearEmergency releases the latch.
func (s *Supervisor) EmergencyStop(reason kilnfire.FiringErrorCode) {
	s.ssr.Set(false)
	if s.vent != nil {
		s.vent.Set(false)
	}

	s.mu.Lock()
	s.duty = 0
	if s.tripReason == kilnfire.ErrCodeNone || s.tripReason == "" {
		s.tripReason = reason
	}
	s.mu.Unlock()

	s.events.Set(BitEmergencyStop)
	s.log.Errorw("EMERGENCY STOP", "reason", reason)
}

// ClearEmergency releases the latch and forgets the trip reason.
func (s *Supervisor) ClearEmergency() {
	s.mu.Lock()
	s.tripReason = kilnfire.ErrCodeNone
	s.mu.Unlock()
	s.events.Clear(BitEmergencyStop | BitTempFault)
	s.log.Infow("emergency stop cleared")
}

// IsEmergency reports the latch state.
func (s *Supervisor) IsEmergency() bool {
	return s.events.IsSet(BitEmergencyStop)
}

// TripReason returns why the latch was set, ErrCodeNone when it wasn't.
func (s *Supervisor) TripReason() kilnfire.FiringErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tripReason == "" {
		return kilnfire.ErrCodeNone
	}
	return s.tripReason
}

// UpdateVent energizes the vent relay during firing below the vent ceiling.
func (s *Supervisor) UpdateVent(firing bool, tempC float64) {
	if s.vent == nil {
		return
	}
	s.vent.Set(firing && tempC < ventMaxTempC)
}

// Check runs one supervisor pass: fault deadline, over-temperature, stale
// sample. Exposed for deterministic tests; Run calls it every Period.
func (s *Supervisor) Check() {
	reading := s.sensor.Latest()
	now := s.clock.NowMicros()

	if reading.Faulted() {
		if now-s.lastValidUS > faultDeadlineUS {
			s.log.Errorw("thermocouple fault persisted past deadline", "mask", reading.Fault)
			s.events.Set(BitTempFault)
			s.EmergencyStop(kilnfire.ErrCodeTempFault)
		}
	} else {
		if reading.TimestampUS > 0 {
			s.lastValidUS = reading.TimestampUS
		}
		s.events.Clear(BitTempFault)

		if reading.TemperatureC > s.MaxTemp() || reading.TemperatureC > kilnfire.HardwareMaxTempC {
			s.log.Errorw("over-temperature", "temp_c", reading.TemperatureC, "limit_c", s.MaxTemp())
			s.EmergencyStop(kilnfire.ErrCodeOverTemp)
		}
	}

	// Stale sample: the sampler stopped publishing entirely.
	if reading.TimestampUS > 0 && now-reading.TimestampUS > faultDeadlineUS {
		s.log.Errorw("no thermocouple data past deadline")
		s.events.Set(BitTempFault)
		s.EmergencyStop(kilnfire.ErrCodeTempFault)
	}

	if s.IsEmergency() {
		s.ssr.Set(false)
		return
	}
	s.refreshSSR()
}

// Run executes Check every Period until the context is canceled. On exit the
// SSR is driven low.
func (s *Supervisor) Run(ctx context.Context) {
	t := time.NewTicker(Period)
	defer t.Stop()
	defer s.ssr.Set(false)

	s.log.Infow("safety supervisor started", "period", Period, "max_safe_temp_c", s.MaxTemp())
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Check()
		}
	}
}

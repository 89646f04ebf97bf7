// Package sensor samples the thermocouple converter at a fixed cadence and
// publishes the latest decoded reading through a lock-guarded cell.
package sensor

import (
	"context"
	"sync"
	"time"

	"kilnfire"
	"kilnfire/internal/hal"
	"kilnfire/internal/logger"
)

// SamplePeriod is the thermocouple sampling cadence.
const SamplePeriod = 250 * time.Millisecond

// Decode converts one 32-bit converter frame into a reading. The timestamp
// is left to the caller. Layout (MAX31855): bits 31..18 are the 14-bit
// two's-complement thermocouple value at 0.25 degC/LSB, bits 15..4 the
// 12-bit cold junction at 0.0625 degC/LSB, bit 16 signals a fault with the
// detail flags in bits 2..0.
func Decode(raw uint32) kilnfire.ThermocoupleReading {
	var r kilnfire.ThermocoupleReading

	if raw&(1<<16) != 0 {
		if raw&(1<<0) != 0 {
			r.Fault |= kilnfire.TCFaultOpenCircuit
		}
		if raw&(1<<1) != 0 {
			r.Fault |= kilnfire.TCFaultShortGnd
		}
		if raw&(1<<2) != 0 {
			r.Fault |= kilnfire.TCFaultShortVcc
		}
		return r
	}

	tc := int16((raw >> 18) & 0x3FFF)
	if tc&0x2000 != 0 {
		tc |= ^int16(0x3FFF) // sign extend 14 -> 16 bits
	}
	r.TemperatureC = float64(tc) * 0.25

	cj := int16((raw >> 4) & 0x0FFF)
	if cj&0x0800 != 0 {
		cj |= ^int16(0x0FFF) // sign extend 12 -> 16 bits
	}
	r.InternalTempC = float64(cj) * 0.0625

	return r
}

// Sampler owns the bus and the latest-reading cell. One writer (Run), many
// readers (Latest). A bus error leaves the previous cached reading intact; a
// converter fault still publishes so downstream code observes the flags.
type Sampler struct {
	bus   hal.ThermocoupleBus
	clock hal.Clock
	log   *logger.Logger

	mu     sync.RWMutex
	latest kilnfire.ThermocoupleReading
}

func NewSampler(bus hal.ThermocoupleBus, clock hal.Clock, log *logger.Logger) *Sampler {
	return &Sampler{bus: bus, clock: clock, log: log}
}

// Latest returns a copy of the most recent reading. Never blocks the sampler
// for longer than the copy.
func (s *Sampler) Latest() kilnfire.ThermocoupleReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// SampleOnce reads, decodes and publishes a single frame. Exposed so tests
// and the dev loop can drive the sampler without the ticker.
func (s *Sampler) SampleOnce() {
	raw, err := s.bus.ReadFrame()
	if err != nil {
		// Keep the cached reading; staleness is the supervisor's signal.
		s.log.Warnw("thermocouple bus read failed", "err", err)
		return
	}

	r := Decode(raw)
	r.TimestampUS = s.clock.NowMicros()
	if r.Faulted() {
		s.log.Warnw("thermocouple fault", "mask", r.Fault)
	}

	s.mu.Lock()
	s.latest = r
	s.mu.Unlock()
}

// Run samples every SamplePeriod until the context is canceled.
func (s *Sampler) Run(ctx context.Context) {
	t := time.NewTicker(SamplePeriod)
	defer t.Stop()

	s.log.Infow("thermocouple sampler started", "period", SamplePeriod)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SampleOnce()
		}
	}
}

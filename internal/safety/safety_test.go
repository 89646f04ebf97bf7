package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kilnfire"
	"kilnfire/internal/logger"
	"kilnfire/internal/sim"
)

// stubSensor hands back a settable reading.
type stubSensor struct {
	reading kilnfire.ThermocoupleReading
}

func (s *stubSensor) Latest() kilnfire.ThermocoupleReading { return s.reading }

type rig struct {
	clock  *sim.ManualClock
	ssr    *sim.Pin
	vent   *sim.Pin
	sensor *stubSensor
	sup    *Supervisor
}

func newRig(maxSafe float64) *rig {
	r := &rig{
		clock:  sim.NewManualClock(time.Now()),
		ssr:    &sim.Pin{},
		vent:   &sim.Pin{},
		sensor: &stubSensor{},
	}
	r.sensor.reading = kilnfire.ThermocoupleReading{TemperatureC: 20, TimestampUS: 1}
	r.sup = NewSupervisor(r.ssr, r.vent, r.clock, r.sensor, maxSafe, logger.Nop())
	return r
}

// sample publishes a fresh reading at the current clock.
func (r *rig) sample(tempC float64, fault uint8) {
	r.sensor.reading = kilnfire.ThermocoupleReading{
		TemperatureC: tempC,
		Fault:        fault,
		TimestampUS:  r.clock.NowMicros(),
	}
}

func TestSupervisor_CeilingClampedToHardwareMax(t *testing.T) {
	r := newRig(2000)
	assert.Equal(t, kilnfire.HardwareMaxTempC, r.sup.MaxTemp())

	r.sup.SetMaxTemp(1300)
	assert.Equal(t, 1300.0, r.sup.MaxTemp())
	r.sup.SetMaxTemp(9999)
	assert.Equal(t, kilnfire.HardwareMaxTempC, r.sup.MaxTemp())
}

func TestSupervisor_OverTempTripsWithinOneCheck(t *testing.T) {
	r := newRig(1300)
	r.clock.Advance(time.Second)
	r.sample(1301, 0)

	r.sup.Check()

	assert.True(t, r.sup.IsEmergency())
	assert.False(t, r.ssr.Level())
	assert.Equal(t, 0.0, r.sup.Duty())
	assert.Equal(t, kilnfire.ErrCodeOverTemp, r.sup.TripReason())
}

func TestSupervisor_HardwareCeilingHoldsEvenWithHighSetting(t *testing.T) {
	r := newRig(1400)
	r.clock.Advance(time.Second)
	r.sample(1401, 0)

	r.sup.Check()

	assert.True(t, r.sup.IsEmergency())
	assert.Equal(t, kilnfire.ErrCodeOverTemp, r.sup.TripReason())
}

func TestSupervisor_FaultDeadline(t *testing.T) {
	r := newRig(1300)
	r.clock.Advance(time.Second)
	r.sample(500, 0)
	r.sup.Check()
	require.False(t, r.sup.IsEmergency())

	// Fault appears: within the deadline nothing trips.
	r.clock.Advance(2 * time.Second)
	r.sample(0, kilnfire.TCFaultOpenCircuit)
	r.sup.Check()
	assert.False(t, r.sup.IsEmergency())

	// Past five seconds since the last fault-free sample it latches.
	r.clock.Advance(4 * time.Second)
	r.sample(0, kilnfire.TCFaultOpenCircuit)
	r.sup.Check()
	assert.True(t, r.sup.IsEmergency())
	assert.True(t, r.sup.Events().IsSet(BitTempFault))
	assert.Equal(t, kilnfire.ErrCodeTempFault, r.sup.TripReason())
}

func TestSupervisor_StaleSampleTrips(t *testing.T) {
	r := newRig(1300)
	r.clock.Advance(time.Second)
	r.sample(500, 0)
	r.sup.Check()
	require.False(t, r.sup.IsEmergency())

	// Sampler stops publishing; after five seconds the stale timestamp
	// latches the emergency.
	r.clock.Advance(6 * time.Second)
	r.sup.Check()

	assert.True(t, r.sup.IsEmergency())
	assert.Equal(t, kilnfire.ErrCodeTempFault, r.sup.TripReason())
}

func TestSupervisor_SetSSRWhileLatchedForcesZero(t *testing.T) {
	r := newRig(1300)
	r.sup.EmergencyStop(kilnfire.ErrCodeOverTemp)

	r.sup.SetSSR(0.8)

	assert.Equal(t, 0.0, r.sup.Duty())
	assert.False(t, r.ssr.Level())
}

func TestSupervisor_ClearEmergencyReleasesLatch(t *testing.T) {
	r := newRig(1300)
	r.sup.EmergencyStop(kilnfire.ErrCodeOverTemp)
	require.True(t, r.sup.IsEmergency())

	r.sup.ClearEmergency()

	assert.False(t, r.sup.IsEmergency())
	assert.Equal(t, kilnfire.ErrCodeNone, r.sup.TripReason())

	r.clock.Advance(time.Second)
	r.sample(500, 0)
	r.sup.SetSSR(1)
	assert.True(t, r.ssr.Level())
}

func TestSupervisor_FirstTripReasonSticks(t *testing.T) {
	r := newRig(1300)
	r.sup.EmergencyStop(kilnfire.ErrCodeRunaway)
	r.sup.EmergencyStop(kilnfire.ErrCodeOverTemp)

	assert.Equal(t, kilnfire.ErrCodeRunaway, r.sup.TripReason())
}

func TestSupervisor_DutyClamped(t *testing.T) {
	r := newRig(1300)
	r.sup.SetSSR(1.7)
	assert.Equal(t, 1.0, r.sup.Duty())
	r.sup.SetSSR(-0.3)
	assert.Equal(t, 0.0, r.sup.Duty())
}

func TestSupervisor_TimeProportionalMeanApproachesDuty(t *testing.T) {
	r := newRig(1300)
	r.sample(500, 0)

	const duty = 0.35
	const step = 50 * time.Millisecond
	r.sup.SetSSR(duty)

	// Walk several windows in 50 ms steps, refreshing the reading so the
	// staleness check stays quiet, and measure the on fraction.
	on, total := 0, 0
	for i := 0; i < 20*40; i++ { // 40 s = 20 windows
		r.clock.Advance(step)
		r.sample(500, 0)
		r.sup.Check()
		if r.ssr.Level() {
			on++
		}
		total++
	}

	assert.InDelta(t, duty, float64(on)/float64(total), 0.05)
}

func TestSupervisor_VentFollowsFiringAndTemperature(t *testing.T) {
	r := newRig(1300)

	r.sup.UpdateVent(true, 300)
	assert.True(t, r.vent.Level())
	r.sup.UpdateVent(true, 750)
	assert.False(t, r.vent.Level())
	r.sup.UpdateVent(false, 300)
	assert.False(t, r.vent.Level())

	// Emergency de-energizes the vent relay.
	r.sup.UpdateVent(true, 300)
	r.sup.EmergencyStop(kilnfire.ErrCodeOverTemp)
	assert.False(t, r.vent.Level())
}

func TestEventGroup_WaitWakesOnSet(t *testing.T) {
	g := NewEventGroup()
	done := make(chan struct{})

	got := make(chan uint32, 1)
	go func() {
		got <- g.Wait(BitFiringDone, done)
	}()

	time.Sleep(10 * time.Millisecond)
	g.Set(BitFiringDone)

	select {
	case bits := <-got:
		assert.NotZero(t, bits&BitFiringDone)
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake on Set")
	}
}

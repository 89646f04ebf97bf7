package pid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usPerSec = int64(1_000_000)

// runOscillation drives the tuner with a sine plant: setpoint +
// amplitude*sin(2*pi*t/period), stepped once per second.
func runOscillation(t *testing.T, a *Autotune, setpoint, amplitude, periodS float64, maxSteps int) bool {
	t.Helper()
	for i := 0; i <= maxSteps; i++ {
		now := int64(i) * usPerSec
		temp := setpoint + amplitude*math.Sin(2*math.Pi*float64(i)/periodS)
		if _, done := a.Update(now, temp); done {
			return true
		}
	}
	return false
}

func TestAutotune_StartValidation(t *testing.T) {
	var a Autotune
	assert.Error(t, a.Start(0, 0, 5))
	assert.Error(t, a.Start(0, 500, 0))
	assert.NoError(t, a.Start(0, 500, 5))
	assert.Equal(t, AutotuneHeating, a.Phase())
}

func TestAutotune_HeatsFullOnUntilBandEdge(t *testing.T) {
	var a Autotune
	require.NoError(t, a.Start(0, 500, 5))

	out, done := a.Update(1*usPerSec, 100)
	assert.False(t, done)
	assert.Equal(t, 1.0, out)
	assert.Equal(t, AutotuneHeating, a.Phase())

	out, done = a.Update(2*usPerSec, 495)
	assert.False(t, done)
	assert.Equal(t, AutotuneCycling, a.Phase())
	_ = out
}

func TestAutotune_HappyPath_ZieglerNicholsGains(t *testing.T) {
	// Known plant: period 100 s, peak-to-peak 10 degC around 500 degC.
	var a Autotune
	require.NoError(t, a.Start(0, 500, 5))

	done := runOscillation(t, &a, 500, 5, 100, 700)
	require.True(t, done, "tuner should converge within seven periods")
	require.Equal(t, AutotuneComplete, a.Phase())

	// Ku = 4/(pi*5) ~ 0.2546, Tu = 100 s.
	g := a.Result()
	assert.InDelta(t, 0.1528, g.Kp, 0.01)
	assert.InDelta(t, 3.055e-3, g.Ki, 2e-4)
	assert.InDelta(t, 1.910, g.Kd, 0.15)
}

func TestAutotune_RelayRespectsHysteresisBand(t *testing.T) {
	var a Autotune
	require.NoError(t, a.Start(0, 500, 5))
	a.Update(1*usPerSec, 496) // enter cycling

	out, _ := a.Update(2*usPerSec, 494) // below setpoint-h: on
	assert.Equal(t, 1.0, out)
	out, _ = a.Update(3*usPerSec, 498) // inside band: unchanged
	assert.Equal(t, 1.0, out)
	out, _ = a.Update(4*usPerSec, 506) // above setpoint+h: off
	assert.Equal(t, 0.0, out)
	out, _ = a.Update(5*usPerSec, 503) // inside band: unchanged
	assert.Equal(t, 0.0, out)
}

func TestAutotune_FailsOnDegenerateAmplitude(t *testing.T) {
	var a Autotune
	require.NoError(t, a.Start(0, 500, 0.001))

	// Oscillation of 0.02 degC peak-to-peak: amplitude 0.01 < 0.1 floor.
	done := runOscillation(t, &a, 500, 0.01, 20, 200)
	require.True(t, done)
	assert.Equal(t, AutotuneFailed, a.Phase())
}

func TestAutotune_FailsOnTimeout(t *testing.T) {
	var a Autotune
	require.NoError(t, a.Start(0, 500, 5))

	// Never reaches the band; the wall-clock deadline fires.
	_, done := a.Update(AutotuneTimeoutUS+1, 100)
	require.True(t, done)
	assert.Equal(t, AutotuneFailed, a.Phase())
}

func TestAutotune_CancelReturnsToIdle(t *testing.T) {
	var a Autotune
	require.NoError(t, a.Start(0, 500, 5))
	a.Cancel()

	out, done := a.Update(1*usPerSec, 400)
	assert.True(t, done)
	assert.Equal(t, 0.0, out)
	assert.Equal(t, AutotuneIdle, a.Phase())
}

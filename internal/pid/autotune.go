package pid

import (
	"errors"
	"math"
)

// AutotunePhase tracks the relay tuner's progress.
type AutotunePhase int

const (
	AutotuneIdle AutotunePhase = iota
	AutotuneHeating
	AutotuneCycling
	AutotuneComplete
	AutotuneFailed
)

// Relay-tune defaults.
const (
	AutotuneCyclesNeeded = 5
	AutotuneTimeoutUS    = int64(60) * 60 * 1000 * 1000
	autotuneMinAmplitude = 0.1
)

var errBadAutotuneArgs = errors.New("autotune: setpoint and hysteresis must be positive")

// Autotune runs the Astrom-Hagglund relay experiment: bang-bang around the
// setpoint, measure the induced oscillation, derive Ziegler-Nichols gains
// from the ultimate gain and period.
type Autotune struct {
	phase       AutotunePhase
	setpointC   float64
	hysteresisC float64

	cyclesNeeded int
	cyclesDone   int
	halfCycles   int

	relayOn       bool
	aboveSetpoint bool
	peakHigh      float64
	peakLow       float64
	amplitudeSum  float64
	periodSumS    float64

	startUS        int64
	lastCrossingUS int64
	timeoutUS      int64

	result Gains
}

// Phase returns the tuner's current phase.
func (a *Autotune) Phase() AutotunePhase { return a.phase }

// Setpoint returns the tune target.
func (a *Autotune) Setpoint() float64 { return a.setpointC }

// Result returns the computed gains; valid only after AutotuneComplete.
func (a *Autotune) Result() Gains { return a.result }

// Start arms the tuner. The first phase drives the element full-on until the
// measurement reaches the lower hysteresis edge.
func (a *Autotune) Start(nowUS int64, setpointC, hysteresisC float64) error {
	if setpointC <= 0 || hysteresisC <= 0 {
		return errBadAutotuneArgs
	}
	*a = Autotune{
		phase:        AutotuneHeating,
		setpointC:    setpointC,
		hysteresisC:  hysteresisC,
		cyclesNeeded: AutotuneCyclesNeeded,
		relayOn:      true,
		peakHigh:     -1000,
		peakLow:      10000,
		startUS:      nowUS,
		timeoutUS:    AutotuneTimeoutUS,
	}
	return nil
}

// Cancel returns the tuner to idle.
func (a *Autotune) Cancel() { a.phase = AutotuneIdle }

// Update advances the experiment one step. It returns the relay output to
// apply and done=true once the tuner reached Complete or Failed.
func (a *Autotune) Update(nowUS int64, tempC float64) (output float64, done bool) {
	switch a.phase {
	case AutotuneIdle, AutotuneComplete, AutotuneFailed:
		return 0, true
	}

	if nowUS-a.startUS > a.timeoutUS {
		a.phase = AutotuneFailed
		return 0, true
	}

	if a.phase == AutotuneHeating {
		if tempC >= a.setpointC-a.hysteresisC {
			a.phase = AutotuneCycling
			a.relayOn = false // at the band edge; start by letting it coast
			a.aboveSetpoint = true
			a.lastCrossingUS = nowUS
			a.peakHigh = tempC
			a.peakLow = tempC
		}
		return 1, false
	}

	// Relay cycling: track peaks, count setpoint crossings.
	if tempC > a.peakHigh {
		a.peakHigh = tempC
	}
	if tempC < a.peakLow {
		a.peakLow = tempC
	}

	nowAbove := tempC > a.setpointC
	if nowAbove != a.aboveSetpoint {
		a.halfCycles++
		a.aboveSetpoint = nowAbove

		if a.halfCycles >= 2 {
			periodS := float64(nowUS-a.lastCrossingUS) / 1e6
			amplitude := (a.peakHigh - a.peakLow) / 2

			a.periodSumS += periodS
			a.amplitudeSum += amplitude
			a.cyclesDone++
			a.halfCycles = 0
			a.lastCrossingUS = nowUS
			a.peakHigh = tempC
			a.peakLow = tempC

			if a.cyclesDone >= a.cyclesNeeded {
				return a.finish()
			}
		}
	}

	if tempC < a.setpointC-a.hysteresisC {
		a.relayOn = true
	} else if tempC > a.setpointC+a.hysteresisC {
		a.relayOn = false
	}
	if a.relayOn {
		return 1, false
	}
	return 0, false
}

func (a *Autotune) finish() (float64, bool) {
	avgPeriod := a.periodSumS / float64(a.cyclesDone)
	avgAmplitude := a.amplitudeSum / float64(a.cyclesDone)

	if avgAmplitude < autotuneMinAmplitude {
		a.phase = AutotuneFailed
		return 0, true
	}

	// Ku = 4d / (pi * a) with relay amplitude d = 1, then classical
	// Ziegler-Nichols PID.
	ku := 4.0 / (math.Pi * avgAmplitude)
	tu := avgPeriod

	a.result = Gains{
		Kp: 0.6 * ku,
		Ki: 1.2 * ku / tu,
		Kd: 0.075 * ku * tu,
	}
	a.phase = AutotuneComplete
	return 0, true
}

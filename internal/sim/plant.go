// Package sim provides a thermal model of a kiln chamber plus simulated
// pins and a manual clock. It stands in for the SPI thermocouple and the
// SSR in dev mode and in scenario tests.
package sim

import (
	"math"
	"sync"
)

// Plant model defaults. The heating element is its own first-order stage
// (the SSR drives element temperature with a short lag) and the chamber
// relaxes toward the element with tau = TauHeatS while losing heat to
// ambient with tau = TauCoolS.
const (
	DefaultAmbientC        = 20.0
	DefaultTauElementS     = 60.0
	DefaultTauHeatS        = 120.0
	DefaultTauCoolS        = 300.0
	DefaultMaxElementTempC = 2000.0
)

// Plant is a two-stage lumped kiln model: element plus chamber.
type Plant struct {
	mu sync.Mutex

	tempC    float64
	elementC float64

	ambientC       float64
	tauElementS    float64
	tauHeatS       float64
	tauCoolS       float64
	maxElementTemp float64
}

func NewPlant(startTempC float64) *Plant {
	return &Plant{
		tempC:          startTempC,
		elementC:       startTempC,
		ambientC:       DefaultAmbientC,
		tauElementS:    DefaultTauElementS,
		tauHeatS:       DefaultTauHeatS,
		tauCoolS:       DefaultTauCoolS,
		maxElementTemp: DefaultMaxElementTempC,
	}
}

// Step advances the model by dt seconds with the element conducting the
// given fraction of the time (0..1).
func (p *Plant) Step(dtS, conduction float64) {
	if dtS <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if conduction < 0 {
		conduction = 0
	} else if conduction > 1 {
		conduction = 1
	}

	elementTarget := p.ambientC + (p.maxElementTemp-p.ambientC)*conduction
	p.elementC += (elementTarget - p.elementC) * (1 - math.Exp(-dtS/p.tauElementS))

	heatRate := (p.elementC - p.tempC) / p.tauHeatS
	coolRate := (p.tempC - p.ambientC) / p.tauCoolS
	p.tempC += (heatRate - coolRate) * dtS
}

// TempC returns the current chamber temperature.
func (p *Plant) TempC() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tempC
}

// SetTempC forces both stages to a temperature (fault-injection in tests).
func (p *Plant) SetTempC(t float64) {
	p.mu.Lock()
	p.tempC = t
	p.elementC = t
	p.mu.Unlock()
}

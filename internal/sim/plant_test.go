package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlant_HeatsUnderFullConduction(t *testing.T) {
	p := NewPlant(20)
	for i := 0; i < 4*600; i++ { // 10 minutes
		p.Step(0.25, 1)
	}
	assert.Greater(t, p.TempC(), 500.0)
}

func TestPlant_ReachesStonewareTemperatures(t *testing.T) {
	p := NewPlant(20)
	for i := 0; i < 4*3600; i++ { // 1 hour
		p.Step(0.25, 1)
	}
	assert.Greater(t, p.TempC(), 1300.0, "full power must clear the top cone range")
}

func TestPlant_CoolsTowardAmbient(t *testing.T) {
	p := NewPlant(800)
	for i := 0; i < 4*600; i++ {
		p.Step(0.25, 0)
	}
	assert.Less(t, p.TempC(), 800.0)
	assert.GreaterOrEqual(t, p.TempC(), DefaultAmbientC)

	for i := 0; i < 4*36000; i++ { // long horizon settles at ambient
		p.Step(0.25, 0)
	}
	assert.InDelta(t, DefaultAmbientC, p.TempC(), 1.0)
}

func TestPlant_ZeroDtIsNoop(t *testing.T) {
	p := NewPlant(300)
	p.Step(0, 1)
	p.Step(-1, 1)
	assert.Equal(t, 300.0, p.TempC())
}

func TestPlant_PartialConductionSettlesLower(t *testing.T) {
	full := NewPlant(20)
	half := NewPlant(20)
	for i := 0; i < 4*7200; i++ {
		full.Step(0.25, 1)
		half.Step(0.25, 0.5)
	}
	assert.Greater(t, full.TempC(), half.TempC())
	assert.Greater(t, half.TempC(), 200.0)
}

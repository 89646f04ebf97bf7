package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kilnfire"
	"kilnfire/internal/engine"
	"kilnfire/internal/logger"
	"kilnfire/internal/pid"
	"kilnfire/internal/safety"
	"kilnfire/internal/sim"
)

// Minimal engine collaborators for caller-side validation tests.

type noopHistory struct{}

func (noopHistory) StartFiring(string, string) uint32 { return 1 }
func (noopHistory) RecordTemp(float64)                {}
func (noopHistory) EndFiring(kilnfire.FiringOutcome, float64, uint32, kilnfire.FiringErrorCode) {
}

type memTuning struct{}

func (memTuning) LoadGains(context.Context) (float64, float64, float64, error) {
	g := pid.DefaultGains()
	return g.Kp, g.Ki, g.Kd, nil
}
func (memTuning) SaveGains(context.Context, float64, float64, float64) error { return nil }
func (memTuning) LoadElementSeconds(context.Context) (uint32, error)         { return 0, nil }
func (memTuning) SaveElementSeconds(context.Context, uint32) error           { return nil }

func newFiringFixture(t *testing.T) (*FiringService, *fakeProfileRepo, *safety.Supervisor) {
	t.Helper()
	clock := sim.NewManualClock(time.Now())
	sup := safety.NewSupervisor(&sim.Pin{}, &sim.Pin{}, clock, &fixedSensor{tempC: 20},
		1300, logger.Nop())

	settingsRepo := &fakeSettingsRepo{}
	monitoring, err := NewMonitoringService(settingsRepo, sup, logger.Nop())
	if err != nil {
		t.Fatalf("NewMonitoringService: %v", err)
	}

	eng := engine.New(engine.Deps{
		Clock:    clock,
		Sensor:   &fixedSensor{tempC: 20},
		Safety:   sup,
		History:  noopHistory{},
		Settings: monitoring,
		Tuning:   memTuning{},
		Log:      logger.Nop(),
	})
	monitoring.BindEngine(eng)

	profiles := newFakeProfileRepo()
	return NewFiringService(eng, sup, profiles, monitoring, logger.Nop()), profiles, sup
}

func TestFiringService_StartUnknownProfile(t *testing.T) {
	s, _, _ := newFiringFixture(t)

	err := s.Start(context.Background(), "no-such-profile", 0)
	if !errors.Is(err, kilnfire.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFiringService_StartEmptyID(t *testing.T) {
	s, _, _ := newFiringFixture(t)
	if err := s.Start(context.Background(), "", 0); err == nil {
		t.Fatalf("expected error for empty profile id")
	}
}

func TestFiringService_StartRejectsProfileAboveCeiling(t *testing.T) {
	s, repo, _ := newFiringFixture(t)

	hot := validProfile()
	hot.ID = "too-hot"
	hot.Segments[0].TargetTempC = 1350
	hot.MaxTempC = 1350
	if err := repo.Save(context.Background(), hot); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := s.Start(context.Background(), "too-hot", 0); err == nil {
		t.Fatalf("expected ceiling rejection")
	}
}

func TestFiringService_StartRejectedWhileLatched(t *testing.T) {
	s, repo, sup := newFiringFixture(t)

	p := validProfile()
	p.MaxTempC = 600
	if err := repo.Save(context.Background(), p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sup.EmergencyStop(kilnfire.ErrCodeOverTemp)
	err := s.Start(context.Background(), p.ID, 0)
	if !errors.Is(err, kilnfire.ErrEmergencyLatched) {
		t.Fatalf("expected ErrEmergencyLatched, got %v", err)
	}

	s.ClearEmergency()
	if err := s.Start(context.Background(), p.ID, 0); err != nil {
		t.Fatalf("expected start to succeed after clear, got %v", err)
	}
}

func TestFiringService_AutotuneValidation(t *testing.T) {
	s, _, _ := newFiringFixture(t)

	if err := s.AutotuneStart(1350, 5); err == nil {
		t.Fatalf("expected ceiling rejection for autotune setpoint")
	}
	if err := s.AutotuneStart(500, 0); err == nil {
		t.Fatalf("expected hysteresis rejection")
	}
	if err := s.AutotuneStart(500, 5); err != nil {
		t.Fatalf("expected valid autotune to enqueue, got %v", err)
	}
}

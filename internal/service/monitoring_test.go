package service

import (
	"context"
	"testing"
	"time"

	"kilnfire"
	"kilnfire/internal/logger"
	"kilnfire/internal/safety"
	"kilnfire/internal/sim"
)

// fakeSettingsRepo is an in-memory SettingsRepo.
type fakeSettingsRepo struct {
	stored kilnfire.KilnSettings
	loaded bool
}

func (f *fakeSettingsRepo) Load(ctx context.Context) (kilnfire.KilnSettings, error) {
	if !f.loaded {
		return kilnfire.KilnSettings{
			TempUnit:     "C",
			MaxSafeTempC: 1300,
		}, nil
	}
	return f.stored, nil
}

func (f *fakeSettingsRepo) Save(ctx context.Context, s kilnfire.KilnSettings) error {
	f.stored = s
	f.loaded = true
	return nil
}

type fixedSensor struct{ tempC float64 }

func (s *fixedSensor) Latest() kilnfire.ThermocoupleReading {
	return kilnfire.ThermocoupleReading{TemperatureC: s.tempC, TimestampUS: 1}
}

func newTestSupervisor() *safety.Supervisor {
	clock := sim.NewManualClock(time.Now())
	return safety.NewSupervisor(&sim.Pin{}, &sim.Pin{}, clock, &fixedSensor{tempC: 20},
		1300, logger.Nop())
}

func newTestMonitoring(t *testing.T) (*MonitoringService, *fakeSettingsRepo, *safety.Supervisor) {
	t.Helper()
	repo := &fakeSettingsRepo{}
	sup := newTestSupervisor()
	m, err := NewMonitoringService(repo, sup, logger.Nop())
	if err != nil {
		t.Fatalf("NewMonitoringService: %v", err)
	}
	return m, repo, sup
}

func baseSettings() kilnfire.KilnSettings {
	return kilnfire.KilnSettings{
		TempUnit:     "C",
		MaxSafeTempC: 1200,
	}
}

func TestMonitoring_UpdateClampsMaxSafeTemp(t *testing.T) {
	m, repo, sup := newTestMonitoring(t)

	in := baseSettings()
	in.MaxSafeTempC = 50
	if err := m.UpdateSettings(context.Background(), in); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if repo.stored.MaxSafeTempC != 100 {
		t.Fatalf("expected clamp to 100, got %.0f", repo.stored.MaxSafeTempC)
	}

	in.MaxSafeTempC = 5000
	if err := m.UpdateSettings(context.Background(), in); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if repo.stored.MaxSafeTempC != 1400 {
		t.Fatalf("expected clamp to 1400, got %.0f", repo.stored.MaxSafeTempC)
	}
	if sup.MaxTemp() != 1400 {
		t.Fatalf("supervisor ceiling not updated: %.0f", sup.MaxTemp())
	}
}

func TestMonitoring_UpdateRejectsBadUnit(t *testing.T) {
	m, _, _ := newTestMonitoring(t)

	in := baseSettings()
	in.TempUnit = "K"
	if err := m.UpdateSettings(context.Background(), in); err == nil {
		t.Fatalf("expected unit validation error")
	}
}

func TestMonitoring_APITokenIsWriteOnly(t *testing.T) {
	m, _, _ := newTestMonitoring(t)

	in := baseSettings()
	in.APIToken = "secret-token"
	if err := m.UpdateSettings(context.Background(), in); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	// The observer copy never includes the token, only the presence flag.
	out := m.Settings()
	if out.APIToken != "" {
		t.Fatalf("API token leaked through Settings()")
	}
	if !out.APITokenSet {
		t.Fatalf("expected api_token_set after write")
	}

	// An empty token on a later update keeps the stored one.
	in2 := baseSettings()
	in2.WebhookURL = "https://example.test/hook"
	if err := m.UpdateSettings(context.Background(), in2); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if m.Snapshot().APIToken != "secret-token" {
		t.Fatalf("blank token write clobbered the stored token")
	}
	if m.Snapshot().WebhookURL != "https://example.test/hook" {
		t.Fatalf("webhook update lost")
	}
}

func TestMonitoring_SupervisorCeilingSetOnLoad(t *testing.T) {
	repo := &fakeSettingsRepo{}
	repo.stored = kilnfire.KilnSettings{TempUnit: "C", MaxSafeTempC: 1150}
	repo.loaded = true
	sup := newTestSupervisor()

	if _, err := NewMonitoringService(repo, sup, logger.Nop()); err != nil {
		t.Fatalf("NewMonitoringService: %v", err)
	}
	if sup.MaxTemp() != 1150 {
		t.Fatalf("expected ceiling 1150 pushed at load, got %.0f", sup.MaxTemp())
	}
}

package service

import (
	"context"
	"fmt"
	"sync"

	"kilnfire"
	"kilnfire/internal/logger"
	"kilnfire/internal/repository"
	"kilnfire/internal/safety"
)

// progressSource is the engine slice monitoring needs; bound after the
// engine exists because the engine itself reads settings through this
// service.
type progressSource interface {
	Progress() kilnfire.FiringProgress
	ErrorCode() kilnfire.FiringErrorCode
	ElementSeconds() uint32
}

// MonitoringService owns the in-memory settings copy and serves progress
// snapshots. Settings reads/writes go through a mutex; the engine pulls a
// consistent snapshot every tick.
type MonitoringService struct {
	repo   repository.SettingsRepo
	safety *safety.Supervisor
	log    *logger.Logger

	mu       sync.Mutex
	settings kilnfire.KilnSettings

	engine progressSource
}

func NewMonitoringService(repo repository.SettingsRepo, sup *safety.Supervisor,
	log *logger.Logger) (*MonitoringService, error) {

	s, err := repo.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	sup.SetMaxTemp(s.MaxSafeTempC)
	return &MonitoringService{repo: repo, safety: sup, log: log, settings: s}, nil
}

// BindEngine attaches the progress source once the engine exists.
func (s *MonitoringService) BindEngine(e progressSource) { s.engine = e }

// Progress returns the engine's current snapshot.
func (s *MonitoringService) Progress() kilnfire.FiringProgress {
	return s.engine.Progress()
}

// ErrorCode returns the last firing error code.
func (s *MonitoringService) ErrorCode() kilnfire.FiringErrorCode {
	return s.engine.ErrorCode()
}

// ElementSeconds returns accumulated SSR-on seconds.
func (s *MonitoringService) ElementSeconds() uint32 {
	return s.engine.ElementSeconds()
}

// Snapshot returns the raw settings copy, API token included. The engine
// and the webhook notifier consume this; it never leaves the process.
func (s *MonitoringService) Snapshot() kilnfire.KilnSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Settings returns the observer copy with the API token blanked: the token
// is write-only.
func (s *MonitoringService) Settings() kilnfire.KilnSettings {
	out := s.Snapshot()
	out.APITokenSet = out.APIToken != ""
	out.APIToken = ""
	return out
}

// UpdateSettings validates, clamps and persists new settings, and pushes
// the ceiling to the safety supervisor. An empty incoming API token keeps
// the stored one.
func (s *MonitoringService) UpdateSettings(ctx context.Context, in kilnfire.KilnSettings) error {
	if in.TempUnit != "C" && in.TempUnit != "F" {
		return fmt.Errorf("temp unit must be C or F, got %q", in.TempUnit)
	}
	if in.MaxSafeTempC < kilnfire.MinSafeTempC {
		in.MaxSafeTempC = kilnfire.MinSafeTempC
	} else if in.MaxSafeTempC > kilnfire.MaxSafeTempC {
		in.MaxSafeTempC = kilnfire.MaxSafeTempC
	}

	s.mu.Lock()
	if in.APIToken == "" {
		in.APIToken = s.settings.APIToken
	}
	in.APITokenSet = in.APIToken != ""
	s.settings = in
	s.mu.Unlock()

	s.safety.SetMaxTemp(in.MaxSafeTempC)

	if err := s.repo.Save(ctx, in); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	s.log.Infow("settings updated",
		"unit", in.TempUnit, "max_safe_temp_c", in.MaxSafeTempC, "tc_offset_c", in.TCOffsetC)
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"

	"kilnfire"
	"kilnfire/internal/engine"
	"kilnfire/internal/logger"
	"kilnfire/internal/repository"
	"kilnfire/internal/safety"
)

var (
	errFiringActive     = errors.New("a firing is already active")
	errAutotuneTooHot   = errors.New("autotune setpoint exceeds max safe temperature")
	errBadHysteresis    = errors.New("autotune hysteresis must be positive")
	errEmptyProfileID   = errors.New("profile id is required")
)

// FiringService translates API calls into engine commands. Validation that
// the engine also enforces (the autotune ceiling) is duplicated here so
// callers get a synchronous error instead of a silently ignored command. The
// emergency latch is checked by the engine's Enqueue, whose error reaches the
// caller synchronously.
type FiringService struct {
	engine     *engine.Engine
	safety     *safety.Supervisor
	profiles   repository.ProfileRepo
	monitoring *MonitoringService
	log        *logger.Logger
}

func NewFiringService(e *engine.Engine, sup *safety.Supervisor,
	profiles repository.ProfileRepo, monitoring *MonitoringService,
	log *logger.Logger) *FiringService {

	return &FiringService{engine: e, safety: sup, profiles: profiles,
		monitoring: monitoring, log: log}
}

// Start loads the profile and enqueues the start command with the optional
// delayed-start offset.
func (s *FiringService) Start(ctx context.Context, profileID string, delayMinutes uint32) error {
	if profileID == "" {
		return errEmptyProfileID
	}
	if s.engine.Progress().Active {
		return errFiringActive
	}

	p, err := s.profiles.Load(ctx, profileID)
	if err != nil {
		return err
	}
	if p.MaxTempC > s.safety.MaxTemp() {
		return fmt.Errorf("profile peaks at %.0f°C, above the %.0f°C safety limit",
			p.MaxTempC, s.safety.MaxTemp())
	}

	return s.engine.Enqueue(kilnfire.Command{
		Type:  kilnfire.CmdStart,
		Start: &kilnfire.StartParams{Profile: p, DelayMinutes: delayMinutes},
	})
}

func (s *FiringService) Stop() error {
	return s.engine.Enqueue(kilnfire.Command{Type: kilnfire.CmdStop})
}

func (s *FiringService) Pause() error {
	return s.engine.Enqueue(kilnfire.Command{Type: kilnfire.CmdPause})
}

func (s *FiringService) Resume() error {
	return s.engine.Enqueue(kilnfire.Command{Type: kilnfire.CmdResume})
}

func (s *FiringService) SkipSegment() error {
	return s.engine.Enqueue(kilnfire.Command{Type: kilnfire.CmdSkipSegment})
}

// AutotuneStart checks the ceiling caller-side (the engine checks again) and
// enqueues the tune command.
func (s *FiringService) AutotuneStart(setpointC, hysteresisC float64) error {
	if setpointC > s.safety.MaxTemp() {
		return errAutotuneTooHot
	}
	if hysteresisC <= 0 {
		return errBadHysteresis
	}
	if s.engine.Progress().Active {
		return errFiringActive
	}
	return s.engine.Enqueue(kilnfire.Command{
		Type:     kilnfire.CmdAutotuneStart,
		Autotune: &kilnfire.AutotuneParams{SetpointC: setpointC, HysteresisC: hysteresisC},
	})
}

func (s *FiringService) AutotuneStop() error {
	return s.engine.Enqueue(kilnfire.Command{Type: kilnfire.CmdAutotuneStop})
}

// ClearEmergency releases the safety latch. Required before any command is
// accepted after a trip.
func (s *FiringService) ClearEmergency() {
	s.safety.ClearEmergency()
	s.log.Infow("emergency latch cleared by operator")
}

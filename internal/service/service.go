package service

import (
	"context"

	"kilnfire"
	"kilnfire/internal/cone"
	"kilnfire/internal/engine"
	"kilnfire/internal/logger"
	"kilnfire/internal/repository"
	"kilnfire/internal/safety"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Firing exposes the engine's command inbox plus the emergency latch.
type Firing interface {
	Start(ctx context.Context, profileID string, delayMinutes uint32) error
	Stop() error
	Pause() error
	Resume() error
	SkipSegment() error
	AutotuneStart(setpointC, hysteresisC float64) error
	AutotuneStop() error
	ClearEmergency()
}

// Monitoring exposes read-only control state and the settings write path.
type Monitoring interface {
	Progress() kilnfire.FiringProgress
	Settings() kilnfire.KilnSettings
	UpdateSettings(ctx context.Context, s kilnfire.KilnSettings) error
	ErrorCode() kilnfire.FiringErrorCode
	ElementSeconds() uint32
}

// Profiles exposes the profile store with validation and cone-fire
// generation.
type Profiles interface {
	Save(ctx context.Context, p kilnfire.FiringProfile) error
	Load(ctx context.Context, id string) (kilnfire.FiringProfile, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]kilnfire.FiringProfile, error)
	SeedDefaults(ctx context.Context) error
	GenerateConeFire(cone string, speed cone.Speed, opts cone.Options) (kilnfire.FiringProfile, error)
}

// History exposes completed-firing records and their traces.
type History interface {
	Records() ([]kilnfire.HistoryRecord, error)
	TraceCSV(id uint32) ([]byte, error)
	Clear() error
}

// Service aggregates the sub-services behind one handle, the way the
// handlers consume them.
type Service struct {
	Firing
	Monitoring
	Profiles
	History
	Authorization
}

// Deps carries everything NewService wires together. The monitoring service
// is built before the engine (the engine reads settings through it), so it
// arrives here ready-made.
type Deps struct {
	Repos      *repository.Repository
	HistStore  *repository.HistoryStore
	Engine     *engine.Engine
	Safety     *safety.Supervisor
	Monitoring *MonitoringService
	SigningKey string
	Log        *logger.Logger
}

func NewService(d Deps) *Service {
	d.Monitoring.BindEngine(d.Engine)
	return &Service{
		Firing:        NewFiringService(d.Engine, d.Safety, d.Repos.Profiles, d.Monitoring, d.Log),
		Monitoring:    d.Monitoring,
		Profiles:      NewProfileService(d.Repos.Profiles, d.Log),
		History:       NewHistoryService(d.HistStore),
		Authorization: NewAuthService(d.Repos.Auth, d.SigningKey),
	}
}

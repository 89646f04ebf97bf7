package repository

import (
	"context"
	"database/sql"

	"kilnfire"
)

// SettingsRepo persists the kiln settings as individual scalar values,
// mirroring the firmware's key/value flash layout: floats stored scaled, the
// unit as a single byte, booleans as 0/1.
type SettingsRepo interface {
	Load(ctx context.Context) (kilnfire.KilnSettings, error)
	Save(ctx context.Context, s kilnfire.KilnSettings) error
}

// ProfileRepo stores firing profiles as opaque blobs keyed by the sanitized
// profile id, with a single index blob listing the stored ids.
type ProfileRepo interface {
	Save(ctx context.Context, p kilnfire.FiringProfile) error
	Load(ctx context.Context, id string) (kilnfire.FiringProfile, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// TuningRepo persists PID gains (scaled i32) and the element-on seconds
// counter.
type TuningRepo interface {
	LoadGains(ctx context.Context) (kp, ki, kd float64, err error)
	SaveGains(ctx context.Context, kp, ki, kd float64) error
	LoadElementSeconds(ctx context.Context) (uint32, error)
	SaveElementSeconds(ctx context.Context, s uint32) error
}

// Authorization stores operator accounts.
type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*kilnfire.User, error)
}

// Repository aggregates the sqlite-backed stores.
type Repository struct {
	Settings SettingsRepo
	Profiles ProfileRepo
	Tuning   TuningRepo
	Auth     Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Settings: NewSettingsSQLite(db),
		Profiles: NewProfileSQLite(db),
		Tuning:   NewTuningSQLite(db),
		Auth:     NewUserRepository(db),
	}
}

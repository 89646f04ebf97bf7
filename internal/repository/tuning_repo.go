package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"kilnfire/internal/pid"
)

// TuningSQLite persists PID gains and the element-on counter in the scalar
// store. Gains are kept as signed 32-bit integers scaled by 10000; no float
// representation hits storage.
type TuningSQLite struct {
	db *sql.DB
}

func NewTuningSQLite(db *sql.DB) *TuningSQLite {
	return &TuningSQLite{db: db}
}

var _ TuningRepo = (*TuningSQLite)(nil)

const (
	pidNS     = "pid"
	counterNS = "element"

	gainScale = 10000.0

	selectScalarSQL = `SELECT value FROM kv_scalars WHERE ns=? AND key=?`
)

func (r *TuningSQLite) loadScalar(ctx context.Context, ns, key string) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, selectScalarSQL, ns, key).Scan(&v)
	return v, err
}

// LoadGains returns the stored gains, falling back to the factory defaults
// for any value that is absent.
func (r *TuningSQLite) LoadGains(ctx context.Context) (kp, ki, kd float64, err error) {
	defaults := pid.DefaultGains()
	kp, ki, kd = defaults.Kp, defaults.Ki, defaults.Kd

	for _, g := range []struct {
		key string
		dst *float64
	}{
		{"kp", &kp}, {"ki", &ki}, {"kd", &kd},
	} {
		v, serr := r.loadScalar(ctx, pidNS, g.key)
		if errors.Is(serr, sql.ErrNoRows) {
			continue
		}
		if serr != nil {
			return 0, 0, 0, fmt.Errorf("load gain %q: %w", g.key, serr)
		}
		*g.dst = float64(v) / gainScale
	}
	return kp, ki, kd, nil
}

// SaveGains stores all three gains as i32 x10000.
func (r *TuningSQLite) SaveGains(ctx context.Context, kp, ki, kd float64) error {
	for _, g := range []struct {
		key string
		val float64
	}{
		{"kp", kp}, {"ki", ki}, {"kd", kd},
	} {
		scaled := int64(math.Round(g.val * gainScale))
		if _, err := r.db.ExecContext(ctx, upsertScalarSQL, pidNS, g.key, scaled); err != nil {
			return fmt.Errorf("save gain %q: %w", g.key, err)
		}
	}
	return nil
}

// LoadElementSeconds returns the accumulated SSR-on seconds, 0 when unset.
func (r *TuningSQLite) LoadElementSeconds(ctx context.Context) (uint32, error) {
	v, err := r.loadScalar(ctx, counterNS, "on_s")
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load element seconds: %w", err)
	}
	return uint32(v), nil
}

// SaveElementSeconds overwrites the counter.
func (r *TuningSQLite) SaveElementSeconds(ctx context.Context, s uint32) error {
	if _, err := r.db.ExecContext(ctx, upsertScalarSQL, counterNS, "on_s", int64(s)); err != nil {
		return fmt.Errorf("save element seconds: %w", err)
	}
	return nil
}

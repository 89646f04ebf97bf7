package repository

import (
	"context"
	"database/sql"
	"fmt"

	"kilnfire"
)

// SettingsSQLite stores each setting as its own scalar or string row, the
// way the firmware keeps them as individual flash entries. Floats are scaled
// to integers so no floating-point representation ever hits storage:
// tc_offset x100, electricity cost x1000.
type SettingsSQLite struct {
	db *sql.DB
}

func NewSettingsSQLite(db *sql.DB) *SettingsSQLite {
	return &SettingsSQLite{db: db}
}

var _ SettingsRepo = (*SettingsSQLite)(nil)

const settingsNS = "kiln_set"

const (
	upsertScalarSQL = `
		INSERT INTO kv_scalars (ns, key, value) VALUES (?, ?, ?)
		ON CONFLICT(ns, key) DO UPDATE SET value=excluded.value
	`
	upsertStringSQL = `
		INSERT INTO kv_strings (ns, key, value) VALUES (?, ?, ?)
		ON CONFLICT(ns, key) DO UPDATE SET value=excluded.value
	`
	selectScalarsSQL = `SELECT key, value FROM kv_scalars WHERE ns=?`
	selectStringsSQL = `SELECT key, value FROM kv_strings WHERE ns=?`
)

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Load reads the stored scalars, applying firmware defaults for any that
// are absent.
func (r *SettingsSQLite) Load(ctx context.Context) (kilnfire.KilnSettings, error) {
	s := kilnfire.KilnSettings{
		TempUnit:             "C",
		MaxSafeTempC:         1300,
		AlarmEnabled:         true,
		AutoShutdown:         true,
		NotificationsEnabled: true,
	}

	rows, err := r.db.QueryContext(ctx, selectScalarsSQL, settingsNS)
	if err != nil {
		return kilnfire.KilnSettings{}, fmt.Errorf("select settings scalars: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var val int64
		if err := rows.Scan(&key, &val); err != nil {
			return kilnfire.KilnSettings{}, err
		}
		switch key {
		case "unit":
			s.TempUnit = string(rune(val))
		case "max_temp":
			s.MaxSafeTempC = float64(val)
		case "alarm":
			s.AlarmEnabled = val != 0
		case "autoshut":
			s.AutoShutdown = val != 0
		case "notif":
			s.NotificationsEnabled = val != 0
		case "tc_offset":
			s.TCOffsetC = float64(val) / 100
		case "elem_watts":
			s.ElementWatts = int(val)
		case "cost_kwh":
			s.ElectricityCostKWh = float64(val) / 1000
		}
	}
	if err := rows.Err(); err != nil {
		return kilnfire.KilnSettings{}, err
	}

	srows, err := r.db.QueryContext(ctx, selectStringsSQL, settingsNS)
	if err != nil {
		return kilnfire.KilnSettings{}, fmt.Errorf("select settings strings: %w", err)
	}
	defer srows.Close()

	for srows.Next() {
		var key, val string
		if err := srows.Scan(&key, &val); err != nil {
			return kilnfire.KilnSettings{}, err
		}
		switch key {
		case "webhook":
			s.WebhookURL = val
		case "api_token":
			s.APIToken = val
		}
	}
	if err := srows.Err(); err != nil {
		return kilnfire.KilnSettings{}, err
	}

	s.APITokenSet = s.APIToken != ""
	return s, nil
}

// Save writes every setting as its scaled scalar / bounded string row.
func (r *SettingsSQLite) Save(ctx context.Context, s kilnfire.KilnSettings) error {
	unit := byte('C')
	if s.TempUnit == "F" {
		unit = 'F'
	}

	scalars := []struct {
		key string
		val int64
	}{
		{"unit", int64(unit)},
		{"max_temp", int64(s.MaxSafeTempC)},
		{"alarm", boolToInt(s.AlarmEnabled)},
		{"autoshut", boolToInt(s.AutoShutdown)},
		{"notif", boolToInt(s.NotificationsEnabled)},
		{"tc_offset", int64(s.TCOffsetC * 100)},
		{"elem_watts", int64(s.ElementWatts)},
		{"cost_kwh", int64(s.ElectricityCostKWh * 1000)},
	}
	for _, kv := range scalars {
		if _, err := r.db.ExecContext(ctx, upsertScalarSQL, settingsNS, kv.key, kv.val); err != nil {
			return fmt.Errorf("save setting %q: %w", kv.key, err)
		}
	}

	strs := []struct {
		key string
		val string
	}{
		{"webhook", s.WebhookURL},
		{"api_token", s.APIToken},
	}
	for _, kv := range strs {
		if _, err := r.db.ExecContext(ctx, upsertStringSQL, settingsNS, kv.key, kv.val); err != nil {
			return fmt.Errorf("save setting %q: %w", kv.key, err)
		}
	}
	return nil
}

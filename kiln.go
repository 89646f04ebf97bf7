package kilnfire

import "math"

// Capacity limits shared by the engine and the stores.
const (
	MaxSegments       = 16
	MaxProfiles       = 20
	MaxHistoryRecords = 20

	// HardwareMaxTempC is the absolute ceiling the safety supervisor enforces
	// regardless of user settings.
	HardwareMaxTempC = 1400.0

	// MaxRampRateCPerH bounds the ramp rate accepted in profiles.
	MaxRampRateCPerH = 600.0
)

// FiringSegment is one leg of a firing curve: ramp to a target at a fixed
// rate, then hold. A negative ramp rate denotes controlled cooling.
// HoldMinutes == 0 means hold indefinitely until skipped.
type FiringSegment struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	RampRateCH  float64 `json:"ramp_rate_c_per_h"`
	TargetTempC float64 `json:"target_temp_c"`
	HoldMinutes int     `json:"hold_minutes"`
}

// FiringProfile is an ordered multi-segment firing curve.
type FiringProfile struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Segments    []FiringSegment `json:"segments"`

	// Cached aggregates. MaxTempC is recomputed on save; EstimatedDurationMin
	// is computed on save only when it is zero.
	MaxTempC            float64 `json:"max_temp_c"`
	EstimatedDurationMin int    `json:"estimated_duration_minutes"`
}

// RecomputeMaxTemp refreshes the cached maximum target temperature.
func (p *FiringProfile) RecomputeMaxTemp() {
	maxT := math.Inf(-1)
	for _, s := range p.Segments {
		if s.TargetTempC > maxT {
			maxT = s.TargetTempC
		}
	}
	if math.IsInf(maxT, -1) {
		maxT = 0
	}
	p.MaxTempC = maxT
}

// FiringStatus is the externally visible state of the firing engine.
type FiringStatus string

const (
	StatusIdle     FiringStatus = "idle"
	StatusHeating  FiringStatus = "heating"
	StatusHolding  FiringStatus = "holding"
	StatusCooling  FiringStatus = "cooling"
	StatusComplete FiringStatus = "complete"
	StatusError    FiringStatus = "error"
	StatusPaused   FiringStatus = "paused"
	StatusAutotune FiringStatus = "autotune"
)

// FiringProgress is the snapshot exposed to observers (HTTP, WS, display).
type FiringProgress struct {
	Active              bool         `json:"is_active"`
	ProfileID           string       `json:"profile_id,omitempty"`
	CurrentTempC        float64      `json:"current_temp_c"`
	TargetTempC         float64      `json:"target_temp_c"`
	CurrentSegment      int          `json:"current_segment"`
	TotalSegments       int          `json:"total_segments"`
	ElapsedS            uint32       `json:"elapsed_s"`
	EstimatedRemainingS uint32       `json:"estimated_remaining_s"`
	Status              FiringStatus `json:"status"`
}

// KilnSettings holds user-tunable configuration. The API token is write-only:
// it is accepted on update and never echoed back to observers.
type KilnSettings struct {
	TempUnit             string  `json:"temp_unit"` // "C" or "F"
	MaxSafeTempC         float64 `json:"max_safe_temp_c"`
	AlarmEnabled         bool    `json:"alarm_enabled"`
	AutoShutdown         bool    `json:"auto_shutdown"`
	NotificationsEnabled bool    `json:"notifications_enabled"`
	TCOffsetC            float64 `json:"tc_offset_c"`
	WebhookURL           string  `json:"webhook_url"`
	APIToken             string  `json:"-"`
	APITokenSet          bool    `json:"api_token_set"`
	ElementWatts         int     `json:"element_watts"`
	ElectricityCostKWh   float64 `json:"electricity_cost_kwh"`
}

// Settings write bounds. MaxSafeTempC is clamped into this range on update;
// the hardware ceiling itself is not overridable.
const (
	MinSafeTempC = 100.0
	MaxSafeTempC = HardwareMaxTempC
)

// Thermocouple fault flags, straight from the converter frame.
const (
	TCFaultOpenCircuit uint8 = 1 << 0
	TCFaultShortGnd    uint8 = 1 << 1
	TCFaultShortVcc    uint8 = 1 << 2
)

// ThermocoupleReading is one decoded sample. TemperatureC is 0 while a fault
// flag is set. TimestampUS is monotonic microseconds, not wall-clock.
type ThermocoupleReading struct {
	TemperatureC  float64 `json:"temperature_c"`
	InternalTempC float64 `json:"internal_temp_c"`
	Fault         uint8   `json:"fault"`
	TimestampUS   int64   `json:"timestamp_us"`
}

// Faulted reports whether any fault flag is set.
func (r ThermocoupleReading) Faulted() bool { return r.Fault != 0 }

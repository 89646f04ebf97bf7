package kilnfire

import "time"

// FiringOutcome records how a firing ended.
type FiringOutcome string

const (
	OutcomeComplete FiringOutcome = "complete"
	OutcomeError    FiringOutcome = "error"
	OutcomeAborted  FiringOutcome = "aborted"
)

// HistoryRecord summarizes one completed (or aborted) firing. IDs are
// monotonic; at most MaxHistoryRecords records are retained, oldest evicted
// together with its trace file.
type HistoryRecord struct {
	ID          uint32          `json:"id"`
	StartTime   time.Time       `json:"start_time"`
	ProfileID   string          `json:"profile_id"`
	ProfileName string          `json:"profile_name"`
	PeakTempC   float64         `json:"peak_temp_c"`
	DurationS   uint32          `json:"duration_s"`
	Outcome     FiringOutcome   `json:"outcome"`
	ErrorCode   FiringErrorCode `json:"error_code"`
}

package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kilnfire"
	"kilnfire/internal/logger"
)

const (
	historyFileName = "history.json"
	tracePattern    = "trc_%d.csv"
	traceHeader     = "time_s,temp_c\n"

	// maxHistoryJSON bounds the history blob read; 20 records with bounded
	// strings stay far under this.
	maxHistoryJSON = 32 * 1024
)

// HistoryStore persists completed firing records as a single JSON blob plus
// one CSV trace file per firing, newest record first, at most
// kilnfire.MaxHistoryRecords retained. It also owns the in-progress
// recording session: the engine opens a firing, feeds one temperature sample
// per minute, and closes it with an outcome.
type HistoryStore struct {
	dir string
	log *logger.Logger

	mu          sync.Mutex
	recording   bool
	current     kilnfire.HistoryRecord
	trace       *os.File
	traceSample uint32
	nextID      uint32
}

func NewHistoryStore(dir string, log *logger.Logger) (*HistoryStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir %q: %w", dir, err)
	}

	h := &HistoryStore{dir: dir, log: log, nextID: 1}
	if records, err := h.loadRecords(); err == nil && len(records) > 0 {
		h.nextID = records[0].ID + 1
	}
	return h, nil
}

func (h *HistoryStore) historyPath() string { return filepath.Join(h.dir, historyFileName) }

func (h *HistoryStore) tracePath(id uint32) string {
	return filepath.Join(h.dir, fmt.Sprintf(tracePattern, id))
}

func (h *HistoryStore) loadRecords() ([]kilnfire.HistoryRecord, error) {
	f, err := os.Open(h.historyPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	blob, err := io.ReadAll(io.LimitReader(f, maxHistoryJSON))
	if err != nil {
		return nil, err
	}

	var records []kilnfire.HistoryRecord
	if err := json.Unmarshal(blob, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", historyFileName, err)
	}
	return records, nil
}

func (h *HistoryStore) saveRecords(records []kilnfire.HistoryRecord) error {
	blob, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return os.WriteFile(h.historyPath(), blob, 0o644)
}

// StartFiring opens a new recording session and its trace file. Returns the
// assigned record id. Persistence failures are logged, never fatal.
func (h *HistoryStore) StartFiring(profileID, profileName string) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = kilnfire.HistoryRecord{
		ID:          h.nextID,
		StartTime:   time.Now().UTC(),
		ProfileID:   profileID,
		ProfileName: profileName,
		Outcome:     kilnfire.OutcomeAborted,
		ErrorCode:   kilnfire.ErrCodeNone,
	}
	h.nextID++

	f, err := os.Create(h.tracePath(h.current.ID))
	if err != nil {
		h.log.Warnw("trace file create failed", "id", h.current.ID, "err", err)
		h.trace = nil
	} else {
		if _, err := f.WriteString(traceHeader); err != nil {
			h.log.Warnw("trace header write failed", "err", err)
		}
		h.trace = f
	}
	h.traceSample = 0
	h.recording = true
	h.log.Infow("firing history opened", "id", h.current.ID, "profile", profileName)
	return h.current.ID
}

// RecordTemp appends one minute-resolution sample to the active trace and
// tracks the peak temperature.
func (h *HistoryStore) RecordTemp(tempC float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.recording {
		return
	}
	if h.trace != nil {
		line := fmt.Sprintf("%d,%.1f\n", h.traceSample*60, tempC)
		if _, err := h.trace.WriteString(line); err != nil {
			h.log.Warnw("trace sample write failed", "err", err)
		}
	}
	h.traceSample++
	if tempC > h.current.PeakTempC {
		h.current.PeakTempC = tempC
	}
}

// EndFiring closes the session, prepends the record and trims the store to
// the retention limit, erasing the evicted record's trace file.
func (h *HistoryStore) EndFiring(outcome kilnfire.FiringOutcome, peakTempC float64,
	durationS uint32, code kilnfire.FiringErrorCode) {

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.recording {
		return
	}

	h.current.Outcome = outcome
	if peakTempC > h.current.PeakTempC {
		h.current.PeakTempC = peakTempC
	}
	h.current.DurationS = durationS
	h.current.ErrorCode = code

	if h.trace != nil {
		_ = h.trace.Close()
		h.trace = nil
	}
	h.recording = false

	records, err := h.loadRecords()
	if err != nil {
		h.log.Warnw("history load failed, starting fresh", "err", err)
		records = nil
	}

	records = append([]kilnfire.HistoryRecord{h.current}, records...)
	for len(records) > kilnfire.MaxHistoryRecords {
		evicted := records[len(records)-1]
		records = records[:len(records)-1]
		if err := os.Remove(h.tracePath(evicted.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.log.Warnw("evicted trace remove failed", "id", evicted.ID, "err", err)
		}
	}

	if err := h.saveRecords(records); err != nil {
		h.log.Warnw("history save failed", "err", err)
	}
	h.log.Infow("firing history closed",
		"id", h.current.ID, "outcome", outcome, "peak_c", h.current.PeakTempC, "duration_s", durationS)
}

// Records returns all retained records, newest first.
func (h *HistoryStore) Records() ([]kilnfire.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadRecords()
}

// TraceCSV returns the raw trace file for a record.
func (h *HistoryStore) TraceCSV(id uint32) ([]byte, error) {
	blob, err := os.ReadFile(h.tracePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("trace %d: %w", id, kilnfire.ErrNotFound)
	}
	return blob, err
}

// Clear removes every record and trace file.
func (h *HistoryStore) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	records, err := h.loadRecords()
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := os.Remove(h.tracePath(rec.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.log.Warnw("trace remove failed", "id", rec.ID, "err", err)
		}
	}
	if err := os.Remove(h.historyPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

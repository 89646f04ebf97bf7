package service

import (
	"kilnfire"
	"kilnfire/internal/repository"
)

// HistoryService exposes the file-backed history store to observers.
type HistoryService struct {
	store *repository.HistoryStore
}

func NewHistoryService(store *repository.HistoryStore) *HistoryService {
	return &HistoryService{store: store}
}

func (s *HistoryService) Records() ([]kilnfire.HistoryRecord, error) {
	return s.store.Records()
}

func (s *HistoryService) TraceCSV(id uint32) ([]byte, error) {
	return s.store.TraceCSV(id)
}

func (s *HistoryService) Clear() error {
	return s.store.Clear()
}

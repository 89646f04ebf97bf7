package service

import (
	"context"
	"fmt"
	"math"
	"testing"

	"kilnfire"
	"kilnfire/internal/logger"
)

// fakeProfileRepo is an in-memory ProfileRepo.
type fakeProfileRepo struct {
	byID    map[string]kilnfire.FiringProfile
	index   []string
	saveErr error
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{byID: map[string]kilnfire.FiringProfile{}}
}

func (f *fakeProfileRepo) Save(ctx context.Context, p kilnfire.FiringProfile) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := f.byID[p.ID]; !ok {
		f.index = append(f.index, p.ID)
	}
	f.byID[p.ID] = p
	return nil
}

func (f *fakeProfileRepo) Load(ctx context.Context, id string) (kilnfire.FiringProfile, error) {
	p, ok := f.byID[id]
	if !ok {
		return kilnfire.FiringProfile{}, fmt.Errorf("profile %q: %w", id, kilnfire.ErrNotFound)
	}
	return p, nil
}

func (f *fakeProfileRepo) Delete(ctx context.Context, id string) error {
	delete(f.byID, id)
	for i, got := range f.index {
		if got == id {
			f.index = append(f.index[:i], f.index[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeProfileRepo) List(ctx context.Context) ([]string, error) {
	return f.index, nil
}

func validProfile() kilnfire.FiringProfile {
	return kilnfire.FiringProfile{
		ID:   "test-profile",
		Name: "Test",
		Segments: []kilnfire.FiringSegment{
			{ID: "1", RampRateCH: 100, TargetTempC: 600, HoldMinutes: 10},
		},
	}
}

func TestValidate_RejectsBadProfiles(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*kilnfire.FiringProfile)
	}{
		{"empty id", func(p *kilnfire.FiringProfile) { p.ID = "" }},
		{"long id", func(p *kilnfire.FiringProfile) {
			p.ID = "0123456789012345678901234567890123456789"
		}},
		{"no segments", func(p *kilnfire.FiringProfile) { p.Segments = nil }},
		{"too many segments", func(p *kilnfire.FiringProfile) {
			p.Segments = make([]kilnfire.FiringSegment, kilnfire.MaxSegments+1)
		}},
		{"nan target", func(p *kilnfire.FiringProfile) { p.Segments[0].TargetTempC = math.NaN() }},
		{"inf ramp", func(p *kilnfire.FiringProfile) { p.Segments[0].RampRateCH = math.Inf(1) }},
		{"ramp too steep", func(p *kilnfire.FiringProfile) { p.Segments[0].RampRateCH = 601 }},
		{"negative hold", func(p *kilnfire.FiringProfile) { p.Segments[0].HoldMinutes = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validProfile()
			tc.mutate(&p)
			if err := Validate(&p); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidate_AcceptsCoolingRamps(t *testing.T) {
	p := validProfile()
	p.Segments = append(p.Segments, kilnfire.FiringSegment{
		ID: "2", RampRateCH: -150, TargetTempC: 200,
	})
	if err := Validate(&p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProfileService_SaveRecomputesAggregates(t *testing.T) {
	repo := newFakeProfileRepo()
	s := NewProfileService(repo, logger.Nop())

	p := validProfile()
	p.MaxTempC = 1 // stale cache
	if err := s.Save(context.Background(), p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	stored := repo.byID[p.ID]
	if stored.MaxTempC != 600 {
		t.Fatalf("expected recomputed max 600, got %.0f", stored.MaxTempC)
	}
	// (600-20)/100 h = 348 min + 10 min hold.
	if stored.EstimatedDurationMin != 358 {
		t.Fatalf("expected duration 358, got %d", stored.EstimatedDurationMin)
	}
}

func TestProfileService_SaveThenLoadIsIdentity(t *testing.T) {
	repo := newFakeProfileRepo()
	s := NewProfileService(repo, logger.Nop())

	p := validProfile()
	p.Segments = append(p.Segments, kilnfire.FiringSegment{
		ID: "2", Name: "Top", RampRateCH: 150, TargetTempC: 1060, HoldMinutes: 15,
	})
	if err := s.Save(context.Background(), p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("segment count lost: %d", len(got.Segments))
	}
	for i := range p.Segments {
		if got.Segments[i] != p.Segments[i] {
			t.Fatalf("segment %d mismatch: %+v vs %+v", i, got.Segments[i], p.Segments[i])
		}
	}
}

func TestProfileService_SeedDefaultsOnlyOnEmptyStore(t *testing.T) {
	repo := newFakeProfileRepo()
	s := NewProfileService(repo, logger.Nop())

	if err := s.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	if len(repo.index) != 5 {
		t.Fatalf("expected 5 default profiles, got %d", len(repo.index))
	}
	if _, ok := repo.byID["bisque-04"]; !ok {
		t.Fatalf("expected bisque-04 among defaults")
	}

	// A second boot must not duplicate or overwrite.
	repo.byID["bisque-04"] = kilnfire.FiringProfile{ID: "bisque-04", Name: "edited"}
	if err := s.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("SeedDefaults again: %v", err)
	}
	if len(repo.index) != 5 {
		t.Fatalf("defaults duplicated: %d", len(repo.index))
	}
	if repo.byID["bisque-04"].Name != "edited" {
		t.Fatalf("second seeding overwrote user edits")
	}
}

func TestProfileService_DeleteMissingIsNoop(t *testing.T) {
	repo := newFakeProfileRepo()
	s := NewProfileService(repo, logger.Nop())
	if err := s.Delete(context.Background(), "never-existed"); err != nil {
		t.Fatalf("expected no-op delete, got %v", err)
	}
}

func TestProfileService_ListSkipsCorruptEntries(t *testing.T) {
	repo := newFakeProfileRepo()
	s := NewProfileService(repo, logger.Nop())

	if err := s.Save(context.Background(), validProfile()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	repo.index = append(repo.index, "dangling-id")

	got, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the dangling id to be skipped, got %d profiles", len(got))
	}
}

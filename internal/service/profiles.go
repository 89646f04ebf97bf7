package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"kilnfire"
	"kilnfire/internal/cone"
	"kilnfire/internal/logger"
	"kilnfire/internal/repository"
)

const maxProfileIDLen = 39

var (
	errNoSegments      = errors.New("profile needs at least one segment")
	errTooManySegments = fmt.Errorf("profile cannot exceed %d segments", kilnfire.MaxSegments)
)

// ProfileService validates and stores firing profiles and generates
// cone-fire profiles from the Orton table.
type ProfileService struct {
	repo repository.ProfileRepo
	log  *logger.Logger
}

func NewProfileService(repo repository.ProfileRepo, log *logger.Logger) *ProfileService {
	return &ProfileService{repo: repo, log: log}
}

// Validate rejects profiles the engine cannot safely run.
func Validate(p *kilnfire.FiringProfile) error {
	if p.ID == "" {
		return errEmptyProfileID
	}
	if len(p.ID) > maxProfileIDLen {
		return fmt.Errorf("profile id longer than %d characters", maxProfileIDLen)
	}
	if len(p.Segments) == 0 {
		return errNoSegments
	}
	if len(p.Segments) > kilnfire.MaxSegments {
		return errTooManySegments
	}
	for i, s := range p.Segments {
		for _, v := range []float64{s.RampRateCH, s.TargetTempC} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("segment %d has a non-finite value", i)
			}
		}
		if math.Abs(s.RampRateCH) > kilnfire.MaxRampRateCPerH {
			return fmt.Errorf("segment %d ramp %.0f°C/h exceeds %.0f°C/h",
				i, s.RampRateCH, kilnfire.MaxRampRateCPerH)
		}
		if s.HoldMinutes < 0 {
			return fmt.Errorf("segment %d has a negative hold", i)
		}
	}
	return nil
}

// Save validates, recomputes the cached maximum temperature, fills in the
// estimated duration when it is zero, and upserts.
func (s *ProfileService) Save(ctx context.Context, p kilnfire.FiringProfile) error {
	if err := Validate(&p); err != nil {
		return err
	}
	p.RecomputeMaxTemp()
	if p.EstimatedDurationMin == 0 {
		p.EstimatedDurationMin = EstimateDurationMin(p.Segments)
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return err
	}
	s.log.Infow("profile saved", "id", p.ID, "name", p.Name, "segments", len(p.Segments))
	return nil
}

func (s *ProfileService) Load(ctx context.Context, id string) (kilnfire.FiringProfile, error) {
	return s.repo.Load(ctx, id)
}

func (s *ProfileService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Infow("profile deleted", "id", id)
	return nil
}

// List loads every indexed profile. An id whose blob fails to load is
// skipped with a warning rather than failing the listing.
func (s *ProfileService) List(ctx context.Context) ([]kilnfire.FiringProfile, error) {
	ids, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]kilnfire.FiringProfile, 0, len(ids))
	for _, id := range ids {
		p, err := s.repo.Load(ctx, id)
		if err != nil {
			s.log.Warnw("indexed profile failed to load", "id", id, "err", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// GenerateConeFire builds a profile from the Orton table. Pure: it does not
// store the result.
func (s *ProfileService) GenerateConeFire(name string, speed cone.Speed,
	opts cone.Options) (kilnfire.FiringProfile, error) {
	return cone.Generate(name, speed, opts)
}

// SeedDefaults installs the standard profile set on a fresh store. A store
// with any existing profile is left alone.
func (s *ProfileService) SeedDefaults(ctx context.Context) error {
	ids, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		s.log.Infow("profiles present, skipping defaults", "count", len(ids))
		return nil
	}

	for _, p := range DefaultProfiles() {
		if err := s.Save(ctx, p); err != nil {
			s.log.Warnw("default profile install failed", "id", p.ID, "err", err)
			continue
		}
	}
	s.log.Infow("default profiles installed", "count", len(DefaultProfiles()))
	return nil
}

// EstimateDurationMin sums time-to-target at each ramp from room
// temperature plus holds.
func EstimateDurationMin(segs []kilnfire.FiringSegment) int {
	const roomTempC = 20.0

	total := 0.0
	cur := roomTempC
	for _, s := range segs {
		if math.Abs(s.RampRateCH) > 0.1 {
			total += math.Abs((s.TargetTempC-cur)/s.RampRateCH) * 60
		}
		total += float64(s.HoldMinutes)
		cur = s.TargetTempC
	}
	return int(total)
}

// DefaultProfiles is the factory profile set installed on first boot.
func DefaultProfiles() []kilnfire.FiringProfile {
	return []kilnfire.FiringProfile{
		{
			ID:          "bisque-04",
			Name:        "Bisque Cone 04",
			Description: "Standard bisque firing to cone 04",
			MaxTempC:    1060,
			EstimatedDurationMin: 540,
			Segments: []kilnfire.FiringSegment{
				{ID: "1", Name: "Warm-up", RampRateCH: 100, TargetTempC: 200, HoldMinutes: 60},
				{ID: "2", Name: "Water smoke", RampRateCH: 50, TargetTempC: 600, HoldMinutes: 30},
				{ID: "3", Name: "Ramp to top", RampRateCH: 150, TargetTempC: 1060, HoldMinutes: 15},
			},
		},
		{
			ID:          "glaze-6",
			Name:        "Glaze Cone 6",
			Description: "Mid-fire glaze for stoneware",
			MaxTempC:    1222,
			EstimatedDurationMin: 480,
			Segments: []kilnfire.FiringSegment{
				{ID: "1", Name: "Initial heat", RampRateCH: 150, TargetTempC: 600},
				{ID: "2", Name: "Medium ramp", RampRateCH: 100, TargetTempC: 1000},
				{ID: "3", Name: "Final ramp", RampRateCH: 80, TargetTempC: 1222, HoldMinutes: 10},
			},
		},
		{
			ID:          "glaze-10",
			Name:        "Glaze Cone 10",
			Description: "High-fire glaze for porcelain",
			MaxTempC:    1305,
			EstimatedDurationMin: 600,
			Segments: []kilnfire.FiringSegment{
				{ID: "1", Name: "Low heat", RampRateCH: 120, TargetTempC: 500},
				{ID: "2", Name: "Medium heat", RampRateCH: 150, TargetTempC: 1000, HoldMinutes: 15},
				{ID: "3", Name: "High heat", RampRateCH: 100, TargetTempC: 1305, HoldMinutes: 20},
			},
		},
		{
			ID:          "low-fire",
			Name:        "Low Fire Cone 06",
			Description: "Low temp for earthenware and decals",
			MaxTempC:    999,
			EstimatedDurationMin: 420,
			Segments: []kilnfire.FiringSegment{
				{ID: "1", Name: "Warm-up", RampRateCH: 100, TargetTempC: 400, HoldMinutes: 30},
				{ID: "2", Name: "Ramp to top", RampRateCH: 120, TargetTempC: 999, HoldMinutes: 10},
			},
		},
		{
			ID:          "crystalline",
			Name:        "Crystalline Glaze",
			Description: "Controlled cooling for crystal growth",
			MaxTempC:    1260,
			EstimatedDurationMin: 720,
			Segments: []kilnfire.FiringSegment{
				{ID: "1", Name: "Initial ramp", RampRateCH: 200, TargetTempC: 1260, HoldMinutes: 30},
				{ID: "2", Name: "Crystal growth", RampRateCH: -200, TargetTempC: 1100, HoldMinutes: 120},
				{ID: "3", Name: "Cool down", RampRateCH: -150, TargetTempC: 800},
			},
		},
	}
}

package session

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/classify"
	"github.com/terrascan/terrascan/internal/provider"
)

var (
	ErrNotFound         = errors.New("session not found")
	ErrNoArea           = errors.New("no area of interest selected")
	ErrAreaChanged      = errors.New("area of interest changed while the analysis was running")
	ErrThresholdOutside = fmt.Errorf("threshold must be between %.1f and %.1f", classify.MinThreshold, classify.MaxThreshold)
)

// ValidateThreshold applies the range offered to users. The classifier itself accepts any value.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < classify.MinThreshold || threshold > classify.MaxThreshold {
		return fmt.Errorf("%w, got %v", ErrThresholdOutside, threshold)
	}
	return nil
}

// Analysis is the outcome of one successful fetch and classification.
type Analysis struct {
	Result      classify.Result
	Imagery     *provider.Imagery
	Dates       provider.DateRange
	CompletedAt time.Time
}

// Baseline is the reference degraded percentage deltas are reported against.
const Baseline = 50.0

func (a *Analysis) BaselineDelta() float64 {
	return a.Result.DegradedPercent - Baseline
}

// Session holds one user's area, threshold, latest analysis and history.
// It is safe for concurrent use.
type Session struct {
	mu        sync.RWMutex
	id        string
	createdAt time.Time
	areaName  string
	area      aoi.AreaOfInterest
	threshold float64
	last      *Analysis
	history   History

	// generation is bumped by SetArea so results fetched for an older area can be told apart.
	generation uint64
}

func New(threshold float64, now time.Time) *Session {
	return &Session{
		id:        uuid.NewString(),
		createdAt: now,
		threshold: threshold,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) Area() (string, aoi.AreaOfInterest) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.areaName, s.area
}

// SetArea replaces the area of interest. The previous analysis described the
// old area, so it is dropped; history is kept.
func (s *Session) SetArea(name string, area aoi.AreaOfInterest) error {
	if _, err := area.BoundingBox(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.areaName = name
	s.area = area
	s.last = nil
	s.generation++
	return nil
}

// Target returns the area together with the generation an analysis of it must be recorded under.
func (s *Session) Target() (string, aoi.AreaOfInterest, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.areaName, s.area, s.generation
}

// Current returns the area and the analysis describing it, read under one lock.
func (s *Session) Current() (string, aoi.AreaOfInterest, *Analysis) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.areaName, s.area, s.last
}

func (s *Session) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

func (s *Session) SetThreshold(threshold float64) error {
	if err := ValidateThreshold(threshold); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
	return nil
}

func (s *Session) Last() *Analysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Record stores a successful analysis and appends it to the history.
// An analysis started before the area last changed is dropped with ErrAreaChanged.
func (s *Session) Record(analysis *Analysis, generation uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return ErrAreaChanged
	}
	s.last = analysis
	s.history = append(s.history, HistoryEntry{
		DegradedPercent: analysis.Result.DegradedPercent,
		Threshold:       analysis.Result.Threshold,
		Timestamp:       analysis.CompletedAt,
		Provider:        sourceName(analysis.Imagery),
		NoValidData:     analysis.Result.NoValidData(),
	})
	return nil
}

// Fail clears the latest analysis after a failed attempt. History is untouched.
// A failure for an area that has since been replaced leaves the session alone.
func (s *Session) Fail(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation == s.generation {
		s.last = nil
	}
}

func (s *Session) History() History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(History(nil), s.history...)
}

func sourceName(imagery *provider.Imagery) string {
	if imagery == nil {
		return ""
	}
	return imagery.Source.Provider
}

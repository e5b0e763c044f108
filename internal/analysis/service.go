package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/terrascan/terrascan/internal/classify"
	"github.com/terrascan/terrascan/internal/provider"
	"github.com/terrascan/terrascan/internal/report"
	"github.com/terrascan/terrascan/internal/session"
)

var ErrNoAnalysis = errors.New("no analysis has been run for this area yet")

// Notifier receives a short message after every analysis attempt.
type Notifier interface {
	Success(ctx context.Context, message string) error
	Failure(ctx context.Context, message string) error
}

type Request struct {
	Threshold float64
	Dates     provider.DateRange
}

// Service runs the fetch, classify, record pipeline for sessions.
type Service struct {
	provider provider.Provider
	notifier Notifier
	log      *logrus.Entry
	now      func() time.Time
}

// NewService builds a service. notifier may be nil.
func NewService(p provider.Provider, notifier Notifier, logger *logrus.Logger) *Service {
	return &Service{
		provider: p,
		notifier: notifier,
		log:      logger.WithField("component", "analysis"),
		now:      time.Now,
	}
}

func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// Analyze fetches imagery for the session's area and classifies it.
// A failed fetch clears the session's last analysis and is returned without classifying.
// When the session's area changes during the fetch the result is discarded with
// session.ErrAreaChanged.
func (s *Service) Analyze(ctx context.Context, sess *session.Session, req Request) (*session.Analysis, error) {
	name, area, generation := sess.Target()
	if area.IsZero() {
		return nil, session.ErrNoArea
	}
	if _, err := area.BoundingBox(); err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"session":   sess.ID(),
		"area":      name,
		"threshold": req.Threshold,
		"dates":     req.Dates.String(),
		"provider":  s.provider.Name(),
	})
	log.Info("fetching imagery")

	started := s.now()
	imagery, err := s.provider.FetchIndexAndImagery(ctx, area, req.Dates)
	if err == nil && !imagery.HasData() {
		err = provider.ErrNoData
	}
	if err != nil {
		sess.Fail(generation)
		log.WithError(err).Warn("analysis failed")
		s.notify(ctx, false, fmt.Sprintf("%s: analysis failed: %v", displayName(name), err))
		return nil, fmt.Errorf("analysis failed for %s: %w", displayName(name), err)
	}

	result := classify.Classify(imagery.NDVI, req.Threshold)
	analysis := &session.Analysis{
		Result:      result,
		Imagery:     imagery,
		Dates:       req.Dates,
		CompletedAt: s.now(),
	}
	if err := sess.Record(analysis, generation); err != nil {
		log.WithError(err).Warn("discarding analysis")
		return nil, fmt.Errorf("analysis discarded for %s: %w", displayName(name), err)
	}

	log.WithFields(logrus.Fields{
		"degraded_percent": result.DegradedPercent,
		"valid_pixels":     result.Counts.Valid(),
		"missing_pixels":   result.Counts.Missing,
		"cached":           imagery.Source.Cached,
		"took":             analysis.CompletedAt.Sub(started),
	}).Info("analysis complete")
	s.notify(ctx, true, Summary(name, analysis))

	return analysis, nil
}

// Report renders the CSV report for the session's latest analysis.
func (s *Service) Report(sess *session.Session, generatedAt time.Time) (report.Report, error) {
	_, area, last := sess.Current()
	if last == nil {
		return report.Report{}, ErrNoAnalysis
	}
	return report.Generate(area, last.Result.DegradedPercent, last.Result.Threshold, generatedAt)
}

// Summary is a one-line description of an analysis.
func Summary(name string, analysis *session.Analysis) string {
	result := analysis.Result
	if result.NoValidData() {
		return fmt.Sprintf("%s: no valid pixels in the imagery", displayName(name))
	}
	band := report.BandFor(result.DegradedPercent)
	return fmt.Sprintf("%s: %.2f%% degraded at threshold %v (%s, %+.2f vs %.0f%% baseline)",
		displayName(name), result.DegradedPercent, result.Threshold, band.Status, analysis.BaselineDelta(), session.Baseline)
}

func (s *Service) notify(ctx context.Context, success bool, message string) {
	if s.notifier == nil {
		return
	}
	var err error
	if success {
		err = s.notifier.Success(ctx, message)
	} else {
		err = s.notifier.Failure(ctx, message)
	}
	if err != nil {
		s.log.WithError(err).Warn("failed to send notification")
	}
}

func displayName(name string) string {
	if name == "" {
		return "area"
	}
	return name
}

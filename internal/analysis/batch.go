package analysis

import (
	"context"

	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/session"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of analysing one area in a batch. Err is set when it failed.
type Outcome struct {
	Name     string
	Session  *session.Session
	Analysis *session.Analysis
	Err      error
}

// AnalyzeBatch analyses each area in its own session, at most limit at a time.
// Individual failures are reported in the outcomes; only cancellation aborts the batch.
func (s *Service) AnalyzeBatch(ctx context.Context, areas []aoi.Named, req Request, limit int) ([]Outcome, error) {
	outcomes := make([]Outcome, len(areas))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, area := range areas {
		g.Go(func() error {
			sess := session.New(req.Threshold, s.now())
			outcomes[i] = Outcome{Name: area.Name, Session: sess}

			if err := sess.SetArea(area.Name, area.Area); err != nil {
				outcomes[i].Err = err
				return nil
			}
			analysis, err := s.Analyze(ctx, sess, req)
			outcomes[i].Analysis = analysis
			outcomes[i].Err = err
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

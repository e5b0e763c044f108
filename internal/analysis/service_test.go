package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/classify"
	"github.com/terrascan/terrascan/internal/logging"
	"github.com/terrascan/terrascan/internal/provider"
	"github.com/terrascan/terrascan/internal/provider/providertest"
	"github.com/terrascan/terrascan/internal/report"
	"github.com/terrascan/terrascan/internal/session"
)

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (n *recordingNotifier) Success(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
	return nil
}

func (n *recordingNotifier) Failure(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, message)
	return nil
}

func nairobi() aoi.AreaOfInterest {
	return aoi.New(
		orb.Point{36.68, -1.18},
		orb.Point{36.68, -1.38},
		orb.Point{37.08, -1.38},
		orb.Point{37.08, -1.18},
		orb.Point{36.68, -1.18},
	)
}

func request(threshold float64) Request {
	return Request{
		Threshold: threshold,
		Dates: provider.DateRange{
			Start: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
		},
	}
}

// 1 of 5 valid pixels is below 0.2 and 4 are below 0.55; one pixel is missing.
func staticProvider() *providertest.Static {
	return &providertest.Static{Imagery: provider.Imagery{
		NDVI:   classify.Raster{{0.1, 0.3, classify.NoData}, {0.5, 0.6, 0.25}},
		Source: provider.Source{Provider: "static"},
	}}
}

// gatedProvider holds every fetch until release is closed, signalling on started once the fetch is in flight.
type gatedProvider struct {
	provider.Provider
	started chan struct{}
	release chan struct{}
}

func newGatedProvider(next provider.Provider) *gatedProvider {
	return &gatedProvider{Provider: next, started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedProvider) FetchIndexAndImagery(ctx context.Context, area aoi.AreaOfInterest, dates provider.DateRange) (*provider.Imagery, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Provider.FetchIndexAndImagery(ctx, area, dates)
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	sess := session.New(0.2, time.Now())
	if err := sess.SetArea("nairobi", nairobi()); err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestAnalyzeRecordsResult(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := NewService(staticProvider(), notifier, logging.Discard())
	sess := newSession(t)

	analysis, err := svc.Analyze(context.Background(), sess, request(0.2))
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if analysis.Result.DegradedPercent != 20 {
		t.Fatalf("expected 20%% degraded, got %v", analysis.Result.DegradedPercent)
	}
	if analysis.Result.Counts.Missing != 1 {
		t.Fatalf("expected 1 missing pixel, got %d", analysis.Result.Counts.Missing)
	}
	if sess.Last() != analysis {
		t.Fatalf("expected session to hold the analysis")
	}
	if h := sess.History(); len(h) != 1 || h[0].Provider != "static" {
		t.Fatalf("unexpected history %+v", h)
	}
	if len(notifier.successes) != 1 || !strings.Contains(notifier.successes[0], "20.00% degraded") {
		t.Fatalf("unexpected notifications %+v", notifier.successes)
	}
}

func TestAnalyzeFetchFailureSkipsClassification(t *testing.T) {
	notifier := &recordingNotifier{}
	p := staticProvider()
	svc := NewService(p, notifier, logging.Discard())
	sess := newSession(t)

	if _, err := svc.Analyze(context.Background(), sess, request(0.2)); err != nil {
		t.Fatal(err)
	}

	p.Err = provider.ErrNoData
	_, err := svc.Analyze(context.Background(), sess, request(0.2))
	if !errors.Is(err, provider.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if sess.Last() != nil {
		t.Fatalf("expected failed analysis to clear the last result")
	}
	if len(sess.History()) != 1 {
		t.Fatalf("failed analyses must not be added to history")
	}
	if len(notifier.failures) != 1 {
		t.Fatalf("expected a failure notification")
	}
	if _, err := svc.Report(sess, time.Now()); !errors.Is(err, ErrNoAnalysis) {
		t.Fatalf("expected ErrNoAnalysis, got %v", err)
	}
}

func TestAnalyzeEmptyImageryIsNoData(t *testing.T) {
	svc := NewService(&providertest.Static{}, nil, logging.Discard())
	_, err := svc.Analyze(context.Background(), newSession(t), request(0.2))
	if !errors.Is(err, provider.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestAnalyzeAllMissingRasterIsNotAFailure(t *testing.T) {
	p := &providertest.Static{Imagery: provider.Imagery{
		NDVI: classify.Raster{{classify.NoData, classify.NoData}},
	}}
	svc := NewService(p, nil, logging.Discard())

	analysis, err := svc.Analyze(context.Background(), newSession(t), request(0.2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !analysis.Result.NoValidData() || analysis.Result.HasMask() || analysis.Result.DegradedPercent != 0 {
		t.Fatalf("expected the no-data result, got %+v", analysis.Result)
	}
	if !strings.Contains(Summary("x", analysis), "no valid pixels") {
		t.Fatalf("unexpected summary %q", Summary("x", analysis))
	}
}

func TestAnalyzeRequiresArea(t *testing.T) {
	svc := NewService(staticProvider(), nil, logging.Discard())
	_, err := svc.Analyze(context.Background(), session.New(0.2, time.Now()), request(0.2))
	if !errors.Is(err, session.ErrNoArea) {
		t.Fatalf("expected ErrNoArea, got %v", err)
	}
}

func TestAnalyzeDiscardsResultWhenAreaChangesDuringFetch(t *testing.T) {
	tests := []struct {
		name    string
		next    provider.Provider
		wantErr error
	}{
		{"fetch succeeds", staticProvider(), session.ErrAreaChanged},
		{"fetch fails", &providertest.Static{Err: provider.ErrNoData}, provider.ErrNoData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gated := newGatedProvider(tt.next)
			notifier := &recordingNotifier{}
			svc := NewService(gated, notifier, logging.Discard())
			sess := newSession(t)

			errc := make(chan error, 1)
			go func() {
				_, err := svc.Analyze(context.Background(), sess, request(0.2))
				errc <- err
			}()

			<-gated.started
			if err := sess.SetArea("karura", nairobi()); err != nil {
				t.Fatal(err)
			}
			// An analysis of the new area completes while the old fetch is still running.
			_, _, generation := sess.Target()
			current := &session.Analysis{Result: classify.Classify(classify.Raster{{0.1, 0.4}}, 0.2), CompletedAt: time.Now()}
			if err := sess.Record(current, generation); err != nil {
				t.Fatal(err)
			}
			close(gated.release)

			if err := <-errc; !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			name, _, last := sess.Current()
			if name != "karura" || last != current {
				t.Fatalf("stale result replaced the current analysis (%q, %+v)", name, last)
			}
			if n := len(sess.History()); n != 1 {
				t.Fatalf("expected only the current analysis in history, got %d entries", n)
			}
			if len(notifier.successes) != 0 {
				t.Fatalf("stale result was announced: %v", notifier.successes)
			}

			r, err := svc.Report(sess, time.Now())
			if err != nil {
				t.Fatal(err)
			}
			data, err := r.CSV()
			if err != nil {
				t.Fatal(err)
			}
			values, err := report.Parse(data)
			if err != nil {
				t.Fatal(err)
			}
			if values[report.MetricDegraded] != "50.00%" {
				t.Fatalf("report describes %s degraded, want the current analysis", values[report.MetricDegraded])
			}
		})
	}
}

func TestReport(t *testing.T) {
	svc := NewService(staticProvider(), nil, logging.Discard())
	sess := newSession(t)
	if _, err := svc.Analyze(context.Background(), sess, request(0.2)); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC)
	r, err := svc.Report(sess, at)
	if err != nil {
		t.Fatal(err)
	}
	data, err := r.CSV()
	if err != nil {
		t.Fatal(err)
	}
	values, err := report.Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		report.MetricGenerated:    "2025-07-31 12:00:00",
		report.MetricDegraded:     "20.00%",
		report.MetricThreshold:    "0.2",
		report.MetricHealthStatus: "Good",
		report.MetricMinLon:       "36.68",
	}
	for metric, value := range want {
		if values[metric] != value {
			t.Errorf("%s = %q, want %q", metric, values[metric], value)
		}
	}
}

func TestAnalyzeBatch(t *testing.T) {
	svc := NewService(staticProvider(), nil, logging.Discard())
	areas := []aoi.Named{
		{Name: "north", Area: nairobi()},
		{Name: "broken", Area: aoi.New(orb.Point{0, 0}, orb.Point{0, 0})},
		{Name: "south", Area: nairobi()},
	}

	outcomes, err := svc.AnalyzeBatch(context.Background(), areas, request(0.55), 2)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for _, i := range []int{0, 2} {
		if outcomes[i].Err != nil || outcomes[i].Analysis == nil {
			t.Fatalf("%s: unexpected outcome %+v", outcomes[i].Name, outcomes[i])
		}
		if outcomes[i].Analysis.Result.DegradedPercent != 80 {
			t.Fatalf("%s: expected 80%%, got %v", outcomes[i].Name, outcomes[i].Analysis.Result.DegradedPercent)
		}
	}
	if !errors.Is(outcomes[1].Err, aoi.ErrInvalidGeometry) {
		t.Fatalf("expected invalid geometry for broken area, got %v", outcomes[1].Err)
	}
}

func TestAnalyzeBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewService(providertest.NewSynthetic(1), nil, logging.Discard())
	_, err := svc.AnalyzeBatch(ctx, []aoi.Named{{Name: "a", Area: nairobi()}}, request(0.2), 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

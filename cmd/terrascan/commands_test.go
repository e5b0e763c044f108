package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/terrascan/terrascan/internal/analysis"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/classify"
	"github.com/terrascan/terrascan/internal/logging"
	"github.com/terrascan/terrascan/internal/provider"
	"github.com/terrascan/terrascan/internal/provider/providertest"
)

func TestParseDates(t *testing.T) {
	t.Setenv("TERRASCAN_START_DATE", "")
	t.Setenv("TERRASCAN_END_DATE", "")

	tests := []struct {
		name      string
		start     string
		end       string
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{"explicit range", "2025-06-01", "2025-06-30", "2025-06-01", "2025-06-30", false},
		{"end only", "", "2025-06-30", "2025-04-01", "2025-06-30", false},
		{"reversed", "2025-06-30", "2025-06-01", "", "", true},
		{"bad layout", "06/01/2025", "2025-06-30", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dates, err := parseDates(tt.start, tt.end)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %v", dates)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := dates.Start.Format(dateLayout); got != tt.wantStart {
				t.Errorf("start = %s, want %s", got, tt.wantStart)
			}
			if got := dates.End.Format(dateLayout); got != tt.wantEnd {
				t.Errorf("end = %s, want %s", got, tt.wantEnd)
			}
		})
	}
}

func TestParseDatesDefaultsToLastNinetyDays(t *testing.T) {
	t.Setenv("TERRASCAN_START_DATE", "")
	t.Setenv("TERRASCAN_END_DATE", "")

	dates, err := parseDates("", "")
	if err != nil {
		t.Fatal(err)
	}
	if span := dates.End.Sub(dates.Start); span < 89*24*time.Hour || span > 91*24*time.Hour {
		t.Fatalf("unexpected default span %v", span)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "analyze", "interactive", "version"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("missing %s command", name)
		}
	}
}

const namedPlots = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"name":"Farm/North"},"geometry":{"type":"Polygon","coordinates":[[[36.68,-1.18],[36.68,-1.38],[37.08,-1.38],[37.08,-1.18],[36.68,-1.18]]]}},
{"type":"Feature","properties":{"name":"plot"},"geometry":{"type":"Polygon","coordinates":[[[36.7,-1.2],[36.7,-1.3],[36.8,-1.3],[36.8,-1.2],[36.7,-1.2]]]}},
{"type":"Feature","properties":{"name":"plot"},"geometry":{"type":"Polygon","coordinates":[[[36.9,-1.2],[36.9,-1.3],[37.0,-1.3],[37.0,-1.2],[36.9,-1.2]]]}}
]}`

func TestWriteOutcomeFileNames(t *testing.T) {
	areas, err := aoi.ParseAll([]byte(namedPlots))
	if err != nil {
		t.Fatal(err)
	}
	static := &providertest.Static{Imagery: provider.Imagery{
		NDVI:   classify.Raster{{0.1, 0.3}, {0.5, 0.6}},
		Source: provider.Source{Provider: "static"},
	}}
	service := analysis.NewService(static, nil, logging.Discard())
	dates := provider.DateRange{
		Start: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
	}
	outcomes, err := service.AnalyzeBatch(context.Background(), areas, analysis.Request{Threshold: 0.2, Dates: dates}, 1)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		images bool
		ext    string
	}{
		{"reports only", false, ".csv"},
		{"with images", true, ".geojson"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for i, outcome := range outcomes {
				if outcome.Err != nil {
					t.Fatalf("%s: %v", outcome.Name, outcome.Err)
				}
				if err := writeOutcome(service, i, outcome, dir, tt.images); err != nil {
					t.Fatalf("%s: %v", outcome.Name, err)
				}
			}

			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatal(err)
			}
			var written []string
			for _, entry := range entries {
				if entry.IsDir() {
					t.Fatalf("area name escaped into directory %s", entry.Name())
				}
				if filepath.Ext(entry.Name()) == tt.ext {
					written = append(written, entry.Name())
				}
			}
			sort.Strings(written)
			if len(written) != len(outcomes) {
				t.Fatalf("expected %d %s files, got %v", len(outcomes), tt.ext, written)
			}
			for i, prefix := range []string{"Farm_North_01_", "plot_02_", "plot_03_"} {
				if !strings.HasPrefix(written[i], prefix) {
					t.Errorf("file %d = %s, want prefix %s", i, written[i], prefix)
				}
			}
		})
	}
}

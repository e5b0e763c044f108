package ui

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/terrascan/terrascan/internal/analysis"
	"github.com/terrascan/terrascan/internal/classify"
	"github.com/terrascan/terrascan/internal/logging"
	"github.com/terrascan/terrascan/internal/provider"
	"github.com/terrascan/terrascan/internal/provider/providertest"
)

const areas = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"name":"north"},"geometry":{"type":"Polygon","coordinates":[[[36.68,-1.18],[36.68,-1.38],[37.08,-1.38],[37.08,-1.18],[36.68,-1.18]]]}},
{"type":"Feature","properties":{"name":"south"},"geometry":{"type":"Polygon","coordinates":[[[36.7,-2.0],[36.7,-2.2],[36.9,-2.2],[36.9,-2.0],[36.7,-2.0]]]}}
]}`

func newConsole(t *testing.T, input string, p provider.Provider) (*Console, *bytes.Buffer, string) {
	t.Helper()
	logger := logging.Discard()
	out := &bytes.Buffer{}
	dir := t.TempDir()
	c := NewConsole(strings.NewReader(input), out, analysis.NewService(p, nil, logger), 0.2, dir, logger)
	c.spinner = false
	c.now = func() time.Time { return time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC) }
	return c, out, dir
}

func writeAreas(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "areas.geojson")
	if err := os.WriteFile(path, []byte(areas), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func staticProvider() *providertest.Static {
	return &providertest.Static{Imagery: provider.Imagery{
		NDVI: classify.Raster{
			{0.1, 0.3, 0.6, 0.7},
			{0.5, classify.NoData, 0.05, 0.4},
		},
		Source: provider.Source{Provider: "static"},
	}}
}

func TestConsoleFullSession(t *testing.T) {
	input := strings.Join([]string{
		"1", writeAreas(t), "2",
		"2", "0.3",
		"3", "2025-07-01", "2025-07-31",
		"3", "", "",
		"4",
		"5",
		"6",
		"7",
		"8",
	}, "\n") + "\n"
	c, out, dir := newConsole(t, input, staticProvider())

	if err := c.ShowMenu(context.Background()); err != nil {
		t.Fatal(err)
	}

	if name, _ := c.Session().Area(); name != "south" {
		t.Errorf("expected the second area to be selected, got %q", name)
	}
	if c.Session().Threshold() != 0.3 {
		t.Errorf("threshold not applied: %v", c.Session().Threshold())
	}
	if got := len(c.Session().History()); got != 2 {
		t.Errorf("expected 2 history entries, got %d", got)
	}

	text := out.String()
	for _, want := range []string{"Area \"south\" loaded", "28.57% degraded", "Recommended action", "Exiting..."} {
		if !strings.Contains(text, want) {
			t.Errorf("output is missing %q", want)
		}
	}
	if strings.Contains(text, "Error:") {
		t.Errorf("unexpected error in output:\n%s", text)
	}

	for _, pattern := range []string{"reports/*.csv", "images/*_ndvi.png", "images/*_mask.png", "images/*.geojson", "timelapse/south_ndvi.avi"} {
		matches, _ := filepath.Glob(filepath.Join(dir, pattern))
		if len(matches) == 0 {
			t.Errorf("no file matches %s", pattern)
		}
	}
	if matches, _ := filepath.Glob(filepath.Join(dir, "images", "*_truecolor.png")); len(matches) != 0 {
		t.Errorf("true colour image exported without imagery: %v", matches)
	}
}

func TestConsoleReportsErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"not a number", "abc\n", "invalid number: abc"},
		{"out of range", "9\n", "value must be between 1 and 8"},
		{"analysis without area", "3\n", "no area of interest selected"},
		{"threshold above range", "2\n0.7\n", "threshold must be between"},
		{"report before analysis", "5\n", "no analysis"},
		{"timelapse before analysis", "7\n", "no analysis"},
		{"missing file", "1\n/does/not/exist.geojson\n", "Error:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, out, _ := newConsole(t, tt.input, staticProvider())
			if err := c.ShowMenu(context.Background()); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Fatalf("expected %q in output:\n%s", tt.want, out.String())
			}
		})
	}
}

func TestConsoleFailedAnalysisKeepsHistoryEmpty(t *testing.T) {
	input := "1\n" + writeAreas(t) + "\n1\n3\n\n\n"
	c, out, _ := newConsole(t, input, &providertest.Static{Err: provider.ErrNoData})
	if err := c.ShowMenu(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(c.Session().History()) != 0 || c.Session().Last() != nil {
		t.Fatal("failed analysis must not be recorded")
	}
	if !strings.Contains(out.String(), provider.ErrNoData.Error()) {
		t.Fatalf("expected no data error in output:\n%s", out.String())
	}
}

func TestConsoleStopsOnCancelledContext(t *testing.T) {
	c, _, _ := newConsole(t, "4\n", staticProvider())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.ShowMenu(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

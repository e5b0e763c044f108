package provider_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/cache"
	"github.com/terrascan/terrascan/internal/logging"
	"github.com/terrascan/terrascan/internal/provider"
	"github.com/terrascan/terrascan/internal/provider/providertest"
)

func area() aoi.AreaOfInterest {
	return aoi.New(
		orb.Point{36.68, -1.18},
		orb.Point{36.68, -1.38},
		orb.Point{37.08, -1.38},
		orb.Point{37.08, -1.18},
		orb.Point{36.68, -1.18},
	)
}

func dates() provider.DateRange {
	return provider.DateRange{
		Start: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestSyntheticIsDeterministic(t *testing.T) {
	a := &providertest.Synthetic{Width: 20, Height: 10, Seed: 7}
	b := &providertest.Synthetic{Width: 20, Height: 10, Seed: 7}

	first, err := a.FetchIndexAndImagery(context.Background(), area(), dates())
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.FetchIndexAndImagery(context.Background(), area(), dates())
	if err != nil {
		t.Fatal(err)
	}
	if rows, cols := first.NDVI.Shape(); rows != 10 || cols != 20 {
		t.Fatalf("unexpected shape %dx%d", rows, cols)
	}
	for y := range first.NDVI {
		for x := range first.NDVI[y] {
			v := first.NDVI[y][x]
			if v < -1 || v > 1 {
				t.Fatalf("value %v out of range", v)
			}
			if v != second.NDVI[y][x] {
				t.Fatalf("expected identical rasters for the same seed")
			}
		}
	}
}

func TestSyntheticFailure(t *testing.T) {
	s := &providertest.Synthetic{Err: provider.ErrNoData}
	if _, err := s.FetchIndexAndImagery(context.Background(), area(), dates()); !errors.Is(err, provider.ErrNoData) {
		t.Fatalf("expected provider.ErrNoData, got %v", err)
	}
	if s.Calls() != 1 {
		t.Fatalf("expected 1 call, got %d", s.Calls())
	}
}

func TestCachedProvider(t *testing.T) {
	synthetic := &providertest.Synthetic{Width: 8, Height: 4, Seed: 3}
	fc := cache.NewFileCache[provider.CachedImagery](filepath.Join(t.TempDir(), "cache"), time.Hour)
	p := provider.Cached(synthetic, fc, logging.Discard())

	if p.Name() != providertest.Name {
		t.Fatalf("unexpected name %q", p.Name())
	}

	first, err := p.FetchIndexAndImagery(context.Background(), area(), dates())
	if err != nil {
		t.Fatal(err)
	}
	if first.Source.Cached {
		t.Fatalf("first fetch should not be cached")
	}

	second, err := p.FetchIndexAndImagery(context.Background(), area(), dates())
	if err != nil {
		t.Fatal(err)
	}
	if synthetic.Calls() != 1 {
		t.Fatalf("expected a single upstream call, got %d", synthetic.Calls())
	}
	if !second.Source.Cached {
		t.Fatalf("second fetch should come from cache")
	}
	if second.NDVI[2][5] != first.NDVI[2][5] {
		t.Fatalf("cached raster differs")
	}
	if second.TrueColor.RGBAAt(5, 2) != first.TrueColor.RGBAAt(5, 2) {
		t.Fatalf("cached true colour image differs")
	}

	other := dates()
	other.End = other.End.AddDate(0, 0, 1)
	if _, err := p.FetchIndexAndImagery(context.Background(), area(), other); err != nil {
		t.Fatal(err)
	}
	if synthetic.Calls() != 2 {
		t.Fatalf("expected a new upstream call for different dates, got %d", synthetic.Calls())
	}
}

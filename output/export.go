package output

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/paulmach/orb/geojson"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/report"
	"github.com/terrascan/terrascan/internal/session"
)

type Kind string

const (
	KindNDVI      Kind = "ndvi"
	KindMask      Kind = "mask"
	KindTrueColor Kind = "truecolor"
)

var Kinds = []Kind{KindNDVI, KindMask, KindTrueColor}

var ErrNoImage = errors.New("image not available for this analysis")

func ParseKind(value string) (Kind, error) {
	for _, kind := range Kinds {
		if string(kind) == value {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown image kind %q", value)
}

// FileName turns an area name into something usable as part of a file name.
// Characters other than ASCII letters, digits, '-' and '_' become '_'.
func FileName(name string) string {
	if name == "" {
		return "area"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

// Render produces the requested visualization of an analysis, legend included.
func Render(kind Kind, analysis *session.Analysis) (image.Image, error) {
	if analysis == nil || analysis.Imagery == nil {
		return nil, ErrNoImage
	}
	switch kind {
	case KindNDVI:
		img, err := RenderNDVI(analysis.Imagery.NDVI)
		if err != nil {
			return nil, err
		}
		return WithNDVILegend(img, "NDVI"), nil
	case KindMask:
		img, err := RenderMask(analysis.Imagery.NDVI, analysis.Result.Mask)
		if err != nil {
			return nil, err
		}
		return WithMaskLegend(img, analysis.Result.DegradedPercent), nil
	case KindTrueColor:
		if analysis.Imagery.TrueColor == nil {
			return nil, ErrNoImage
		}
		return analysis.Imagery.TrueColor, nil
	default:
		return nil, fmt.Errorf("unknown image kind %q", kind)
	}
}

// RenderAll writes every available visualization to dir as <prefix>_<kind>.png.
// Kinds the analysis cannot produce are skipped.
func RenderAll(dir, prefix string, analysis *session.Analysis) (map[Kind]string, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}

	var (
		mu    sync.Mutex
		paths = make(map[Kind]string)
		errs  []error
	)
	wp := workerpool.New(len(Kinds))
	for _, kind := range Kinds {
		wp.Submit(func() {
			img, err := Render(kind, analysis)
			if errors.Is(err, ErrNoImage) || errors.Is(err, ErrNoMask) || errors.Is(err, ErrEmptyRaster) {
				return
			}
			path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", prefix, kind))
			if err == nil {
				err = SavePNG(path, img)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", kind, err))
				return
			}
			paths[kind] = path
		})
	}
	wp.StopWait()

	return paths, errors.Join(errs...)
}

// WriteGeoJSON writes the area as a FeatureCollection whose single feature carries the analysis results.
func WriteGeoJSON(path, name string, area aoi.AreaOfInterest, analysis *session.Analysis) error {
	bounds, err := area.BoundingBox()
	if err != nil {
		return err
	}

	feature := geojson.NewFeature(area.Polygon())
	feature.Properties["name"] = name
	feature.Properties["bbox"] = bounds.Array()
	feature.Properties["area_km2"] = bounds.AreaKm2()
	if centroid, err := area.Centroid(); err == nil {
		feature.Properties["centroid"] = []float64{centroid.Lon(), centroid.Lat()}
	}
	if analysis != nil {
		result := analysis.Result
		feature.Properties["degraded_percent"] = result.DegradedPercent
		feature.Properties["healthy_percent"] = result.HealthyPercent()
		feature.Properties["threshold"] = result.Threshold
		feature.Properties["no_valid_data"] = result.NoValidData()
		feature.Properties["health_status"] = report.BandFor(result.DegradedPercent).Status
		feature.Properties["analyzed_at"] = analysis.CompletedAt.Format(report.TimestampLayout)
		if analysis.Imagery != nil {
			feature.Properties["provider"] = analysis.Imagery.Source.Provider
			if analysis.Imagery.Source.SceneID != "" {
				feature.Properties["scene_id"] = analysis.Imagery.Source.SceneID
			}
		}
	}

	collection := geojson.NewFeatureCollection()
	collection.Append(feature)
	data, err := collection.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write GeoJSON: %w", err)
	}
	return nil
}

package aoi

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Named pairs an area with a label taken from its feature properties.
type Named struct {
	Name string
	Area AreaOfInterest
}

// Parse reads a GeoJSON Polygon, or the first polygon of a Feature or FeatureCollection.
// Open rings are closed.
func Parse(data []byte) (AreaOfInterest, error) {
	named, err := ParseAll(data)
	if err != nil {
		return AreaOfInterest{}, err
	}
	return named[0].Area, nil
}

// ParseAll reads every polygon feature of a GeoJSON document.
func ParseAll(data []byte) ([]Named, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("failed to decode GeoJSON: %w", err)
	}

	var areas []Named
	switch header.Type {
	case "FeatureCollection":
		collection, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode feature collection: %w", err)
		}
		for i, feature := range collection.Features {
			area, err := fromGeometry(feature.Geometry)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			areas = append(areas, Named{Name: featureName(feature, i), Area: area})
		}
	case "Feature":
		feature, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode feature: %w", err)
		}
		area, err := fromGeometry(feature.Geometry)
		if err != nil {
			return nil, err
		}
		areas = append(areas, Named{Name: featureName(feature, 0), Area: area})
	default:
		geometry, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode geometry: %w", err)
		}
		area, err := fromGeometry(geometry.Geometry())
		if err != nil {
			return nil, err
		}
		areas = append(areas, Named{Name: "aoi", Area: area})
	}

	if len(areas) == 0 {
		return nil, fmt.Errorf("%w: no polygon found", ErrInvalidGeometry)
	}
	return areas, nil
}

func ParseFile(path string) ([]Named, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseAll(data)
}

func fromGeometry(geometry orb.Geometry) (AreaOfInterest, error) {
	polygon, ok := geometry.(orb.Polygon)
	if !ok {
		return AreaOfInterest{}, fmt.Errorf("%w: expected Polygon, got %T", ErrInvalidGeometry, geometry)
	}
	if len(polygon) == 0 {
		return AreaOfInterest{}, fmt.Errorf("%w: polygon has no rings", ErrInvalidGeometry)
	}

	ring := polygon[0].Clone()
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	area := AreaOfInterest{ring: ring}
	if err := area.Validate(); err != nil {
		return AreaOfInterest{}, err
	}
	return area, nil
}

func featureName(feature *geojson.Feature, index int) string {
	for _, key := range []string{"name", "plot_id", "id"} {
		if value, ok := feature.Properties[key]; ok {
			return fmt.Sprint(value)
		}
	}
	if feature.ID != nil {
		return fmt.Sprint(feature.ID)
	}
	return fmt.Sprintf("aoi-%d", index+1)
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/properties"
	"golang.org/x/oauth2/jwt"
)

const (
	earthEngineBaseURL  = "https://earthengine.googleapis.com/v1"
	earthEngineScope    = "https://www.googleapis.com/auth/earthengine"
	earthEngineTokenURL = "https://oauth2.googleapis.com/token"
)

// Sentinel-2 surface reflectance in Earth Engine is scaled by 10000.
var earthEngineLayout = BandLayout{Red: 0, Green: 1, Blue: 2, NIR: 3, Bright: 3000}

type EarthEngineConfig struct {
	Project        string
	ServiceAccount string
	PrivateKey     []byte
	BaseURL        string
	Collection     string
	MaxCloud       float64
	// Scale in meters per pixel.
	Scale float64
	// HTTPClient replaces the service account client when set.
	HTTPClient *http.Client
}

func EarthEngineConfigFromProperties() (EarthEngineConfig, error) {
	config := EarthEngineConfig{
		Project:        properties.EarthEngineProject(),
		ServiceAccount: properties.EarthEngineServiceAccount(),
		BaseURL:        earthEngineBaseURL,
		Collection:     "COPERNICUS/S2_SR_HARMONIZED",
		MaxCloud:       20,
		Scale:          10,
	}
	keyFile := properties.EarthEnginePrivateKeyFile()
	if keyFile == "" {
		return config, fmt.Errorf("missing required environment variable: EARTHENGINE_PRIVATE_KEY_FILE")
	}
	key, err := os.ReadFile(keyFile)
	if err != nil {
		return config, fmt.Errorf("failed to read earth engine private key: %w", err)
	}
	config.PrivateKey = key
	return config, nil
}

// EarthEngine computes a cloud filtered Sentinel-2 mosaic with the Earth Engine REST API.
type EarthEngine struct {
	config EarthEngineConfig
	log    *logrus.Entry
	decode decodeFunc
}

func NewEarthEngine(config EarthEngineConfig, logger *logrus.Logger) (*EarthEngine, error) {
	if config.Project == "" {
		return nil, fmt.Errorf("missing required environment variable: EARTHENGINE_PROJECT")
	}
	if config.HTTPClient == nil && (config.ServiceAccount == "" || len(config.PrivateKey) == 0) {
		return nil, fmt.Errorf("missing required environment variables: EARTHENGINE_SERVICE_ACCOUNT or EARTHENGINE_PRIVATE_KEY_FILE")
	}
	if config.BaseURL == "" {
		config.BaseURL = earthEngineBaseURL
	}
	if config.Collection == "" {
		config.Collection = "COPERNICUS/S2_SR_HARMONIZED"
	}
	if config.Scale <= 0 {
		config.Scale = 10
	}
	return &EarthEngine{
		config: config,
		log:    logger.WithField("provider", NameEarthEngine),
		decode: decodeGeoTIFF,
	}, nil
}

func (e *EarthEngine) Name() string {
	return NameEarthEngine
}

func (e *EarthEngine) client(ctx context.Context) *http.Client {
	if e.config.HTTPClient != nil {
		return e.config.HTTPClient
	}
	config := &jwt.Config{
		Email:      e.config.ServiceAccount,
		PrivateKey: e.config.PrivateKey,
		Scopes:     []string{earthEngineScope},
		TokenURL:   earthEngineTokenURL,
	}
	return config.Client(ctx)
}

func (e *EarthEngine) FetchIndexAndImagery(ctx context.Context, area aoi.AreaOfInterest, dates DateRange) (*Imagery, error) {
	if err := dates.Validate(); err != nil {
		return nil, err
	}
	body, err := e.buildRequest(area, dates)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/projects/%s/image:computePixels", e.config.BaseURL, e.config.Project)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	response, err := e.client(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("earth engine request failed: %w", err)
	}
	defer response.Body.Close()

	content, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	switch {
	case response.StatusCode == http.StatusBadRequest || response.StatusCode == http.StatusNotFound:
		// An empty filtered collection surfaces as an invalid expression.
		return nil, fmt.Errorf("%w: earth engine returned %d: %s", ErrNoData, response.StatusCode, string(content))
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("earth engine rejected the service account (status %d)", response.StatusCode)
	case response.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("earth engine error: %d - %s", response.StatusCode, string(content))
	}
	e.log.WithFields(logrus.Fields{"bytes": len(content), "took": time.Since(started)}).Debug("computed earth engine pixels")

	imagery, err := e.decode(content, earthEngineLayout, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decode earth engine image: %w", err)
	}
	imagery.Source = Source{Provider: NameEarthEngine, SceneID: e.config.Collection}
	return imagery, nil
}

func (e *EarthEngine) buildRequest(area aoi.AreaOfInterest, dates DateRange) ([]byte, error) {
	bounds, err := area.BoundingBox()
	if err != nil {
		return nil, err
	}

	var ring [][]float64
	for _, point := range area.Ring() {
		ring = append(ring, []float64{point[0], point[1]})
	}
	geometry := invoke("GeometryConstructors.Polygon", map[string]interface{}{
		"coordinates": constant([][][]float64{ring}),
	})

	collection := invoke("ImageCollection.load", map[string]interface{}{
		"id": constant(e.config.Collection),
	})
	collection = invoke("Collection.filter", map[string]interface{}{
		"collection": collection,
		"filter": invoke("Filter.dateRangeContains", map[string]interface{}{
			"leftValue": invoke("DateRange", map[string]interface{}{
				"start": constant(dates.Start.UTC().Format(time.RFC3339)),
				"end":   constant(dates.End.UTC().Format(time.RFC3339)),
			}),
			"rightField": constant("system:time_start"),
		}),
	})
	collection = invoke("Collection.filter", map[string]interface{}{
		"collection": collection,
		"filter": invoke("Filter.lessThan", map[string]interface{}{
			"leftField":  constant("CLOUDY_PIXEL_PERCENTAGE"),
			"rightValue": constant(e.config.MaxCloud),
		}),
	})
	collection = invoke("Collection.filter", map[string]interface{}{
		"collection": collection,
		"filter": invoke("Filter.intersects", map[string]interface{}{
			"leftField":  constant(".all"),
			"rightValue": geometry,
		}),
	})
	image := invoke("Image.clip", map[string]interface{}{
		"input": invoke("ImageCollection.mosaic", map[string]interface{}{
			"collection": collection,
		}),
		"geometry": geometry,
	})

	// One degree is roughly 111km; the grid is kept in degrees to match the AOI.
	step := e.config.Scale / 111_000.0
	width := calculatePixels(bounds.MaxLon-bounds.MinLon, e.config.Scale)
	height := calculatePixels(bounds.MaxLat-bounds.MinLat, e.config.Scale)

	payload := map[string]interface{}{
		"expression": map[string]interface{}{
			"result": "0",
			"values": map[string]interface{}{"0": image},
		},
		"fileFormat": "GEO_TIFF",
		"bandIds":    []string{"B4", "B3", "B2", "B8"},
		"grid": map[string]interface{}{
			"dimensions": map[string]int{"width": width, "height": height},
			"affineTransform": map[string]float64{
				"scaleX":     step,
				"shearX":     0,
				"translateX": bounds.MinLon,
				"shearY":     0,
				"scaleY":     -step,
				"translateY": bounds.MaxLat,
			},
			"crsCode": "EPSG:4326",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal earth engine request: %v", err)
	}
	return body, nil
}

func invoke(function string, arguments map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"functionInvocationValue": map[string]interface{}{
			"functionName": function,
			"arguments":    arguments,
		},
	}
}

func constant(value interface{}) map[string]interface{} {
	return map[string]interface{}{"constantValue": value}
}

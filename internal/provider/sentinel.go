package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/properties"
	"golang.org/x/oauth2/clientcredentials"
)

const sentinelProcessURL = "https://sh.dataspace.copernicus.eu/api/v1/process"

const sentinelEvalscript = `
    //VERSION=3
    function setup() {
      return {
        input: [{ bands: ["B02", "B03", "B04", "B08", "dataMask"] }],
        output: {
          id: "default",
          bands: 4,
          sampleType: SampleType.FLOAT32,
        },
      }
    }

    function evaluatePixel(sample) {
      if (sample.dataMask === 0) {
        return [0, 0, 0, 0];
      }
      return [sample.B04, sample.B03, sample.B02, sample.B08];
    }
  `

// Reflectance band order produced by sentinelEvalscript.
var sentinelLayout = BandLayout{Red: 0, Green: 1, Blue: 2, NIR: 3, Bright: 0.3}

var errUnauthorized = errors.New("unauthorized access, check your client ID and secret")

type SentinelConfig struct {
	ClientIDs     []string
	ClientSecrets []string
	TokenURL      string
	ProcessURL    string
	// Resolution in meters per pixel.
	Resolution float64
	Retries    int
	RetryDelay time.Duration
}

func SentinelConfigFromProperties() SentinelConfig {
	return SentinelConfig{
		ClientIDs:     properties.CopernicusClientIDs(),
		ClientSecrets: properties.CopernicusClientSecrets(),
		TokenURL:      properties.CopernicusTokenURL(),
		ProcessURL:    sentinelProcessURL,
		Resolution:    10,
		Retries:       10,
		RetryDelay:    5 * time.Second,
	}
}

// Sentinel fetches Sentinel-2 L2A imagery through the Sentinel Hub Process API.
type Sentinel struct {
	config SentinelConfig
	log    *logrus.Entry
	decode decodeFunc
}

func NewSentinel(config SentinelConfig, logger *logrus.Logger) (*Sentinel, error) {
	if len(config.ClientIDs) == 0 || len(config.ClientSecrets) == 0 || config.TokenURL == "" {
		return nil, fmt.Errorf("missing required environment variables: COPERNICUS_CLIENT_ID, COPERNICUS_CLIENT_SECRET, or COPERNICUS_TOKEN_URL")
	}
	if len(config.ClientIDs) != len(config.ClientSecrets) {
		return nil, fmt.Errorf("mismatched number of client IDs and secrets")
	}
	if config.ProcessURL == "" {
		config.ProcessURL = sentinelProcessURL
	}
	if config.Resolution <= 0 {
		config.Resolution = 10
	}
	if config.Retries <= 0 {
		config.Retries = 1
	}
	return &Sentinel{
		config: config,
		log:    logger.WithField("provider", NameSentinel),
		decode: decodeGeoTIFF,
	}, nil
}

func (s *Sentinel) Name() string {
	return NameSentinel
}

func calculatePixels(distance float64, resolution float64) int {
	pixels := distance * (111_000.0 / resolution)
	if pixels < 1 {
		return 1
	}
	if pixels > 2500 {
		return 2500
	}
	return int(pixels)
}

func (s *Sentinel) FetchIndexAndImagery(ctx context.Context, area aoi.AreaOfInterest, dates DateRange) (*Imagery, error) {
	if err := dates.Validate(); err != nil {
		return nil, err
	}
	body, err := s.buildRequest(area, dates)
	if err != nil {
		return nil, err
	}

	content, err := s.requestImage(ctx, body)
	if err != nil {
		return nil, err
	}

	imagery, err := s.decode(content, sentinelLayout, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sentinel hub image: %w", err)
	}
	imagery.Source = Source{Provider: NameSentinel}
	return imagery, nil
}

func (s *Sentinel) buildRequest(area aoi.AreaOfInterest, dates DateRange) ([]byte, error) {
	bounds, err := area.BoundingBox()
	if err != nil {
		return nil, err
	}
	geometry, err := area.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export geometry to GeoJSON: %w", err)
	}

	requestPayload := map[string]interface{}{
		"input": map[string]interface{}{
			"bounds": map[string]interface{}{
				"geometry": json.RawMessage(geometry),
				"properties": map[string]string{
					"crs": "http://www.opengis.net/def/crs/EPSG/0/4326",
				},
			},
			"data": []map[string]interface{}{
				{
					"type": "sentinel-2-l2a",
					"dataFilter": map[string]interface{}{
						"timeRange": map[string]string{
							"from": dates.Start.Format(time.RFC3339),
							"to":   dates.End.Format(time.RFC3339),
						},
						"mosaickingOrder": "mostRecent",
					},
				},
			},
		},
		"output": map[string]interface{}{
			"width":  calculatePixels(bounds.MaxLon-bounds.MinLon, s.config.Resolution),
			"height": calculatePixels(bounds.MaxLat-bounds.MinLat, s.config.Resolution),
			"responses": []map[string]interface{}{
				{
					"identifier": "default",
					"format": map[string]string{
						"type": "image/tiff",
					},
				},
			},
		},
		"evalscript": sentinelEvalscript,
	}

	requestBody, err := json.Marshal(requestPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %v", err)
	}
	return requestBody, nil
}

// requestImage tries each configured key in turn, retrying transient failures per key.
func (s *Sentinel) requestImage(ctx context.Context, requestBody []byte) ([]byte, error) {
	var lastErr error
	for i, clientID := range s.config.ClientIDs {
		config := &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: s.config.ClientSecrets[i],
			TokenURL:     s.config.TokenURL,
		}
		httpClient := config.Client(ctx)

		content, err := s.requestWithRetry(ctx, httpClient, requestBody)
		if err == nil {
			return content, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.WithError(err).WithField("key", i+1).Warn("sentinel hub key failed")
		lastErr = err
	}
	return nil, fmt.Errorf("failed to request image from sentinel hub: %w", lastErr)
}

func (s *Sentinel) requestWithRetry(ctx context.Context, httpClient *http.Client, requestBody []byte) ([]byte, error) {
	var err error
	for attempt := 1; attempt <= s.config.Retries; attempt++ {
		var content []byte
		var status int
		content, status, err = s.post(ctx, httpClient, requestBody)
		if err == nil && status == http.StatusOK {
			return content, nil
		}

		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return nil, errUnauthorized
		case status == http.StatusBadRequest:
			return nil, fmt.Errorf("sentinel hub rejected the request: %s", string(content))
		case err == nil:
			err = fmt.Errorf("status %d: %s", status, string(content))
		}
		s.log.WithFields(logrus.Fields{"attempt": attempt, "retries": s.config.Retries}).WithError(err).Warn("sentinel hub request failed")

		if attempt == s.config.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.config.RetryDelay):
		}
	}
	return nil, fmt.Errorf("failed to request image after %d attempts: %w", s.config.Retries, err)
}

func (s *Sentinel) post(ctx context.Context, httpClient *http.Client, requestBody []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.ProcessURL, bytes.NewReader(requestBody))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/tiff")

	response, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer response.Body.Close()

	content, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, response.StatusCode, fmt.Errorf("failed to read response body: %v", err)
	}
	return content, response.StatusCode, nil
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/properties"
	"github.com/terrascan/terrascan/internal/utils"
)

const planetBaseURL = "https://api.planet.com/data/v1"

// PSScene 4-band surface reflectance is ordered blue, green, red, NIR and scaled by 10000.
var planetLayout = BandLayout{Blue: 0, Green: 1, Red: 2, NIR: 3, Bright: 3000}

type PlanetConfig struct {
	APIKey        string
	BaseURL       string
	ItemType      string
	AssetType     string
	MaxCloudCover float64
	PollInterval  time.Duration
	MaxPolls      int
	HTTPClient    *http.Client
}

func PlanetConfigFromProperties() PlanetConfig {
	return PlanetConfig{
		APIKey:        properties.PlanetAPIKey(),
		BaseURL:       planetBaseURL,
		ItemType:      "PSScene",
		AssetType:     "ortho_analytic_4b_sr",
		MaxCloudCover: 0.1,
		PollInterval:  5 * time.Second,
		MaxPolls:      60,
	}
}

// Planet searches the Planet Data API for the most recent clear scene,
// activates its analytic asset and downloads it.
type Planet struct {
	config PlanetConfig
	client *http.Client
	log    *logrus.Entry
	decode decodeFunc
}

func NewPlanet(config PlanetConfig, logger *logrus.Logger) (*Planet, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("missing required environment variable: PLANET_API_KEY")
	}
	if config.BaseURL == "" {
		config.BaseURL = planetBaseURL
	}
	if config.ItemType == "" {
		config.ItemType = "PSScene"
	}
	if config.AssetType == "" {
		config.AssetType = "ortho_analytic_4b_sr"
	}
	if config.MaxPolls <= 0 {
		config.MaxPolls = 1
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Planet{
		config: config,
		client: client,
		log:    logger.WithField("provider", NamePlanet),
		decode: decodeGeoTIFF,
	}, nil
}

func (p *Planet) Name() string {
	return NamePlanet
}

type planetItem struct {
	ID         string `json:"id"`
	Properties struct {
		Acquired   time.Time `json:"acquired"`
		CloudCover float64   `json:"cloud_cover"`
	} `json:"properties"`
	Links struct {
		Assets string `json:"assets"`
	} `json:"_links"`
}

type planetAsset struct {
	Status   string `json:"status"`
	Location string `json:"location"`
	Links    struct {
		Activate string `json:"activate"`
	} `json:"_links"`
}

func (p *Planet) FetchIndexAndImagery(ctx context.Context, area aoi.AreaOfInterest, dates DateRange) (*Imagery, error) {
	if err := dates.Validate(); err != nil {
		return nil, err
	}
	bounds, err := area.BoundingBox()
	if err != nil {
		return nil, err
	}

	item, err := p.search(ctx, area, dates)
	if err != nil {
		return nil, err
	}
	p.log.WithFields(logrus.Fields{
		"item":        item.ID,
		"acquired":    item.Properties.Acquired,
		"cloud_cover": item.Properties.CloudCover,
	}).Info("found planet scene")

	location, err := p.activate(ctx, item)
	if err != nil {
		return nil, err
	}

	content, _, err := p.do(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download planet asset: %w", err)
	}

	imagery, err := p.decode(content, planetLayout, &bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to decode planet asset: %w", err)
	}
	cloud := item.Properties.CloudCover
	imagery.Source = Source{
		Provider:   NamePlanet,
		SceneID:    item.ID,
		AcquiredAt: item.Properties.Acquired,
		CloudCover: &cloud,
	}
	return imagery, nil
}

func (p *Planet) search(ctx context.Context, area aoi.AreaOfInterest, dates DateRange) (*planetItem, error) {
	geometry, err := area.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export geometry to GeoJSON: %w", err)
	}

	searchRequest := map[string]interface{}{
		"item_types": []string{p.config.ItemType},
		"filter": map[string]interface{}{
			"type": "AndFilter",
			"config": []map[string]interface{}{
				{
					"type":       "GeometryFilter",
					"field_name": "geometry",
					"config":     json.RawMessage(geometry),
				},
				{
					"type":       "DateRangeFilter",
					"field_name": "acquired",
					"config": map[string]string{
						"gte": dates.Start.UTC().Format(time.RFC3339),
						"lte": dates.End.UTC().Format(time.RFC3339),
					},
				},
				{
					"type":       "RangeFilter",
					"field_name": "cloud_cover",
					"config": map[string]float64{
						"lte": p.config.MaxCloudCover,
					},
				},
				{
					"type":   "AssetFilter",
					"config": []string{p.config.AssetType},
				},
			},
		},
	}
	body, err := json.Marshal(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal planet search: %v", err)
	}

	content, _, err := p.do(ctx, http.MethodPost, p.config.BaseURL+"/quick-search", body)
	if err != nil {
		return nil, fmt.Errorf("planet search failed: %w", err)
	}

	var results struct {
		Features []planetItem `json:"features"`
	}
	if err := json.Unmarshal(content, &results); err != nil {
		return nil, fmt.Errorf("failed to decode planet search: %w", err)
	}
	if len(results.Features) == 0 {
		return nil, fmt.Errorf("%w: no clear planet scenes between %s", ErrNoData, dates)
	}

	utils.SortByTime(results.Features, func(item planetItem) time.Time { return item.Properties.Acquired }, false)
	return &results.Features[0], nil
}

// activate requests asset activation and polls until a download location is available.
func (p *Planet) activate(ctx context.Context, item *planetItem) (string, error) {
	assetsURL := item.Links.Assets
	if assetsURL == "" {
		assetsURL = fmt.Sprintf("%s/item-types/%s/items/%s/assets", p.config.BaseURL, p.config.ItemType, item.ID)
	}

	requested := false
	for poll := 0; poll < p.config.MaxPolls; poll++ {
		content, _, err := p.do(ctx, http.MethodGet, assetsURL, nil)
		if err != nil {
			return "", fmt.Errorf("failed to list planet assets: %w", err)
		}
		var assets map[string]planetAsset
		if err := json.Unmarshal(content, &assets); err != nil {
			return "", fmt.Errorf("failed to decode planet assets: %w", err)
		}
		asset, ok := assets[p.config.AssetType]
		if !ok {
			return "", fmt.Errorf("%w: scene %s has no %s asset", ErrNoData, item.ID, p.config.AssetType)
		}

		switch asset.Status {
		case "active":
			if asset.Location != "" {
				return asset.Location, nil
			}
		case "inactive":
			if !requested {
				if _, _, err := p.do(ctx, http.MethodGet, asset.Links.Activate, nil); err != nil {
					return "", fmt.Errorf("failed to activate planet asset: %w", err)
				}
				requested = true
			}
		}
		p.log.WithFields(logrus.Fields{"item": item.ID, "status": asset.Status, "poll": poll + 1}).Debug("waiting for planet asset")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.config.PollInterval):
		}
	}
	return "", fmt.Errorf("planet asset for %s was not activated after %d polls", item.ID, p.config.MaxPolls)
}

func (p *Planet) do(ctx context.Context, method, url string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "api-key "+p.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	response, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer response.Body.Close()

	content, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, response.StatusCode, fmt.Errorf("failed to read response body: %v", err)
	}
	switch {
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return nil, response.StatusCode, fmt.Errorf("planet api key rejected (status %d)", response.StatusCode)
	case response.StatusCode >= 300:
		return nil, response.StatusCode, fmt.Errorf("planet api error: %d - %s", response.StatusCode, string(content))
	}
	return content, response.StatusCode, nil
}

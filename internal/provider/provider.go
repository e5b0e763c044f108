package provider

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/cache"
	"github.com/terrascan/terrascan/internal/classify"
	"github.com/terrascan/terrascan/internal/properties"
)

// ErrNoData means the provider found no usable imagery for the request.
// Callers treat it as a terminal failure for that analysis.
var ErrNoData = errors.New("no imagery available for this area")

// Provider fetches a true colour image and an NDVI raster for an area.
type Provider interface {
	Name() string
	FetchIndexAndImagery(ctx context.Context, area aoi.AreaOfInterest, dates DateRange) (*Imagery, error)
}

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (d DateRange) Validate() error {
	if d.Start.IsZero() || d.End.IsZero() {
		return fmt.Errorf("date range requires both start and end")
	}
	if d.End.Before(d.Start) {
		return fmt.Errorf("date range end %s is before start %s", d.End.Format(time.DateOnly), d.Start.Format(time.DateOnly))
	}
	return nil
}

func (d DateRange) String() string {
	return d.Start.Format(time.DateOnly) + "/" + d.End.Format(time.DateOnly)
}

// Source describes where an image came from.
type Source struct {
	Provider   string    `json:"provider"`
	SceneID    string    `json:"scene_id,omitempty"`
	AcquiredAt time.Time `json:"acquired_at,omitempty"`
	CloudCover *float64  `json:"cloud_cover,omitempty"`
	Cached     bool      `json:"cached"`
}

type Imagery struct {
	TrueColor *image.RGBA
	NDVI      classify.Raster
	Source    Source
}

func (i *Imagery) HasData() bool {
	return i != nil && (len(i.NDVI) > 0 || i.TrueColor != nil)
}

// Names of the configurable providers.
const (
	NameSentinel    = "sentinel"
	NamePlanet      = "planet"
	NameEarthEngine = "earthengine"
)

func Names() []string {
	return []string{NameSentinel, NamePlanet, NameEarthEngine}
}

// New builds the named provider from environment settings.
func New(name string, logger *logrus.Logger) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch name {
	case NameSentinel:
		p, err = NewSentinel(SentinelConfigFromProperties(), logger)
	case NamePlanet:
		p, err = NewPlanet(PlanetConfigFromProperties(), logger)
	case NameEarthEngine:
		var config EarthEngineConfig
		config, err = EarthEngineConfigFromProperties()
		if err == nil {
			p, err = NewEarthEngine(config, logger)
		}
	default:
		return nil, fmt.Errorf("unknown imagery provider %q (expected one of %s)", name, strings.Join(Names(), ", "))
	}
	if err != nil {
		return nil, err
	}

	if properties.CacheEnabled() {
		fc := cache.NewFileCache[CachedImagery](properties.DataPath("cache", name), properties.CacheMaxAge())
		pruned, err := fc.Prune()
		if err != nil {
			logger.WithError(err).Warn("failed to prune imagery cache")
		}
		logger.WithFields(logrus.Fields{"dir": fc.Dir(), "pruned": pruned}).Debug("imagery cache enabled")
		p = Cached(p, fc, logger)
	}
	return p, nil
}

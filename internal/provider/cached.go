package provider

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/sirupsen/logrus"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/cache"
	"github.com/terrascan/terrascan/internal/classify"
)

// CachedImagery is the on-disk form of Imagery. The true colour image is kept as PNG.
type CachedImagery struct {
	NDVI      classify.Raster `json:"ndvi"`
	TrueColor []byte          `json:"true_color,omitempty"`
	Source    Source          `json:"source"`
}

type cachedProvider struct {
	next  Provider
	cache cache.CacheService[CachedImagery]
	log   *logrus.Entry
}

// Cached wraps next so repeated requests for the same area and dates skip the network.
func Cached(next Provider, c cache.CacheService[CachedImagery], logger *logrus.Logger) Provider {
	return &cachedProvider{
		next:  next,
		cache: c,
		log:   logger.WithField("provider", next.Name()),
	}
}

func (c *cachedProvider) Name() string {
	return c.next.Name()
}

func (c *cachedProvider) FetchIndexAndImagery(ctx context.Context, area aoi.AreaOfInterest, dates DateRange) (*Imagery, error) {
	bounds, err := area.BoundingBox()
	if err != nil {
		return nil, err
	}
	key := c.cache.GenerateKey(c.next.Name(), bounds.MinLon, bounds.MinLat, bounds.MaxLon, bounds.MaxLat, dates.String())

	if entry, ok := c.cache.Get(key); ok {
		imagery, err := entry.imagery()
		if err == nil {
			c.log.WithField("key", key).Debug("imagery cache hit")
			imagery.Source.Cached = true
			return imagery, nil
		}
		c.log.WithError(err).Warn("discarding unreadable cache entry")
	}

	imagery, err := c.next.FetchIndexAndImagery(ctx, area, dates)
	if err != nil {
		return nil, err
	}

	entry, err := newCachedImagery(imagery)
	if err == nil {
		err = c.cache.Set(key, entry)
	}
	if err != nil {
		c.log.WithError(err).Warn("failed to cache imagery")
	}
	return imagery, nil
}

func newCachedImagery(imagery *Imagery) (CachedImagery, error) {
	entry := CachedImagery{NDVI: imagery.NDVI, Source: imagery.Source}
	if imagery.TrueColor != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, imagery.TrueColor); err != nil {
			return entry, fmt.Errorf("failed to encode true colour image: %w", err)
		}
		entry.TrueColor = buf.Bytes()
	}
	return entry, nil
}

func (e CachedImagery) imagery() (*Imagery, error) {
	imagery := &Imagery{NDVI: e.NDVI, Source: e.Source}
	if len(e.TrueColor) == 0 {
		return imagery, nil
	}
	decoded, err := png.Decode(bytes.NewReader(e.TrueColor))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cached true colour image: %w", err)
	}
	rgba, ok := decoded.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(decoded.Bounds())
		draw.Draw(rgba, rgba.Bounds(), decoded, decoded.Bounds().Min, draw.Src)
	}
	imagery.TrueColor = rgba
	return imagery, nil
}

package providertest

import (
	"context"
	"image"
	"image/color"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/classify"
	"github.com/terrascan/terrascan/internal/provider"
)

const Name = "synthetic"

// Synthetic generates deterministic imagery without any network access: a noisy
// sin/cos NDVI pattern with one healthy patch, and a matching green/brown true colour image.
// Setting Err makes every fetch fail with it.
type Synthetic struct {
	Width, Height int
	Seed          uint64
	Err           error

	calls atomic.Int64
}

func NewSynthetic(seed uint64) *Synthetic {
	return &Synthetic{Width: 200, Height: 200, Seed: seed}
}

func (s *Synthetic) Name() string {
	return Name
}

// Calls reports how many fetches reached the generator.
func (s *Synthetic) Calls() int {
	return int(s.calls.Load())
}

func (s *Synthetic) FetchIndexAndImagery(ctx context.Context, area aoi.AreaOfInterest, dates provider.DateRange) (*provider.Imagery, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if _, err := area.BoundingBox(); err != nil {
		return nil, err
	}

	width, height := s.Width, s.Height
	if width <= 0 || height <= 0 {
		width, height = 200, 200
	}
	rng := rand.New(rand.NewPCG(s.Seed, uint64(width*height)))

	ndvi := make(classify.Raster, height)
	trueColor := image.NewRGBA(image.Rect(0, 0, width, height))
	for row := 0; row < height; row++ {
		ndvi[row] = make([]float64, width)
		y := fraction(row, height)
		for col := 0; col < width; col++ {
			x := fraction(col, width)

			value := rng.Float64()*0.8 - 0.2
			value += 0.3 * math.Sin(3*x) * math.Cos(3*y)
			value += 0.2 * math.Exp(-((x-0.7)*(x-0.7)+(y-0.7)*(y-0.7))/0.1)
			ndvi[row][col] = math.Max(-1, math.Min(1, value))

			base := [3]int{139, 69, 19}
			if math.Sin(4*x)*math.Cos(4*y) > 0 {
				base = [3]int{30, 120, 30}
			}
			var px [3]uint8
			for i := range base {
				px[i] = uint8(max(0, min(255, base[i]+rng.IntN(40)-20)))
			}
			trueColor.SetRGBA(col, row, color.RGBA{R: px[0], G: px[1], B: px[2], A: 255})
		}
	}

	return &provider.Imagery{
		TrueColor: trueColor,
		NDVI:      ndvi,
		Source: provider.Source{
			Provider:   Name,
			SceneID:    "synthetic",
			AcquiredAt: dates.End.Truncate(24 * time.Hour),
		},
	}, nil
}

func fraction(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(i) / float64(n-1)
}

// Static returns a copy of the same imagery for every request, or Err when set.
type Static struct {
	Imagery provider.Imagery
	Err     error
}

func (s *Static) Name() string {
	return "static"
}

func (s *Static) FetchIndexAndImagery(ctx context.Context, area aoi.AreaOfInterest, dates provider.DateRange) (*provider.Imagery, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	imagery := s.Imagery
	return &imagery, nil
}

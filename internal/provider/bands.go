package provider

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/classify"
	"github.com/terrascan/terrascan/internal/utils"
)

// BandLayout maps a provider's GeoTIFF band order to the colours we need.
type BandLayout struct {
	Red, Green, Blue, NIR int
	// Bright is the sample value rendered as full intensity in the true colour image.
	Bright float64
}

func (l BandLayout) bandCount() int {
	return max(l.Red, l.Green, l.Blue, l.NIR) + 1
}

type decodeFunc func(data []byte, layout BandLayout, clip *aoi.Bounds) (*Imagery, error)

type bandData struct {
	values    []float64
	nodata    float64
	hasNoData bool
}

func (b bandData) missing(i int) bool {
	value := b.values[i]
	return math.IsNaN(value) || math.IsInf(value, 0) || (b.hasNoData && value == b.nodata)
}

var registerDrivers sync.Once

// decodeGeoTIFF reads a multi-band GeoTIFF with GDAL, optionally cropping it to clip first.
func decodeGeoTIFF(data []byte, layout BandLayout, clip *aoi.Bounds) (*Imagery, error) {
	registerDrivers.Do(godal.RegisterAll)

	tmp, err := os.CreateTemp("", "terrascan-*.tif")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp image: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp image: %w", err)
	}

	var imagery *Imagery
	err = utils.WithGDAL(func() error {
		var readErr error
		imagery, readErr = readDataset(tmp.Name(), layout, clip)
		return readErr
	})
	return imagery, err
}

func readDataset(path string, layout BandLayout, clip *aoi.Bounds) (*Imagery, error) {
	ds, err := godal.Open(path, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer ds.Close()

	if clip != nil {
		clipped, err := ds.Translate("", []string{
			"-projwin", formatCoord(clip.MinLon), formatCoord(clip.MaxLat), formatCoord(clip.MaxLon), formatCoord(clip.MinLat),
			"-projwin_srs", "EPSG:4326",
		}, godal.Memory)
		if err != nil {
			return nil, fmt.Errorf("failed to clip image to area: %w", err)
		}
		defer clipped.Close()
		ds = clipped
	}

	structure := ds.Structure()
	width, height := structure.SizeX, structure.SizeY
	bands := ds.Bands()
	if len(bands) < layout.bandCount() {
		return nil, fmt.Errorf("image has %d bands, expected at least %d", len(bands), layout.bandCount())
	}

	read := func(index int) (bandData, error) {
		band := bands[index]
		values := make([]float64, width*height)
		if err := band.Read(0, 0, values, width, height); err != nil {
			return bandData{}, fmt.Errorf("failed to read band %d: %w", index+1, err)
		}
		nodata, ok := band.NoData()
		return bandData{values: values, nodata: nodata, hasNoData: ok}, nil
	}

	var decoded [4]bandData
	for i, index := range []int{layout.Red, layout.Green, layout.Blue, layout.NIR} {
		if decoded[i], err = read(index); err != nil {
			return nil, err
		}
	}

	return assemble(width, height, decoded[0], decoded[1], decoded[2], decoded[3], layout.Bright), nil
}

// assemble derives NDVI and a true colour image. Pixels that are band no-data,
// non-finite, or zero in every band are outside the scene and become classify.NoData.
func assemble(width, height int, red, green, blue, nir bandData, bright float64) *Imagery {
	ndvi := make(classify.Raster, height)
	trueColor := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		ndvi[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			i := y*width + x
			if red.missing(i) || nir.missing(i) || green.missing(i) || blue.missing(i) ||
				(red.values[i] == 0 && green.values[i] == 0 && blue.values[i] == 0 && nir.values[i] == 0) {
				ndvi[y][x] = classify.NoData
				continue
			}
			ndvi[y][x] = classify.NormalizedDifference(nir.values[i], red.values[i])
			trueColor.SetRGBA(x, y, color.RGBA{
				R: stretch(red.values[i], bright),
				G: stretch(green.values[i], bright),
				B: stretch(blue.values[i], bright),
				A: 255,
			})
		}
	}

	return &Imagery{TrueColor: trueColor, NDVI: ndvi}
}

func stretch(value, bright float64) uint8 {
	if bright <= 0 {
		bright = 1
	}
	scaled := value / bright * 255
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}

func formatCoord(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

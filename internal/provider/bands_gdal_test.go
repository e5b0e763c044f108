//go:build gdal

package provider

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/classify"
)

const (
	tiffSize  = 4
	pixelSize = 0.25
	originLon = 36.0
	originLat = -1.0
)

// writeGeoTIFF builds a north-up EPSG:4326 Float32 GeoTIFF in Planet band order
// (blue, green, red, nir) with 0.25 degree pixels. The top-left pixel is zero in
// every band and the bottom-right red sample is the red band's no-data value.
func writeGeoTIFF(t *testing.T, bands int) []byte {
	t.Helper()
	registerDrivers.Do(godal.RegisterAll)

	path := filepath.Join(t.TempDir(), "scene.tif")
	ds, err := godal.Create(godal.GTiff, path, bands, godal.Float32, tiffSize, tiffSize)
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.SetGeoTransform([6]float64{originLon, pixelSize, 0, originLat, 0, -pixelSize}); err != nil {
		t.Fatal(err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		t.Fatal(err)
	}

	samples := []float32{100, 200, 500, 1500}
	for i, band := range ds.Bands() {
		buf := make([]float32, tiffSize*tiffSize)
		for j := range buf {
			buf[j] = samples[i]
		}
		buf[0] = 0
		if i == planetLayout.Red {
			if err := band.SetNoData(-1); err != nil {
				t.Fatal(err)
			}
			buf[len(buf)-1] = -1
		}
		if err := band.Write(0, 0, buf, tiffSize, tiffSize); err != nil {
			t.Fatal(err)
		}
	}
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDecodeGeoTIFF(t *testing.T) {
	data := writeGeoTIFF(t, 4)

	tests := []struct {
		name          string
		clip          *aoi.Bounds
		width, height int
		wantMissing   int
	}{
		{"whole scene", nil, 4, 4, 2},
		{"clipped to top-left quarter", &aoi.Bounds{MinLon: 36.0, MaxLon: 36.5, MinLat: -1.5, MaxLat: -1.0}, 2, 2, 1},
		{"clipped to bottom-right quarter", &aoi.Bounds{MinLon: 36.5, MaxLon: 37.0, MinLat: -2.0, MaxLat: -1.5}, 2, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imagery, err := decodeGeoTIFF(data, planetLayout, tt.clip)
			if err != nil {
				t.Fatal(err)
			}
			height, width := imagery.NDVI.Shape()
			if width != tt.width || height != tt.height {
				t.Fatalf("shape %dx%d, want %dx%d", width, height, tt.width, tt.height)
			}
			if b := imagery.TrueColor.Bounds(); b.Dx() != tt.width || b.Dy() != tt.height {
				t.Fatalf("true colour is %v, want %dx%d", b, tt.width, tt.height)
			}

			missing := 0
			for _, row := range imagery.NDVI {
				for _, value := range row {
					if value == classify.NoData {
						missing++
						continue
					}
					if math.Abs(value-0.5) > 1e-6 {
						t.Fatalf("NDVI %v, want 0.5", value)
					}
				}
			}
			if missing != tt.wantMissing {
				t.Fatalf("%d pixels missing, want %d", missing, tt.wantMissing)
			}
		})
	}
}

func TestDecodeGeoTIFFTrueColorStretch(t *testing.T) {
	imagery, err := decodeGeoTIFF(writeGeoTIFF(t, 4), planetLayout, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := imagery.TrueColor.RGBAAt(1, 1)
	if got.R != stretch(500, planetLayout.Bright) || got.G != stretch(200, planetLayout.Bright) || got.B != stretch(100, planetLayout.Bright) {
		t.Fatalf("unexpected colour %+v", got)
	}
	if got := imagery.TrueColor.RGBAAt(0, 0); got.A != 0 {
		t.Fatalf("pixel outside the scene should stay transparent, got %+v", got)
	}
}

func TestDecodeGeoTIFFTooFewBands(t *testing.T) {
	_, err := decodeGeoTIFF(writeGeoTIFF(t, 3), planetLayout, nil)
	if err == nil || !strings.Contains(err.Error(), "expected at least 4") {
		t.Fatalf("expected a band count error, got %v", err)
	}
}

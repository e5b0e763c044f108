package output

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"
	"github.com/terrascan/terrascan/internal/classify"
)

// NDVI display range, matching the usual red-yellow-green vegetation palette.
const (
	ndviMin = -0.2
	ndviMax = 0.8
)

var (
	ErrEmptyRaster = errors.New("raster has no pixels")
	ErrNoMask      = errors.New("classification has no mask")
)

var (
	colorDegraded = color.RGBA{R: 215, G: 48, B: 39, A: 255}
	colorHealthy  = color.RGBA{R: 26, G: 152, B: 80, A: 255}
	colorMissing  = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

func normalize(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	norm := (value - min) / (max - min)
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

// valueToColor maps 0..1 onto red -> yellow -> green.
func valueToColor(norm float64) color.RGBA {
	if norm <= 0.5 {
		return color.RGBA{R: 255, G: uint8(255 * norm / 0.5), B: 0, A: 255}
	}
	return color.RGBA{R: uint8(255 * (1 - (norm-0.5)/0.5)), G: 255, B: 0, A: 255}
}

func missing(value float64) bool {
	return value == classify.NoData || math.IsNaN(value)
}

// RenderNDVI colours each pixel by its index value. Missing pixels are transparent.
func RenderNDVI(raster classify.Raster) (*image.RGBA, error) {
	rows, cols := raster.Shape()
	if rows == 0 || cols == 0 {
		return nil, ErrEmptyRaster
	}
	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for y, row := range raster {
		for x, value := range row {
			if missing(value) {
				continue
			}
			img.SetRGBA(x, y, valueToColor(normalize(value, ndviMin, ndviMax)))
		}
	}
	return img, nil
}

// RenderMask draws healthy pixels green, degraded red and missing grey.
func RenderMask(raster classify.Raster, mask classify.Mask) (*image.RGBA, error) {
	if mask == nil {
		return nil, ErrNoMask
	}
	rows, cols := raster.Shape()
	if rows == 0 || cols == 0 {
		return nil, ErrEmptyRaster
	}
	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for y, row := range raster {
		for x, value := range row {
			switch {
			case missing(value):
				img.SetRGBA(x, y, colorMissing)
			case y < len(mask) && x < len(mask[y]) && mask[y][x] == 1:
				img.SetRGBA(x, y, colorHealthy)
			default:
				img.SetRGBA(x, y, colorDegraded)
			}
		}
	}
	return img, nil
}

const legendHeight = 60

// WithNDVILegend appends a colour ramp with its value range under img.
func WithNDVILegend(img image.Image, title string) image.Image {
	width := max(img.Bounds().Dx(), 220)
	height := img.Bounds().Dy()
	dc := gg.NewContext(width, height+legendHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.DrawImage(img, 0, 0)

	top := float64(height + 10)
	rampWidth := float64(width - 20)
	for i := 0; i < int(rampWidth); i++ {
		c := valueToColor(float64(i) / rampWidth)
		dc.SetRGB255(int(c.R), int(c.G), int(c.B))
		dc.DrawRectangle(10+float64(i), top, 1, 15)
		dc.Fill()
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawRectangle(10, top, rampWidth, 15)
	dc.SetLineWidth(1)
	dc.Stroke()

	dc.DrawStringAnchored(fmt.Sprintf("%.1f", ndviMin), 10, top+25, 0, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.1f", ndviMax), 10+rampWidth, top+25, 1, 0.5)
	dc.DrawStringAnchored(title, float64(width)/2, top+25, 0.5, 0.5)
	return dc.Image()
}

// WithMaskLegend appends a key for the mask colours under img.
func WithMaskLegend(img image.Image, degradedPercent float64) image.Image {
	width := max(img.Bounds().Dx(), 220)
	height := img.Bounds().Dy()
	dc := gg.NewContext(width, height+legendHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.DrawImage(img, 0, 0)

	entries := []struct {
		label string
		color color.RGBA
	}{
		{fmt.Sprintf("Degraded %.2f%%", degradedPercent), colorDegraded},
		{fmt.Sprintf("Healthy %.2f%%", 100-degradedPercent), colorHealthy},
		{"No data", colorMissing},
	}
	for i, entry := range entries {
		y := float64(height + 5 + i*18)
		dc.SetRGB255(int(entry.color.R), int(entry.color.G), int(entry.color.B))
		dc.DrawRectangle(10, y, 12, 12)
		dc.Fill()

		dc.SetRGB(0, 0, 0)
		dc.DrawRectangle(10, y, 12, 12)
		dc.SetLineWidth(1)
		dc.Stroke()
		dc.DrawStringAnchored(entry.label, 28, y+6, 0, 0.5)
	}
	return dc.Image()
}

func EncodePNG(w io.Writer, img image.Image) error {
	return gg.NewContextForImage(img).EncodePNG(w)
}

func SavePNG(path string, img image.Image) error {
	if err := gg.SavePNG(path, img); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

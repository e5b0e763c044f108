package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/terrascan/terrascan/internal/aoi"
)

const TimestampLayout = "2006-01-02 15:04:05"

const (
	MetricGenerated      = "Report Generated"
	MetricHealthStatus   = "Health Status"
	MetricHealthScore    = "Health Score"
	MetricDegraded       = "Degraded Area Percentage"
	MetricHealthy        = "Healthy Area Percentage"
	MetricThreshold      = "NDVI Analysis Threshold"
	MetricArea           = "Approximate Area (km²)"
	MetricMinLon         = "Bounding Box Min Longitude"
	MetricMaxLon         = "Bounding Box Max Longitude"
	MetricMinLat         = "Bounding Box Min Latitude"
	MetricMaxLat         = "Bounding Box Max Latitude"
	MetricRecommendation = "Recommended Action"
)

type Row struct {
	Metric string `csv:"Metric"`
	Value  string `csv:"Value"`
}

type Report struct {
	GeneratedAt time.Time
	Band        HealthBand
	Rows        []Row
}

// Generate builds the report rows for one analysis. It performs no I/O.
func Generate(area aoi.AreaOfInterest, degradedPercent, threshold float64, generatedAt time.Time) (Report, error) {
	bounds, err := area.BoundingBox()
	if err != nil {
		return Report{}, fmt.Errorf("cannot generate report: %w", err)
	}

	band := BandFor(degradedPercent)
	healthyPercent := 100 - degradedPercent

	rows := []Row{
		{MetricGenerated, generatedAt.Format(TimestampLayout)},
		{MetricHealthStatus, band.Status},
		{MetricHealthScore, fmt.Sprintf("%.1f", healthyPercent)},
		{MetricDegraded, fmt.Sprintf("%.2f%%", degradedPercent)},
		{MetricHealthy, fmt.Sprintf("%.2f%%", healthyPercent)},
		{MetricThreshold, formatFloat(threshold)},
		{MetricArea, fmt.Sprintf("%.2f", bounds.AreaKm2())},
		{MetricMinLon, formatFloat(bounds.MinLon)},
		{MetricMaxLon, formatFloat(bounds.MaxLon)},
		{MetricMinLat, formatFloat(bounds.MinLat)},
		{MetricMaxLat, formatFloat(bounds.MaxLat)},
		{MetricRecommendation, band.Action},
	}

	return Report{GeneratedAt: generatedAt, Band: band, Rows: rows}, nil
}

// CSV serializes the rows with a "Metric,Value" header.
func (r Report) CSV() ([]byte, error) {
	data, err := gocsv.MarshalBytes(&r.Rows)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

func (r Report) Value(metric string) (string, bool) {
	for _, row := range r.Rows {
		if row.Metric == metric {
			return row.Value, true
		}
	}
	return "", false
}

// Parse reads a report CSV back into a metric to value map.
func Parse(data []byte) (map[string]string, error) {
	var rows []*Row
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Metric] = row.Value
	}
	return values, nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

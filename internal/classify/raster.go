package classify

import "math"

// NormalizedDifference returns (a-b)/(a+b), or 0 when the denominator is 0.
func NormalizedDifference(a, b float64) float64 {
	denominator := a + b
	if denominator == 0 {
		return 0
	}
	return (a - b) / denominator
}

// Shape returns the number of rows and the widest row.
func (r Raster) Shape() (int, int) {
	width := 0
	for _, row := range r {
		if len(row) > width {
			width = len(row)
		}
	}
	return len(r), width
}

// Stats summarizes the valid (non NoData, non NaN) samples.
type Stats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

func (r Raster) Stats() Stats {
	stats := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for _, row := range r {
		for _, value := range row {
			if value == NoData || math.IsNaN(value) {
				continue
			}
			stats.Count++
			sum += value
			stats.Min = math.Min(stats.Min, value)
			stats.Max = math.Max(stats.Max, value)
		}
	}
	if stats.Count == 0 {
		return Stats{}
	}
	stats.Mean = sum / float64(stats.Count)
	return stats
}

package classify

// NoData marks a missing sample in an index raster.
const NoData = -9999.0

// Threshold bounds offered to users. Classify itself accepts any value.
const (
	DefaultThreshold = 0.2
	MinThreshold     = 0.0
	MaxThreshold     = 0.5
)

// Raster is a row-major grid of per-pixel index values.
type Raster [][]float64

// Mask marks healthy pixels with 1 and everything else with 0.
type Mask [][]uint8

type Counts struct {
	Degraded int `json:"degraded"`
	Healthy  int `json:"healthy"`
	Missing  int `json:"missing"`
	// Unordered counts NaN samples, which compare false against any threshold.
	Unordered int `json:"unordered"`
}

func (c Counts) Valid() int {
	return c.Degraded + c.Healthy
}

type Result struct {
	DegradedPercent float64 `json:"degraded_percent"`
	Threshold       float64 `json:"threshold"`
	Counts          Counts  `json:"counts"`
	Mask            Mask    `json:"-"`
}

func (r Result) HealthyPercent() float64 {
	return 100 - r.DegradedPercent
}

// HasMask reports whether the raster had at least one valid pixel.
// A 0% result without a mask means "no data", not "fully healthy".
func (r Result) HasMask() bool {
	return r.Mask != nil
}

func (r Result) NoValidData() bool {
	return r.Counts.Valid() == 0
}

// Classify computes the share of valid pixels strictly below threshold.
// Cells equal to NoData are excluded from every count. The raster is not modified.
func Classify(raster Raster, threshold float64) Result {
	result := Result{Threshold: threshold}

	for _, row := range raster {
		for _, value := range row {
			switch {
			case value == NoData:
				result.Counts.Missing++
			case value < threshold:
				result.Counts.Degraded++
			case value >= threshold:
				result.Counts.Healthy++
			default:
				result.Counts.Unordered++
			}
		}
	}

	valid := result.Counts.Valid()
	if valid == 0 {
		return result
	}

	result.DegradedPercent = 100 * float64(result.Counts.Degraded) / float64(valid)
	result.Mask = buildMask(raster, threshold)
	return result
}

func buildMask(raster Raster, threshold float64) Mask {
	mask := make(Mask, len(raster))
	for y, row := range raster {
		mask[y] = make([]uint8, len(row))
		for x, value := range row {
			if value != NoData && value >= threshold {
				mask[y][x] = 1
			}
		}
	}
	return mask
}

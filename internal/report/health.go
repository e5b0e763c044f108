package report

// HealthBand is a qualitative label for a degraded-area percentage.
type HealthBand struct {
	Status string `json:"status"`
	Action string `json:"action"`
	// Below is the exclusive upper bound of the band.
	Below float64 `json:"-"`
}

var (
	Excellent = HealthBand{Status: "Excellent", Action: "Maintain current practices", Below: 10}
	Good      = HealthBand{Status: "Good", Action: "Monitor vegetation health", Below: 25}
	Moderate  = HealthBand{Status: "Moderate", Action: "Implement conservation measures", Below: 40}
	Poor      = HealthBand{Status: "Poor", Action: "Urgent restoration needed"}
)

var bands = []HealthBand{Excellent, Good, Moderate}

func BandFor(degradedPercent float64) HealthBand {
	for _, band := range bands {
		if degradedPercent < band.Below {
			return band
		}
	}
	return Poor
}

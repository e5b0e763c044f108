package session

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/terrascan/terrascan/internal/report"
)

type HistoryEntry struct {
	DegradedPercent float64   `json:"degraded_percent"`
	Threshold       float64   `json:"threshold"`
	Timestamp       time.Time `json:"timestamp"`
	Provider        string    `json:"provider,omitempty"`
	NoValidData     bool      `json:"no_valid_data"`
}

// History is the in-memory list of analyses for one session, oldest first.
type History []HistoryEntry

type historyRow struct {
	Timestamp string `csv:"Timestamp"`
	Degraded  string `csv:"Degraded Area Percentage"`
	Threshold string `csv:"NDVI Analysis Threshold"`
	Provider  string `csv:"Provider"`
	NoData    bool   `csv:"No Valid Data"`
}

func (h History) CSV() ([]byte, error) {
	rows := make([]historyRow, 0, len(h))
	for _, entry := range h {
		rows = append(rows, historyRow{
			Timestamp: entry.Timestamp.Format(report.TimestampLayout),
			Degraded:  fmt.Sprintf("%.2f%%", entry.DegradedPercent),
			Threshold: strconv.FormatFloat(entry.Threshold, 'f', -1, 64),
			Provider:  entry.Provider,
			NoData:    entry.NoValidData,
		})
	}
	data, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}
	return data, nil
}

// Latest returns the most recent entry.
func (h History) Latest() (HistoryEntry, bool) {
	if len(h) == 0 {
		return HistoryEntry{}, false
	}
	return h[len(h)-1], true
}

package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/terrascan/terrascan/internal/analysis"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/properties"
	"github.com/terrascan/terrascan/internal/provider"
	"github.com/terrascan/terrascan/internal/report"
	"github.com/terrascan/terrascan/internal/session"
	"github.com/terrascan/terrascan/output"
)

// LoadArea reads a GeoJSON file and selects one of its polygons.
func (c *Console) LoadArea(ctx context.Context) error {
	c.PrintWarning("- The file should hold a GeoJSON Polygon, Feature or FeatureCollection.\n- Features may be labelled with a 'name' property.")

	path, err := c.ReadString("Enter the path of the GeoJSON file: ")
	if err != nil {
		return err
	}
	areas, err := aoi.ParseFile(path)
	if err != nil {
		return err
	}

	selected := areas[0]
	if len(areas) > 1 {
		fmt.Fprintf(c.out, "%s\nAvailable areas:%s\n", ColorGreen, ColorReset)
		for i, area := range areas {
			fmt.Fprintf(c.out, "%s%d. %s%s\n", ColorGreen, i+1, area.Name, ColorReset)
		}
		choice, err := c.ReadInt("Enter the number of the area you want to use: ", 1, len(areas))
		if err != nil {
			return err
		}
		selected = areas[choice-1]
	}

	if err := c.session.SetArea(selected.Name, selected.Area); err != nil {
		return err
	}
	c.frames = nil

	bounds, _ := selected.Area.BoundingBox()
	c.PrintSuccess(fmt.Sprintf("Area %q loaded: lon %.4f..%.4f, lat %.4f..%.4f (~%.2f km²)",
		selected.Name, bounds.MinLon, bounds.MaxLon, bounds.MinLat, bounds.MaxLat, bounds.AreaKm2()))
	return nil
}

// SetThreshold changes the NDVI value below which pixels count as degraded.
func (c *Console) SetThreshold(ctx context.Context) error {
	prompt := fmt.Sprintf("Enter the NDVI threshold (current %v, allowed 0.0 to 0.5): ", c.session.Threshold())
	threshold, err := c.ReadFloat(prompt)
	if err != nil {
		return err
	}
	if err := c.session.SetThreshold(threshold); err != nil {
		return err
	}
	c.PrintSuccess(fmt.Sprintf("Threshold set to %v", threshold))
	return nil
}

// RunAnalysis fetches imagery for the loaded area and classifies it.
func (c *Console) RunAnalysis(ctx context.Context) error {
	name, area := c.session.Area()
	if area.IsZero() {
		return session.ErrNoArea
	}
	c.PrintInfo(fmt.Sprintf("Analyzing %s with %s\n", name, c.service.ProviderName()))

	defaultStart, defaultEnd := properties.DefaultDateRange(c.now())
	start, err := c.ReadDate(fmt.Sprintf("Enter the start date (YYYY-MM-DD, blank for %s): ", defaultStart.Format(dateLayout)), defaultStart)
	if err != nil {
		return err
	}
	end, err := c.ReadDate(fmt.Sprintf("Enter the end date (YYYY-MM-DD | today, blank for %s): ", defaultEnd.Format(dateLayout)), defaultEnd)
	if err != nil {
		return err
	}
	dates := provider.DateRange{Start: start, End: end}
	if err := dates.Validate(); err != nil {
		return err
	}

	stop := c.startSpinner("Fetching imagery")
	result, err := c.service.Analyze(ctx, c.session, analysis.Request{
		Threshold: c.session.Threshold(),
		Dates:     dates,
	})
	stop()
	if err != nil {
		return err
	}

	if frame, err := output.Render(output.KindNDVI, result); err == nil {
		c.frames = append(c.frames, frame)
	}

	band := report.BandFor(result.Result.DegradedPercent)
	message := analysis.Summary(name, result)
	if !result.Result.NoValidData() {
		message += "\nRecommended action: " + band.Action
	}
	c.PrintSuccess(message)
	return nil
}

// ShowHistory lists every analysis of the session.
func (c *Console) ShowHistory(ctx context.Context) error {
	history := c.session.History()
	if len(history) == 0 {
		c.PrintWarning("No analyses have been run yet.")
		return nil
	}

	fmt.Fprintf(c.out, "%s\n%-20s %-10s %-10s %s%s\n", ColorGreen, "Timestamp", "Degraded", "Threshold", "Provider", ColorReset)
	for _, entry := range history {
		degraded := fmt.Sprintf("%.2f%%", entry.DegradedPercent)
		if entry.NoValidData {
			degraded = "no data"
		}
		fmt.Fprintf(c.out, "%s%-20s %-10s %-10v %s%s\n", ColorGreen,
			entry.Timestamp.Format(report.TimestampLayout), degraded, entry.Threshold, entry.Provider, ColorReset)
	}
	return nil
}

// ExportReport writes the report of the latest analysis to a CSV file.
func (c *Console) ExportReport(ctx context.Context) error {
	r, err := c.service.Report(c.session, c.now())
	if err != nil {
		return err
	}
	data, err := r.CSV()
	if err != nil {
		return err
	}

	resultPath, err := c.CreateResultDirectory("reports")
	if err != nil {
		return err
	}
	path := filepath.Join(resultPath, fmt.Sprintf("terrascan_report_%s.csv", r.GeneratedAt.Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	c.PrintSuccess(fmt.Sprintf("Report located at: %s", path))
	return nil
}

// ExportImages writes the visualizations and a GeoJSON of the latest analysis.
func (c *Console) ExportImages(ctx context.Context) error {
	last := c.session.Last()
	if last == nil {
		return analysis.ErrNoAnalysis
	}
	name, area := c.session.Area()

	resultPath, err := c.CreateResultDirectory("images")
	if err != nil {
		return err
	}
	prefix := fmt.Sprintf("%s_%s", output.FileName(name), last.CompletedAt.Format("20060102_150405"))

	paths, err := output.RenderAll(resultPath, prefix, last)
	if err != nil {
		return err
	}
	geojsonPath := filepath.Join(resultPath, prefix+".geojson")
	if err := output.WriteGeoJSON(geojsonPath, name, area, last); err != nil {
		return err
	}

	lines := []string{"Images exported:"}
	for _, kind := range output.Kinds {
		if path, ok := paths[kind]; ok {
			lines = append(lines, fmt.Sprintf("- %s: %s", kind, path))
		}
	}
	lines = append(lines, fmt.Sprintf("- geojson: %s", geojsonPath))
	c.PrintSuccess(strings.Join(lines, "\n"))
	return nil
}

// ExportTimelapse encodes the NDVI map of every analysis run since the area was loaded.
func (c *Console) ExportTimelapse(ctx context.Context) error {
	if len(c.frames) == 0 {
		return analysis.ErrNoAnalysis
	}
	name, _ := c.session.Area()

	resultPath, err := c.CreateResultDirectory("timelapse")
	if err != nil {
		return err
	}
	path, err := output.WriteTimelapse(c.frames, filepath.Join(resultPath, output.FileName(name)+"_ndvi"), 2)
	if err != nil {
		return err
	}
	c.PrintSuccess(fmt.Sprintf("Timelapse of %d analyses located at: %s", len(c.frames), path))
	return nil
}

// startSpinner shows an indeterminate progress bar until the returned func is called.
func (c *Console) startSpinner(description string) func() {
	if !c.spinner {
		return func() {}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
		bar.Finish()
	}
}

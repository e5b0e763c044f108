package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/terrascan/terrascan/internal/analysis"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/classify"
	"github.com/terrascan/terrascan/internal/properties"
	"github.com/terrascan/terrascan/internal/provider"
	"github.com/terrascan/terrascan/internal/report"
	"github.com/terrascan/terrascan/internal/session"
	"github.com/terrascan/terrascan/output"
)

const dateLayout = "2006-01-02"

// Handler serves session endpoints.
type Handler struct {
	store   *session.Store
	service *analysis.Service
	log     *logrus.Entry
	now     func() time.Time
}

type analysisView struct {
	DegradedPercent float64            `json:"degraded_percent"`
	HealthyPercent  float64            `json:"healthy_percent"`
	Threshold       float64            `json:"threshold"`
	HealthStatus    string             `json:"health_status"`
	Recommendation  string             `json:"recommendation"`
	BaselineDelta   float64            `json:"baseline_delta"`
	NoValidData     bool               `json:"no_valid_data"`
	Counts          classify.Counts    `json:"counts"`
	Stats           classify.Stats     `json:"ndvi_stats"`
	Source          provider.Source    `json:"source"`
	Dates           provider.DateRange `json:"dates"`
	CompletedAt     time.Time          `json:"completed_at"`
	Summary         string             `json:"summary"`
}

type sessionView struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	AreaName  string        `json:"area_name,omitempty"`
	Bounds    *aoi.Bounds   `json:"bounds,omitempty"`
	AreaKm2   float64       `json:"area_km2,omitempty"`
	Threshold float64       `json:"threshold"`
	Last      *analysisView `json:"last_analysis,omitempty"`
	Analyses  int           `json:"analyses"`
}

func newAnalysisView(name string, a *session.Analysis) *analysisView {
	band := report.BandFor(a.Result.DegradedPercent)
	view := &analysisView{
		DegradedPercent: a.Result.DegradedPercent,
		HealthyPercent:  a.Result.HealthyPercent(),
		Threshold:       a.Result.Threshold,
		HealthStatus:    band.Status,
		Recommendation:  band.Action,
		BaselineDelta:   a.BaselineDelta(),
		NoValidData:     a.Result.NoValidData(),
		Counts:          a.Result.Counts,
		Dates:           a.Dates,
		CompletedAt:     a.CompletedAt,
		Summary:         analysis.Summary(name, a),
	}
	if a.Imagery != nil {
		view.Source = a.Imagery.Source
		view.Stats = a.Imagery.NDVI.Stats()
	}
	return view
}

func newSessionView(sess *session.Session) sessionView {
	name, area, last := sess.Current()
	view := sessionView{
		ID:        sess.ID(),
		CreatedAt: sess.CreatedAt(),
		AreaName:  name,
		Threshold: sess.Threshold(),
		Analyses:  len(sess.History()),
	}
	if bounds, err := area.BoundingBox(); err == nil {
		view.Bounds = &bounds
		view.AreaKm2 = bounds.AreaKm2()
	}
	if last != nil {
		view.Last = newAnalysisView(name, last)
	}
	return view
}

func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		fail(c, err, http.StatusInternalServerError)
		return nil, false
	}
	return sess, true
}

// ListSessions handles GET /api/v1/sessions
func (h *Handler) ListSessions(c *gin.Context) {
	sessions := h.store.List()
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, newSessionView(sess))
	}
	success(c, http.StatusOK, views)
}

// CreateSession handles POST /api/v1/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	sess := h.store.Create()
	h.log.WithField("session", sess.ID()).Info("session created")
	success(c, http.StatusCreated, newSessionView(sess))
}

// GetSession handles GET /api/v1/sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	success(c, http.StatusOK, newSessionView(sess))
}

// DeleteSession handles DELETE /api/v1/sessions/:id
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		fail(c, err, http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetArea handles PUT /api/v1/sessions/:id/aoi with a GeoJSON Polygon, Feature or FeatureCollection body.
func (h *Handler) SetArea(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, fmt.Errorf("%w: %v", errBadRequest, err), http.StatusBadRequest)
		return
	}
	areas, err := aoi.ParseAll(body)
	if err != nil {
		fail(c, err, http.StatusBadRequest)
		return
	}
	name := c.DefaultQuery("name", areas[0].Name)
	if err := sess.SetArea(name, areas[0].Area); err != nil {
		fail(c, err, http.StatusBadRequest)
		return
	}
	success(c, http.StatusOK, newSessionView(sess))
}

type thresholdRequest struct {
	Threshold *float64 `json:"threshold"`
}

// SetThreshold handles PUT /api/v1/sessions/:id/threshold
func (h *Handler) SetThreshold(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req thresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Threshold == nil {
		fail(c, fmt.Errorf("%w: threshold is required", errBadRequest), http.StatusBadRequest)
		return
	}
	if err := sess.SetThreshold(*req.Threshold); err != nil {
		fail(c, err, http.StatusBadRequest)
		return
	}
	success(c, http.StatusOK, newSessionView(sess))
}

type analyzeRequest struct {
	Threshold *float64 `json:"threshold"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
}

func (h *Handler) dates(req analyzeRequest) (provider.DateRange, error) {
	start, end := properties.DefaultDateRange(h.now())
	var err error
	if req.Start != "" {
		if start, err = time.Parse(dateLayout, req.Start); err != nil {
			return provider.DateRange{}, fmt.Errorf("%w: start must be YYYY-MM-DD", errBadRequest)
		}
	}
	if req.End != "" {
		if end, err = time.Parse(dateLayout, req.End); err != nil {
			return provider.DateRange{}, fmt.Errorf("%w: end must be YYYY-MM-DD", errBadRequest)
		}
	}
	dates := provider.DateRange{Start: start, End: end}
	if err := dates.Validate(); err != nil {
		return provider.DateRange{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return dates, nil
}

// Analyze handles POST /api/v1/sessions/:id/analyses
func (h *Handler) Analyze(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req analyzeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, fmt.Errorf("%w: %v", errBadRequest, err), http.StatusBadRequest)
			return
		}
	}
	dates, err := h.dates(req)
	if err != nil {
		fail(c, err, http.StatusBadRequest)
		return
	}
	if req.Threshold != nil {
		if err := sess.SetThreshold(*req.Threshold); err != nil {
			fail(c, err, http.StatusBadRequest)
			return
		}
	}

	result, err := h.service.Analyze(c.Request.Context(), sess, analysis.Request{
		Threshold: sess.Threshold(),
		Dates:     dates,
	})
	if err != nil {
		fail(c, err, http.StatusBadGateway)
		return
	}
	name, _ := sess.Area()
	success(c, http.StatusCreated, newAnalysisView(name, result))
}

// Report handles GET /api/v1/sessions/:id/report.csv
func (h *Handler) Report(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	r, err := h.service.Report(sess, h.now())
	if err != nil {
		fail(c, err, http.StatusInternalServerError)
		return
	}
	data, err := r.CSV()
	if err != nil {
		fail(c, err, http.StatusInternalServerError)
		return
	}
	filename := fmt.Sprintf("terrascan_report_%s.csv", r.GeneratedAt.Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// History handles GET /api/v1/sessions/:id/history, as JSON or with ?format=csv.
func (h *Handler) History(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	history := sess.History()
	if c.Query("format") != "csv" {
		success(c, http.StatusOK, history)
		return
	}
	data, err := history.CSV()
	if err != nil {
		fail(c, err, http.StatusInternalServerError)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="terrascan_history.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// Image handles GET /api/v1/sessions/:id/images/{ndvi,mask,truecolor}.png
func (h *Handler) Image(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	kind, err := output.ParseKind(strings.TrimSuffix(c.Param("file"), ".png"))
	if err != nil {
		fail(c, fmt.Errorf("%w: %v", errBadRequest, err), http.StatusBadRequest)
		return
	}
	last := sess.Last()
	if last == nil {
		fail(c, analysis.ErrNoAnalysis, http.StatusConflict)
		return
	}
	img, err := output.Render(kind, last)
	if err != nil {
		fail(c, err, http.StatusInternalServerError)
		return
	}
	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	if err := output.EncodePNG(c.Writer, img); err != nil {
		h.log.WithError(err).Warn("failed to encode image")
	}
}

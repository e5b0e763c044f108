package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/terrascan/terrascan/internal/analysis"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/provider"
	"github.com/terrascan/terrascan/internal/session"
	"github.com/terrascan/terrascan/output"
)

var errBadRequest = errors.New("bad request")

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Code: 0, Message: "success", Data: data})
}

// fail maps err onto a status code. fallback is used for errors with no known mapping.
func fail(c *gin.Context, err error, fallback int) {
	status := fallback
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, aoi.ErrInvalidGeometry),
		errors.Is(err, session.ErrThresholdOutside):
		status = http.StatusBadRequest
	case errors.Is(err, provider.ErrNoData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNoArea),
		errors.Is(err, session.ErrAreaChanged),
		errors.Is(err, analysis.ErrNoAnalysis),
		errors.Is(err, output.ErrNoImage),
		errors.Is(err, output.ErrNoMask):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.Error(err)
	c.JSON(status, Response{Code: status, Message: err.Error()})
}

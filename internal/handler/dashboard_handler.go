package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aftab-edu/exam-studio-api/internal/service"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
	"github.com/aftab-edu/exam-studio-api/pkg/response"
)

// DashboardHandler serves the landing page summary.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(svc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Summary godoc
// @Summary Dashboard summary
// @Description Aggregated counters and recent activity for the caller's scope
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil)
}

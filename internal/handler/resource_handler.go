package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aftab-edu/exam-studio-api/internal/service"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
	"github.com/aftab-edu/exam-studio-api/pkg/response"
)

// ResourceHandler manages the school knowledge base endpoints.
type ResourceHandler struct {
	service *service.ResourceService
}

// NewResourceHandler creates a new handler.
func NewResourceHandler(svc *service.ResourceService) *ResourceHandler {
	return &ResourceHandler{service: svc}
}

// List godoc
// @Summary List school resources
// @Description List the reference material registered for a school
// @Tags Resources
// @Produce json
// @Param school query string false "School name (super_admin only)"
// @Success 200 {object} response.Envelope
// @Router /resources [get]
func (h *ResourceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	resources, err := h.service.List(c.Request.Context(), claims, c.Query("school"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, resources, nil)
}

// Create godoc
// @Summary Add school resource
// @Description Register reference material used by the exam generator
// @Tags Resources
// @Accept json
// @Produce json
// @Param payload body service.CreateResourceRequest true "Resource payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /resources [post]
func (h *ResourceHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resource payload"))
		return
	}

	resource, err := h.service.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, resource)
}

// Delete godoc
// @Summary Delete school resource
// @Description Remove reference material
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /resources/{id} [delete]
func (h *ResourceHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

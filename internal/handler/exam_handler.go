package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aftab-edu/exam-studio-api/internal/models"
	"github.com/aftab-edu/exam-studio-api/internal/service"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
	"github.com/aftab-edu/exam-studio-api/pkg/export"
	"github.com/aftab-edu/exam-studio-api/pkg/response"
)

// ExamHandler wires HTTP endpoints to the exam, generator and sheet services.
type ExamHandler struct {
	exams     *service.ExamService
	generator *service.GeneratorService
	sheets    *service.SheetService
	csv       *export.CSVExporter
}

// NewExamHandler creates a new handler.
func NewExamHandler(exams *service.ExamService, generator *service.GeneratorService, sheets *service.SheetService, csv *export.CSVExporter) *ExamHandler {
	return &ExamHandler{exams: exams, generator: generator, sheets: sheets, csv: csv}
}

// List godoc
// @Summary List exams
// @Description List the exam archive visible to the caller
// @Tags Exams
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param search query string false "Search by title or topic"
// @Param mine query bool false "Only the caller's own exams"
// @Success 200 {object} response.Envelope
// @Router /exams [get]
func (h *ExamHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.ExamFilter{Search: c.Query("search")}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if mine, _ := strconv.ParseBool(c.DefaultQuery("mine", "false")); mine {
		filter.UserID = claims.UserID
	}

	exams, pagination, err := h.exams.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, exams, pagination)
}

// Get godoc
// @Summary Get exam
// @Description Fetch a single exam within the caller's scope
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exams/{id} [get]
func (h *ExamHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	exam, err := h.exams.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, exam, nil)
}

// Generate godoc
// @Summary Generate exam
// @Description Generate a new exam with the AI collaborator and store it
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body models.GenerateExamParams true "Generation parameters"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Failure 504 {object} response.Envelope
// @Router /exams/generate [post]
func (h *ExamHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var params models.GenerateExamParams
	if err := c.ShouldBindJSON(&params); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation payload"))
		return
	}

	exam, err := h.generator.Generate(c.Request.Context(), claims, params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, exam)
}

// Update godoc
// @Summary Update exam
// @Description Edit the title and segment contents of an exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body service.UpdateExamRequest true "Edit payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exams/{id} [put]
func (h *ExamHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid exam payload"))
		return
	}

	exam, err := h.exams.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, exam, nil)
}

// Delete godoc
// @Summary Delete exam
// @Description Remove an exam from the archive
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /exams/{id} [delete]
func (h *ExamHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.exams.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Duplicate godoc
// @Summary Duplicate exam
// @Description Clone an exam into the caller's cartable (feature flagged)
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exams/{id}/duplicate [post]
func (h *ExamHandler) Duplicate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	exam, err := h.exams.Duplicate(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, exam)
}

// RenderSheet godoc
// @Summary Render printable sheet
// @Description Render the exam as a PDF and return a signed download link
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exams/{id}/sheet [post]
func (h *ExamHandler) RenderSheet(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	link, err := h.sheets.Render(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, link, nil)
}

// DownloadSheet godoc
// @Summary Download printable sheet
// @Description Stream a rendered sheet using a signed token; no session needed
// @Tags Exams
// @Produce application/pdf
// @Param token query string true "Signed sheet token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /sheets/download [get]
func (h *ExamHandler) DownloadSheet(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, filename, err := h.sheets.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat sheet"))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, nil)
}

// ExportCSV godoc
// @Summary Export exam archive
// @Description Download the visible exam archive as CSV
// @Tags Exams
// @Produce text/csv
// @Success 200 {file} binary
// @Router /exams/export [get]
func (h *ExamHandler) ExportCSV(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	exams, _, err := h.exams.List(c.Request.Context(), claims, models.ExamFilter{PageSize: 100})
	if err != nil {
		response.Error(c, err)
		return
	}

	data, err := h.csv.RenderArchive(exams)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export archive"))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="exams.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}

package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kosen-dev/timetable-api/internal/service"
	appErrors "github.com/kosen-dev/timetable-api/pkg/errors"
	"github.com/kosen-dev/timetable-api/pkg/response"
)

// TimetableHandler serves derived weekly grids.
type TimetableHandler struct {
	service *service.TimetableService
}

// NewTimetableHandler creates a new timetable handler.
func NewTimetableHandler(svc *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Weekly godoc
// @Summary Weekly timetable for a class
// @Description Full day × period grid; every cell present, parallel sections listed together
// @Tags Timetables
// @Produce json
// @Param class_id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{class_id}/weekly [get]
func (h *TimetableHandler) Weekly(c *gin.Context) {
	classID := c.Param("class_id")
	if classID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "class_id is required"))
		return
	}

	timetable, err := h.service.GetWeekly(c.Request.Context(), classID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, timetable, nil)
}

// ExportPDF godoc
// @Summary Weekly timetable as PDF
// @Tags Timetables
// @Produce application/pdf
// @Param class_id path string true "Class ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /timetables/{class_id}/export.pdf [get]
func (h *TimetableHandler) ExportPDF(c *gin.Context) {
	classID := c.Param("class_id")
	if classID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "class_id is required"))
		return
	}

	payload, filename, err := h.service.ExportWeeklyPDF(c.Request.Context(), classID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", payload)
}

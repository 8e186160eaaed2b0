package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kosen-dev/timetable-api/internal/models"
	"github.com/kosen-dev/timetable-api/internal/service"
	appErrors "github.com/kosen-dev/timetable-api/pkg/errors"
	"github.com/kosen-dev/timetable-api/pkg/response"
)

// CSVHandler wires CSV import/export endpoints.
type CSVHandler struct {
	service        *service.CSVService
	maxUploadBytes int64
}

// NewCSVHandler creates a new CSV handler.
func NewCSVHandler(svc *service.CSVService, maxUploadBytes int64) *CSVHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 5 << 20
	}
	return &CSVHandler{service: svc, maxUploadBytes: maxUploadBytes}
}

// ImportSubjects godoc
// @Summary Import subject master CSV
// @Tags CSV
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /csv/import/subjects [post]
func (h *CSVHandler) ImportSubjects(c *gin.Context) {
	h.runImport(c, h.service.ImportSubjects)
}

// ImportTimetables godoc
// @Summary Import weekly timetable CSV
// @Description Each row replaces one class's slots; bad rows are reported, not fatal
// @Tags CSV
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /csv/import/timetables [post]
func (h *CSVHandler) ImportTimetables(c *gin.Context) {
	h.runImport(c, h.service.ImportTimetables)
}

// ExportSubjects godoc
// @Summary Export subject master CSV
// @Tags CSV
// @Produce text/csv
// @Success 200 {file} binary
// @Router /csv/export/subjects [get]
func (h *CSVHandler) ExportSubjects(c *gin.Context) {
	payload, filename, err := h.service.ExportSubjects(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	writeAttachment(c, payload, filename)
}

// ExportTimetables godoc
// @Summary Export weekly timetables CSV
// @Tags CSV
// @Produce text/csv
// @Success 200 {file} binary
// @Router /csv/export/timetables [get]
func (h *CSVHandler) ExportTimetables(c *gin.Context) {
	payload, filename, err := h.service.ExportTimetables(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	writeAttachment(c, payload, filename)
}

type importFunc func(ctx context.Context, actorID string, r io.Reader) (*models.CSVImportResult, error)

func (h *CSVHandler) runImport(c *gin.Context, do importFunc) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "csv file is required"))
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "uploaded file is too large"))
		return
	}

	result, err := do(c.Request.Context(), claims.UserID, file)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

func writeAttachment(c *gin.Context, payload []byte, filename string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", payload)
}

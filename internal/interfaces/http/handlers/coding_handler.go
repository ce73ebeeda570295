package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appcoding "github.com/turtacn/ClinTerm-Intelligence/internal/application/coding"
	domain "github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

// CodingHandler exposes line processing, term resolution and note coding.
type CodingHandler struct {
	service appcoding.Service
	logger  logging.Logger
}

// NewCodingHandler creates a new CodingHandler.
func NewCodingHandler(service appcoding.Service, logger logging.Logger) *CodingHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CodingHandler{service: service, logger: logger}
}

// RegisterRoutes registers the coding routes on an /api/v1 group.
func (h *CodingHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/lines/process", h.ProcessLine)
	r.POST("/terms/resolve", h.ResolveTerm)
	r.POST("/notes", h.ProcessNote)
	r.GET("/notes/:id/resolutions", h.ListResolutions)
}

// ProcessLineRequest is the body of POST /lines/process.
type ProcessLineRequest struct {
	Text string `json:"text"`
}

// ResolveTermRequest is the body of POST /terms/resolve.
type ResolveTermRequest struct {
	Term    string `json:"term"`
	Context string `json:"context,omitempty"`
}

// ResolutionsResponse lists the stored records of one note.
type ResolutionsResponse struct {
	NoteID  string                    `json:"note_id"`
	Records []domain.ResolutionRecord `json:"records"`
	Total   int                       `json:"total"`
}

// ProcessLine handles POST /api/v1/lines/process.
func (h *CodingHandler) ProcessLine(c *gin.Context) {
	var req ProcessLineRequest
	if !bindJSON(c, &req) {
		return
	}
	c.JSON(http.StatusOK, h.service.ProcessLine(c.Request.Context(), req.Text))
}

// ResolveTerm handles POST /api/v1/terms/resolve.
func (h *CodingHandler) ResolveTerm(c *gin.Context) {
	var req ResolveTermRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.service.ResolveTerm(c.Request.Context(), req.Term, req.Context)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ProcessNote handles POST /api/v1/notes.
func (h *CodingHandler) ProcessNote(c *gin.Context) {
	var req appcoding.NoteInput
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Lines) == 0 {
		writeAppError(c, h.logger, errors.New(errors.ErrCodeValidation, "lines must not be empty"))
		return
	}
	result, err := h.service.ProcessNote(c.Request.Context(), &req)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListResolutions handles GET /api/v1/notes/:id/resolutions.
func (h *CodingHandler) ListResolutions(c *gin.Context) {
	noteID := c.Param("id")
	records, err := h.service.ListByNote(c.Request.Context(), noteID)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	if records == nil {
		records = []domain.ResolutionRecord{}
	}
	c.JSON(http.StatusOK, ResolutionsResponse{NoteID: noteID, Records: records, Total: len(records)})
}

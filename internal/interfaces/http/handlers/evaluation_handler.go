package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/ClinTerm-Intelligence/internal/application/evaluation"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

// ReportArchive stores evaluation reports.
type ReportArchive interface {
	PutJSON(ctx context.Context, kind minio.Kind, runID, name string, v interface{}) (*minio.ArchivedObject, error)
}

// EvaluationHandler scores predicted codes against a ground truth.
type EvaluationHandler struct {
	archive ReportArchive
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// NewEvaluationHandler creates a new EvaluationHandler. archive and metrics
// may be nil.
func NewEvaluationHandler(archive ReportArchive, metrics *prometheus.AppMetrics, logger logging.Logger) *EvaluationHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &EvaluationHandler{archive: archive, metrics: metrics, logger: logger}
}

// RegisterRoutes registers the evaluation route on an /api/v1 group.
func (h *EvaluationHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/evaluations", h.Evaluate)
}

// EvaluateRequest carries the CSV tables inline.
type EvaluateRequest struct {
	GroundTruth string `json:"ground_truth"`
	Predictions string `json:"predictions"`
	Remap       string `json:"remap,omitempty"`
	Archive     bool   `json:"archive,omitempty"`
}

// EvaluateResponse is the report plus the archived object, if any.
type EvaluateResponse struct {
	*evaluation.Report
	Archived *minio.ArchivedObject `json:"archived,omitempty"`
}

// Evaluate handles POST /api/v1/evaluations.
func (h *EvaluationHandler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Archive && h.archive == nil {
		writeAppError(c, h.logger, errors.New(errors.ErrCodeServiceUnavailable, "report archive is not configured"))
		return
	}

	truth, err := evaluation.LoadCodeTable(strings.NewReader(req.GroundTruth))
	if err != nil {
		writeAppError(c, h.logger, inputError("ground_truth", err))
		return
	}
	predicted, err := evaluation.LoadCodeTable(strings.NewReader(req.Predictions))
	if err != nil {
		writeAppError(c, h.logger, inputError("predictions", err))
		return
	}
	if req.Remap != "" {
		mapping, err := evaluation.LoadMapping(strings.NewReader(req.Remap))
		if err != nil {
			writeAppError(c, h.logger, inputError("remap", err))
			return
		}
		truth = evaluation.Remap(truth, mapping)
	}

	report, err := evaluation.Evaluate(truth, predicted)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	report.Record(h.metrics)
	h.logger.WithContext(c.Request.Context()).Info("evaluation finished",
		logging.Int("notes", len(report.Notes)),
		logging.Float64("macro_iou", report.MacroIOU),
		logging.Float64("macro_precision", report.MacroPrecision))

	resp := EvaluateResponse{Report: report}
	if req.Archive {
		name := fmt.Sprintf("report-%s.json", time.Now().UTC().Format("20060102T150405Z"))
		obj, err := h.archive.PutJSON(c.Request.Context(), minio.KindEvaluations, uuid.NewString(), name, report)
		if err != nil {
			writeAppError(c, h.logger, err)
			return
		}
		resp.Archived = obj
	}
	c.JSON(http.StatusOK, resp)
}

// inputError prefixes a table parse failure with the request field it came from.
func inputError(field string, err error) error {
	var ae *errors.AppError
	if errors.As(err, &ae) {
		return errors.Newf(ae.Code, "%s: %s", field, strings.TrimPrefix(err.Error(), "["+ae.Code.String()+"] "))
	}
	return errors.Wrap(err, errors.ErrCodeEvalInputInvalid, field)
}

// Package handlers implements the HTTP handlers of the API server.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/interfaces/http/middleware"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// bindJSON decodes the request body into dst and writes a 400 on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeAppError(c, nil, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// writeAppError maps err's code to an HTTP status. Server-side failures are
// logged and their message replaced by the code's default text.
func writeAppError(c *gin.Context, logger logging.Logger, err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.ErrCodeInternal
	}
	status := errors.HTTPStatusForCode(code)

	msg := strings.TrimPrefix(err.Error(), "["+code.String()+"] ")
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.WithContext(c.Request.Context()).Error("request failed",
				logging.String("path", c.FullPath()), logging.Err(err))
		}
		msg = errors.DefaultMessageForCode(code)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:      code.String(),
		Message:   msg,
		RequestID: middleware.GetRequestID(c),
	})
}

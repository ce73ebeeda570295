package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeMessageQueueError  ErrorCode = "COMMON_015"
	ErrCodeStorageError       ErrorCode = "COMMON_016"
)

// Aliases
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Configuration Error Codes
const (
	ErrCodeInvalidConfig  ErrorCode = "CFG_001"
	ErrCodeUnknownBackend ErrorCode = "CFG_002"
	ErrCodeConfigLoad     ErrorCode = "CFG_003"
)

// Oracle (LLM backend) Error Codes
const (
	ErrCodeLLMRequestFailed   ErrorCode = "LLM_001"
	ErrCodeLLMBadStatus       ErrorCode = "LLM_002"
	ErrCodeLLMEmptyCompletion ErrorCode = "LLM_003"
	ErrCodeLLMDecodeFailed    ErrorCode = "LLM_004"
)

// Terminology Error Codes
const (
	ErrCodeTerminologyUnavailable ErrorCode = "TERM_001"
	ErrCodeTerminologyBadStatus   ErrorCode = "TERM_002"
	ErrCodeTerminologyDecode      ErrorCode = "TERM_003"
	ErrCodeNoCandidates           ErrorCode = "TERM_004"
)

// Evaluation Error Codes
const (
	ErrCodeEvalInputInvalid ErrorCode = "EVAL_001"
	ErrCodeEvalEmptyTruth   ErrorCode = "EVAL_002"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeMessageQueueError:  http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,

	ErrCodeInvalidConfig:  http.StatusInternalServerError,
	ErrCodeUnknownBackend: http.StatusInternalServerError,
	ErrCodeConfigLoad:     http.StatusInternalServerError,

	ErrCodeLLMRequestFailed:   http.StatusBadGateway,
	ErrCodeLLMBadStatus:       http.StatusBadGateway,
	ErrCodeLLMEmptyCompletion: http.StatusBadGateway,
	ErrCodeLLMDecodeFailed:    http.StatusBadGateway,

	ErrCodeTerminologyUnavailable: http.StatusServiceUnavailable,
	ErrCodeTerminologyBadStatus:   http.StatusBadGateway,
	ErrCodeTerminologyDecode:      http.StatusBadGateway,
	ErrCodeNoCandidates:           http.StatusNotFound,

	ErrCodeEvalInputInvalid: http.StatusBadRequest,
	ErrCodeEvalEmptyTruth:   http.StatusBadRequest,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeMessageQueueError:  "message queue error",
	ErrCodeStorageError:       "object storage error",

	ErrCodeInvalidConfig:  "invalid configuration",
	ErrCodeUnknownBackend: "unsupported oracle backend",
	ErrCodeConfigLoad:     "failed to load configuration",

	ErrCodeLLMRequestFailed:   "oracle request failed",
	ErrCodeLLMBadStatus:       "oracle returned an error status",
	ErrCodeLLMEmptyCompletion: "oracle returned no completion",
	ErrCodeLLMDecodeFailed:    "failed to decode oracle response",

	ErrCodeTerminologyUnavailable: "terminology service unavailable",
	ErrCodeTerminologyBadStatus:   "terminology service returned an error status",
	ErrCodeTerminologyDecode:      "failed to decode valueset expansion",
	ErrCodeNoCandidates:           "no terminology candidates",

	ErrCodeEvalInputInvalid: "invalid evaluation input",
	ErrCodeEvalEmptyTruth:   "ground truth table is empty",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

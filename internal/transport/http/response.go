package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "denticheck-server/internal/platform/errors"
)

// APIResponse is the envelope for errors and non-domain payloads.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// ErrorData is the envelope payload of a failed request.
type ErrorData struct {
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(httpStatus, APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// RespondAppError maps a typed error to its HTTP status and writes the
// envelope. Internal causes are not exposed.
func RespondAppError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := StatusFor(err)
	RespondError(c, status, apperrors.MessageOf(err), ErrorData{
		Kind:      string(apperrors.KindOf(err)),
		RequestID: RequestID(c),
	})
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidInput:
		return http.StatusBadRequest
	case apperrors.KindUpstreamFetch, apperrors.KindContextRetrieval, apperrors.KindSynthesis:
		return http.StatusBadGateway
	case apperrors.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case apperrors.KindModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

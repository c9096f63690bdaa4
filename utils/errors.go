package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standardized error response. ErrorCode is a
// stable machine-readable string; Message is for humans. Internal error
// details never leak through either field.
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "invalid_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithTooLarge sends a 413 Payload Too Large error
func RespondWithTooLarge(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large", message, details)
}

// RespondWithUnsupportedMedia sends a 415 Unsupported Media Type error
func RespondWithUnsupportedMedia(c *gin.Context, message string) {
	RespondWithError(c, http.StatusUnsupportedMediaType, "unsupported_media_type", message, nil)
}

// RespondWithConflict sends a 409 Conflict error
func RespondWithConflict(c *gin.Context, message string) {
	RespondWithError(c, http.StatusConflict, "conflict", message, nil)
}

// RespondWithUpstreamUnavailable sends a 503 when a dependency is exhausted
func RespondWithUpstreamUnavailable(c *gin.Context, message string) {
	RespondWithError(c, http.StatusServiceUnavailable, "upstream_unavailable", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

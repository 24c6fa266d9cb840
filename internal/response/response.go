package response

import (
	"net/http"

	"payment-api/internal/apperr"
	"payment-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success returns a success response
func Success(data interface{}) Response {
	return Response{
		Success: true,
		Message: "success",
		Data:    data,
	}
}

// Error returns an error response
func Error(statusCode int, message string) Response {
	return Response{
		Success: false,
		Message: message,
	}
}

// JSON sends a JSON response
func JSON(c *gin.Context, statusCode int, response Response) {
	c.JSON(statusCode, response)
}

// SuccessJSON sends a success JSON response
func SuccessJSON(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, Success(data))
}

// ErrorJSON sends an error JSON response
func ErrorJSON(c *gin.Context, statusCode int, message string) {
	JSON(c, statusCode, Error(statusCode, message))
}

// StatusOf maps an error kind to the HTTP status returned to clients.
func StatusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindAmountMismatch:
		return http.StatusBadRequest
	case apperr.KindAuth, apperr.KindSignature:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Fail sends err as an error response. Internal errors are logged and their
// details withheld from the client.
func Fail(c *gin.Context, err error) {
	status := StatusOf(err)
	message := apperr.Message(err)
	if status == http.StatusInternalServerError {
		logging.Errorf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		message = "internal server error"
	}
	ErrorJSON(c, status, message)
}

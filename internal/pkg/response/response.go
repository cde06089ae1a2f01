// internal/pkg/response/response.go
package response

import (
	"errors"
	"net/http"

	xerrors "saas-billing/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response defines the standard API response format.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

const paymentErrorMessage = "Payment processing error. Please try again."

// Success sends a successful response with a message and optional data.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends a standardized error response. The message doubles as the error
// string so clients never see internal error text.
func Error(c *gin.Context, code int, message string, data ...interface{}) {
	c.Abort()

	response := Response{
		Success: false,
		Message: message,
		Error:   message,
	}

	if len(data) > 0 {
		response.Data = data[0]
	}

	c.JSON(code, response)
}

// HandleError maps an application error onto the HTTP taxonomy. Anything that is
// not a known client error is logged and answered with fallback.
func HandleError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	status := StatusFor(err)

	var data interface{}
	message := fallback
	if appErr, ok := xerrors.As(err); ok {
		data = appErr.Data
		if appErr.Message != "" {
			message = appErr.Message
		}
	}

	switch {
	case status == http.StatusInternalServerError:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Error(err),
		)
		if !errors.Is(err, xerrors.ErrConfiguration) {
			message = fallback
		}
	case errors.Is(err, xerrors.ErrPaymentProvider):
		logger.Warn("payment provider error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		message = paymentErrorMessage
	}

	if data != nil {
		Error(c, status, message, data)
		return
	}
	Error(c, status, message)
}

// StatusFor returns the HTTP status code for err.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, xerrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, xerrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, xerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, xerrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, xerrors.ErrInvalidInput),
		errors.Is(err, xerrors.ErrBadRequest),
		errors.Is(err, xerrors.ErrDuplicateEntry),
		errors.Is(err, xerrors.ErrConflict),
		errors.Is(err, xerrors.ErrPaymentProvider):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError sends a 400 Bad Request response for invalid input.
func ValidationError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 Unauthorized response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// Forbidden sends a 403 Forbidden response.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

// NotFound sends a 404 Not Found response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

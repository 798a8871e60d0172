package middleware

import (
	"net/http"
	"runtime/debug"

	"riderx/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorHandler recovers panics and renders errors attached with c.Error.
type ErrorHandler struct {
	environment string
	logger      *logrus.Logger
}

func NewErrorHandler(environment string, logger *logrus.Logger) *ErrorHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ErrorHandler{
		environment: environment,
		logger:      logger,
	}
}

// Handle returns the error handling middleware
func (eh *ErrorHandler) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				eh.handlePanic(c, err)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		for _, ginErr := range c.Errors {
			eh.logger.WithFields(logrus.Fields{
				"error":      ginErr.Err.Error(),
				"request_id": c.GetString("request_id"),
				"path":       c.Request.URL.Path,
				"method":     c.Request.Method,
				"rider_id":   utils.GetRiderID(c),
			}).Warn("Request error")
		}
		utils.HandleServiceError(c, c.Errors.Last().Err)
	}
}

func (eh *ErrorHandler) handlePanic(c *gin.Context, err interface{}) {
	stack := string(debug.Stack())

	eh.logger.WithFields(logrus.Fields{
		"panic":      err,
		"stack":      stack,
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"rider_id":   utils.GetRiderID(c),
	}).Error("Panic recovered")

	var details interface{}
	if eh.environment == "development" {
		details = gin.H{"panic": err, "stack": stack}
	}

	utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", details)
	c.Abort()
}

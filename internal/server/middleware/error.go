package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ephram/relay/pkg/api"
)

// ErrorHandler is the single place classified errors become HTTP responses.
// Backend failures surface as {error, recommendations}; the listener itself
// never crashes on them.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			if apiErr.Log != nil {
				logger.Error("classified error",
					zap.String("kind", string(apiErr.Kind)),
					zap.Error(apiErr.Log),
				)
			}

			body := gin.H{"error": apiErr.Message}
			if len(apiErr.Recommendations) > 0 {
				body["recommendations"] = apiErr.Recommendations
			}
			if len(apiErr.Details) > 0 {
				body["details"] = apiErr.Details
			}

			c.AbortWithStatusJSON(apiErr.Status(), body)
			return
		}

		logger.Error("unhandled error", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "An unexpected error occurred.",
		})
	}
}

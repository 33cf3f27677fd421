package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/learnbot/internal/common"
	"github.com/suPer8Hu/learnbot/internal/logger"
)

// Recovery turns a panic into the standard error envelope.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				if log != nil {
					log.Error("panic recovered",
						"panic", rec,
						"path", c.Request.URL.Path,
						"request_id", c.GetString(RequestIDKey),
						"stack", string(debug.Stack()),
					)
				}
				if c.Writer.Written() {
					c.Abort()
					return
				}
				common.Abort(c, http.StatusInternalServerError, 50000, "internal error")
			}
		}()
		c.Next()
	}
}

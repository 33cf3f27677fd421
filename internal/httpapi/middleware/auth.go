package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/learnbot/internal/auth"
	"github.com/suPer8Hu/learnbot/internal/common"
)

const (
	UserIDKey   = "uid"
	CourseIDKey = "cid"
)

// AuthRequired accepts "Authorization: Bearer <jwt>" and stores the user and
// course ids on the gin context.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(h, "Bearer ")
		token = strings.TrimSpace(token)
		if !found || token == "" {
			common.Abort(c, http.StatusUnauthorized, 40101, "missing bearer token")
			return
		}

		claims, err := auth.ParseJWT(token, secret)
		if err != nil {
			common.Abort(c, http.StatusUnauthorized, 40102, "invalid token")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(CourseIDKey, claims.CourseID)
		c.Next()
	}
}

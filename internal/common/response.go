package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// OK writes a success envelope. Extra fields are merged at the top level.
func OK(c *gin.Context, message string, fields gin.H) {
	Respond(c, http.StatusOK, message, fields)
}

// Respond writes a success envelope with a custom HTTP status.
func Respond(c *gin.Context, httpStatus int, message string, fields gin.H) {
	body := gin.H{
		"status":  StatusSuccess,
		"message": message,
	}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(httpStatus, body)
}

// Fail writes an error envelope. code is an application error code for logs
// and clients that want more than the message.
func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"status":  StatusError,
		"code":    code,
		"message": msg,
	})
}

// Abort is Fail for middleware.
func Abort(c *gin.Context, httpStatus int, code int, msg string) {
	Fail(c, httpStatus, code, msg)
	c.Abort()
}

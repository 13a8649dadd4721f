package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"resume-pipeline/internal/shared/requestid"
)

const (
	requestIDKey       = "requestId"
	maxRequestIDLength = 128
)

// RequestID adopts the caller's X-Request-Id when it is safe to log and mints a UUID otherwise.
// The id is stored in the gin context and in the request context, where the pipeline picks it up.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Request = c.Request.WithContext(requestid.With(c.Request.Context(), id))
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFromContext fetches the request ID stored by RequestID middleware.
func RequestIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(requestIDKey)
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if b := id[i]; b < 0x21 || b > 0x7e {
			return false
		}
	}
	return true
}

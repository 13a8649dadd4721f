package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const candidateIDKey = "candidateId"

// CandidateHeader carries the caller's candidate id. It namespaces evidence and exports; it is not authentication.
const CandidateHeader = "X-Candidate-Id"

// Candidate stores the candidate id from the request header in the gin context.
func Candidate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if id := strings.TrimSpace(c.GetHeader(CandidateHeader)); id != "" {
			c.Set(candidateIDKey, id)
		}
		c.Next()
	}
}

// CandidateIDFromContext fetches the candidate id set by the Candidate middleware.
func CandidateIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(candidateIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"resume-pipeline/internal/shared/server/respond"
)

// RequestIDHeader is echoed on every response and accepted from callers that want to correlate logs.
const RequestIDHeader = "X-Request-Id"

var (
	corsAllowHeaders  = strings.Join([]string{"Content-Type", CandidateHeader, RequestIDHeader}, ", ")
	corsExposeHeaders = strings.Join([]string{RequestIDHeader, "Retry-After"}, ", ")
)

// CORS admits browser callers from the configured origins. "*" admits any origin without credentials.
// Preflights from other origins are refused with 403.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]struct{})
	anyOrigin := false
	for _, o := range allowedOrigins {
		switch o = strings.TrimRight(strings.TrimSpace(o), "/"); o {
		case "":
		case "*":
			anyOrigin = true
		default:
			origins[o] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		preflight := c.Request.Method == http.MethodOptions
		if origin == "" {
			if preflight {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Add("Vary", "Origin")
		if _, ok := origins[origin]; ok {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		} else if anyOrigin {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			if preflight {
				respond.Error(c, http.StatusForbidden, "ORIGIN_NOT_ALLOWED", "origin not allowed", nil)
				return
			}
			c.Next()
			return
		}
		h.Set("Access-Control-Expose-Headers", corsExposeHeaders)

		if preflight {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

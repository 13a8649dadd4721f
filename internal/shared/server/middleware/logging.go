package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"resume-pipeline/internal/shared/telemetry"
)

// Logging emits one request.complete line per request. Handlers annotate the line by setting
// applicationId, stage and statusTransition on the gin context; unset annotations are omitted.
// Preflights and metric scrapes are not logged.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"route":       c.FullPath(),
			"path":        c.Request.URL.Path,
			"class":       string(ClassifyRoute(c.Request.Method, c.FullPath())),
			"status":      c.Writer.Status(),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"client_ip":   c.ClientIP(),
		}
		if id := CandidateIDFromContext(c); id != "" {
			fields["candidate_id"] = id
		}
		for key, field := range map[string]string{
			"applicationId":    "application_id",
			"stage":            "stage",
			"statusTransition": "status_transition",
		} {
			if v := c.GetString(key); v != "" {
				fields[field] = v
			}
		}
		telemetry.Info("request.complete", fields)
	}
}

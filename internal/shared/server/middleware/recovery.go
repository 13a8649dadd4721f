package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"resume-pipeline/internal/shared/server/respond"
	"resume-pipeline/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 envelope. The log line names the application and stage
// the handler had recorded, so a crash mid-advance can be traced to the stage that was running.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			telemetry.Error("http.panic", map[string]any{
				"request_id":     RequestIDFromContext(c),
				"candidate_id":   CandidateIDFromContext(c),
				"application_id": c.GetString("applicationId"),
				"stage":          c.GetString("stage"),
				"method":         c.Request.Method,
				"route":          c.FullPath(),
				"error":          fmt.Sprint(rec),
				"stack":          string(debug.Stack()),
			})
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "INTERNAL", "unexpected server error", nil)
		}()
		c.Next()
	}
}

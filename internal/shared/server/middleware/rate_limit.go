package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"resume-pipeline/internal/shared/metrics"
	"resume-pipeline/internal/shared/server/respond"
)

// RouteClass buckets routes by what a request costs.
type RouteClass string

const (
	// ClassRead covers polling: application state, artifacts, evidence and cost.
	ClassRead RouteClass = "read"
	// ClassWrite covers requests that store input without calling a model.
	ClassWrite RouteClass = "write"
	// ClassSpend covers requests that may run a stage and spend model tokens.
	ClassSpend RouteClass = "spend"
)

// Bucket is a token bucket refilled at PerSecond up to Burst.
type Bucket struct {
	PerSecond float64
	Burst     int
}

// Limits holds one bucket per route class. A zero bucket leaves the class unlimited.
type Limits struct {
	Read  Bucket
	Write Bucket
	Spend Bucket
}

// DefaultLimits lets a candidate poll freely while holding stage runs to one every five seconds after a burst of three.
func DefaultLimits() Limits {
	return Limits{
		Read:  Bucket{PerSecond: 10, Burst: 40},
		Write: Bucket{PerSecond: 2, Burst: 10},
		Spend: Bucket{PerSecond: 0.2, Burst: 3},
	}
}

func (l Limits) bucket(class RouteClass) Bucket {
	switch class {
	case ClassRead:
		return l.Read
	case ClassSpend:
		return l.Spend
	default:
		return l.Write
	}
}

// ClassifyRoute maps a matched route onto its class. Advancing and answering gaps both run stages.
func ClassifyRoute(method, fullPath string) RouteClass {
	if method == http.MethodGet || method == http.MethodHead {
		return ClassRead
	}
	if strings.HasSuffix(fullPath, "/advance") || strings.HasSuffix(fullPath, "/answers") {
		return ClassSpend
	}
	return ClassWrite
}

// Limiter tracks buckets per candidate and route class.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
	now     func() time.Time
}

type bucketState struct {
	tokens float64
	last   time.Time
}

func NewLimiter(now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{buckets: make(map[string]*bucketState), now: now}
}

// RateLimit rejects requests over their class's bucket with 429 and Retry-After.
// Buckets are keyed by the X-Candidate-Id value, or by client IP when the header is absent,
// so it must run after Candidate.
func RateLimit(limits Limits, limiter *Limiter) gin.HandlerFunc {
	if limiter == nil {
		limiter = NewLimiter(nil)
	}
	return func(c *gin.Context) {
		class := ClassifyRoute(c.Request.Method, c.FullPath())
		who := CandidateIDFromContext(c)
		if who == "" {
			who = "ip:" + c.ClientIP()
		}
		wait, ok := limiter.Take(who+"|"+string(class), limits.bucket(class))
		if ok {
			c.Next()
			return
		}
		metrics.IncRateLimited(string(class))
		if wait <= 0 {
			wait = time.Second
		}
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		respond.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", gin.H{
			"class":        class,
			"retryAfterMs": wait.Milliseconds(),
		})
	}
}

// Take spends one token from the bucket at key. When it is empty Take reports how long until a token is back.
func (l *Limiter) Take(key string, b Bucket) (time.Duration, bool) {
	if l == nil || b.PerSecond <= 0 || b.Burst <= 0 {
		return 0, true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.buckets[key]
	if !ok {
		st = &bucketState{tokens: float64(b.Burst), last: now}
		l.buckets[key] = st
	}
	if elapsed := now.Sub(st.last).Seconds(); elapsed > 0 {
		st.tokens = math.Min(float64(b.Burst), st.tokens+elapsed*b.PerSecond)
		st.last = now
	}
	if st.tokens >= 1 {
		st.tokens--
		return 0, true
	}
	wait := (1 - st.tokens) / b.PerSecond
	return time.Duration(math.Ceil(wait*1000)) * time.Millisecond, false
}

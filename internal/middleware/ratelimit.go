package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/doctrail/doctrail/internal/pkg/response"
)

type rateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

// RateLimit allows one request per (tenant, path) within the window. Meant
// for the write endpoints; a zero window disables it.
func RateLimit(window time.Duration) gin.HandlerFunc {
	limiter := &rateLimiter{
		window: window,
		last:   make(map[string]time.Time),
	}
	return limiter.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.window <= 0 {
		c.Next()
		return
	}
	tenantID := "-"
	if v, ok := c.Get(ContextTenantIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			tenantID = id
		}
	}
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	key := strings.Join([]string{tenantID, path}, "|")

	now := time.Now()
	l.mu.Lock()
	last, exists := l.last[key]
	if exists && now.Sub(last) < l.window {
		l.mu.Unlock()
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("tenant_id", tenantID),
			zap.String("path", path),
		)
		response.Error(c, http.StatusTooManyRequests, "too_many_requests", http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	l.last[key] = now
	l.mu.Unlock()
	c.Next()
}

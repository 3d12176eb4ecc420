package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/labforge/lims-admin/internal/accounts"
	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/http/api/handlers"
	"github.com/labforge/lims-admin/internal/models"
	"github.com/labforge/lims-admin/internal/ratelimit"
	log "github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

// requestLogMiddleware logs one line per request. Bodies and credentials are never logged.
func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if _, errParse := uuid.Parse(requestID); errParse != nil {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Set("requestID", requestID)

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := log.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		}
		if userID, ok := c.Get(handlers.ContextUserIDKey); ok {
			fields["user_id"] = userID
		}
		entry := log.WithFields(fields)
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("api request")
			return
		}
		entry.Info("api request")
	}
}

// authMiddleware validates bearer tokens and loads the caller.
func authMiddleware(svc *accounts.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			handlers.RespondError(c, apperr.Unauthorized("missing authorization header"))
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			handlers.RespondError(c, apperr.Unauthorized("invalid authorization format"))
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			handlers.RespondError(c, apperr.Unauthorized("empty token"))
			return
		}

		user, claims, err := svc.ResolveToken(c.Request.Context(), token)
		if err != nil {
			handlers.RespondError(c, err)
			return
		}
		c.Set(handlers.ContextUserKey, user)
		c.Set(handlers.ContextClaimsKey, claims)
		c.Set(handlers.ContextUserIDKey, user.ID)
		c.Next()
	}
}

// accountSetMiddleware refuses callers that have not completed first-time setup.
func accountSetMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := handlers.CurrentUser(c)
		if !ok {
			handlers.RespondError(c, apperr.Unauthorized("authentication required"))
			return
		}
		if !user.AccountIsSet {
			handlers.RespondError(c, apperr.Forbidden("account setup required"))
			return
		}
		c.Next()
	}
}

// adminMiddleware restricts a group to administrators.
func adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := handlers.CurrentUser(c)
		if !ok {
			handlers.RespondError(c, apperr.Unauthorized("authentication required"))
			return
		}
		if user.UserType != models.UserTypeAdmin {
			handlers.RespondError(c, apperr.Forbidden("administrator access required"))
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware enforces the per-minute limit. Authenticated callers
// are counted per user, anonymous callers per client address.
func rateLimitMiddleware(limiter *ratelimit.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := ratelimit.KeyForClient(c.ClientIP())
		if userID, ok := c.Get(handlers.ContextUserIDKey); ok {
			if id, okID := userID.(uint64); okID {
				key = ratelimit.KeyForUser(id)
			}
		}
		limit := limiter.Limit()
		result, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			log.WithError(err).Warn("rate limit: check failed, allowing request")
			c.Next()
			return
		}
		if limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
		}
		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(result.RetryAfter(time.Now())))
			handlers.RespondError(c, apperr.New(apperr.KindRateLimited, "too many requests"))
			return
		}
		c.Next()
	}
}

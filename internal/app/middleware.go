package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"commentary/api/internal/auth"
	"commentary/api/internal/metrics"
	"commentary/api/internal/rbac"
	"commentary/api/internal/store"
	"commentary/api/internal/thread"
)

const (
	requestIDKey = "request_id"
	actorKey     = "actor"
	threadKey    = "thread"
)

// requestContext assigns the request id and CORS headers, and answers
// preflight requests.
func (s *HTTPServer) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)

		header := c.Writer.Header()
		header.Set("X-Request-ID", requestID)
		header.Set("Access-Control-Allow-Origin", s.corsOrigin)
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		header.Set("Cache-Control", "no-store")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *HTTPServer) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		}
		if actor := actorFrom(c); actor != nil {
			fields = append(fields, zap.Stringer("actor", actor.Ref))
		}
		if len(c.Errors) > 0 {
			s.logger.Error("request failed", append(fields, zap.String("error", c.Errors.String()))...)
			return
		}
		s.logger.Info("request", fields...)
	}
}

func observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.ReqDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(started).Seconds())
	}
}

// resolveActor reads the bearer token when one is sent. Requests without a
// token continue as anonymous; a bad token is rejected.
func (s *HTTPServer) resolveActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		raw, ok := auth.BearerToken(header)
		if !ok {
			fail(c, errUnauthorized)
			return
		}
		claims, err := auth.ParseToken(s.tokenSecret, raw)
		if err != nil {
			fail(c, err)
			return
		}
		ref := store.Ref{Type: claims.Type, ID: claims.Subject}
		if err := ref.Validate(); err != nil {
			fail(c, errUnauthorized)
			return
		}
		c.Set(actorKey, &thread.Actor{
			Ref:  ref,
			Name: claims.Name,
			Role: rbac.Normalize(claims.Role),
		})
		c.Next()
	}
}

func actorFrom(c *gin.Context) *thread.Actor {
	if value, ok := c.Get(actorKey); ok {
		if actor, ok := value.(*thread.Actor); ok {
			return actor
		}
	}
	return nil
}

func (s *HTTPServer) loadThread() gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := store.Ref{Type: c.Param("type"), ID: c.Param("id")}
		if err := ref.Validate(); err != nil {
			fail(c, err)
			return
		}
		t, err := s.service.ThreadFor(c.Request.Context(), ref)
		if err != nil {
			fail(c, err)
			return
		}
		c.Set(threadKey, t)
		c.Next()
	}
}

func threadFrom(c *gin.Context) *thread.Thread {
	return c.MustGet(threadKey).(*thread.Thread)
}

func (s *HTTPServer) requireRead() gin.HandlerFunc {
	return s.gate(func(t *thread.Thread, actor *thread.Actor) bool {
		return t.CanBeReadBy(actor)
	})
}

func (s *HTTPServer) requireModerate() gin.HandlerFunc {
	return s.gate(func(t *thread.Thread, actor *thread.Actor) bool {
		return t.CanBeEditedBy(actor)
	})
}

func (s *HTTPServer) requireSubscribe() gin.HandlerFunc {
	return s.gate(func(t *thread.Thread, actor *thread.Actor) bool {
		return t.CanSubscribe(actor)
	})
}

// gate rejects anonymous callers with 401 and known callers with 403 when
// allowed does not hold.
func (s *HTTPServer) gate(allowed func(*thread.Thread, *thread.Actor) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		if allowed(threadFrom(c), actor) {
			c.Next()
			return
		}
		if actor == nil {
			fail(c, errUnauthorized)
			return
		}
		s.logger.Info("access denied",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Stringer("actor", actor.Ref),
			zap.String("path", c.FullPath()),
		)
		fail(c, errForbidden)
	}
}

func queryInt(c *gin.Context, key string, fallback int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_QUERY", key+" must be an integer", nil)
		return 0, false
	}
	return value, true
}

package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"commentary/api/internal/store"
	"commentary/api/internal/thread"
)

// Inbox is the per-recipient notification store that backs /api/inbox.
type Inbox interface {
	Pending(ctx context.Context, recipient store.Ref, limit int64) ([]thread.Notification, error)
	Clear(ctx context.Context, recipient store.Ref) error
	Ping(ctx context.Context) error
}

type HTTPServer struct {
	service     *thread.Service
	tokenSecret []byte
	corsOrigin  string
	logger      *zap.Logger
	inbox       Inbox
	search      CommentSearch
	metrics     http.Handler
}

func NewHTTPServer(service *thread.Service, tokenSecret []byte, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{
		service:     service,
		tokenSecret: tokenSecret,
		corsOrigin:  corsOrigin,
		logger:      logger,
		metrics:     promhttp.Handler(),
	}
}

// WithInbox enables the inbox routes. Without an inbox they answer 404.
func (s *HTTPServer) WithInbox(inbox Inbox) *HTTPServer {
	s.inbox = inbox
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router()
}

func (s *HTTPServer) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestContext(), s.logRequests(), observeRequests())

	r.GET("/healthz", s.handleHealth)
	r.HEAD("/healthz", s.handleHealth)
	r.GET("/readyz", s.handleReady)
	r.HEAD("/readyz", s.handleReady)
	r.GET("/metrics", gin.WrapH(s.metrics))

	api := r.Group("/api", s.resolveActor())

	api.GET("/inbox", s.handleInbox)
	api.DELETE("/inbox", s.handleClearInbox)
	api.GET("/search", s.handleSearch)

	threads := api.Group("/threads/:type/:id", s.loadThread())
	{
		threads.GET("", s.requireRead(), s.handleThread)
		threads.DELETE("", s.requireModerate(), s.handleDeleteThread)

		threads.GET("/comments", s.requireRead(), s.handleComments)
		threads.GET("/comments/new-page", s.requireRead(), s.handleNewCommentPage)
		threads.POST("/comments", s.requireRead(), s.handlePostComment)
		threads.PUT("/comments/:commentID", s.requireRead(), s.handleEditComment)
		threads.DELETE("/comments/:commentID", s.requireRead(), s.handleDeleteComment)
		threads.PUT("/comments/:commentID/undelete", s.requireModerate(), s.handleUndeleteComment)
		threads.PUT("/comments/:commentID/vote", s.requireRead(), s.handleVoteComment)

		threads.PUT("/close", s.requireModerate(), s.handleClose)
		threads.PUT("/reopen", s.requireModerate(), s.handleReopen)
		threads.PUT("/clear", s.requireModerate(), s.handleClear)

		threads.PUT("/subscribe", s.requireSubscribe(), s.handleSubscribe)
		threads.PUT("/unsubscribe", s.requireSubscribe(), s.handleUnsubscribe)
		threads.PUT("/mark-read", s.requireRead(), s.handleMarkRead)
		threads.GET("/subscribers", s.requireModerate(), s.handleSubscribers)
	}

	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	return r
}

func (s *HTTPServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := gin.H{
		"database": gin.H{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = gin.H{
			"status": "error",
			"error":  err.Error(),
		}
	}
	if s.inbox != nil {
		checks["redis"] = gin.H{"status": "ok"}
		if err := s.inbox.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["redis"] = gin.H{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	c.JSON(statusCode, gin.H{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleInbox(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	items, err := s.inbox.Pending(c.Request.Context(), actor.Ref, int64(limit))
	if err != nil {
		fail(c, err)
		return
	}
	if items == nil {
		items = []thread.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

func (s *HTTPServer) handleClearInbox(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	if err := s.inbox.Clear(c.Request.Context(), actor.Ref); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// requireActor gates the inbox routes: they need an inbox and a caller.
func (s *HTTPServer) requireActor(c *gin.Context) (*thread.Actor, bool) {
	if s.inbox == nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Inbox is not configured", nil)
		return nil, false
	}
	actor := actorFrom(c)
	if actor == nil {
		fail(c, errUnauthorized)
		return nil, false
	}
	return actor, true
}

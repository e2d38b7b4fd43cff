package app

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"commentary/api/internal/store"
)

func (s *HTTPServer) handleThread(c *gin.Context) {
	t := threadFrom(c)
	actor := actorFrom(c)
	sub, err := s.service.Subscription(c.Request.Context(), t, actor)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newThreadResponse(t, actor, sub))
}

func (s *HTTPServer) handleDeleteThread(c *gin.Context) {
	if err := s.service.Delete(c.Request.Context(), threadFrom(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) handleClose(c *gin.Context) {
	t := threadFrom(c)
	actor := actorFrom(c)
	ok, err := s.service.Close(c.Request.Context(), t, actor)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		fail(c, rejected("Thread is already closed"))
		return
	}
	c.JSON(http.StatusOK, newThreadResponse(t, actor, nil))
}

func (s *HTTPServer) handleReopen(c *gin.Context) {
	t := threadFrom(c)
	actor := actorFrom(c)
	ok, err := s.service.Reopen(c.Request.Context(), t, actor)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		fail(c, rejected("Thread is not closed"))
		return
	}
	c.JSON(http.StatusOK, newThreadResponse(t, actor, nil))
}

func (s *HTTPServer) handleClear(c *gin.Context) {
	t := threadFrom(c)
	actor := actorFrom(c)
	replacement, err := s.service.Clear(c.Request.Context(), t)
	if err != nil {
		fail(c, err)
		return
	}
	if replacement == nil {
		fail(c, rejected("Thread must be closed before it can be cleared"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"archived": newThreadResponse(t, actor, nil),
		"thread":   newThreadResponse(replacement, actor, nil),
	})
}

func (s *HTTPServer) handleComments(c *gin.Context) {
	t := threadFrom(c)
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	perPage, ok := queryInt(c, "per_page", 0)
	if !ok {
		return
	}
	// deleted comments are only listed for moderators
	showAll, _ := strconv.ParseBool(c.Query("show_all"))
	showAll = showAll && t.CanBeEditedBy(actorFrom(c))

	result, err := s.service.PaginatedComments(c.Request.Context(), t, page, perPage, showAll)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newPageResponse(result))
}

func (s *HTTPServer) handleNewCommentPage(c *gin.Context) {
	perPage, ok := queryInt(c, "per_page", 0)
	if !ok {
		return
	}
	page, err := s.service.NewCommentPage(c.Request.Context(), threadFrom(c), perPage)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": page})
}

func (s *HTTPServer) handlePostComment(c *gin.Context) {
	var body struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return
	}
	comment, page, err := s.service.PostComment(c.Request.Context(), threadFrom(c), actorFrom(c), body.Body)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"comment": newCommentResponse(comment),
		"page":    page,
	})
}

func (s *HTTPServer) handleEditComment(c *gin.Context) {
	var body struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return
	}
	if actorFrom(c) == nil {
		fail(c, errUnauthorized)
		return
	}
	comment, err := s.service.EditComment(c.Request.Context(), threadFrom(c), c.Param("commentID"), actorFrom(c), body.Body)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newCommentResponse(comment))
}

func (s *HTTPServer) handleDeleteComment(c *gin.Context) {
	if actorFrom(c) == nil {
		fail(c, errUnauthorized)
		return
	}
	ok, err := s.service.DeleteComment(c.Request.Context(), threadFrom(c), c.Param("commentID"), actorFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		fail(c, rejected("Comment is missing or already deleted"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) handleUndeleteComment(c *gin.Context) {
	ok, err := s.service.UndeleteComment(c.Request.Context(), threadFrom(c), c.Param("commentID"))
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		fail(c, rejected("Comment is missing or not deleted"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) handleVoteComment(c *gin.Context) {
	var body struct {
		Direction string `json:"direction" binding:"required,oneof=up down"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", `direction must be "up" or "down"`, nil)
		return
	}
	comment, err := s.service.VoteComment(c.Request.Context(), threadFrom(c), c.Param("commentID"), actorFrom(c), body.Direction == "up")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newCommentResponse(comment))
}

func (s *HTTPServer) handleSubscribe(c *gin.Context) {
	ok, err := s.service.Subscribe(c.Request.Context(), threadFrom(c), actorFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		fail(c, rejected("Already subscribed or not a commentator"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscribed": true})
}

func (s *HTTPServer) handleUnsubscribe(c *gin.Context) {
	ok, err := s.service.Unsubscribe(c.Request.Context(), threadFrom(c), actorFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		fail(c, rejected("Not subscribed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscribed": false})
}

func (s *HTTPServer) handleMarkRead(c *gin.Context) {
	actor := actorFrom(c)
	if actor == nil {
		fail(c, errUnauthorized)
		return
	}
	ok, err := s.service.MarkRead(c.Request.Context(), threadFrom(c), actor)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		fail(c, rejected("Not subscribed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) handleSubscribers(c *gin.Context) {
	refs, err := s.service.Subscribers(c.Request.Context(), threadFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	if refs == nil {
		refs = []store.Ref{}
	}
	c.JSON(http.StatusOK, gin.H{"subscribers": refs})
}

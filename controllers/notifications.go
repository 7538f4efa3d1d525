package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"refund-review-api/services"
)

type NotificationController struct {
	fanout *services.NotificationFanout
}

func NewNotificationController(fanout *services.NotificationFanout) *NotificationController {
	return &NotificationController{fanout: fanout}
}

// GET /api/v1/notifications
func (nc *NotificationController) List(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	feed, err := nc.fanout.Feed(c.Request.Context(), principal, queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

// GET /api/v1/notifications/unread-count
func (nc *NotificationController) UnreadCount(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	feed, err := nc.fanout.Feed(c.Request.Context(), principal, queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": feed.UnreadCount})
}

// PATCH /api/v1/notifications/:id/read
func (nc *NotificationController) MarkRead(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	if err := nc.fanout.MarkRead(c.Request.Context(), principal, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PATCH /api/v1/notifications/read-all
func (nc *NotificationController) MarkAllRead(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	n, err := nc.fanout.MarkAllRead(c.Request.Context(), principal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "marked": n})
}

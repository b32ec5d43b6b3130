package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleListFeeds(c *gin.Context) {
	feeds, err := s.feeds.Feeds(c.Request.Context())
	if err != nil {
		s.respondError(c, "list feeds", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feeds": feeds, "total": len(feeds)})
}

func (s *Server) handleSyncFeed(c *gin.Context) {
	name := c.Param("name")
	taskID, err := s.feeds.TriggerFeed(name)
	if err != nil {
		s.respondError(c, "trigger feed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "feed": name, "task_id": taskID})
}

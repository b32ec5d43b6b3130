package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"hackers/pkg/hn"
)

// handleSearch finds stories and caches them so they can be opened and bookmarked.
func (s *Server) handleSearch(c *gin.Context) {
	ctx := c.Request.Context()
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		badRequest(c, "q is required")
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		badRequest(c, "invalid page")
		return
	}

	posts, err := s.search.Stories(ctx, query, page)
	if err != nil {
		s.respondError(c, "search", err)
		return
	}
	for _, p := range posts {
		if err := s.cache.UpsertPost(ctx, p); err != nil {
			s.logger.Warn("Failed to cache search result", "post_id", p.ID, "error", err)
		}
	}
	if err := s.applyReadFlags(c, posts); err != nil {
		s.respondError(c, "read flags", err)
		return
	}
	if posts == nil {
		posts = []*hn.Post{}
	}

	c.JSON(http.StatusOK, gin.H{
		"query": query,
		"page":  page,
		"posts": posts,
	})
}

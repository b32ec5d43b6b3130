package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hackers/pkg/hn"
)

func (s *Server) handleListBookmarks(c *gin.Context) {
	posts, err := s.cache.Bookmarks(c.Request.Context())
	if err != nil {
		s.respondError(c, "list bookmarks", err)
		return
	}
	if posts == nil {
		posts = []*hn.Post{}
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// handleAddBookmark bookmarks a post, caching it from the site first when needed.
func (s *Server) handleAddBookmark(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	err := s.cache.AddBookmark(ctx, id)
	if hn.IsNotFound(err) {
		var post *hn.Post
		post, _, err = s.scraper.Post(ctx, id, false)
		if err != nil {
			s.respondError(c, "scrape post", err)
			return
		}
		if err := s.cache.UpsertPost(ctx, post); err != nil {
			s.respondError(c, "cache post", err)
			return
		}
		err = s.cache.AddBookmark(ctx, id)
	}
	if err != nil {
		s.respondError(c, "add bookmark", err)
		return
	}
	s.logger.Info("Post bookmarked", "post_id", id)
	c.JSON(http.StatusCreated, gin.H{"id": id, "bookmarked": true})
}

func (s *Server) handleRemoveBookmark(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := s.cache.RemoveBookmark(c.Request.Context(), id); err != nil {
		s.respondError(c, "remove bookmark", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleToggleBookmark(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	bookmarked, err := s.cache.ToggleBookmark(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, "toggle bookmark", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "bookmarked": bookmarked})
}
